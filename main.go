// Program camviewer subscribes to the image streams of one camera service,
// decodes every frame and shows the selected stream in the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"camviewer/config"
	"camviewer/eventclient"
	"camviewer/frame"
	"camviewer/stats"
	"camviewer/stream"
	"camviewer/ui"

	"golang.org/x/term"
)

const (
	defaultConfigPath = "config.yaml"
	defaultCamera     = "oak0"
)

// Version is set at build time.
var Version = "dev"

type options struct {
	configPath string
	camera     string
	everyN     int
	view       string
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "Path to the YAML config (default $"+config.EnvConfigPath+" or "+defaultConfigPath+")")
	fs.StringVar(&opts.camera, "camera", defaultCamera, "Camera service name from the config")
	fs.IntVar(&opts.everyN, "every-n", 0, "Deliver every Nth frame of each stream (0 = service default)")
	fs.StringVar(&opts.view, "view", "", "Stream shown at startup (default streams.default)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.everyN < 0 {
		return options{}, fmt.Errorf("-every-n must be >= 0, got %d", opts.everyN)
	}
	opts.camera = strings.TrimSpace(opts.camera)
	opts.view = strings.TrimSpace(opts.view)
	return opts, nil
}

// Purpose: Report whether stdout is a TTY for UI gating.
// Key aspects: Uses term.IsTerminal on stdout fd.
// Upstream: main surface selection.
// Downstream: term.IsTerminal.
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Purpose: Load configuration from the flag, env or default location.
// Key aspects: An explicit -config path never falls back; env and default do.
// Upstream: main startup.
// Downstream: config.Load.
func loadConfig(explicit string) (*config.Config, error) {
	if explicit != "" {
		return config.Load(explicit)
	}
	candidates := make([]string, 0, 2)
	if envPath := strings.TrimSpace(os.Getenv(config.EnvConfigPath)); envPath != "" {
		candidates = append(candidates, envPath)
	}
	candidates = append(candidates, defaultConfigPath)

	var lastErr error
	for _, path := range candidates {
		cfg, err := config.Load(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("unable to load config; tried %s (last error: %v)", strings.Join(candidates, ", "), lastErr)
}

// Purpose: Pick the display for this run.
// Key aspects: tview needs an interactive stdout; anything else runs headless.
// Upstream: main startup.
// Downstream: ui.NewDisplay, ui.NewHeadless.
func newSurface(cfg *config.Config, selector *stream.Selector, tracker *stats.Tracker, tty bool) ui.Surface {
	switch mode := strings.ToLower(strings.TrimSpace(cfg.UI.Mode)); mode {
	case "headless":
		log.Printf("UI: headless (mode=headless)")
	case "tview":
		if tty {
			return ui.NewDisplay(cfg.UI, selector, tracker)
		}
		log.Printf("UI: headless (tview requires an interactive console)")
	default:
		log.Printf("UI: mode %q not recognized; defaulting to headless", mode)
	}
	return ui.NewHeadless(tracker, 0)
}

// mqttTransport opens one MQTT subscription per stream on a shared client.
func mqttTransport(client *eventclient.Client) stream.Transport {
	return stream.TransportFunc(func(ctx context.Context, d stream.Descriptor) (stream.Subscription, error) {
		sub, err := client.Subscribe(ctx, d.Path, d.EveryN)
		if err != nil {
			return nil, err
		}
		return sub, nil
	})
}

// exitNotifier reports when the display loop has returned, so shutdown can
// start before every stream task has unwound.
type exitNotifier struct {
	ui.Surface
	exited chan struct{}
}

func (s *exitNotifier) Run(ctx context.Context) error {
	defer close(s.exited)
	return s.Surface.Run(ctx)
}

func main() {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	os.Exit(run(opts, os.Stderr))
}

// Purpose: Wire config, transport, coordinator and display; return the exit code.
// Key aspects: Missing configuration fails before any UI is shown; shutdown
// waits at most the configured grace for stream tasks.
// Upstream: main.
// Downstream: eventclient, stream.Coordinator, ui surfaces, stats.Serve.
func run(opts options, console io.Writer) int {
	log.SetFlags(0)
	log.SetOutput(console)

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		log.Printf("Error loading config: %v", err)
		return 1
	}
	service, err := cfg.Lookup(opts.camera)
	if err != nil {
		log.Printf("Error: %v", err)
		return 1
	}
	initial := cfg.Streams.Default
	if opts.view != "" {
		initial = opts.view
	}
	selector, err := stream.NewSelector(cfg.Streams.Names, initial)
	if err != nil {
		log.Printf("Error: %v", err)
		return 1
	}

	fanout, err := setupLogging(cfg.Logging, console)
	if err != nil {
		log.Printf("Logging: file sink disabled: %v", err)
	}
	log.SetOutput(fanout)
	defer fanout.Close()

	log.Printf("camviewer %s starting (config %s)", Version, cfg.LoadedFrom)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := eventclient.New(service)
	if err := client.Connect(ctx); err != nil {
		log.Printf("Error: %v", err)
		return 1
	}
	defer client.Close()

	tracker := stats.NewTracker()
	startStreamHealthMonitor(ctx, tracker, streamHealthInterval)
	if addr := strings.TrimSpace(cfg.Metrics.Listen); addr != "" {
		go func() {
			if err := stats.Serve(ctx, addr, stats.NewRegistry(tracker)); err != nil {
				log.Printf("Metrics: %v", err)
			}
		}()
	}

	surface := &exitNotifier{Surface: newSurface(cfg, selector, tracker, isStdoutTTY()), exited: make(chan struct{})}
	if w := surface.SystemWriter(); w != nil {
		fanout.SetConsoleSink(w, true)
	} else {
		cfg.Print()
	}

	descs := stream.Descriptors(service, selector.Names(), opts.everyN)
	for _, d := range descs {
		log.Printf("Stream %s", d)
	}
	coord := stream.NewCoordinator(surface, mqttTransport(client), frame.NewDecoder(cfg.Streams.MaxFramePixels), selector, descs,
		stream.WithTracker(tracker),
		stream.WithSkipInactiveDecode(cfg.Streams.SkipInactiveDecode),
	)

	runErr := make(chan error, 1)
	go func() { runErr <- coord.Run(ctx) }()

	select {
	case <-ctx.Done():
		log.Printf("Received shutdown signal")
	case <-surface.exited:
	}
	coord.Shutdown()
	grace := time.Duration(cfg.Streams.ShutdownGraceMS) * time.Millisecond
	waitErr := coord.Wait(grace)
	fanout.SetConsoleSink(console, true)

	code := 0
	if waitErr != nil {
		log.Printf("Shutdown: %v", waitErr)
		code = 1
	} else if err := <-runErr; err != nil {
		log.Printf("Error: %v", err)
		code = 1
	}
	logFailures(coord.Failures())
	for _, snap := range tracker.Snapshot() {
		log.Printf("Stats: %s", stats.FormatLine(snap))
	}
	log.Printf("camviewer stopped after %s", tracker.Uptime().Round(time.Second))
	return code
}

func logFailures(failures map[string]error) {
	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		log.Printf("Stream %s failed: %v", name, failures[name])
	}
}
