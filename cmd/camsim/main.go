// Command camsim publishes synthetic camera frames to an MQTT broker in the
// envelope format camviewer subscribes to. It reads the same config file,
// publishes one topic per configured stream and can inject corrupt frames to
// exercise the decode error path.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"camviewer/config"
	"camviewer/eventclient"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the camviewer YAML config")
	camera := flag.String("camera", "oak0", "Camera service to publish as")
	fps := flag.Int("fps", 15, "Frames per second per stream")
	width := flag.Int("width", 160, "Frame width")
	height := flag.Int("height", 120, "Frame height")
	quality := flag.Int("quality", 80, "JPEG quality")
	frames := flag.Uint64("frames", 0, "Stop after this many frames per stream (0 = run until interrupted)")
	corruptEvery := flag.Uint64("corrupt-every", 0, "Publish a corrupt payload every Nth frame (0 = never)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	service, err := cfg.Lookup(strings.TrimSpace(*camera))
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if *fps <= 0 || *width <= 0 || *height <= 0 {
		log.Fatalf("Error: fps, width and height must be positive")
	}
	service.ClientID += "-sim"

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := eventclient.New(service)
	if err := client.Connect(ctx); err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer client.Close()

	var mu sync.Mutex
	sent := make(map[string]uint64)
	var bytesSent uint64

	g, gctx := errgroup.WithContext(ctx)
	interval := time.Second / time.Duration(*fps)
	for _, name := range cfg.Streams.Names {
		name := name
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for seq := uint64(1); *frames == 0 || seq <= *frames; seq++ {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
				}
				payload, err := encodeJPEG(renderPattern(name, *width, *height, seq), *quality)
				if err != nil {
					return err
				}
				if *corruptEvery > 0 && seq%*corruptEvery == 0 {
					payload = payload[:len(payload)/3]
				}
				if err := client.Publish(gctx, "/"+name, seq, time.Now(), payload); err != nil {
					if gctx.Err() != nil {
						return nil
					}
					return err
				}
				mu.Lock()
				sent[name]++
				bytesSent += uint64(len(payload))
				mu.Unlock()
			}
			return nil
		})
	}
	log.Printf("camsim: publishing %d stream(s) at %d fps as %s", len(cfg.Streams.Names), *fps, service.Name)
	if err := g.Wait(); err != nil {
		log.Printf("Error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, name := range cfg.Streams.Names {
		log.Printf("camsim: %s sent %s frames", name, humanize.Comma(int64(sent[name])))
	}
	log.Printf("camsim: %s published", humanize.Bytes(bytesSent))
}
