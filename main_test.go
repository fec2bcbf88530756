package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"camviewer/config"
	"camviewer/stats"
	"camviewer/stream"
	"camviewer/ui"
)

const testConfig = `
services:
  - name: oak0
    subscriptions:
      - path: /rgb
        every_n: 3
ui:
  mode: headless
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseFlagsDefaults(t *testing.T) {
	opts, err := parseFlags(flag.NewFlagSet("camviewer", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if opts.camera != "oak0" || opts.everyN != 0 || opts.view != "" || opts.configPath != "" {
		t.Fatalf("unexpected defaults %+v", opts)
	}
}

func TestParseFlagsValues(t *testing.T) {
	fs := flag.NewFlagSet("camviewer", flag.ContinueOnError)
	opts, err := parseFlags(fs, []string{"-camera", " oak1 ", "-every-n", "4", "-view", "left", "-config", "x.yaml"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if opts.camera != "oak1" || opts.everyN != 4 || opts.view != "left" || opts.configPath != "x.yaml" {
		t.Fatalf("unexpected options %+v", opts)
	}

	fs = flag.NewFlagSet("camviewer", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if _, err := parseFlags(fs, []string{"-every-n", "-1"}); err == nil {
		t.Fatalf("expected negative -every-n to be rejected")
	}
}

func TestLoadConfigPrefersExplicitThenEnv(t *testing.T) {
	envPath := writeConfig(t, testConfig)
	t.Setenv(config.EnvConfigPath, envPath)

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig via env: %v", err)
	}
	if cfg.LoadedFrom != envPath {
		t.Fatalf("expected config from env path, got %q", cfg.LoadedFrom)
	}

	missing := filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := loadConfig(missing); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("explicit missing path should not fall back, got %v", err)
	}
}

func TestLoadConfigReportsCandidates(t *testing.T) {
	t.Setenv(config.EnvConfigPath, filepath.Join(t.TempDir(), "nope.yaml"))
	wd, wdErr := os.Getwd()
	if wdErr != nil {
		t.Fatal(wdErr)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	_, err := loadConfig("")
	if err == nil || !strings.Contains(err.Error(), "nope.yaml") || !strings.Contains(err.Error(), defaultConfigPath) {
		t.Fatalf("expected both candidates in error, got %v", err)
	}
}

func restoreLogOutput(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(log.LstdFlags)
	})
}

func TestRunExitsOnMissingService(t *testing.T) {
	restoreLogOutput(t)
	path := writeConfig(t, testConfig)
	var out bytes.Buffer
	code := run(options{configPath: path, camera: "oak9"}, &out)
	if code != 1 {
		t.Fatalf("expected exit status 1, got %d", code)
	}
	if !strings.Contains(out.String(), "service config not found") || !strings.Contains(out.String(), "did you mean oak0") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunExitsOnUnknownView(t *testing.T) {
	restoreLogOutput(t)
	path := writeConfig(t, testConfig)
	var out bytes.Buffer
	if code := run(options{configPath: path, camera: "oak0", view: "rbg"}, &out); code != 1 {
		t.Fatalf("expected exit status 1, got %d", code)
	}
	if !strings.Contains(out.String(), "rgb") {
		t.Fatalf("expected a suggestion in %q", out.String())
	}
}

func TestNewSurfaceFallsBackToHeadless(t *testing.T) {
	cfg, err := config.Parse([]byte(testConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sel, err := stream.NewSelector(cfg.Streams.Names, cfg.Streams.Default)
	if err != nil {
		t.Fatalf("selector: %v", err)
	}
	tracker := stats.NewTracker()

	if _, ok := newSurface(cfg, sel, tracker, true).(*ui.Headless); !ok {
		t.Fatalf("headless mode should yield a headless surface")
	}
	cfg.UI.Mode = "tview"
	if _, ok := newSurface(cfg, sel, tracker, false).(*ui.Headless); !ok {
		t.Fatalf("tview without a terminal should fall back to headless")
	}
	if _, ok := newSurface(cfg, sel, tracker, true).(*ui.Display); !ok {
		t.Fatalf("tview with a terminal should yield the display")
	}
}

func TestExitNotifierClosesOnReturn(t *testing.T) {
	h := ui.NewHeadless(stats.NewTracker(), 0)
	n := &exitNotifier{Surface: h, exited: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	select {
	case <-n.exited:
	default:
		t.Fatalf("exited channel not closed")
	}
}
