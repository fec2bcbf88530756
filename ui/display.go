// Package ui renders decoded camera frames in the terminal. Display is the
// interactive tview surface with one page per stream; Headless is the
// fallback used when stdout is not a terminal.
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"camviewer/config"
	"camviewer/frame"
	"camviewer/stats"
	"camviewer/stream"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const (
	defaultLogLines    = 200
	logPaneHeight      = 8
	statusInterval     = time.Second
	schedulerDrainTime = 100 * time.Millisecond
)

const (
	accentTag   = "[#ff69b4]"
	accentReset = "[-]"
	dimTag      = "[gray]"

	uiBorderColor = tcell.ColorGray
	uiTitleColor  = tcell.ColorHotPink
)

var errAlreadyRunning = errors.New("ui: display already running")

// Display is the tview surface. Frames reach it from stream goroutines through
// Present; every widget mutation happens on the tview event goroutine.
type Display struct {
	app      *tview.Application
	pages    *tview.Pages
	views    map[string]*frameView
	logView  *tview.TextView
	status   *tview.TextView
	keys     *tview.TextView
	cfg      config.UIConfig
	selector *stream.Selector
	tracker  *stats.Tracker
	metrics  *Metrics

	scheduler *frameScheduler

	ready     chan struct{}
	readyOnce sync.Once
	exit      chan struct{}
	exitOnce  sync.Once
	running   atomic.Bool

	logMu    sync.Mutex
	logLines []string
	logMax   int
}

// Option customises a Display.
type Option func(*Display)

// WithScreen runs the display on screen instead of the process terminal.
func WithScreen(screen tcell.Screen) Option {
	return func(d *Display) {
		if screen != nil {
			d.app.SetScreen(screen)
		}
	}
}

// NewDisplay builds the page layout for the selector's streams. The display
// does not touch the terminal until Run.
func NewDisplay(cfg config.UIConfig, selector *stream.Selector, tracker *stats.Tracker, opts ...Option) *Display {
	d := &Display{
		app:      tview.NewApplication(),
		pages:    tview.NewPages(),
		views:    make(map[string]*frameView),
		cfg:      cfg,
		selector: selector,
		tracker:  tracker,
		metrics:  NewMetrics(),
		ready:    make(chan struct{}),
		exit:     make(chan struct{}),
		logMax:   cfg.LogLines,
	}
	if d.logMax <= 0 {
		d.logMax = defaultLogLines
	}
	d.scheduler = newFrameScheduler(d.queueDraw, cfg.TargetFPS, schedulerDrainTime, d.metrics.ObserveQueue)

	active := selector.Active()
	for _, name := range selector.Names() {
		view := newFrameView(name)
		d.views[name] = view
		d.pages.AddPage(name, view, true, name == active)
	}

	d.logView = tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	d.logView.SetBorder(true)
	d.logView.SetTitle(accentText(" Log ")).SetTitleAlign(tview.AlignLeft)
	d.logView.SetBorderColor(uiBorderColor)
	d.logView.SetTitleColor(uiTitleColor)

	d.status = tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	d.keys = tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	d.keys.SetText(d.keyLine(active))

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.pages, 0, 1, false).
		AddItem(d.logView, logPaneHeight, 0, false).
		AddItem(d.status, 1, 0, false).
		AddItem(d.keys, 1, 0, false)
	d.app.SetRoot(root, true)
	d.app.SetInputCapture(d.handleKey)
	d.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		d.readyOnce.Do(func() {
			close(d.ready)
			d.scheduler.Start()
		})
		return false
	})

	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Ready is closed after the first draw.
func (d *Display) Ready() <-chan struct{} {
	return d.ready
}

// Metrics exposes the display counters.
func (d *Display) Metrics() *Metrics {
	return d.metrics
}

// Present hands f to the view of stream name. It may be called from any
// goroutine; the upload happens on the next scheduler flush and only the
// newest frame per stream is kept until then.
func (d *Display) Present(name string, f *frame.Frame) {
	if d == nil || f == nil {
		return
	}
	view, ok := d.views[name]
	if !ok {
		return
	}
	f = d.orient(f)
	replaced := d.scheduler.Schedule("frame/"+name, func() {
		view.SetFrame(f)
		d.metrics.Upload()
	})
	if replaced {
		d.metrics.Coalesce()
	}
}

func (d *Display) orient(f *frame.Frame) *frame.Frame {
	if d.cfg.FlipVertical {
		f = f.FlipVertical()
	}
	if d.cfg.FlipHorizontal {
		f = f.FlipHorizontal()
	}
	return f.Convert(frame.LayoutRGB)
}

// Run drives the tview loop until the user exits, Stop is called or ctx is
// cancelled. A user exit is not an error.
func (d *Display) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}
	runDone := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.supervise(ctx, runDone)
	}()

	err := d.app.Run()
	close(runDone)
	wg.Wait()
	d.scheduler.Stop()
	if err != nil {
		return fmt.Errorf("ui: %w", err)
	}
	return nil
}

// Stop asks the display to exit. Safe to call more than once and from any
// goroutine, including the event goroutine.
func (d *Display) Stop() {
	if d == nil {
		return
	}
	d.exitOnce.Do(func() { close(d.exit) })
}

func (d *Display) supervise(ctx context.Context, runDone <-chan struct{}) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.scheduleStatus()
		case <-ctx.Done():
			d.shutdown(runDone)
			return
		case <-d.exit:
			d.shutdown(runDone)
			return
		case <-runDone:
			return
		}
	}
}

// shutdown stops the scheduler while the event loop is still serving queued
// updates, then stops the application. tview ignores Stop before the screen
// is up, so it waits for the first draw.
func (d *Display) shutdown(runDone <-chan struct{}) {
	d.scheduler.Stop()
	select {
	case <-d.ready:
	case <-runDone:
		return
	}
	d.app.Stop()
}

func (d *Display) queueDraw(fn func()) {
	d.app.QueueUpdateDraw(fn)
}

func (d *Display) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyCtrlC:
		d.Stop()
		return nil
	case tcell.KeyTab:
		d.showPage(d.selector.Next(1))
		return nil
	case tcell.KeyBacktab:
		d.showPage(d.selector.Next(-1))
		return nil
	case tcell.KeyRune:
		r := event.Rune()
		switch {
		case r == 'q' || r == 'Q' || r == 'x' || r == 'X':
			d.Stop()
			return nil
		case r >= '1' && r <= '9':
			names := d.selector.Names()
			idx := int(r - '1')
			if idx < len(names) && d.selector.Set(names[idx]) {
				d.showPage(names[idx])
			}
			return nil
		}
	}
	return event
}

// showPage runs on the event goroutine.
func (d *Display) showPage(name string) {
	if front, _ := d.pages.GetFrontPage(); front == name {
		return
	}
	d.pages.SwitchToPage(name)
	d.keys.SetText(d.keyLine(name))
	d.metrics.PageSwitch()
}

func (d *Display) scheduleStatus() {
	text := d.statusLine()
	d.scheduler.Schedule("status", func() {
		d.status.SetText(text)
		d.showPage(d.selector.Active())
	})
}

func (d *Display) statusLine() string {
	active := d.selector.Active()
	var b strings.Builder
	for _, snap := range d.tracker.Snapshot() {
		if snap.Name == active {
			b.WriteString(tview.Escape(stats.FormatLine(snap)))
			break
		}
	}
	queue := d.metrics.QueueSnapshot()
	fmt.Fprintf(&b, "  %sui p50 %s p99 %s max %s coalesced %s%s",
		dimTag,
		queue.P50.Round(time.Microsecond),
		queue.P99.Round(time.Microsecond),
		queue.Max.Round(time.Microsecond),
		humanize.Comma(int64(d.metrics.Coalesced())),
		accentReset,
	)
	return b.String()
}

func (d *Display) keyLine(active string) string {
	var b strings.Builder
	for i, name := range d.selector.Names() {
		label := tview.Escape(fmt.Sprintf("[%d]%s", i+1, name))
		if name == active {
			label = accentText(label)
		}
		b.WriteString(label)
		b.WriteString("  ")
	}
	b.WriteString(accentText("Tab") + "Next  " + accentText("Q") + "Quit")
	return b.String()
}

// AppendSystem adds a line to the log pane.
func (d *Display) AppendSystem(line string) {
	if d == nil {
		return
	}
	d.logMu.Lock()
	d.logLines = append(d.logLines, tview.Escape(line))
	if excess := len(d.logLines) - d.logMax; excess > 0 {
		d.logLines = append(d.logLines[:0], d.logLines[excess:]...)
	}
	text := strings.Join(d.logLines, "\n")
	d.logMu.Unlock()

	d.scheduler.Schedule("log", func() {
		d.logView.SetText(text)
		d.logView.ScrollToEnd()
	})
}

// SystemWriter returns an io.Writer that feeds complete lines into the log
// pane.
func (d *Display) SystemWriter() io.Writer {
	if d == nil {
		return nil
	}
	return &paneWriter{sink: d.AppendSystem}
}

func accentText(text string) string {
	if text == "" {
		return ""
	}
	return accentTag + text + accentReset
}
