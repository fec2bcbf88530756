package ui

import (
	"bytes"
	"log"
	"sync"
	"time"
)

// paneWriterMaxBytes bounds the partial line kept while waiting for a newline.
const paneWriterMaxBytes = 64 * 1024

// paneWriter splits log output into lines for the log pane.
type paneWriter struct {
	sink         func(line string)
	buf          []byte
	mu           sync.Mutex
	droppedBytes uint64
	lastDropLog  time.Time
}

func (w *paneWriter) Write(p []byte) (int, error) {
	if w == nil || w.sink == nil {
		return len(p), nil
	}
	var logDrop bool
	var dropBytes, totalDropped uint64
	now := time.Now().UTC()

	w.mu.Lock()
	w.buf = append(w.buf, p...)
	if excess := len(w.buf) - paneWriterMaxBytes; excess > 0 {
		w.buf = w.buf[excess:]
		w.droppedBytes += uint64(excess)
		dropBytes = uint64(excess)
		totalDropped = w.droppedBytes
		if w.lastDropLog.IsZero() || now.Sub(w.lastDropLog) >= 30*time.Second {
			w.lastDropLog = now
			logDrop = true
		}
	}
	var lines []string
	data := w.buf
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx == -1 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(data[:idx], "\r")))
		data = data[idx+1:]
	}
	w.buf = append(w.buf[:0], data...)
	w.mu.Unlock()

	// The pane may itself be the destination of the standard logger, so the
	// drop notice goes out only after the lock is released.
	if logDrop {
		log.Printf("UI: log pane dropped %d bytes (total %d) due to missing newline", dropBytes, totalDropped)
	}
	for _, line := range lines {
		w.sink(line)
	}
	return len(p), nil
}
