package stream

import (
	"fmt"
	"log"
	"sync/atomic"

	"camviewer/strutil"
)

// Selector holds the name of the stream currently shown. Reads are lock-free
// and may be one frame stale relative to a concurrent Set.
type Selector struct {
	names  []string
	known  map[string]int
	active atomic.Pointer[string]
	logf   func(format string, args ...any)
}

// NewSelector creates a selector over a fixed set of names, starting at
// initial.
func NewSelector(names []string, initial string) (*Selector, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("selector: no stream names")
	}
	s := &Selector{
		names: make([]string, 0, len(names)),
		known: make(map[string]int, len(names)),
		logf:  log.Printf,
	}
	for _, name := range names {
		name = strutil.NormalizeLower(name)
		if _, dup := s.known[name]; dup {
			return nil, fmt.Errorf("selector: duplicate stream %q", name)
		}
		s.known[name] = len(s.names)
		s.names = append(s.names, name)
	}
	initial = strutil.NormalizeLower(initial)
	if _, ok := s.known[initial]; !ok {
		return nil, fmt.Errorf("selector: initial stream %q is not configured%s", initial, strutil.DidYouMean(initial, s.names))
	}
	s.active.Store(&initial)
	return s, nil
}

// Active returns the currently selected stream.
func (s *Selector) Active() string {
	return *s.active.Load()
}

// IsActive reports whether name is the current selection.
func (s *Selector) IsActive(name string) bool {
	return s.Active() == name
}

// Set selects name. Unknown names are logged and ignored; Set reports
// whether the selection was applied.
func (s *Selector) Set(name string) bool {
	name = strutil.NormalizeLower(name)
	if _, ok := s.known[name]; !ok {
		s.logf("Selector: ignoring unknown stream %q%s", name, strutil.DidYouMean(name, s.names))
		return false
	}
	s.active.Store(&name)
	return true
}

// Names returns the configured stream names in order.
func (s *Selector) Names() []string {
	return append([]string(nil), s.names...)
}

// Index returns the position of the active stream in Names.
func (s *Selector) Index() int {
	return s.known[s.Active()]
}

// Next moves the selection delta positions, wrapping around, and returns the
// new selection.
func (s *Selector) Next(delta int) string {
	n := len(s.names)
	idx := ((s.Index()+delta)%n + n) % n
	name := s.names[idx]
	s.active.Store(&name)
	return name
}
