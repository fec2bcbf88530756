// Package stream runs the per-stream frame pipeline: one Subscriber per
// camera stream receives events, decodes them and forwards frames of the
// active view to the display, under a Coordinator that owns their lifecycle.
//
// Data flow:
//
//	transport -> Subscriber -> frame.Decoder -> [Selector gate] -> Sink
//
// Each Subscriber runs on its own goroutine. The Selector is the only state
// shared between them, and it is a single atomic value.
package stream

import (
	"fmt"

	"camviewer/config"
	"camviewer/strutil"
)

// Descriptor identifies one stream and how to subscribe to it. It is
// immutable once built.
type Descriptor struct {
	Name    string
	Service config.ServiceConfig
	Path    string
	EveryN  int
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s every_n=%d)", d.Name, d.Service.Topic(d.Path), d.EveryN)
}

// Descriptors builds one descriptor per stream name on the service. An
// everyN of zero or less falls back to the service's configured rate.
func Descriptors(service config.ServiceConfig, names []string, everyN int) []Descriptor {
	if everyN <= 0 {
		everyN = service.DefaultEveryN()
	}
	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		name = strutil.NormalizeLower(name)
		out = append(out, Descriptor{
			Name:    name,
			Service: service,
			Path:    "/" + name,
			EveryN:  everyN,
		})
	}
	return out
}
