package ui

import (
	"io"

	"camviewer/stream"
)

// Surface is a display the coordinator can drive. Present must be safe for
// concurrent calls from every stream goroutine. SystemWriter returns nil when
// the surface has no log pane and log output should stay on the console.
type Surface interface {
	stream.Surface
	Stop()
	SystemWriter() io.Writer
}

var (
	_ Surface = (*Display)(nil)
	_ Surface = (*Headless)(nil)
)
