// Package frame decodes compressed camera payloads into raw pixel buffers
// and provides the orientation and channel-order helpers a display needs
// before uploading them.
package frame

import (
	"fmt"
)

// Layout identifies the channel order of a decoded pixel buffer.
type Layout int

const (
	// LayoutBGR stores blue, green, red per pixel. Decode always produces it.
	LayoutBGR Layout = iota
	// LayoutRGB stores red, green, blue per pixel.
	LayoutRGB
)

func (l Layout) String() string {
	switch l {
	case LayoutBGR:
		return "bgr"
	case LayoutRGB:
		return "rgb"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// Channels returns bytes per pixel.
func (l Layout) Channels() int {
	return 3
}

// Frame is a decoded image. Pix holds Height rows of Width pixels, top row
// first, with no padding between rows. A Frame is never mutated after it is
// created; the transform helpers return new frames.
type Frame struct {
	Width  int
	Height int
	Layout Layout
	Pix    []byte
}

// New allocates a zeroed frame.
func New(width, height int, layout Layout) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Layout: layout,
		Pix:    make([]byte, width*height*layout.Channels()),
	}
}

// Stride returns the byte length of one row.
func (f *Frame) Stride() int {
	return f.Width * f.Layout.Channels()
}

// Valid reports whether the buffer length matches the dimensions.
func (f *Frame) Valid() bool {
	return f != nil && f.Width > 0 && f.Height > 0 && len(f.Pix) == f.Stride()*f.Height
}

// At returns the colour of pixel (x, y) regardless of layout.
func (f *Frame) At(x, y int) (r, g, b uint8) {
	i := y*f.Stride() + x*f.Layout.Channels()
	p := f.Pix[i : i+3 : i+3]
	if f.Layout == LayoutRGB {
		return p[0], p[1], p[2]
	}
	return p[2], p[1], p[0]
}

// FlipVertical returns a copy with the row order reversed.
func (f *Frame) FlipVertical() *Frame {
	out := &Frame{Width: f.Width, Height: f.Height, Layout: f.Layout, Pix: make([]byte, len(f.Pix))}
	stride := f.Stride()
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*stride : (y+1)*stride]
		dst := out.Pix[(f.Height-1-y)*stride : (f.Height-y)*stride]
		copy(dst, src)
	}
	return out
}

// FlipHorizontal returns a copy with each row mirrored.
func (f *Frame) FlipHorizontal() *Frame {
	out := &Frame{Width: f.Width, Height: f.Height, Layout: f.Layout, Pix: make([]byte, len(f.Pix))}
	stride := f.Stride()
	ch := f.Layout.Channels()
	for y := 0; y < f.Height; y++ {
		row := y * stride
		for x := 0; x < f.Width; x++ {
			src := row + x*ch
			dst := row + (f.Width-1-x)*ch
			copy(out.Pix[dst:dst+ch], f.Pix[src:src+ch])
		}
	}
	return out
}

// Convert returns the frame in the requested layout. The receiver is returned
// unchanged when it already matches.
func (f *Frame) Convert(layout Layout) *Frame {
	if f.Layout == layout {
		return f
	}
	out := &Frame{Width: f.Width, Height: f.Height, Layout: layout, Pix: make([]byte, len(f.Pix))}
	// BGR and RGB differ only by swapping the outer channels.
	for i := 0; i+2 < len(f.Pix); i += 3 {
		out.Pix[i] = f.Pix[i+2]
		out.Pix[i+1] = f.Pix[i+1]
		out.Pix[i+2] = f.Pix[i]
	}
	return out
}
