package ui

import (
	"fmt"

	"camviewer/frame"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// halfBlock paints the top pixel as foreground and the bottom pixel as
// background, giving two pixel rows per terminal cell.
const halfBlock = '▀'

// frameView is a tview primitive that shows the latest frame of one stream.
// It is only touched on the tview event goroutine.
type frameView struct {
	*tview.Box
	name   string
	frame  *frame.Frame
	frames uint64
}

func newFrameView(name string) *frameView {
	v := &frameView{Box: tview.NewBox(), name: name}
	v.SetBorder(true)
	v.SetBorderColor(uiBorderColor)
	v.SetTitleColor(uiTitleColor)
	v.SetTitleAlign(tview.AlignLeft)
	v.SetTitle(" " + name + " ")
	return v
}

// SetFrame replaces the frame shown by the view.
func (v *frameView) SetFrame(f *frame.Frame) {
	if f == nil || !f.Valid() {
		return
	}
	v.frame = f
	v.frames++
	v.SetTitle(fmt.Sprintf(" %s %dx%d #%d ", v.name, f.Width, f.Height, v.frames))
}

func (v *frameView) Draw(screen tcell.Screen) {
	v.DrawForSubclass(screen, v)
	x, y, width, height := v.GetInnerRect()
	if width <= 0 || height <= 0 {
		return
	}
	f := v.frame
	if f == nil {
		tview.Print(screen, "waiting for frames", x, y+height/2, width, tview.AlignCenter, tcell.ColorGray)
		return
	}

	cols, rows := fitRect(f.Width, f.Height, width, height*2)
	offX := x + (width-cols)/2
	offY := y + (height-(rows+1)/2)/2
	for cy := 0; cy*2 < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			top := sampleColor(f, cx, cy*2, cols, rows)
			bottom := tcell.ColorDefault
			if cy*2+1 < rows {
				bottom = sampleColor(f, cx, cy*2+1, cols, rows)
			}
			style := tcell.StyleDefault.Foreground(top).Background(bottom)
			screen.SetContent(offX+cx, offY+cy, halfBlock, nil, style)
		}
	}
}

// fitRect scales a w x h image into a grid of at most maxW x maxH square
// pixels, keeping the aspect ratio.
func fitRect(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 || maxW <= 0 || maxH <= 0 {
		return 0, 0
	}
	if w*maxH <= h*maxW {
		cols := w * maxH / h
		if cols < 1 {
			cols = 1
		}
		return cols, maxH
	}
	rows := h * maxW / w
	if rows < 1 {
		rows = 1
	}
	return maxW, rows
}

// sampleColor picks the nearest source pixel for grid cell (gx, gy).
func sampleColor(f *frame.Frame, gx, gy, cols, rows int) tcell.Color {
	sx := gx * f.Width / cols
	sy := gy * f.Height / rows
	r, g, b := f.At(sx, sy)
	return tcell.NewRGBColor(int32(r), int32(g), int32(b))
}
