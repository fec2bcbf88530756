package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
)

// renderPattern draws the test card for one stream at frame index n. The
// colour stream gets a moving RGB gradient; the mono streams get scrolling
// grey bars so frames are easy to tell apart.
func renderPattern(stream string, width, height int, n uint64) image.Image {
	shift := int(n % 256)
	switch stream {
	case "rgb":
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				img.SetRGBA(x, y, color.RGBA{
					R: uint8((x*255/max(width-1, 1) + shift) % 256),
					G: uint8(y * 255 / max(height-1, 1)),
					B: uint8(255 - shift),
					A: 255,
				})
			}
		}
		return img
	default:
		img := image.NewGray(image.Rect(0, 0, width, height))
		bar := max(width/8, 1)
		offset := len(stream)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				band := ((x + shift + offset*bar) / bar) % 8
				img.SetGray(x, y, color.Gray{Y: uint8(band * 32)})
			}
		}
		return img
	}
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
