package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
)

// DefaultMaxPixels bounds the size a payload may declare (4096x4096).
const DefaultMaxPixels = 4096 * 4096

var (
	errEmptyPayload = errors.New("empty payload")
	// ErrTooLarge is the DecodeError cause for a payload whose header declares
	// more pixels than the decoder accepts.
	ErrTooLarge = errors.New("image exceeds pixel limit")
)

// DecodeError reports a payload that could not be turned into a frame. It is
// always local to one frame; the stream that produced it keeps running.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return "decode frame: " + e.Cause.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// Decoder turns a compressed payload into a frame. Implementations must be
// safe for concurrent use.
type Decoder interface {
	Decode(payload []byte) (*Frame, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(payload []byte) (*Frame, error)

func (fn DecoderFunc) Decode(payload []byte) (*Frame, error) {
	return fn(payload)
}

// Default is the stateless JPEG/PNG decoder with the DefaultMaxPixels limit.
var Default Decoder = DecoderFunc(Decode)

// NewDecoder returns a decoder that rejects payloads declaring more than
// maxPixels pixels. maxPixels <= 0 selects DefaultMaxPixels.
func NewDecoder(maxPixels int) Decoder {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return DecoderFunc(func(payload []byte) (*Frame, error) {
		return decodeLimited(payload, maxPixels)
	})
}

// Decode converts a JPEG or PNG payload into a BGR frame. Malformed or
// truncated input, and input larger than DefaultMaxPixels, yields a
// *DecodeError.
func Decode(payload []byte) (*Frame, error) {
	return decodeLimited(payload, DefaultMaxPixels)
}

// decodeLimited checks the declared geometry before decoding, so a corrupted
// header cannot force an allocation of its claimed size.
func decodeLimited(payload []byte, maxPixels int) (*Frame, error) {
	if len(payload) == 0 {
		return nil, &DecodeError{Cause: errEmptyPayload}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		return nil, &DecodeError{Cause: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, &DecodeError{Cause: fmt.Errorf("%w: %dx%d > %d pixels", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)}
	}
	img, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, &DecodeError{Cause: err}
	}
	return FromImage(img), nil
}

// FromImage copies any image.Image into a BGR frame anchored at (0, 0).
func FromImage(img image.Image) *Frame {
	bounds := img.Bounds()
	f := New(bounds.Dx(), bounds.Dy(), LayoutBGR)
	switch src := img.(type) {
	case *image.YCbCr:
		fromYCbCr(f, src)
	case *image.Gray:
		fromGray(f, src)
	case *image.RGBA:
		fromRGBA(f, src.Pix, src.Stride, bounds)
	case *image.NRGBA:
		fromRGBA(f, src.Pix, src.Stride, bounds)
	default:
		i := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				c := color.RGBAModel.Convert(src.At(x, y)).(color.RGBA)
				f.Pix[i], f.Pix[i+1], f.Pix[i+2] = c.B, c.G, c.R
				i += 3
			}
		}
	}
	return f
}

func fromYCbCr(f *Frame, src *image.YCbCr) {
	bounds := src.Rect
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			yi := src.YOffset(x, y)
			ci := src.COffset(x, y)
			r, g, b := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
			f.Pix[i], f.Pix[i+1], f.Pix[i+2] = b, g, r
			i += 3
		}
	}
}

func fromGray(f *Frame, src *image.Gray) {
	bounds := src.Rect
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := src.Pix[(y-bounds.Min.Y)*src.Stride:]
		for x := 0; x < bounds.Dx(); x++ {
			v := row[x]
			f.Pix[i], f.Pix[i+1], f.Pix[i+2] = v, v, v
			i += 3
		}
	}
}

func fromRGBA(f *Frame, pix []byte, stride int, bounds image.Rectangle) {
	i := 0
	for y := 0; y < bounds.Dy(); y++ {
		row := pix[y*stride:]
		for x := 0; x < bounds.Dx(); x++ {
			p := row[x*4 : x*4+4]
			f.Pix[i], f.Pix[i+1], f.Pix[i+2] = p[2], p[1], p[0]
			i += 3
		}
	}
}
