package detect

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Channels is the channel count of every decoded raster.
const Channels = 3

// DefaultMaxPixels caps width*height of an accepted frame. Compressed
// formats can declare dimensions far beyond what the payload size suggests.
const DefaultMaxPixels = 178956970

// RGB is an 8-bit raster with interleaved R, G, B samples and no alpha.
type RGB struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

func NewRGB(r image.Rectangle) *RGB {
	return &RGB{
		Pix:    make([]uint8, Channels*r.Dx()*r.Dy()),
		Stride: Channels * r.Dx(),
		Rect:   r,
	}
}

func (p *RGB) ColorModel() color.Model { return color.RGBAModel }

func (p *RGB) Bounds() image.Rectangle { return p.Rect }

func (p *RGB) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := p.PixOffset(x, y)
	return color.RGBA{p.Pix[i], p.Pix[i+1], p.Pix[i+2], 0xff}
}

func (p *RGB) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*Channels
}

// DecodeImage turns a data URL ("data:image/jpeg;base64,<payload>") or a
// bare base64 payload into an RGB raster. Anything before the first comma
// is treated as the data URL descriptor and discarded. Frames larger than
// maxPixels are rejected; maxPixels <= 0 means DefaultMaxPixels.
func DecodeImage(s string, maxPixels int) (*RGB, error) {
	payload := s
	if strings.HasPrefix(s, "data:") || strings.Contains(s, ",") {
		_, after, ok := strings.Cut(s, ",")
		if !ok {
			return nil, fmt.Errorf("%w: data URL without payload", ErrInvalidImage)
		}
		payload = after
	}

	raw, err := base64.StdEncoding.DecodeString(stripSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %w", ErrInvalidImage, err)
	}
	return DecodeBytes(raw, maxPixels)
}

// DecodeBytes decodes an encoded image (JPEG, PNG, GIF, BMP, TIFF, WebP)
// and converts it to RGB. The header is checked against maxPixels before
// any pixel data is decoded.
func DecodeBytes(data []byte, maxPixels int) (*RGB, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", ErrInvalidImage, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return toRGB(img), nil
}

// toRGB copies img into an RGB raster anchored at the origin. Alpha is
// dropped without compositing.
func toRGB(img image.Image) *RGB {
	b := img.Bounds()
	out := NewRGB(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			row := src.Pix[y*src.Stride:]
			dst := out.Pix[y*out.Stride:]
			for x := 0; x < b.Dx(); x++ {
				copy(dst[x*Channels:x*Channels+Channels], row[x*4:x*4+3])
			}
		}
	case *image.YCbCr:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := src.YCbCrAt(b.Min.X+x, b.Min.Y+y)
				r, g, bl := color.YCbCrToRGB(c.Y, c.Cb, c.Cr)
				i := out.PixOffset(x, y)
				out.Pix[i], out.Pix[i+1], out.Pix[i+2] = r, g, bl
			}
		}
	default:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				i := out.PixOffset(x, y)
				out.Pix[i], out.Pix[i+1], out.Pix[i+2] = c.R, c.G, c.B
			}
		}
	}
	return out
}

func stripSpace(s string) string {
	if !strings.ContainsAny(s, " \t\r\n") {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
}
