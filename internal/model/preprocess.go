package model

import (
	"errors"
	"image"
	"math"

	"github.com/nfnt/resize"
)

// padValue is the gray the letterbox border is filled with.
const padValue = float32(114.0 / 255.0)

// letterbox records how a source image was fitted into the square input.
type letterbox struct {
	gain   float64
	padX   float64
	padY   float64
	width  int
	height int
}

// preprocess resizes img into a size×size letterbox and lays it out as a
// planar CHW float32 tensor normalized to [0,1].
func preprocess(img image.Image, size int) ([]float32, letterbox, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, letterbox{}, errors.New("empty image")
	}
	if size <= 0 {
		return nil, letterbox{}, errors.New("invalid model input size")
	}

	gain := math.Min(float64(size)/float64(height), float64(size)/float64(width))
	newWidth := max(1, int(math.Round(float64(width)*gain)))
	newHeight := max(1, int(math.Round(float64(height)*gain)))
	left := int(math.Round(float64(size-newWidth)/2 - 0.1))
	top := int(math.Round(float64(size-newHeight)/2 - 0.1))

	resized := resize.Resize(uint(newWidth), uint(newHeight), img, resize.Bilinear)
	rb := resized.Bounds()

	plane := size * size
	inputData := make([]float32, 3*plane)
	for i := range inputData {
		inputData[i] = padValue
	}

	for y := 0; y < newHeight; y++ {
		for x := 0; x < newWidth; x++ {
			r, g, b, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()

			pixelIndex := (y+top)*size + (x + left)
			inputData[pixelIndex] = float32(r>>8) / 255.0
			inputData[plane+pixelIndex] = float32(g>>8) / 255.0
			inputData[2*plane+pixelIndex] = float32(b>>8) / 255.0
		}
	}

	return inputData, letterbox{
		gain:   gain,
		padX:   float64(left),
		padY:   float64(top),
		width:  width,
		height: height,
	}, nil
}

// toSource maps a candidate from letterbox space back to source pixels,
// clipping it to the image.
func (lb letterbox) toSource(c candidate) RawDetection {
	x1 := (float64(c.xc-c.w/2) - lb.padX) / lb.gain
	y1 := (float64(c.yc-c.h/2) - lb.padY) / lb.gain
	x2 := (float64(c.xc+c.w/2) - lb.padX) / lb.gain
	y2 := (float64(c.yc+c.h/2) - lb.padY) / lb.gain

	x1 = clamp(x1, 0, float64(lb.width))
	x2 = clamp(x2, 0, float64(lb.width))
	y1 = clamp(y1, 0, float64(lb.height))
	y2 = clamp(y2, 0, float64(lb.height))

	return RawDetection{
		X:          (x1 + x2) / 2,
		Y:          (y1 + y2) / 2,
		Width:      x2 - x1,
		Height:     y2 - y1,
		Confidence: float64(c.score),
		Class:      c.class,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
