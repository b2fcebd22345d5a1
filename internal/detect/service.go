package detect

import (
	"fmt"
	"image"

	"github.com/Brownie44l1/road-detect/internal/model"
)

// ModelSource hands out the shared detector, loading it on first use.
type ModelSource interface {
	Get() (model.Runtime, error)
}

// Service runs the decode, infer, map pipeline for one frame at a time.
type Service struct {
	models    ModelSource
	maxPixels int
}

// NewService builds a Service. maxPixels bounds decoded frame size; 0 uses
// DefaultMaxPixels.
func NewService(models ModelSource, maxPixels int) *Service {
	return &Service{
		models:    models,
		maxPixels: maxPixels,
	}
}

// Detect decodes req.Image and runs the detector over it. Errors wrap
// ErrInvalidImage, ErrModelUnavailable or ErrInferenceFailure.
func (s *Service) Detect(req DetectionRequest) (*DetectionResponse, error) {
	img, err := DecodeImage(req.Image, s.maxPixels)
	if err != nil {
		return nil, err
	}
	return s.run(img)
}

// DetectBytes is Detect for an already binary encoded image.
func (s *Service) DetectBytes(data []byte) (*DetectionResponse, error) {
	img, err := DecodeBytes(data, s.maxPixels)
	if err != nil {
		return nil, err
	}
	return s.run(img)
}

func (s *Service) run(img *RGB) (*DetectionResponse, error) {
	rt, err := s.models.Get()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	pred, err := predict(rt, img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInferenceFailure, err)
	}

	return &DetectionResponse{Detections: MapDetections(pred)}, nil
}

// predict turns a runtime panic into an error so one bad frame cannot take
// the process down.
func predict(rt model.Runtime, img image.Image) (pred *model.Prediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			pred, err = nil, fmt.Errorf("runtime panic: %v", r)
		}
	}()
	return rt.Predict(img)
}
