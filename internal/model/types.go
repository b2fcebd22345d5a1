package model

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
)

const (
	defaultConfThreshold = 0.25
	defaultIOUThreshold  = 0.7
	defaultMaxDetections = 300
	defaultInputName     = "images"
	defaultOutputName    = "output0"
)

// Metadata describes the exported detector. It is read from a JSON sidecar
// that sits next to the ONNX weights.
type Metadata struct {
	InputShape    []int64  `json:"input_shape"`
	OutputShape   []int64  `json:"output_shape"`
	Classes       []string `json:"classes"`
	ImageSize     int      `json:"image_size"`
	InputName     string   `json:"input_name"`
	OutputName    string   `json:"output_name"`
	ConfThreshold float32  `json:"conf_threshold"`
	IOUThreshold  float32  `json:"iou_threshold"`
	MaxDetections int      `json:"max_detections"`
}

// RawDetection is one box as emitted by the runtime: center-anchored, in
// pixels of the source image.
type RawDetection struct {
	X          float64
	Y          float64
	Width      float64
	Height     float64
	Confidence float64
	Class      int
}

// Prediction is the result of a single invocation. Names maps class index
// to the model's class name and must be treated as read-only.
type Prediction struct {
	Detections []RawDetection
	Names      map[int]string
}

// Runtime is a loaded detector.
type Runtime interface {
	Predict(img image.Image) (*Prediction, error)
	Close()
}

func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	metadata.applyDefaults()
	if err := metadata.validate(); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

func (m *Metadata) applyDefaults() {
	if m.InputName == "" {
		m.InputName = defaultInputName
	}
	if m.OutputName == "" {
		m.OutputName = defaultOutputName
	}
	if m.ConfThreshold <= 0 {
		m.ConfThreshold = defaultConfThreshold
	}
	if m.IOUThreshold <= 0 {
		m.IOUThreshold = defaultIOUThreshold
	}
	if m.MaxDetections <= 0 {
		m.MaxDetections = defaultMaxDetections
	}
	if m.ImageSize == 0 && len(m.InputShape) == 4 {
		m.ImageSize = int(m.InputShape[3])
	}
}

func (m Metadata) validate() error {
	if len(m.InputShape) != 4 || m.InputShape[1] != 3 {
		return fmt.Errorf("invalid input shape %v: want [1 3 size size]", m.InputShape)
	}
	if m.InputShape[2] != m.InputShape[3] || int(m.InputShape[3]) != m.ImageSize {
		return fmt.Errorf("input shape %v does not match image size %d", m.InputShape, m.ImageSize)
	}
	if len(m.OutputShape) != 3 || m.OutputShape[1] < 5 || m.OutputShape[2] < 1 {
		return fmt.Errorf("invalid output shape %v: want [1 4+classes anchors]", m.OutputShape)
	}
	return nil
}

// Names returns the class index to name mapping.
func (m Metadata) Names() map[int]string {
	names := make(map[int]string, len(m.Classes))
	for i, name := range m.Classes {
		names[i] = name
	}
	return names
}
