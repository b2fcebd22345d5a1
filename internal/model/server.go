package model

import (
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Options configure the ONNX Runtime environment and session.
type Options struct {
	SharedLibraryPath string
	// IntraOpThreads of 0 sizes the pool from the physical core count.
	IntraOpThreads int
}

// Server runs a YOLO detector exported to ONNX. The session binds a single
// pair of pre-allocated tensors, so Predict calls are serialized.
type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	names        map[int]string
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func NewServer(modelPath, metadataPath string, opts Options) (*Server, error) {
	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	if err := initEnvironment(opts.SharedLibraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	options, err := newSessionOptions(opts.IntraOpThreads)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		options)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Server{
		session:      session,
		Metadata:     metadata,
		names:        metadata.Names(),
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (s *Server) Predict(img image.Image) (*Prediction, error) {
	inputData, lb, err := preprocess(img, s.Metadata.ImageSize)
	if err != nil {
		return nil, err
	}

	outputData, err := s.run(inputData)
	if err != nil {
		return nil, err
	}

	candidates, err := decodeOutput(outputData, s.Metadata.OutputShape, s.Metadata.ConfThreshold)
	if err != nil {
		return nil, err
	}
	kept := nonMaxSuppression(candidates, s.Metadata.IOUThreshold, s.Metadata.MaxDetections)

	detections := make([]RawDetection, 0, len(kept))
	for _, c := range kept {
		detections = append(detections, lb.toSource(c))
	}

	return &Prediction{
		Detections: detections,
		Names:      s.names,
	}, nil
}

func (s *Server) run(inputData []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.inputTensor.GetData(), inputData)
	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := s.outputTensor.GetData()
	return append([]float32(nil), out...), nil
}

func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	destroyEnvironment()
}
