package model

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// OpenFunc builds a Runtime from a weights file and its metadata sidecar.
type OpenFunc func(modelPath, metadataPath string) (Runtime, error)

// Loader holds the process-wide detector. The first successful Get loads
// it; failed loads are not remembered, so a weights file that shows up
// later is picked up by the next call.
type Loader struct {
	modelPath    string
	metadataPath string
	open         OpenFunc
	log          logrus.FieldLogger

	mu      sync.Mutex
	runtime Runtime
}

func NewLoader(modelPath, metadataPath string, opts Options, log logrus.FieldLogger) *Loader {
	return NewLoaderFunc(modelPath, metadataPath, func(modelPath, metadataPath string) (Runtime, error) {
		return NewServer(modelPath, metadataPath, opts)
	}, log)
}

// NewLoaderFunc is NewLoader with a custom open function.
func NewLoaderFunc(modelPath, metadataPath string, open OpenFunc, log logrus.FieldLogger) *Loader {
	return &Loader{
		modelPath:    modelPath,
		metadataPath: metadataPath,
		open:         open,
		log:          log,
	}
}

func (l *Loader) ModelPath() string    { return l.modelPath }
func (l *Loader) MetadataPath() string { return l.metadataPath }

// Get returns the loaded detector, loading it if needed. A missing weights
// file yields an error wrapping fs.ErrNotExist.
func (l *Loader) Get() (Runtime, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.runtime != nil {
		return l.runtime, nil
	}

	if _, err := os.Stat(l.modelPath); err != nil {
		return nil, fmt.Errorf("model weights not found at %s: %w", l.modelPath, err)
	}

	start := time.Now()
	rt, err := l.open(l.modelPath, l.metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", l.modelPath, err)
	}

	l.log.WithFields(logrus.Fields{
		"model":    l.modelPath,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("model loaded")

	l.runtime = rt
	return rt, nil
}

func (l *Loader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runtime != nil
}

func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.runtime != nil {
		l.runtime.Close()
		l.runtime = nil
	}
}
