package model

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	ort "github.com/yalue/onnxruntime_go"
)

// The ONNX Runtime environment is process-wide.
var envMu sync.Mutex

func initEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		if _, err := os.Stat(libPath); err != nil {
			return fmt.Errorf("onnxruntime shared library: %w", err)
		}
		ort.SetSharedLibraryPath(libPath)
	}
	return ort.InitializeEnvironment()
}

func destroyEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

func newSessionOptions(intraOpThreads int) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	if err := options.SetIntraOpNumThreads(threadCount(intraOpThreads)); err != nil {
		options.Destroy()
		return nil, err
	}
	// Predict calls are serialized, one inter-op thread is enough.
	if err := options.SetInterOpNumThreads(1); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func threadCount(requested int) int {
	if requested > 0 {
		return requested
	}
	if n, err := cpu.Counts(false); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}
