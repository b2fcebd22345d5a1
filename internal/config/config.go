package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

const (
	DefaultPort         = "8000"
	DefaultMaxBodyBytes = 32 << 20
	ModelFile           = "best.onnx"
	MetadataFile        = "model_metadata.json"

	// DefaultMaxImagePixels matches the decompression bomb limit of PIL.
	DefaultMaxImagePixels = 178956970
)

// DefaultOrigins are the local dev servers allowed to call the API from a
// browser.
var DefaultOrigins = []string{
	"http://localhost:5173",
	"http://127.0.0.1:5173",
	"http://localhost:8080",
	"http://127.0.0.1:8080",
}

type Config struct {
	Port string

	BaseDir        string
	ModelPath      string
	MetadataPath   string
	ORTLibraryPath string
	IntraOpThreads int
	WatchModel     bool

	AllowedOrigins []string
	MaxBodyBytes   int64
	MaxImagePixels int

	LogLevel string
	LogFile  string
}

func Load() (*Config, error) {
	exe, _ := os.Executable()
	wd, _ := os.Getwd()
	base := resolveBaseDir(exe, wd)

	threads, err := getEnvInt("ORT_INTRA_OP_THREADS", 0)
	if err != nil {
		return nil, err
	}
	maxBody, err := getEnvInt("MAX_BODY_BYTES", DefaultMaxBodyBytes)
	if err != nil {
		return nil, err
	}
	if maxBody <= 0 {
		return nil, fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", maxBody)
	}
	maxPixels, err := getEnvInt("MAX_IMAGE_PIXELS", DefaultMaxImagePixels)
	if err != nil {
		return nil, err
	}
	if maxPixels <= 0 {
		return nil, fmt.Errorf("MAX_IMAGE_PIXELS must be positive, got %d", maxPixels)
	}
	watch, err := getEnvBool("MODEL_WATCH", false)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port: getEnv("PORT", DefaultPort),

		BaseDir:        base,
		ModelPath:      getEnv("MODEL_PATH", filepath.Join(base, "models", ModelFile)),
		MetadataPath:   getEnv("MODEL_METADATA_PATH", filepath.Join(base, "models", MetadataFile)),
		ORTLibraryPath: getEnv("ORT_LIB_PATH", DefaultSharedLibraryPath(base)),
		IntraOpThreads: threads,
		WatchModel:     watch,

		AllowedOrigins: getEnvList("CORS_ORIGINS", DefaultOrigins),
		MaxBodyBytes:   int64(maxBody),
		MaxImagePixels: maxPixels,

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),
	}, nil
}

// resolveBaseDir finds the install directory from the executable path. It
// steps out of bin/ and, for binaries started from a source checkout or via
// go run, out of cmd/server.
func resolveBaseDir(exePath, wd string) string {
	dir := filepath.Dir(exePath)
	if exePath == "" || strings.Contains(dir, "go-build") {
		dir = wd
	}

	switch filepath.Base(dir) {
	case "bin":
		return filepath.Dir(dir)
	case "server":
		if filepath.Base(filepath.Dir(dir)) == "cmd" {
			return filepath.Clean(filepath.Join(dir, "..", ".."))
		}
	}
	return dir
}

// DefaultSharedLibraryPath returns the bundled ONNX Runtime library for
// this platform, or "" to let the loader search the system paths.
func DefaultSharedLibraryPath(base string) string {
	var name string
	switch runtime.GOOS {
	case "windows":
		name = "onnxruntime.dll"
	case "darwin":
		name = "onnxruntime.dylib"
		if runtime.GOARCH == "arm64" {
			name = "onnxruntime_arm64.dylib"
		}
	case "linux":
		name = "onnxruntime.so"
		if runtime.GOARCH == "arm64" {
			name = "onnxruntime_arm64.so"
		}
	default:
		return ""
	}
	return filepath.Join(base, "third_party", name)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return append([]string(nil), defaultVal...)
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
