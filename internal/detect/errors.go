package detect

import "errors"

// Failure kinds returned by Service. Each is wrapped together with its cause,
// match them with errors.Is.
var (
	// ErrInvalidImage means the payload could not be turned into a raster.
	ErrInvalidImage = errors.New("invalid image")
	// ErrModelUnavailable means the detector could not be loaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrInferenceFailure means the detector failed on a decoded image.
	ErrInferenceFailure = errors.New("inference failure")
)
