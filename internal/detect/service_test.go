package detect

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"testing"

	"github.com/Brownie44l1/road-detect/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	pred    *model.Prediction
	err     error
	panics  bool
	calls   int
	lastImg image.Image
}

func (f *fakeRuntime) Predict(img image.Image) (*model.Prediction, error) {
	f.calls++
	f.lastImg = img
	if f.panics {
		panic("runtime error: index out of range [3] with length 0")
	}
	return f.pred, f.err
}

func (f *fakeRuntime) Close() {}

type fakeSource struct {
	rt    model.Runtime
	err   error
	calls int
}

func (s *fakeSource) Get() (model.Runtime, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.rt, nil
}

func pngRequest(t *testing.T, w, h int) DetectionRequest {
	t.Helper()
	payload := base64.StdEncoding.EncodeToString(encodePNG(t, testPattern(w, h)))
	return DetectionRequest{Image: "data:image/png;base64," + payload}
}

func TestServiceDetect(t *testing.T) {
	rt := &fakeRuntime{pred: &model.Prediction{
		Detections: []model.RawDetection{
			{X: 100, Y: 150, Width: 40, Height: 30, Confidence: 0.82, Class: 0},
		},
		Names: map[int]string{0: "Pothole_01"},
	}}
	svc := NewService(&fakeSource{rt: rt}, 0)

	req := pngRequest(t, 32, 24)
	req.GPS = &GPSPoint{Latitude: 52.52, Longitude: 13.405}
	resp, err := svc.Detect(req)
	require.NoError(t, err)

	assert.Equal(t, []Detection{{
		ClassLabel:    ClassPothole,
		Confidence:    0.82,
		BBox:          BBox{X: 100, Y: 150, Width: 40, Height: 30},
		SeverityScore: SeverityHigh,
	}}, resp.Detections)

	assert.Equal(t, 1, rt.calls)
	assert.Equal(t, image.Rect(0, 0, 32, 24), rt.lastImg.Bounds())
}

func TestServiceDetectKeepsModelOrderAndDuplicates(t *testing.T) {
	box := model.RawDetection{X: 10, Y: 10, Width: 5, Height: 5}
	low, high := box, box
	low.Confidence, high.Confidence = 0.1, 0.99

	rt := &fakeRuntime{pred: &model.Prediction{
		Detections: []model.RawDetection{low, high, low},
		Names:      map[int]string{0: "crack"},
	}}
	resp, err := NewService(&fakeSource{rt: rt}, 0).Detect(pngRequest(t, 8, 8))
	require.NoError(t, err)

	require.Len(t, resp.Detections, 3)
	assert.Equal(t, 0.1, resp.Detections[0].Confidence)
	assert.Equal(t, 0.99, resp.Detections[1].Confidence)
	assert.Equal(t, 0.1, resp.Detections[2].Confidence)
}

func TestServiceDetectUnmappedClass(t *testing.T) {
	rt := &fakeRuntime{pred: &model.Prediction{
		Detections: []model.RawDetection{{Confidence: 0.55, Class: 3}},
		Names:      map[int]string{0: "crack"},
	}}
	resp, err := NewService(&fakeSource{rt: rt}, 0).Detect(pngRequest(t, 8, 8))
	require.NoError(t, err)

	require.Len(t, resp.Detections, 1)
	assert.Equal(t, ClassPothole, resp.Detections[0].ClassLabel)
}

func TestServiceDetectNoDetections(t *testing.T) {
	rt := &fakeRuntime{pred: &model.Prediction{Names: map[int]string{0: "pothole"}}}
	payload := base64.StdEncoding.EncodeToString(encodeJPEG(t, testPattern(640, 480)))

	resp, err := NewService(&fakeSource{rt: rt}, 0).Detect(DetectionRequest{Image: payload})
	require.NoError(t, err)
	assert.NotNil(t, resp.Detections)
	assert.Empty(t, resp.Detections)
}

func TestServiceDetectInvalidImage(t *testing.T) {
	src := &fakeSource{rt: &fakeRuntime{}}

	_, err := NewService(src, 0).Detect(DetectionRequest{Image: "data:image/png;base64,not-an-image"})
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.NotErrorIs(t, err, ErrModelUnavailable)
	assert.NotErrorIs(t, err, ErrInferenceFailure)
	assert.Equal(t, 0, src.calls, "model must not be loaded for an undecodable frame")
}

func TestServiceDetectFrameOverPixelLimit(t *testing.T) {
	rt := &fakeRuntime{pred: &model.Prediction{}}
	src := &fakeSource{rt: rt}
	svc := NewService(src, 100)

	_, err := svc.Detect(pngRequest(t, 16, 16))
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.Equal(t, 0, src.calls)

	_, err = svc.DetectBytes(encodePNG(t, testPattern(16, 16)))
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.Equal(t, 0, rt.calls)

	_, err = svc.Detect(pngRequest(t, 10, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, rt.calls)
}

func TestServiceDetectModelUnavailable(t *testing.T) {
	missing := fmt.Errorf("model weights not found: %w", fs.ErrNotExist)
	src := &fakeSource{err: missing}

	_, err := NewService(src, 0).Detect(pngRequest(t, 8, 8))
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.NotErrorIs(t, err, ErrInferenceFailure)

	_, err = NewService(src, 0).Detect(pngRequest(t, 8, 8))
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, 2, src.calls, "load failures are retried on every request")
}

func TestServiceDetectInferenceFailure(t *testing.T) {
	cause := errors.New("bad tensor shape")
	rt := &fakeRuntime{err: cause}

	_, err := NewService(&fakeSource{rt: rt}, 0).Detect(pngRequest(t, 8, 8))
	assert.ErrorIs(t, err, ErrInferenceFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrModelUnavailable)
}

func TestServiceDetectRecoversRuntimePanic(t *testing.T) {
	rt := &fakeRuntime{panics: true}

	var err error
	assert.NotPanics(t, func() {
		_, err = NewService(&fakeSource{rt: rt}, 0).Detect(pngRequest(t, 8, 8))
	})
	assert.ErrorIs(t, err, ErrInferenceFailure)
}

func TestServiceDetectBytes(t *testing.T) {
	rt := &fakeRuntime{pred: &model.Prediction{
		Detections: []model.RawDetection{{X: 1, Y: 2, Width: 3, Height: 4, Confidence: 0.91, Class: 1}},
		Names:      map[int]string{0: "pothole", 1: "Crack"},
	}}
	svc := NewService(&fakeSource{rt: rt}, 0)

	resp, err := svc.DetectBytes(encodePNG(t, testPattern(16, 9)))
	require.NoError(t, err)
	require.Len(t, resp.Detections, 1)
	assert.Equal(t, ClassCrack, resp.Detections[0].ClassLabel)
	assert.Equal(t, SeverityCritical, resp.Detections[0].SeverityScore)

	_, err = svc.DetectBytes([]byte("garbage"))
	assert.ErrorIs(t, err, ErrInvalidImage)
}
