package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// head lays anchors out as a [1, 4+classes, anchors] tensor.
func head(classes int, anchors [][]float32) ([]float32, []int64) {
	rows := 4 + classes
	n := len(anchors)
	out := make([]float32, rows*n)
	for i, a := range anchors {
		for r := 0; r < rows; r++ {
			out[r*n+i] = a[r]
		}
	}
	return out, []int64{1, int64(rows), int64(n)}
}

func TestDecodeOutput(t *testing.T) {
	out, shape := head(2, [][]float32{
		{100, 100, 20, 20, 0.9, 0.1},
		{102, 100, 20, 20, 0.8, 0.0},
		{102, 100, 20, 20, 0.0, 0.85},
		{300, 300, 10, 10, 0.2, 0.1},
	})

	got, err := decodeOutput(out, shape, 0.25)
	require.NoError(t, err)

	assert.Equal(t, []candidate{
		{xc: 100, yc: 100, w: 20, h: 20, score: 0.9, class: 0},
		{xc: 102, yc: 100, w: 20, h: 20, score: 0.85, class: 1},
		{xc: 102, yc: 100, w: 20, h: 20, score: 0.8, class: 0},
	}, got)
}

func TestDecodeOutputShapeMismatch(t *testing.T) {
	_, err := decodeOutput(make([]float32, 10), []int64{1, 6, 4}, 0.25)
	assert.Error(t, err)

	_, err = decodeOutput(make([]float32, 16), []int64{1, 4, 4}, 0.25)
	assert.Error(t, err)

	_, err = decodeOutput(make([]float32, 24), []int64{6, 4}, 0.25)
	assert.Error(t, err)
}

func TestNonMaxSuppressionIsClassAware(t *testing.T) {
	candidates := []candidate{
		{xc: 100, yc: 100, w: 20, h: 20, score: 0.9, class: 0},
		{xc: 102, yc: 100, w: 20, h: 20, score: 0.85, class: 1},
		{xc: 102, yc: 100, w: 20, h: 20, score: 0.8, class: 0},
		{xc: 200, yc: 200, w: 20, h: 20, score: 0.7, class: 0},
	}

	got := nonMaxSuppression(candidates, 0.7, 300)

	assert.Equal(t, []candidate{candidates[0], candidates[1], candidates[3]}, got)
}

func TestNonMaxSuppressionMaxDetections(t *testing.T) {
	candidates := []candidate{
		{xc: 10, yc: 10, w: 5, h: 5, score: 0.9},
		{xc: 50, yc: 50, w: 5, h: 5, score: 0.8},
		{xc: 90, yc: 90, w: 5, h: 5, score: 0.7},
	}

	got := nonMaxSuppression(candidates, 0.7, 2)
	assert.Equal(t, candidates[:2], got)
}

func TestIOU(t *testing.T) {
	a := candidate{xc: 10, yc: 10, w: 10, h: 10}

	assert.InDelta(t, 1.0, iou(a, a), 1e-9)
	assert.InDelta(t, 0.0, iou(a, candidate{xc: 50, yc: 50, w: 10, h: 10}), 1e-9)
	// half overlap: 50 / (100 + 100 - 50)
	assert.InDelta(t, 1.0/3.0, iou(a, candidate{xc: 15, yc: 10, w: 10, h: 10}), 1e-9)
	assert.Equal(t, 0.0, iou(candidate{}, candidate{}))
}
