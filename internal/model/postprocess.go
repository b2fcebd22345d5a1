package model

import (
	"fmt"
	"math"
	"sort"
)

// maxCandidates bounds the boxes handed to NMS.
const maxCandidates = 30000

// candidate is a box in letterbox coordinates.
type candidate struct {
	xc, yc, w, h float32
	score        float32
	class        int
}

// decodeOutput reads a YOLO head of shape [1, 4+classes, anchors]: rows 0-3
// hold cx, cy, w, h and the remaining rows hold per-class scores. Anchors
// whose best class score does not exceed confThreshold are dropped. The
// result is ordered by descending score.
func decodeOutput(output []float32, shape []int64, confThreshold float32) ([]candidate, error) {
	if len(shape) != 3 {
		return nil, fmt.Errorf("unexpected output rank %d", len(shape))
	}
	rows, anchors := int(shape[1]), int(shape[2])
	if rows < 5 || anchors < 1 {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
	if len(output) != rows*anchors {
		return nil, fmt.Errorf("invalid output size: got %d, expected %d", len(output), rows*anchors)
	}
	numClasses := rows - 4

	var candidates []candidate
	for i := 0; i < anchors; i++ {
		classID, score := 0, float32(0)
		for j := 0; j < numClasses; j++ {
			if v := output[(4+j)*anchors+i]; v > score {
				score = v
				classID = j
			}
		}
		if score <= confThreshold {
			continue
		}
		candidates = append(candidates, candidate{
			xc:    output[i],
			yc:    output[anchors+i],
			w:     output[2*anchors+i],
			h:     output[3*anchors+i],
			score: score,
			class: classID,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return candidates, nil
}

// nonMaxSuppression keeps the highest scoring boxes, dropping any box that
// overlaps an already kept box of the same class by more than iouThreshold.
// Input must be sorted by descending score; order is preserved.
func nonMaxSuppression(candidates []candidate, iouThreshold float32, maxDetections int) []candidate {
	kept := make([]candidate, 0, min(len(candidates), maxDetections))
	for _, c := range candidates {
		if len(kept) >= maxDetections {
			break
		}
		suppressed := false
		for _, k := range kept {
			if k.class == c.class && iou(k, c) > float64(iouThreshold) {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, c)
		}
	}
	return kept
}

// iou computes the intersection over union of two center-anchored boxes.
func iou(a, b candidate) float64 {
	ax1, ay1 := float64(a.xc-a.w/2), float64(a.yc-a.h/2)
	ax2, ay2 := float64(a.xc+a.w/2), float64(a.yc+a.h/2)
	bx1, by1 := float64(b.xc-b.w/2), float64(b.yc-b.h/2)
	bx2, by2 := float64(b.xc+b.w/2), float64(b.yc+b.h/2)

	iw := math.Max(0, math.Min(ax2, bx2)-math.Max(ax1, bx1))
	ih := math.Max(0, math.Min(ay2, by2)-math.Max(ay1, by1))
	inter := iw * ih

	union := float64(a.w*a.h) + float64(b.w*b.h) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
