package detect

import (
	"strings"

	"github.com/Brownie44l1/road-detect/internal/model"
)

// defaultClassName stands in for class indices the model has no name for.
const defaultClassName = "pothole"

func SeverityFor(confidence float64) Severity {
	switch {
	case confidence < 0.5:
		return SeverityLow
	case confidence < 0.7:
		return SeverityMedium
	case confidence < 0.9:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// NormalizeClass maps a model class name onto the public labels. "pothole"
// wins over "crack" when a name contains both.
func NormalizeClass(name string) ClassLabel {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "pothole"):
		return ClassPothole
	case strings.Contains(lower, "crack"):
		return ClassCrack
	default:
		return ClassOther
	}
}

func className(names map[int]string, class int) string {
	if name, ok := names[class]; ok {
		return name
	}
	return defaultClassName
}

// MapDetections converts runtime output into response detections, keeping
// the runtime's order. The result is never nil.
func MapDetections(pred *model.Prediction) []Detection {
	if pred == nil {
		return []Detection{}
	}

	out := make([]Detection, 0, len(pred.Detections))
	for _, d := range pred.Detections {
		out = append(out, Detection{
			ClassLabel: NormalizeClass(className(pred.Names, d.Class)),
			Confidence: d.Confidence,
			BBox: BBox{
				X:      d.X,
				Y:      d.Y,
				Width:  d.Width,
				Height: d.Height,
			},
			SeverityScore: SeverityFor(d.Confidence),
		})
	}
	return out
}
