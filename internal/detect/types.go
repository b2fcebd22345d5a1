package detect

type GPSPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DetectionRequest carries one frame. Image is a data URL or a bare base64
// string.
type DetectionRequest struct {
	Image string    `json:"image"`
	GPS   *GPSPoint `json:"gps,omitempty"`
}

type ClassLabel string

const (
	ClassPothole ClassLabel = "pothole"
	ClassCrack   ClassLabel = "crack"
	ClassOther   ClassLabel = "other"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// BBox is center-anchored, in pixels of the submitted image.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Detection struct {
	ClassLabel    ClassLabel `json:"classLabel"`
	Confidence    float64    `json:"confidence"`
	BBox          BBox       `json:"bbox"`
	SeverityScore Severity   `json:"severityScore"`
}

type DetectionResponse struct {
	Detections []Detection `json:"detections"`
}
