// Package facematch owns enrolled face embeddings and turns camera frames
// into enrollment records and recognition decisions.
package facematch

// Embedding is a fixed-length face descriptor produced by the detection
// model (128 dimensions in the reference model). Immutable once produced.
type Embedding []float32

// Point is a single landmark position in frame pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is a face bounding region in frame pixel coordinates.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one face found in a single frame. Transient, never persisted.
type Detection struct {
	Box         Box                `json:"box"`
	Landmarks   []Point            `json:"landmarks,omitempty"`
	Embedding   Embedding          `json:"embedding"`
	Expressions map[string]float64 `json:"expressions,omitempty"`
	Score       float64            `json:"score"`
}

// Outcome is the result of matching one frame against the enrollment store.
// Confidence is 1 - distance clamped to [0, 1] and is informational; the
// accept decision compares Distance against the engine threshold.
type Outcome struct {
	Recognized bool    `json:"recognized"`
	UserID     string  `json:"user_id,omitempty"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"distance"`

	// First-face side channel for UI feedback.
	Landmarks   []Point            `json:"landmarks,omitempty"`
	Expressions map[string]float64 `json:"expressions,omitempty"`
}
