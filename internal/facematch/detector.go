package facematch

import "context"

// Frame is an opaque, decodable camera frame (an encoded image). The
// engine never inspects it; it is handed straight to the detector.
type Frame []byte

// Detector is the boundary to the external detection/embedding model
// provider. Implementations must be safe for concurrent use.
type Detector interface {
	// LoadModels acquires the model assets. Must be safe to call more
	// than once; implementations may make repeat calls no-ops.
	LoadModels(ctx context.Context) error

	// DetectFaces returns every face found in the frame. An empty slice
	// is a valid "no face" result, not an error.
	DetectFaces(ctx context.Context, frame Frame) ([]Detection, error)
}

// FrameSource supplies the current camera frame on demand. Close releases
// the underlying stream; the owner must call it on stop, error, or teardown.
type FrameSource interface {
	Frame(ctx context.Context) (Frame, error)
	Close() error
}
