package facematch

import "errors"

var (
	// ErrModelLoad means the detection/embedding model assets could not be
	// acquired. Callers should surface this as "camera features unavailable".
	ErrModelLoad = errors.New("face models unavailable")

	// ErrDetection means a frame could not be decoded or inference failed.
	ErrDetection = errors.New("face detection failed")

	// ErrNoFace means enrollment found zero faces in the frame.
	ErrNoFace = errors.New("no face detected")

	// ErrMultipleFaces means enrollment found more than one face; the
	// caller must re-capture with a single subject visible.
	ErrMultipleFaces = errors.New("multiple faces detected")
)
