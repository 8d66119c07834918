package facematch

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// DefaultThreshold is the maximum euclidean distance at which a probe is
// accepted as a match. The reference model's descriptors make 0.6 a
// reasonable same-person boundary.
const DefaultThreshold = 0.6

// Engine owns the enrollment store for the lifetime of the process and
// performs detection, enrollment and recognition against it. All store
// access runs under a single mutex so recognition never observes a
// half-appended embedding.
type Engine struct {
	det       Detector
	threshold float64

	loadMu sync.Mutex
	loaded bool

	mu      sync.RWMutex
	order   []string               // user insertion order, for deterministic scans
	gallery map[string][]Embedding // userID -> embeddings in capture order
	index   *GalleryIndex          // nil unless WithIndex
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreshold overrides the match distance threshold.
func WithThreshold(distance float64) Option {
	return func(e *Engine) {
		if distance > 0 {
			e.threshold = distance
		}
	}
}

// WithIndex enables the HNSW gallery index. Recognition consults the index
// for the nearest neighbor and falls back to the linear scan when the
// index cannot answer.
func WithIndex() Option {
	return func(e *Engine) { e.index = NewGalleryIndex() }
}

// NewEngine creates an engine backed by the given model provider.
func NewEngine(det Detector, opts ...Option) *Engine {
	e := &Engine{
		det:       det,
		threshold: DefaultThreshold,
		gallery:   make(map[string][]Embedding),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the configured match distance threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// LoadModels acquires the detection/embedding model once. Subsequent calls
// after a success are no-ops; failures leave the engine unloaded so the
// caller can retry on explicit user action.
func (e *Engine) LoadModels(ctx context.Context) error {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	if e.loaded {
		return nil
	}
	if err := e.det.LoadModels(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	e.loaded = true
	return nil
}

// DetectFaces finds every face in the frame. Models are loaded lazily on
// first use. An empty result is a valid "no face" outcome.
func (e *Engine) DetectFaces(ctx context.Context, frame Frame) ([]Detection, error) {
	if err := e.LoadModels(ctx); err != nil {
		return nil, err
	}
	dets, err := e.det.DetectFaces(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetection, err)
	}
	return dets, nil
}

// Enroll appends the embedding of the single face in frame to userID's
// enrollment record, creating the record if absent. Frames with zero or
// multiple faces are rejected and leave the store unchanged. The returned
// detection carries landmarks for UI feedback.
func (e *Engine) Enroll(ctx context.Context, frame Frame, userID string) (*Detection, error) {
	dets, err := e.DetectFaces(ctx, frame)
	if err != nil {
		return nil, err
	}
	switch {
	case len(dets) == 0:
		return nil, ErrNoFace
	case len(dets) > 1:
		return nil, fmt.Errorf("%w: found %d", ErrMultipleFaces, len(dets))
	}

	det := dets[0]

	e.mu.Lock()
	if _, ok := e.gallery[userID]; !ok {
		e.order = append(e.order, userID)
	}
	e.gallery[userID] = append(e.gallery[userID], det.Embedding)
	if e.index != nil {
		e.index.Add(userID, det.Embedding)
	}
	e.mu.Unlock()

	return &det, nil
}

// Recognize matches the frame against the full enrollment store and
// returns a recognition outcome. Only the first detected face is
// considered: the capture loop runs as a single-subject kiosk and
// multi-face frames are not disambiguated. Never mutates the store.
func (e *Engine) Recognize(ctx context.Context, frame Frame) (Outcome, error) {
	dets, err := e.DetectFaces(ctx, frame)
	if err != nil {
		return Outcome{}, err
	}
	if len(dets) == 0 {
		return Outcome{}, nil
	}

	probe := dets[0]
	bestUser, bestDist := e.nearest(probe.Embedding)

	out := Outcome{
		Landmarks:   probe.Landmarks,
		Expressions: probe.Expressions,
	}
	if bestUser == "" {
		// Empty store: nothing to match against.
		return out, nil
	}

	out.Distance = bestDist
	out.Confidence = clamp01(1 - bestDist)
	if bestDist <= e.threshold {
		out.Recognized = true
		out.UserID = bestUser
	}
	return out, nil
}

// nearest returns the enrolled user with the minimal euclidean distance to
// the probe. Ties resolve to the first embedding encountered in enrollment
// insertion order; cross-user exact ties are not a stable contract.
func (e *Engine) nearest(probe Embedding) (string, float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.index != nil {
		if userID, dist, ok := e.index.Nearest(probe); ok {
			return userID, dist
		}
	}
	return e.scan(probe)
}

// scan is the reference linear nearest-neighbor over every embedding of
// every user. Caller holds at least the read lock.
func (e *Engine) scan(probe Embedding) (string, float64) {
	bestUser := ""
	bestDist := math.Inf(1)
	for _, userID := range e.order {
		for _, emb := range e.gallery[userID] {
			if d := EuclideanDistance(probe, emb); d < bestDist {
				bestUser, bestDist = userID, d
			}
		}
	}
	return bestUser, bestDist
}

// Unenroll removes every embedding for userID. Idempotent.
func (e *Engine) Unenroll(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.gallery[userID]; !ok {
		return
	}
	delete(e.gallery, userID)
	for i, id := range e.order {
		if id == userID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	if e.index != nil {
		e.index.RemoveUser(userID)
	}
}

// ClearAll removes every enrollment record. Idempotent.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.order = nil
	e.gallery = make(map[string][]Embedding)
	if e.index != nil {
		e.index.Clear()
	}
}

// EnrolledUsers returns user IDs in enrollment insertion order.
func (e *Engine) EnrolledUsers() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// EmbeddingCount returns how many embeddings are enrolled for userID.
func (e *Engine) EmbeddingCount(userID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.gallery[userID])
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
