// Package faceclient talks to the remote face detection/embedding service.
// It implements facematch.Detector so the engine can treat the model
// provider as a black box.
package faceclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"attendify/internal/facematch"
)

// Client calls the face model microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip=true every call returns canned data so
// the rest of the stack runs without the model service (dev mode).
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // model inference can take time
		},
	}
}

// LoadModels asks the service to warm its detection and embedding models.
// The service side is idempotent; repeat calls are cheap.
func (c *Client) LoadModels(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/models/load", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service model load failed: %s", resp.Status)
	}
	return nil
}

// detectedFace mirrors the service's per-face response shape.
type detectedFace struct {
	Box         []float64          `json:"box"` // [x, y, width, height]
	Landmarks   [][]float64        `json:"landmarks"`
	Embedding   []float32          `json:"embedding"`
	Expressions map[string]float64 `json:"expressions"`
	Score       float64            `json:"score"`
}

// DetectFaces runs detection on one frame and returns every face found.
func (c *Client) DetectFaces(ctx context.Context, frame facematch.Frame) ([]facematch.Detection, error) {
	if c.Skip {
		return c.skipDetections(frame), nil
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	body, _ := json.Marshal(map[string]string{
		"image": base64.StdEncoding.EncodeToString(frame),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Faces []detectedFace `json:"faces"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	dets := make([]facematch.Detection, 0, len(out.Faces))
	for _, f := range out.Faces {
		dets = append(dets, toDetection(f))
	}
	return dets, nil
}

func toDetection(f detectedFace) facematch.Detection {
	det := facematch.Detection{
		Embedding:   f.Embedding,
		Expressions: f.Expressions,
		Score:       f.Score,
	}
	if len(f.Box) == 4 {
		det.Box = facematch.Box{X: f.Box[0], Y: f.Box[1], Width: f.Box[2], Height: f.Box[3]}
	}
	for _, p := range f.Landmarks {
		if len(p) == 2 {
			det.Landmarks = append(det.Landmarks, facematch.Point{X: p[0], Y: p[1]})
		}
	}
	return det
}

// skipDetections fabricates a single stable face per frame so enrollment
// and recognition behave consistently in dev mode: identical frames yield
// identical embeddings.
func (c *Client) skipDetections(frame facematch.Frame) []facematch.Detection {
	emb := make(facematch.Embedding, 128)
	var h uint32 = 2166136261
	for _, b := range frame {
		h ^= uint32(b)
		h *= 16777619
	}
	for i := range emb {
		h ^= uint32(i)
		h *= 16777619
		emb[i] = float32(h%1000) / 1000
	}
	return []facematch.Detection{{
		Box:       facematch.Box{X: 100, Y: 80, Width: 240, Height: 240},
		Embedding: emb,
		Score:     0.95,
	}}
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}
