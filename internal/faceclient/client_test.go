package faceclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"attendify/internal/facematch"
)

func TestSkipModeDeterministic(t *testing.T) {
	c := New("", true)
	ctx := context.Background()

	a, err := c.DetectFaces(ctx, facematch.Frame("same-bytes"))
	if err != nil {
		t.Fatalf("DetectFaces: %v", err)
	}
	b, err := c.DetectFaces(ctx, facematch.Frame("same-bytes"))
	if err != nil {
		t.Fatal(err)
	}

	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("skip mode should fabricate exactly one face, got %d and %d", len(a), len(b))
	}
	if len(a[0].Embedding) != 128 {
		t.Errorf("embedding length = %d; want 128", len(a[0].Embedding))
	}
	if facematch.EuclideanDistance(a[0].Embedding, b[0].Embedding) != 0 {
		t.Error("identical frames must yield identical embeddings")
	}

	other, err := c.DetectFaces(ctx, facematch.Frame("different-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if facematch.EuclideanDistance(a[0].Embedding, other[0].Embedding) == 0 {
		t.Error("different frames should yield different embeddings")
	}
}

func TestDetectFaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"faces": []map[string]any{{
				"box":       []float64{10, 20, 100, 120},
				"landmarks": [][]float64{{15, 30}, {55, 30}},
				"embedding": []float32{0.1, 0.2, 0.3},
				"score":     0.97,
			}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	dets, err := c.DetectFaces(context.Background(), facematch.Frame("jpeg-bytes"))
	if err != nil {
		t.Fatalf("DetectFaces: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("got %d detections; want 1", len(dets))
	}

	d := dets[0]
	if d.Box.X != 10 || d.Box.Width != 100 {
		t.Errorf("box = %+v; want x=10 w=100", d.Box)
	}
	if len(d.Landmarks) != 2 || d.Landmarks[1].X != 55 {
		t.Errorf("landmarks = %+v", d.Landmarks)
	}
	if len(d.Embedding) != 3 {
		t.Errorf("embedding = %v", d.Embedding)
	}
	if d.Score != 0.97 {
		t.Errorf("score = %g; want 0.97", d.Score)
	}
}

func TestDetectFacesServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	if _, err := c.DetectFaces(context.Background(), facematch.Frame("x")); err == nil {
		t.Error("expected error from failing service")
	}
}

func TestDetectFacesEmptyFrame(t *testing.T) {
	c := New("http://unused", false)
	if _, err := c.DetectFaces(context.Background(), nil); err == nil {
		t.Error("expected error for empty frame")
	}
}
