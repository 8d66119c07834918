package facematch

import (
	"context"
	"errors"
	"testing"
)

// fakeDetector maps frame contents to canned detections so engine behavior
// can be exercised without the model service.
type fakeDetector struct {
	frames   map[string][]Detection
	loadErr  error
	loads    int
	detErr   error
}

func (f *fakeDetector) LoadModels(ctx context.Context) error {
	f.loads++
	return f.loadErr
}

func (f *fakeDetector) DetectFaces(ctx context.Context, frame Frame) ([]Detection, error) {
	if f.detErr != nil {
		return nil, f.detErr
	}
	return f.frames[string(frame)], nil
}

func det(emb ...float32) Detection {
	return Detection{Embedding: Embedding(emb), Score: 0.9}
}

func TestEngineLoadModels(t *testing.T) {
	t.Run("idempotent after success", func(t *testing.T) {
		fd := &fakeDetector{}
		e := NewEngine(fd)
		if err := e.LoadModels(context.Background()); err != nil {
			t.Fatalf("first load: %v", err)
		}
		if err := e.LoadModels(context.Background()); err != nil {
			t.Fatalf("second load: %v", err)
		}
		if fd.loads != 1 {
			t.Errorf("detector loaded %d times; want 1", fd.loads)
		}
	})

	t.Run("failure is retryable", func(t *testing.T) {
		fd := &fakeDetector{loadErr: errors.New("model file missing")}
		e := NewEngine(fd)
		if err := e.LoadModels(context.Background()); !errors.Is(err, ErrModelLoad) {
			t.Fatalf("got %v; want ErrModelLoad", err)
		}
		fd.loadErr = nil
		if err := e.LoadModels(context.Background()); err != nil {
			t.Fatalf("retry after clearing failure: %v", err)
		}
		if fd.loads != 2 {
			t.Errorf("detector loaded %d times; want 2", fd.loads)
		}
	})
}

func TestEngineEnroll(t *testing.T) {
	fd := &fakeDetector{frames: map[string][]Detection{
		"alice":   {det(1, 0, 0)},
		"crowd":   {det(1, 0, 0), det(0, 1, 0)},
		"nothing": {},
	}}
	e := NewEngine(fd)
	ctx := context.Background()

	t.Run("no face", func(t *testing.T) {
		if _, err := e.Enroll(ctx, Frame("nothing"), "u1"); !errors.Is(err, ErrNoFace) {
			t.Fatalf("got %v; want ErrNoFace", err)
		}
		if n := e.EmbeddingCount("u1"); n != 0 {
			t.Errorf("store changed on rejected enroll: %d embeddings", n)
		}
	})

	t.Run("multiple faces", func(t *testing.T) {
		if _, err := e.Enroll(ctx, Frame("crowd"), "u1"); !errors.Is(err, ErrMultipleFaces) {
			t.Fatalf("got %v; want ErrMultipleFaces", err)
		}
		if n := e.EmbeddingCount("u1"); n != 0 {
			t.Errorf("store changed on rejected enroll: %d embeddings", n)
		}
	})

	t.Run("single face appends", func(t *testing.T) {
		d, err := e.Enroll(ctx, Frame("alice"), "u1")
		if err != nil {
			t.Fatalf("enroll: %v", err)
		}
		if d == nil || len(d.Embedding) != 3 {
			t.Fatalf("unexpected detection returned: %+v", d)
		}
		if _, err := e.Enroll(ctx, Frame("alice"), "u1"); err != nil {
			t.Fatalf("second enroll: %v", err)
		}
		if n := e.EmbeddingCount("u1"); n != 2 {
			t.Errorf("EmbeddingCount = %d; want 2", n)
		}
	})
}

func TestEngineRecognize(t *testing.T) {
	fd := &fakeDetector{frames: map[string][]Detection{
		"alice":    {det(1, 0, 0)},
		"bob":      {det(0, 1, 0)},
		"stranger": {det(0, 0, 1)},
		"near-a":   {det(0.9, 0, 0)},
		"empty":    {},
	}}
	e := NewEngine(fd, WithThreshold(0.5))
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		out, err := e.Recognize(ctx, Frame("alice"))
		if err != nil {
			t.Fatalf("recognize: %v", err)
		}
		if out.Recognized || out.UserID != "" || out.Confidence != 0 {
			t.Errorf("empty store should not recognize: %+v", out)
		}
	})

	if _, err := e.Enroll(ctx, Frame("alice"), "alice"); err != nil {
		t.Fatalf("enroll alice: %v", err)
	}
	if _, err := e.Enroll(ctx, Frame("bob"), "bob"); err != nil {
		t.Fatalf("enroll bob: %v", err)
	}

	t.Run("no face in frame", func(t *testing.T) {
		out, err := e.Recognize(ctx, Frame("empty"))
		if err != nil {
			t.Fatalf("recognize: %v", err)
		}
		if out.Recognized {
			t.Error("frame without a face should not recognize")
		}
	})

	t.Run("match within threshold", func(t *testing.T) {
		out, err := e.Recognize(ctx, Frame("near-a"))
		if err != nil {
			t.Fatalf("recognize: %v", err)
		}
		if !out.Recognized || out.UserID != "alice" {
			t.Fatalf("got %+v; want alice recognized", out)
		}
		if out.Confidence <= 0.8 || out.Confidence > 1 {
			t.Errorf("confidence = %g; want 1-distance within (0.8, 1]", out.Confidence)
		}
	})

	t.Run("nearest beyond threshold", func(t *testing.T) {
		out, err := e.Recognize(ctx, Frame("stranger"))
		if err != nil {
			t.Fatalf("recognize: %v", err)
		}
		if out.Recognized || out.UserID != "" {
			t.Errorf("stranger should not be recognized: %+v", out)
		}
		if out.Distance <= 0.5 {
			t.Errorf("distance = %g; should exceed threshold", out.Distance)
		}
	})
}

func TestEngineRecognize_FirstFaceOnly(t *testing.T) {
	fd := &fakeDetector{frames: map[string][]Detection{
		"alice": {det(1, 0, 0)},
		"bob":   {det(0, 1, 0)},
		// bob stands in front, alice behind
		"pair": {det(0, 1, 0), det(1, 0, 0)},
	}}
	e := NewEngine(fd)
	ctx := context.Background()

	if _, err := e.Enroll(ctx, Frame("alice"), "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Enroll(ctx, Frame("bob"), "bob"); err != nil {
		t.Fatal(err)
	}

	out, err := e.Recognize(ctx, Frame("pair"))
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if out.UserID != "bob" {
		t.Errorf("recognized %q; want first detected face (bob)", out.UserID)
	}
}

func TestEngineUnenroll(t *testing.T) {
	fd := &fakeDetector{frames: map[string][]Detection{
		"a": {det(1, 0)},
		"b": {det(0, 1)},
		"c": {det(1, 1)},
	}}
	e := NewEngine(fd)
	ctx := context.Background()

	for _, u := range []string{"a", "b", "c"} {
		if _, err := e.Enroll(ctx, Frame(u), u); err != nil {
			t.Fatalf("enroll %s: %v", u, err)
		}
	}

	e.Unenroll("b")
	users := e.EnrolledUsers()
	if len(users) != 2 || users[0] != "a" || users[1] != "c" {
		t.Errorf("EnrolledUsers = %v; want [a c]", users)
	}

	// removed user can no longer match
	out, err := e.Recognize(ctx, Frame("b"))
	if err != nil {
		t.Fatal(err)
	}
	if out.UserID == "b" {
		t.Error("unenrolled user still recognized")
	}

	// idempotent
	e.Unenroll("b")
	e.Unenroll("never-enrolled")
	if len(e.EnrolledUsers()) != 2 {
		t.Error("unrelated unenroll changed the store")
	}

	e.ClearAll()
	if len(e.EnrolledUsers()) != 0 {
		t.Error("ClearAll left users behind")
	}
	e.ClearAll() // still a no-op
}

func TestEngineWithIndexMatchesScan(t *testing.T) {
	frames := map[string][]Detection{
		"u1": {det(0.1, 0.2, 0.3)},
		"u2": {det(0.8, 0.1, 0.4)},
		"u3": {det(0.3, 0.9, 0.2)},
		"probe": {det(0.11, 0.21, 0.29)},
	}
	plain := NewEngine(&fakeDetector{frames: frames})
	indexed := NewEngine(&fakeDetector{frames: frames}, WithIndex())
	ctx := context.Background()

	for _, u := range []string{"u1", "u2", "u3"} {
		if _, err := plain.Enroll(ctx, Frame(u), u); err != nil {
			t.Fatal(err)
		}
		if _, err := indexed.Enroll(ctx, Frame(u), u); err != nil {
			t.Fatal(err)
		}
	}

	a, err := plain.Recognize(ctx, Frame("probe"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := indexed.Recognize(ctx, Frame("probe"))
	if err != nil {
		t.Fatal(err)
	}
	if a.UserID != b.UserID || a.Recognized != b.Recognized {
		t.Errorf("indexed engine disagreed with scan: %+v vs %+v", a, b)
	}
}
