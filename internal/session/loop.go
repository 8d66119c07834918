package session

import (
	"context"
	"errors"
	"time"

	"attendify/internal/facematch"
)

// RunCaptureLoop drives the face channel: it polls the frame source at the
// configured interval, runs recognition, and feeds outcomes through the
// acceptance policy until the session stops or ctx is cancelled.
//
// Camera or model failure degrades the channel: the error is recorded for
// the monitor and the loop exits instead of retry-storming; the caller may
// restart it on explicit user action. Per-frame detection errors are
// transient and only recorded. The frame source is always released on the
// way out.
func (c *Controller) RunCaptureLoop(ctx context.Context, src facematch.FrameSource) error {
	defer src.Close()

	c.mu.Lock()
	if c.st != stateActive || c.method != MethodFace {
		c.mu.Unlock()
		return ErrSessionNotActive
	}
	if c.cancelLoop != nil {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancelLoop = cancel
	interval := c.cfg.CaptureInterval
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.cancelLoop = nil
		c.mu.Unlock()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-loopCtx.Done():
			return nil
		case <-ticker.C:
		}
		if !c.Active() {
			return nil
		}

		frame, err := src.Frame(loopCtx)
		if err != nil {
			if loopCtx.Err() != nil {
				return nil
			}
			c.setLastErr(err)
			return err
		}

		if _, err := c.ProcessFrame(loopCtx, frame); err != nil {
			if errors.Is(err, facematch.ErrModelLoad) {
				return err
			}
			// Transient per-frame failure; keep polling.
		}
	}
}

// ProcessFrame runs one capture-loop step on a single frame: recognize,
// then attempt a face check-in. Exposed so tests and manual capture
// endpoints can step the loop deterministically without real timers.
//
// accepted is true when the frame produced a new attendance event.
// Rejections from the acceptance policy (not recognized, duplicate,
// stranger) are normal per-frame outcomes and return a nil error.
func (c *Controller) ProcessFrame(ctx context.Context, frame facematch.Frame) (accepted bool, err error) {
	c.mu.Lock()
	engine := c.cfg.Engine
	c.mu.Unlock()
	if engine == nil {
		return false, facematch.ErrModelLoad
	}

	out, err := engine.Recognize(ctx, frame)
	if err != nil {
		c.setLastErr(err)
		return false, err
	}

	if _, err := c.CheckInFace(ctx, out, ""); err != nil {
		switch {
		case errors.Is(err, ErrNotRecognized),
			errors.Is(err, ErrDuplicateCheckIn),
			errors.Is(err, ErrNotOnRoster):
			return false, nil
		default:
			return false, err
		}
	}
	return true, nil
}
