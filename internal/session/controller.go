package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"attendify/internal/facematch"
	"attendify/internal/qrtoken"
)

type state int

const (
	stateIdle state = iota
	stateActive
	stateStopped
)

// Config wires a controller's collaborators. Engine and Signer may be nil
// when the corresponding channel is unused; Sink, Metrics and Clock are
// optional.
type Config struct {
	Engine          *facematch.Engine
	Signer          *qrtoken.Signer
	Sink            EventSink
	Metrics         Recorder
	Clock           func() time.Time
	MaxDuration     time.Duration // auto-stop after this; zero disables
	CaptureInterval time.Duration // face capture poll interval
}

// Controller governs one class meeting's attendance window. State machine:
// Idle -> Active -> Stopped. All mutation runs under one mutex so
// concurrent accept attempts preserve the dedup invariant.
type Controller struct {
	cfg Config

	mu        sync.Mutex
	st        state
	id        string
	classID   string
	teacherID string
	method    Method
	startTime time.Time
	endTime   time.Time
	qrToken   string

	roster       map[string]struct{}
	present      map[string]struct{}
	presentOrder []string
	events       []Event

	cancelLoop context.CancelFunc
	lastErr    error
}

// NewController creates an idle controller.
func NewController(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.CaptureInterval <= 0 {
		cfg.CaptureInterval = 250 * time.Millisecond
	}
	return &Controller{
		cfg:     cfg,
		present: make(map[string]struct{}),
	}
}

// Start opens the check-in window. Roster membership is fixed at creation
// from the class's enrolled students. For QR sessions a signed session
// token is minted and exposed for display.
func (c *Controller) Start(classID string, method Method, teacherID string, roster []string) (StartInfo, error) {
	if classID == "" {
		return StartInfo{}, ErrNoClassSelected
	}
	if !method.Valid() {
		method = MethodQR
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != stateIdle {
		return StartInfo{}, ErrAlreadyStarted
	}

	c.id = uuid.NewString()
	c.classID = classID
	c.teacherID = teacherID
	c.method = method
	c.startTime = c.cfg.Clock().UTC()
	c.roster = make(map[string]struct{}, len(roster))
	for _, studentID := range roster {
		c.roster[studentID] = struct{}{}
	}

	if method == MethodQR {
		if c.cfg.Signer == nil {
			return StartInfo{}, ErrInvalidQRCode
		}
		token, err := c.cfg.Signer.Issue(classID, c.id, teacherID)
		if err != nil {
			return StartInfo{}, err
		}
		c.qrToken = token
	}

	c.st = stateActive
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.SessionStarted(string(method))
	}

	return StartInfo{
		SessionID: c.id,
		ClassID:   classID,
		Method:    method,
		StartTime: c.startTime,
		QRToken:   c.qrToken,
	}, nil
}

// Stop closes the window, stamps the end time, cancels any in-flight
// capture loop, and is a no-op when already stopped.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked(c.cfg.Clock().UTC())
}

func (c *Controller) stopLocked(now time.Time) {
	if c.st != stateActive {
		return
	}
	c.st = stateStopped
	c.endTime = now
	if c.cancelLoop != nil {
		c.cancelLoop()
		c.cancelLoop = nil
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.SessionStopped()
	}
}

// expireLocked auto-stops a session past its maximum duration; equivalent
// to an explicit Stop at the deadline.
func (c *Controller) expireLocked(now time.Time) {
	if c.st != stateActive || c.cfg.MaxDuration <= 0 {
		return
	}
	deadline := c.startTime.Add(c.cfg.MaxDuration)
	if !now.Before(deadline) {
		c.stopLocked(deadline)
	}
}

// Active reports whether the window currently accepts check-ins.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(c.cfg.Clock().UTC())
	return c.st == stateActive
}

// SessionID returns the identifier assigned at Start ("" while idle).
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// ClassID returns the class this session belongs to.
func (c *Controller) ClassID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classID
}

// QRToken returns the signed token minted at Start for QR sessions.
func (c *Controller) QRToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.qrToken
}

// CheckInQR processes a scanned QR payload for studentID. The token
// identifies the class and session, not the student: any authenticated
// viewer presenting it is credited.
func (c *Controller) CheckInQR(ctx context.Context, raw, studentID string) (Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.cfg.Clock().UTC()
	c.expireLocked(now)
	if c.st != stateActive {
		return Event{}, c.reject(ErrSessionNotActive)
	}
	if c.cfg.Signer == nil {
		return Event{}, c.reject(ErrInvalidQRCode)
	}

	claims, err := c.cfg.Signer.Parse(raw)
	if err != nil {
		return Event{}, c.reject(ErrInvalidQRCode)
	}
	if claims.ClassID != c.classID {
		return Event{}, c.reject(ErrInvalidQRCode)
	}
	if claims.SessionID != "" && claims.SessionID != c.id {
		return Event{}, c.reject(ErrInvalidQRCode)
	}

	return c.acceptLocked(ctx, studentID, MethodQR, 1.0, "", now)
}

// CheckInFace processes a recognition outcome from the face channel.
func (c *Controller) CheckInFace(ctx context.Context, out facematch.Outcome, photoURL string) (Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.cfg.Clock().UTC()
	c.expireLocked(now)
	if c.st != stateActive {
		return Event{}, c.reject(ErrSessionNotActive)
	}
	if !out.Recognized || out.UserID == "" {
		return Event{}, c.reject(ErrNotRecognized)
	}

	return c.acceptLocked(ctx, out.UserID, MethodFace, out.Confidence, photoURL, now)
}

// acceptLocked applies the shared tail of the acceptance policy: roster
// membership, dedup, then append + counters + sink hand-off.
func (c *Controller) acceptLocked(ctx context.Context, studentID string, method Method, confidence float64, photoURL string, now time.Time) (Event, error) {
	if len(c.roster) > 0 {
		if _, ok := c.roster[studentID]; !ok {
			return Event{}, c.reject(ErrNotOnRoster)
		}
	}
	if _, ok := c.present[studentID]; ok {
		return Event{}, c.reject(ErrDuplicateCheckIn)
	}

	evt := Event{
		ID:         uuid.NewString(),
		SessionID:  c.id,
		ClassID:    c.classID,
		StudentID:  studentID,
		Method:     method,
		Confidence: confidence,
		Timestamp:  now,
		PhotoURL:   photoURL,
	}
	c.events = append(c.events, evt)
	c.present[studentID] = struct{}{}
	c.presentOrder = append(c.presentOrder, studentID)

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.CheckinAccepted(string(method))
	}
	// Handed off under the lock so the sink observes events in acceptance
	// order. A sink failure never undoes the check-in.
	if c.cfg.Sink != nil {
		if err := c.cfg.Sink.Record(ctx, evt); err != nil {
			log.Printf("session %s: event sink failed: %v", c.id, err)
		}
	}
	return evt, nil
}

func (c *Controller) reject(err error) error {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.CheckinRejected(err.Error())
	}
	return err
}

// Monitor returns the live aggregate view, re-derived from current state.
func (c *Controller) Monitor() Monitor {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked(c.cfg.Clock().UTC())

	m := Monitor{
		SessionID:  c.id,
		ClassID:    c.classID,
		Method:     c.method,
		Active:     c.st == stateActive,
		StartTime:  c.startTime,
		Count:      len(c.presentOrder),
		RosterSize: len(c.roster),
		Present:    append([]string(nil), c.presentOrder...),
	}
	if !c.endTime.IsZero() {
		end := c.endTime
		m.EndTime = &end
	}
	if m.RosterSize > 0 {
		m.Rate = float64(m.Count) / float64(m.RosterSize)
	}
	if c.lastErr != nil {
		m.LastError = c.lastErr.Error()
	}
	return m
}

// Events returns accepted events in acceptance order.
func (c *Controller) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *Controller) setLastErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}
