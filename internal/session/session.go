// Package session manages the lifecycle of a class meeting's attendance
// window and converts raw check-in attempts from the QR and face channels
// into deduplicated attendance events.
package session

import (
	"context"
	"time"
)

// Method is the check-in channel for a session.
type Method string

const (
	MethodQR   Method = "qr"
	MethodFace Method = "face"
)

// Valid reports whether m is a known check-in method.
func (m Method) Valid() bool { return m == MethodQR || m == MethodFace }

// Event is one accepted check-in. Append-only; the session's present-set
// is the deduplication index.
type Event struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	ClassID    string    `json:"class_id"`
	StudentID  string    `json:"student_id"`
	Method     Method    `json:"method"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
	PhotoURL   string    `json:"photo_url,omitempty"`
}

// Monitor is a pollable snapshot of one session for the teacher-facing
// live view. Count is monotonically non-decreasing within a session.
type Monitor struct {
	SessionID  string     `json:"session_id"`
	ClassID    string     `json:"class_id"`
	Method     Method     `json:"method"`
	Active     bool       `json:"active"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Count      int        `json:"attendance_count"`
	RosterSize int        `json:"roster_size"`
	Rate       float64    `json:"attendance_rate"`
	Present    []string   `json:"present"`
	LastError  string     `json:"last_error,omitempty"`
}

// StartInfo is returned when a session opens. QRToken is set only for QR
// sessions.
type StartInfo struct {
	SessionID string    `json:"session_id"`
	ClassID   string    `json:"class_id"`
	Method    Method    `json:"method"`
	StartTime time.Time `json:"start_time"`
	QRToken   string    `json:"qr_token,omitempty"`
}

// EventSink receives accepted events for storage and reporting. The
// controller's only obligation is to hand over well-formed events in
// acceptance order; sink failures never undo a check-in.
type EventSink interface {
	Record(ctx context.Context, evt Event) error
}

// Recorder counts check-in decisions and session lifecycle transitions.
type Recorder interface {
	CheckinAccepted(method string)
	CheckinRejected(reason string)
	SessionStarted(method string)
	SessionStopped()
}
