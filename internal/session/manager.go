package session

import (
	"context"
	"sync"
	"time"
)

// Manager owns the live controllers behind the HTTP surface: one
// controller per open session, at most one active session per class.
// Stopped sessions stay readable for their monitor until swept.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Controller // by session ID
	byClass  map[string]string      // classID -> active session ID
}

// NewManager creates a manager whose controllers share cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Controller),
		byClass:  make(map[string]string),
	}
}

// Start opens a new session for a class. Fails with ErrClassBusy while the
// class already has an active one.
func (m *Manager) Start(classID string, method Method, teacherID string, roster []string) (*Controller, StartInfo, error) {
	if classID == "" {
		return nil, StartInfo{}, ErrNoClassSelected
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if sid, ok := m.byClass[classID]; ok {
		if prev := m.sessions[sid]; prev != nil && prev.Active() {
			return nil, StartInfo{}, ErrClassBusy
		}
		delete(m.byClass, classID)
	}

	ctrl := NewController(m.cfg)
	info, err := ctrl.Start(classID, method, teacherID, roster)
	if err != nil {
		return nil, StartInfo{}, err
	}
	m.sessions[info.SessionID] = ctrl
	m.byClass[classID] = info.SessionID
	return ctrl, info, nil
}

// Get returns the controller for a session ID.
func (m *Manager) Get(sessionID string) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctrl, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ctrl, nil
}

// Stop closes a session. Idempotent; the session stays readable.
func (m *Manager) Stop(sessionID string) error {
	ctrl, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	ctrl.Stop()
	return nil
}

// Sweep auto-stops expired sessions and drops stopped ones from the
// per-class activity map so their classes can start fresh sessions.
func (m *Manager) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for classID, sid := range m.byClass {
		ctrl := m.sessions[sid]
		if ctrl == nil || !ctrl.Active() { // Active() triggers expiry
			delete(m.byClass, classID)
		}
	}
}

// RunSweeper periodically sweeps until ctx is cancelled.
func (m *Manager) RunSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
