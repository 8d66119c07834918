package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(clk *fakeClock) *Manager {
	return NewManager(Config{
		Signer:      testSigner(),
		Clock:       clk.Now,
		MaxDuration: time.Hour,
	})
}

func TestManagerOneActiveSessionPerClass(t *testing.T) {
	m := newTestManager(newFakeClock())

	_, info, err := m.Start("CS101", MethodQR, "teacher-1", nil)
	require.NoError(t, err)

	_, _, err = m.Start("CS101", MethodQR, "teacher-2", nil)
	assert.ErrorIs(t, err, ErrClassBusy)

	// a different class is unaffected
	_, _, err = m.Start("MATH200", MethodQR, "teacher-2", nil)
	assert.NoError(t, err)

	// stopping frees the class
	require.NoError(t, m.Stop(info.SessionID))
	_, info2, err := m.Start("CS101", MethodFace, "teacher-1", nil)
	require.NoError(t, err)
	assert.NotEqual(t, info.SessionID, info2.SessionID)
}

func TestManagerGet(t *testing.T) {
	m := newTestManager(newFakeClock())

	_, err := m.Get("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, info, err := m.Start("CS101", MethodQR, "teacher-1", nil)
	require.NoError(t, err)

	ctrl, err := m.Get(info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "CS101", ctrl.ClassID())
}

func TestManagerStopUnknownSession(t *testing.T) {
	m := newTestManager(newFakeClock())
	assert.ErrorIs(t, m.Stop("nope"), ErrSessionNotFound)
}

func TestManagerStoppedSessionStaysReadable(t *testing.T) {
	m := newTestManager(newFakeClock())
	ctrl, info, err := m.Start("CS101", MethodQR, "teacher-1", []string{"s1"})
	require.NoError(t, err)

	_, err = ctrl.CheckInQR(context.Background(), info.QRToken, "s1")
	require.NoError(t, err)
	require.NoError(t, m.Stop(info.SessionID))

	got, err := m.Get(info.SessionID)
	require.NoError(t, err)
	mon := got.Monitor()
	assert.False(t, mon.Active)
	assert.Equal(t, 1, mon.Count, "attendance survives the stop for reporting")
}

func TestManagerExpiredSessionFreesClass(t *testing.T) {
	clk := newFakeClock()
	m := newTestManager(clk)

	_, _, err := m.Start("CS101", MethodQR, "teacher-1", nil)
	require.NoError(t, err)

	// still within the window
	_, _, err = m.Start("CS101", MethodQR, "teacher-1", nil)
	require.ErrorIs(t, err, ErrClassBusy)

	clk.Advance(2 * time.Hour)
	_, _, err = m.Start("CS101", MethodQR, "teacher-1", nil)
	assert.NoError(t, err, "expired session must not block its class")
}

func TestManagerSweep(t *testing.T) {
	clk := newFakeClock()
	m := newTestManager(clk)

	_, info, err := m.Start("CS101", MethodQR, "teacher-1", nil)
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	m.Sweep()

	// swept from the activity map but the controller survives
	_, err = m.Get(info.SessionID)
	assert.NoError(t, err)

	_, _, err = m.Start("CS101", MethodQR, "teacher-1", nil)
	assert.NoError(t, err)
}
