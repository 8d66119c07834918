package session

import "errors"

var (
	// ErrNoClassSelected rejects starting a session without a class.
	ErrNoClassSelected = errors.New("no class selected")

	// ErrAlreadyStarted rejects a second Start on the same controller.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrSessionNotActive rejects check-ins outside an active window.
	ErrSessionNotActive = errors.New("session not active")

	// ErrInvalidQRCode rejects scans whose payload does not verify or does
	// not belong to the session in progress.
	ErrInvalidQRCode = errors.New("invalid QR code for this class")

	// ErrNotRecognized rejects face check-ins below the match threshold.
	ErrNotRecognized = errors.New("face not recognized")

	// ErrDuplicateCheckIn rejects a second check-in for the same student.
	// Non-fatal: the student is already marked present.
	ErrDuplicateCheckIn = errors.New("attendance already marked")

	// ErrNotOnRoster flags a recognized user who is not enrolled in the
	// class. Strangers are rejected, never silently admitted.
	ErrNotOnRoster = errors.New("student not on class roster")

	// ErrClassBusy rejects starting a second active session for one class.
	ErrClassBusy = errors.New("class already has an active session")

	// ErrSessionNotFound means the manager has no such session.
	ErrSessionNotFound = errors.New("session not found")
)
