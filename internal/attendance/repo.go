// Package attendance persists sessions, events and rosters in Postgres and
// produces attendance reports from the event stream.
package attendance

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"attendify/internal/session"
)

//go:embed schema.sql
var schemaSQL string

// Student is a roster entry.
type Student struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
}

// Class is a taught class with a fixed roster.
type Class struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Subject   string `json:"subject"`
	TeacherID string `json:"teacher_id"`
}

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the tables when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schemaSQL)
	return err
}

// UpsertStudent creates or updates a student record.
func (r *Repository) UpsertStudent(ctx context.Context, s Student) error {
	if s.ID == "" {
		return errors.New("student id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name  = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE students.name END,
			email = COALESCE(EXCLUDED.email, students.email)
	`, s.ID, s.Name, s.Email)
	return err
}

// GetClass returns a class by id, or nil when absent.
func (r *Repository) GetClass(ctx context.Context, classID string) (*Class, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, subject, teacher_id FROM classes WHERE id = $1
	`, classID)
	var cls Class
	if err := row.Scan(&cls.ID, &cls.Name, &cls.Subject, &cls.TeacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cls, nil
}

// ClassRoster returns the students enrolled in a class.
func (r *Repository) ClassRoster(ctx context.Context, classID string) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.email
		FROM class_students cs
		JOIN students s ON s.id = cs.student_id
		WHERE cs.class_id = $1
		ORDER BY s.id
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roster []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.Name, &s.Email); err != nil {
			return nil, err
		}
		roster = append(roster, s)
	}
	return roster, rows.Err()
}

// CreateSession records an opened session.
func (r *Repository) CreateSession(ctx context.Context, info session.StartInfo, teacherID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_sessions (id, class_id, teacher_id, method, started_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, info.SessionID, info.ClassID, teacherID, string(info.Method), info.StartTime)
	return err
}

// CloseSession stamps the end time once; later calls keep the first stamp.
func (r *Repository) CloseSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions
		SET ended_at = COALESCE(ended_at, $2)
		WHERE id = $1
	`, sessionID, endedAt)
	return err
}

// InsertEvent writes one accepted check-in. The unique (session, student)
// constraint backstops the controller's dedup: a replayed event is a no-op.
func (r *Repository) InsertEvent(ctx context.Context, evt session.Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_events (id, session_id, class_id, student_id, method, confidence, occurred_at, photo_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, student_id) DO NOTHING
	`, evt.ID, evt.SessionID, evt.ClassID, evt.StudentID, string(evt.Method), evt.Confidence, evt.Timestamp, evt.PhotoURL)
	return err
}

// ListSessionEvents returns a session's events in acceptance order.
func (r *Repository) ListSessionEvents(ctx context.Context, sessionID string) ([]session.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, class_id, student_id, method, confidence, occurred_at, photo_url
		FROM attendance_events
		WHERE session_id = $1
		ORDER BY occurred_at, created_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// ListClassEvents returns a class's events, newest first.
func (r *Repository) ListClassEvents(ctx context.Context, classID string, limit, offset int) ([]session.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, class_id, student_id, method, confidence, occurred_at, photo_url
		FROM attendance_events
		WHERE class_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2 OFFSET $3
	`, classID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]session.Event, error) {
	defer rows.Close()
	var res []session.Event
	for rows.Next() {
		var evt session.Event
		var method string
		if err := rows.Scan(&evt.ID, &evt.SessionID, &evt.ClassID, &evt.StudentID, &method, &evt.Confidence, &evt.Timestamp, &evt.PhotoURL); err != nil {
			return nil, err
		}
		evt.Method = session.Method(method)
		res = append(res, evt)
	}
	return res, rows.Err()
}

// StudentNames resolves student IDs to display names for reporting.
func (r *Repository) StudentNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name FROM students WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}
