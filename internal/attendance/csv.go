package attendance

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"attendify/internal/session"
)

// reportHeader is the contractual column order of attendance exports.
var reportHeader = []string{"Student ID", "Student Name", "Method", "Confidence", "Timestamp", "Photo"}

// WriteReport writes a session's events as CSV. names maps student IDs to
// display names; missing entries leave the name column empty.
func WriteReport(w io.Writer, events []session.Event, names map[string]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return err
	}
	for _, evt := range events {
		rec := []string{
			evt.StudentID,
			names[evt.StudentID],
			string(evt.Method),
			fmt.Sprintf("%.2f", evt.Confidence),
			evt.Timestamp.Format(time.RFC3339),
			evt.PhotoURL,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
