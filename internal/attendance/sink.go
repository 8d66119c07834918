package attendance

import (
	"context"
	"encoding/json"

	"attendify/internal/queue"
	"attendify/internal/session"
)

// QueueSink hands accepted events to the persistence worker via the queue.
type QueueSink struct {
	q queue.Queue
}

// NewQueueSink wraps a queue as a session event sink.
func NewQueueSink(q queue.Queue) *QueueSink {
	return &QueueSink{q: q}
}

// Record publishes the event for asynchronous persistence.
func (s *QueueSink) Record(ctx context.Context, evt session.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.q.Publish(ctx, queue.Message{Type: queue.MsgAttendanceEvent, Body: body})
}

// DecodeEvent parses a queued attendance event message.
func DecodeEvent(msg queue.Message) (session.Event, error) {
	var evt session.Event
	err := json.Unmarshal(msg.Body, &evt)
	return evt, err
}
