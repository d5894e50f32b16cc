package audit

import "context"

// EventType names the kind of lifecycle event recorded.
type EventType string

const (
	EventCreateSession    EventType = "CREATE_SESSION"
	EventAttach           EventType = "ATTACH"
	EventResize           EventType = "RESIZE"
	EventInterrupt        EventType = "INTERRUPT"
	EventTerminate        EventType = "TERMINATE"
	EventExpirySweepClose EventType = "EXPIRY_SWEEP_CLOSE"
)

// Append records one lifecycle event. Called only after the corresponding
// TerminalService operation has already succeeded.
func (s *Store) Append(ctx context.Context, sessionID string, eventType EventType, detail string, occurredAtMs int64) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO lifecycle_events (session_id, event_type, detail, occurred_at) VALUES (?, ?, ?, ?)`,
		sessionID, string(eventType), detail, occurredAtMs,
	)
	return err
}

// Event is a row read back from the lifecycle_events table.
type Event struct {
	ID         int64
	SessionID  string
	Type       EventType
	Detail     string
	OccurredAt int64
}

// ListBySession returns every recorded event for sessionID, oldest first.
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, session_id, event_type, detail, occurred_at FROM lifecycle_events WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var eventType string
		if err := rows.Scan(&e.ID, &e.SessionID, &eventType, &e.Detail, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Type = EventType(eventType)
		events = append(events, e)
	}
	return events, rows.Err()
}
