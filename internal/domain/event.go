package domain

import "time"

// WebhookEvent is one row of the event ledger. ID is the identifier asserted
// by the external service, which makes duplicate deliveries collide on the
// primary key instead of producing a second row.
type WebhookEvent struct {
	ID          string     `db:"id"`
	Type        string     `db:"type"`
	Payload     []byte     `db:"payload"`
	ReceivedAt  time.Time  `db:"received_at"`
	ProcessedAt *time.Time `db:"processed_at"`
	Error       *string    `db:"error"`
	RetryCount  int        `db:"retry_count"`
}

// Processed reports whether the event reached a processed terminal state.
func (e *WebhookEvent) Processed() bool {
	return e.ProcessedAt != nil
}

// HandleResult is what Handle reports back to the HTTP front end. Status is
// a hint: signature and envelope failures are the only cases that should
// surface as non-2xx to the sender.
type HandleResult struct {
	EventID   string
	Duplicate bool
	Processed bool
	Status    int
}
