package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Entry matches the generations table schema.
type Entry struct {
	ID             uuid.UUID `json:"id"`
	EventID        string    `json:"-"`
	RequestID      string    `json:"requestId,omitempty"`
	IdentityDigest string    `json:"-"`
	Period         string    `json:"weekKey"`
	Outcome        string    `json:"outcome"`
	Used           int       `json:"used"`
	Limit          int       `json:"limit"`
	Model          string    `json:"model,omitempty"`
	DurationMillis int64     `json:"durationMs"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// ListParams holds pagination and filtering parameters for ledger queries.
type ListParams struct {
	Period   string
	Outcome  string
	Page     int
	PageSize int
}

// DefaultListParams returns sensible defaults.
func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: 20,
	}
}
