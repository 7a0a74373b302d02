package nats

import (
	"time"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

const (
	ackWait    = 30 * time.Second
	maxDeliver = 5
)

// Stream names.
const (
	StreamEvents = "DREAMSCAPERS_EVENTS"
)

// Subject constants.
const (
	SubjectEventsAll       = "dreamscapers.events.>"
	SubjectGenerationEvent = "dreamscapers.events.generation"
)

// Outcome values other than OutcomeOK are generation failure kinds.
const OutcomeOK = "ok"

// GenerationEvent is published once per generate call that carried an
// identity. The identity travels only as a digest.
type GenerationEvent struct {
	ID             string    `json:"id"`
	RequestID      string    `json:"request_id,omitempty"`
	IdentityDigest string    `json:"identity_digest"`
	Period         string    `json:"period,omitempty"`
	Outcome        string    `json:"outcome"`
	Used           int       `json:"used"`
	Limit          int       `json:"limit"`
	Model          string    `json:"model,omitempty"`
	DurationMillis int64     `json:"duration_ms"`
	OccurredAt     time.Time `json:"occurred_at"`
}
