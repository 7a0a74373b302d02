package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Manny1440/DreamScapers/internal/generation"
	"github.com/Manny1440/DreamScapers/internal/metrics"
	"github.com/Manny1440/DreamScapers/internal/quota"
)

const publishTimeout = 2 * time.Second

// JetStreamPublisher is the part of jetstream.JetStream the Publisher uses.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher provides typed methods for publishing events to NATS JetStream.
type Publisher struct {
	js JetStreamPublisher
}

// NewPublisher creates a new Publisher.
func NewPublisher(js JetStreamPublisher) *Publisher {
	return &Publisher{js: js}
}

// PublishGeneration publishes a generation event. The event id doubles as
// the JetStream message id so retried publishes are deduplicated.
func (p *Publisher) PublishGeneration(ctx context.Context, event GenerationEvent) error {
	return p.publish(ctx, SubjectGenerationEvent, event.ID, event)
}

// Record implements generation.Recorder. Failures are logged and counted,
// never returned to the caller of the gateway.
func (p *Publisher) Record(ctx context.Context, o generation.Outcome) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.PublishGeneration(ctx, EventFromOutcome(o)); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues("error").Inc()
		slog.Warn("publishing generation event", "request_id", o.RequestID, "error", err)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues("ok").Inc()
}

// EventFromOutcome converts a gateway outcome to its wire event.
func EventFromOutcome(o generation.Outcome) GenerationEvent {
	outcome := OutcomeOK
	if !o.Succeeded() {
		outcome = string(o.Kind)
	}
	return GenerationEvent{
		ID:             uuid.NewString(),
		RequestID:      o.RequestID,
		IdentityDigest: quota.Digest(o.Identity),
		Period:         o.Period,
		Outcome:        outcome,
		Used:           o.Used,
		Limit:          o.Limit,
		Model:          o.Model,
		DurationMillis: o.Duration.Milliseconds(),
		OccurredAt:     o.At.UTC(),
	}
}

func (p *Publisher) publish(ctx context.Context, subject, msgID string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.js.Publish(ctx, subject, payload, jetstream.WithMsgID(msgID))
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
