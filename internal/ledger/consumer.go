package ledger

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/Manny1440/DreamScapers/internal/nats"
)

const consumerName = "ledger-persister"

// Inserter persists ledger entries.
type Inserter interface {
	Insert(ctx context.Context, e *Entry) error
}

// Consumer listens on the generation event subject and persists entries.
type Consumer struct {
	repo        Inserter
	consumerMgr *inats.ConsumerManager
}

// NewConsumer creates a new ledger Consumer.
func NewConsumer(repo Inserter, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		repo:        repo,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, consumerName, inats.SubjectGenerationEvent)
	if err != nil {
		return err
	}

	slog.Info("ledger consumer started", "consumer", consumerName)

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("ledger consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) handleEvent(ctx context.Context, msg jetstream.Msg) {
	var event inats.GenerationEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil || event.ID == "" {
		// Redelivery cannot fix a malformed payload.
		slog.Error("ledger consumer: dropping malformed event", "error", err)
		_ = msg.Term()
		return
	}

	entry := EntryFromEvent(event)
	if err := c.repo.Insert(ctx, entry); err != nil {
		slog.Error("ledger consumer: persisting generation", "error", err, "event_id", event.ID)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()

	slog.Debug("ledger consumer: persisted event",
		"event_id", event.ID,
		"outcome", event.Outcome,
		"period", event.Period,
	)
}

// EntryFromEvent converts a wire event to a ledger row.
func EntryFromEvent(event inats.GenerationEvent) *Entry {
	return &Entry{
		EventID:        event.ID,
		RequestID:      event.RequestID,
		IdentityDigest: event.IdentityDigest,
		Period:         event.Period,
		Outcome:        event.Outcome,
		Used:           event.Used,
		Limit:          event.Limit,
		Model:          event.Model,
		DurationMillis: event.DurationMillis,
		OccurredAt:     event.OccurredAt,
	}
}
