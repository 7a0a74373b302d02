package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manny1440/DreamScapers/internal/generation"
	"github.com/Manny1440/DreamScapers/internal/quota"
)

type published struct {
	subject string
	payload []byte
}

type fakeJetStream struct {
	msgs []published
	err  error
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, payload []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, payload: payload})
	return &jetstream.PubAck{Stream: StreamEvents, Sequence: uint64(len(f.msgs))}, nil
}

func outcome() generation.Outcome {
	return generation.Outcome{
		RequestID: "req-1",
		Identity:  "a@x.com",
		Period:    "2024-W05",
		Used:      3,
		Limit:     50,
		Model:     "gemini-2.5-flash-image",
		Duration:  1500 * time.Millisecond,
		At:        time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC),
	}
}

func TestEventFromOutcome(t *testing.T) {
	ev := EventFromOutcome(outcome())
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "req-1", ev.RequestID)
	assert.Equal(t, quota.Digest("a@x.com"), ev.IdentityDigest)
	assert.Equal(t, OutcomeOK, ev.Outcome)
	assert.Equal(t, int64(1500), ev.DurationMillis)

	failed := outcome()
	failed.Kind = generation.KindNoImageProduced
	assert.Equal(t, "no_image_produced", EventFromOutcome(failed).Outcome)
}

func TestRecord_PublishesGenerationEvent(t *testing.T) {
	js := &fakeJetStream{}
	NewPublisher(js).Record(context.Background(), outcome())

	require.Len(t, js.msgs, 1)
	assert.Equal(t, SubjectGenerationEvent, js.msgs[0].subject)

	var ev GenerationEvent
	require.NoError(t, json.Unmarshal(js.msgs[0].payload, &ev))
	assert.Equal(t, "2024-W05", ev.Period)
	assert.Equal(t, 3, ev.Used)
	assert.NotContains(t, string(js.msgs[0].payload), "a@x.com")
}

func TestRecord_SwallowsPublishErrors(t *testing.T) {
	js := &fakeJetStream{err: errors.New("no responders")}
	assert.NotPanics(t, func() {
		NewPublisher(js).Record(context.Background(), outcome())
	})
	assert.Empty(t, js.msgs)
}

func TestPublishGeneration_ReturnsErrors(t *testing.T) {
	js := &fakeJetStream{err: errors.New("no responders")}
	err := NewPublisher(js).PublishGeneration(context.Background(), GenerationEvent{ID: "x"})
	assert.ErrorContains(t, err, SubjectGenerationEvent)
}
