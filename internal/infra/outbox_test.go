package infra

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memOutbox struct {
	rows   []domain.OutboxRow
	marked []int64
}

func (m *memOutbox) FetchUnpublished(_ context.Context, limit int) ([]domain.OutboxRow, error) {
	if len(m.rows) > limit {
		return m.rows[:limit], nil
	}
	return m.rows, nil
}

func (m *memOutbox) MarkPublished(_ context.Context, ids []int64) error {
	m.marked = append(m.marked, ids...)
	return nil
}

type published struct {
	topic string
	key   string
	value []byte
}

type recordingPublisher struct {
	sent   []published
	failAt int
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, key, value []byte) error {
	if p.failAt > 0 && len(p.sent)+1 == p.failAt {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, published{topic: topic, key: string(key), value: value})
	return nil
}

func outboxRow(seq int64, evt domain.EventType) domain.OutboxRow {
	return domain.OutboxRow{
		SeqID: seq,
		OutboxDraft: domain.OutboxDraft{
			EventID:       uuid.New(),
			AggregateType: domain.AggregateCheckout,
			AggregateID:   uuid.NewString(),
			EventType:     evt,
			PartitionKey:  "campaign-1",
			Headers:       json.RawMessage(`{}`),
			Payload:       json.RawMessage(`{"ref":"gw_1"}`),
			OccurredAt:    time.Now(),
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOutboxPoller_PublishesAndDeletes(t *testing.T) {
	store := &memOutbox{rows: []domain.OutboxRow{
		outboxRow(1, domain.EventCheckoutCreated),
		outboxRow(2, domain.EventCheckoutConfirmed),
	}}
	pub := &recordingPublisher{}
	p := NewOutboxPoller(store, pub, time.Second, 10, discardLogger())

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, store.marked)

	require.Len(t, pub.sent, 2)
	assert.Equal(t, "giveaway.checkout.created", pub.sent[0].topic)
	assert.Equal(t, "campaign-1", pub.sent[0].key)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(pub.sent[1].value, &msg))
	assert.Equal(t, "giveaway.checkout.confirmed", msg["event_type"])
	assert.Equal(t, map[string]interface{}{"ref": "gw_1"}, msg["payload"])
}

func TestOutboxPoller_StopsAtFirstFailure(t *testing.T) {
	store := &memOutbox{rows: []domain.OutboxRow{
		outboxRow(1, domain.EventCheckoutCreated),
		outboxRow(2, domain.EventCheckoutConfirmed),
		outboxRow(3, domain.EventInstantWinAwarded),
	}}
	pub := &recordingPublisher{failAt: 2}
	p := NewOutboxPoller(store, pub, time.Second, 10, discardLogger())

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{1}, store.marked)
}

func TestOutboxPoller_Empty(t *testing.T) {
	store := &memOutbox{}
	p := NewOutboxPoller(store, &recordingPublisher{}, 0, 0, discardLogger())

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.marked)
}

func TestKafkaProducer_DisabledIsNoop(t *testing.T) {
	p := NewKafkaProducer("", false, discardLogger())
	assert.NoError(t, p.Publish(context.Background(), "t", nil, []byte("x")))
	assert.NoError(t, p.Close())
}
