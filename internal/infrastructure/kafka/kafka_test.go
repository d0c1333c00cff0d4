package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader serves queued messages, then blocks until ctx is done
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type samplePayload struct {
	OrderID string `json:"order_id"`
}

// ============================================
// Envelope Tests
// ============================================

func TestEnvelope_RoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	env, err := NewEnvelope("order.paid", "order-1", samplePayload{OrderID: "order-1"}, now)
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	decoded, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, decoded.EventID)
	assert.True(t, now.Equal(decoded.OccurredAt))

	p, err := UnwrapPayload[samplePayload](decoded)
	require.NoError(t, err)
	assert.Equal(t, "order-1", p.OrderID)
}

func TestDecodeEnvelope_Invalid(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeEnvelope([]byte(`{"event_id":"e1"}`))
	assert.Error(t, err)
}

// ============================================
// Producer Tests
// ============================================

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, nil)

	err := p.Publish(context.Background(), "order.created", "order-1", samplePayload{OrderID: "order-1"})

	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "order-1", string(w.msgs[0].Key))
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)

	env, err := DecodeEnvelope(w.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "order.created", env.EventType)
	assert.Equal(t, "order-1", env.Key)
}

func TestProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newProducer(w, nil)

	err := p.Publish(context.Background(), "order.created", "order-1", samplePayload{})

	assert.EqualError(t, err, "leader not available")
}

// ============================================
// Consumer Tests
// ============================================

func message(t *testing.T, offset int64, eventType string) kafka.Message {
	t.Helper()
	env, err := NewEnvelope(eventType, "k", samplePayload{OrderID: "o"}, time.Now())
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: raw}
}

func TestConsumer_HandlesAndCommits(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		message(t, 1, "order.paid"),
		{Offset: 2, Value: []byte("garbage")},
		message(t, 3, "order.created"),
	}}
	c := newConsumer(r, nil, 3, time.Millisecond)

	var (
		mu   sync.Mutex
		seen []string
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- c.Consume(ctx, func(_ context.Context, env Envelope) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, env.EventType)
			return nil
		})
	}()

	require.Eventually(t, func() bool { return len(r.Committed()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"order.paid", "order.created"}, seen)
	assert.Equal(t, []int64{1, 2, 3}, r.Committed())
}

func TestConsumer_RetriesHandler(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{message(t, 7, "order.paid")}}
	c := newConsumer(r, nil, 3, time.Millisecond)

	var (
		mu    sync.Mutex
		calls int
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = c.Consume(ctx, func(context.Context, Envelope) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls < 2 {
				return errors.New("smtp timeout")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return len(r.Committed()) == 1 }, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}
