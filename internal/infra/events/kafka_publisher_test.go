package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestKafkaPublisher_FlushesOnShutdown(t *testing.T) {
	w := &recordingWriter{}
	p := newKafkaPublisher(w, 8, zap.NewNop())
	p.now = func() time.Time { return time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC) }

	require.NoError(t, p.Publish(context.Background(), "order.checked_out", 42, map[string]string{"status": "PENDING"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.True(t, w.closed)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("42"), w.msgs[0].Key)

	var env Envelope
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &env))
	assert.Equal(t, "order.checked_out", env.EventType)
	assert.Equal(t, "42", env.CorrelationID)
	assert.Equal(t, 1, env.EventVersion)
	assert.NotEmpty(t, env.EventID)
	assert.JSONEq(t, `{"status":"PENDING"}`, string(env.Payload))
}

func TestKafkaPublisher_BufferFull(t *testing.T) {
	p := newKafkaPublisher(&recordingWriter{}, 1, zap.NewNop())

	require.NoError(t, p.Publish(context.Background(), "a", 1, nil))
	err := p.Publish(context.Background(), "b", 1, nil)
	assert.ErrorIs(t, err, ErrBufferFull)
}
