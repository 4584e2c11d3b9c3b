package event

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type published struct {
	key string
	msg amqp.Publishing
}

type fakeChannel struct {
	sent []published
	err  error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{key: key, msg: msg})
	return nil
}

func TestBusEmit(t *testing.T) {
	ch := &fakeChannel{}
	var out bytes.Buffer
	bus := NewBus(ch, "", &out, zaptest.NewLogger(t))

	err := bus.Emit(context.Background(), ConnectionRequested, map[string]string{"from_user_id": "a"})
	require.NoError(t, err)

	require.Len(t, ch.sent, 1)
	assert.Equal(t, DefaultQueue, ch.sent[0].key)
	assert.Equal(t, ConnectionRequested, ch.sent[0].msg.Headers[ActionHeader])
	assert.JSONEq(t, `{"from_user_id":"a"}`, string(ch.sent[0].msg.Body))

	var entry LogData
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &entry))
	assert.Equal(t, ConnectionRequested, entry.Action)
	assert.Equal(t, DefaultQueue, entry.Service)
}

func TestBusEmitError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	var out bytes.Buffer
	bus := NewBus(ch, "connect", &out, nil)

	err := bus.Emit(context.Background(), ConnectionAccepted, struct{}{})
	assert.ErrorIs(t, err, ch.err)
	assert.Zero(t, out.Len())
}

func TestBusReplay(t *testing.T) {
	ch := &fakeChannel{}
	var out bytes.Buffer
	bus := NewBus(ch, "connect", &out, nil)

	log := strings.Join([]string{
		`{"time":1,"service":"connect","action":"connection.requested","data":"{\"id\":\"r1\"}"}`,
		`{"time":2,"service":"notifications","action":"connection.accepted","data":"{\"id\":\"r1\"}"}`,
	}, "\n")

	n, err := bus.Replay(context.Background(), strings.NewReader(log))
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, "notifications", ch.sent[1].key)
	assert.Equal(t, `{"id":"r1"}`, string(ch.sent[0].msg.Body))
	assert.Zero(t, out.Len(), "replayed events are not logged twice")

	_, err = bus.Replay(context.Background(), strings.NewReader("not json"))
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var e Emitter = Nop{}
	assert.NoError(t, e.Emit(context.Background(), ConnectionAccepted, nil))
}
