package redisfanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notecanvas/application/ports"
	"notecanvas/domain/events"
	pkgerrors "notecanvas/pkg/errors"
)

type published struct {
	channel string
	message string
}

type fakePubSub struct {
	published []published
	err       error
}

func (f *fakePubSub) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.published = append(f.published, published{channel: channel, message: message.(string)})
	return redis.NewIntResult(1, f.err)
}

func (f *fakePubSub) Subscribe(context.Context, ...string) *redis.PubSub { return nil }

type delivery struct {
	caller  ports.SessionID
	event   events.Name
	payload interface{}
}

type localFanout struct {
	toAll    []delivery
	toCaller []delivery
}

func (l *localFanout) SendToCaller(_ context.Context, caller ports.SessionID, event events.Name, payload interface{}) error {
	l.toCaller = append(l.toCaller, delivery{caller, event, payload})
	return nil
}

func (l *localFanout) SendToAll(_ context.Context, event events.Name, payload interface{}) error {
	l.toAll = append(l.toAll, delivery{"", event, payload})
	return nil
}

func TestFanout_SendToAllPublishesAndRelayDeliversLocally(t *testing.T) {
	// Arrange
	client := &fakePubSub{}
	local := &localFanout{}
	f := New(local, client, "canvas", zap.NewNop())

	// Act
	require.NoError(t, f.SendToAll(context.Background(), events.MoveNote, events.MovedPayload{ID: 4, X: 1, Y: 2}))
	require.Len(t, client.published, 1)
	f.relay(context.Background(), client.published[0].message)

	// Assert
	assert.Equal(t, "canvas", client.published[0].channel)
	assert.Empty(t, local.toCaller)
	require.Len(t, local.toAll, 1)
	assert.Equal(t, events.MoveNote, local.toAll[0].event)

	var moved events.MovedPayload
	require.NoError(t, json.Unmarshal(local.toAll[0].payload.(json.RawMessage), &moved))
	assert.Equal(t, events.MovedPayload{ID: 4, X: 1, Y: 2}, moved)
}

func TestFanout_SendToCallerStaysLocal(t *testing.T) {
	client := &fakePubSub{}
	local := &localFanout{}
	f := New(local, client, "canvas", zap.NewNop())

	require.NoError(t, f.SendToCaller(context.Background(), "s1", events.ReceiveNote, map[string]int{"id": 1}))

	assert.Empty(t, client.published)
	require.Len(t, local.toCaller, 1)
	assert.Equal(t, ports.SessionID("s1"), local.toCaller[0].caller)
}

func TestFanout_PublishFailureIsReported(t *testing.T) {
	f := New(&localFanout{}, &fakePubSub{err: errors.New("connection refused")}, "canvas", zap.NewNop())

	err := f.SendToAll(context.Background(), events.DeleteNote, events.DeletedPayload{ID: 1})

	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeExternal))
}

func TestFanout_RelayDropsMalformedMessages(t *testing.T) {
	local := &localFanout{}
	f := New(local, &fakePubSub{}, "canvas", zap.NewNop())

	f.relay(context.Background(), "{not json")

	assert.Empty(t, local.toAll)
}

// confirmingServer accepts one connection and acknowledges the first
// SUBSCRIBE it reads, the way a Redis server would.
func confirmingServer(t *testing.T, channel string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 512)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		fmt.Fprintf(conn, "*3\r\n$9\r\nsubscribe\r\n$%d\r\n%s\r\n:1\r\n", len(channel), channel)
		// Hold the connection until the client goes away.
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()
	return ln.Addr().String()
}

func TestFanout_ReadyAfterSubscriptionConfirmed(t *testing.T) {
	// Arrange
	client := redis.NewClient(&redis.Options{Addr: confirmingServer(t, "canvas")})
	t.Cleanup(func() { client.Close() })
	f := New(&localFanout{}, client, "canvas", zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	// Act
	go func() { done <- f.Run(ctx) }()

	// Assert
	select {
	case <-f.Ready():
	case err := <-done:
		t.Fatalf("relay stopped before subscribing: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay never reported ready")
	}
	cancel()
	assert.NoError(t, <-done)
}

func TestFanout_NotReadyWhenSubscribeFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	f := New(&localFanout{}, client, "canvas", zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = f.Run(ctx)

	assert.Error(t, err)
	select {
	case <-f.Ready():
		t.Fatal("relay reported ready without a subscription")
	default:
	}
}
