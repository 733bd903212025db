// Package redisfanout spreads broadcasts across server replicas through a
// Redis pub/sub channel. Each replica relays what it receives to its own
// local fanout.
package redisfanout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"notecanvas/application/ports"
	"notecanvas/domain/events"
	pkgerrors "notecanvas/pkg/errors"
)

// PubSub is the subset of *redis.Client used here.
type PubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

var _ PubSub = (*redis.Client)(nil)

type envelope struct {
	Event   events.Name     `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Fanout decorates a local fanout. SendToAll goes through Redis, including
// back to this replica, so every replica delivers broadcasts in the order
// Redis accepted them. SendToCaller never leaves the process.
type Fanout struct {
	local   ports.Fanout
	client  PubSub
	channel string
	logger  *zap.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

var _ ports.Fanout = (*Fanout)(nil)

func New(local ports.Fanout, client PubSub, channel string, logger *zap.Logger) *Fanout {
	return &Fanout{
		local:   local,
		client:  client,
		channel: channel,
		logger:  logger.Named("redis_fanout").With(zap.String("channel", channel)),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once Run has a confirmed subscription. Broadcasts
// published before that are not relayed to this replica.
func (f *Fanout) Ready() <-chan struct{} { return f.ready }

func (f *Fanout) SendToCaller(ctx context.Context, caller ports.SessionID, event events.Name, payload interface{}) error {
	return f.local.SendToCaller(ctx, caller, event, payload)
}

func (f *Fanout) SendToAll(ctx context.Context, event events.Name, payload interface{}) error {
	msg, err := encode(event, payload)
	if err != nil {
		return err
	}
	if err := f.client.Publish(ctx, f.channel, msg).Err(); err != nil {
		return pkgerrors.NewExternalError("redis", err)
	}
	return nil
}

// Run relays channel messages to the local fanout until ctx is done.
func (f *Fanout) Run(ctx context.Context) error {
	sub := f.client.Subscribe(ctx, f.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", f.channel, err)
	}
	f.readyOnce.Do(func() { close(f.ready) })
	f.logger.Info("Subscribed to broadcast channel")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			f.relay(ctx, msg.Payload)
		}
	}
}

func (f *Fanout) relay(ctx context.Context, raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		f.logger.Warn("Discarding malformed broadcast", zap.Error(err))
		return
	}
	var payload interface{}
	if len(env.Payload) > 0 {
		payload = env.Payload
	}
	if err := f.local.SendToAll(ctx, env.Event, payload); err != nil {
		f.logger.Warn("Local relay failed", zap.String("event", env.Event.String()), zap.Error(err))
	}
}

func encode(event events.Name, payload interface{}) (string, error) {
	env := envelope{Event: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("encode %s payload: %w", event, err)
		}
		env.Payload = raw
	}
	out, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
