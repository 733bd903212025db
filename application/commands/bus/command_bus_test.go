package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingCommand struct {
	invalid bool
}

func (c pingCommand) Validate() error {
	if c.invalid {
		return errors.New("invalid ping")
	}
	return nil
}

type applied struct{}

func (applied) Status() string { return "applied" }

type recorded struct {
	intent string
	status string
}

type fakeRecorder struct {
	mu   sync.Mutex
	seen []recorded
}

func (r *fakeRecorder) RecordIntent(intent, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, recorded{intent, status})
}

type fakeLogger struct {
	errors int
	debugs int
}

func (l *fakeLogger) Debug(string, ...interface{}) { l.debugs++ }
func (l *fakeLogger) Error(string, ...interface{}) { l.errors++ }

func TestCommandBus_SendDispatchesToRegisteredHandler(t *testing.T) {
	// Arrange
	b := NewCommandBus()
	require.NoError(t, b.Register(pingCommand{}, CommandHandlerFunc(func(ctx context.Context, cmd Command) (interface{}, error) {
		return "pong", nil
	})))

	// Act
	result, err := b.Send(context.Background(), pingCommand{})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "pong", result)
}

func TestCommandBus_RejectsDuplicateRegistration(t *testing.T) {
	b := NewCommandBus()
	h := CommandHandlerFunc(func(context.Context, Command) (interface{}, error) { return nil, nil })

	require.NoError(t, b.Register(pingCommand{}, h))
	assert.Error(t, b.Register(pingCommand{}, h))
}

func TestCommandBus_ValidationRunsBeforeHandler(t *testing.T) {
	called := false
	b := NewCommandBus()
	require.NoError(t, b.Register(pingCommand{}, CommandHandlerFunc(func(context.Context, Command) (interface{}, error) {
		called = true
		return nil, nil
	})))

	_, err := b.Send(context.Background(), pingCommand{invalid: true})

	assert.ErrorContains(t, err, "invalid ping")
	assert.False(t, called)
}

func TestCommandBus_UnknownCommand(t *testing.T) {
	_, err := NewCommandBus().Send(context.Background(), pingCommand{})

	assert.ErrorIs(t, err, ErrHandlerNotFound)
}

func TestCommandBus_MiddlewareObservesResults(t *testing.T) {
	// Arrange
	rec := &fakeRecorder{}
	log := &fakeLogger{}
	b := NewCommandBus(LoggingMiddleware(log), MetricsMiddleware(rec))
	fail := false
	require.NoError(t, b.Register(pingCommand{}, CommandHandlerFunc(func(context.Context, Command) (interface{}, error) {
		if fail {
			return nil, fmt.Errorf("store down")
		}
		return applied{}, nil
	})))

	// Act
	_, err := b.Send(context.Background(), pingCommand{})
	require.NoError(t, err)
	fail = true
	_, err = b.Send(context.Background(), &pingCommand{})

	// Assert
	assert.Error(t, err, "pointer commands are not registered")
	assert.Equal(t, []recorded{{"pingCommand", "applied"}}, rec.seen)
	assert.Equal(t, 1, log.debugs)

	_, err = b.Send(context.Background(), pingCommand{})
	assert.EqualError(t, err, "store down")
	assert.Equal(t, recorded{"pingCommand", "failed"}, rec.seen[1])
	assert.Equal(t, 1, log.errors)
}

func TestPipeline_OrderIsOutermostFirst(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next CommandHandler) CommandHandler {
			return CommandHandlerFunc(func(ctx context.Context, cmd Command) (interface{}, error) {
				order = append(order, name)
				return next.Handle(ctx, cmd)
			})
		}
	}
	h := NewPipeline(mw("first"), mw("second")).Execute(CommandHandlerFunc(func(context.Context, Command) (interface{}, error) {
		order = append(order, "handler")
		return nil, nil
	}))

	_, _ = h.Handle(context.Background(), pingCommand{})

	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestResultStatus(t *testing.T) {
	assert.Equal(t, "failed", ResultStatus(applied{}, errors.New("x")))
	assert.Equal(t, "applied", ResultStatus(applied{}, nil))
	assert.Equal(t, "ok", ResultStatus("plain", nil))
	assert.Equal(t, "pingCommand", CommandName(&pingCommand{}))
}
