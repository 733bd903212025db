// Package resilience decorates a Store with a circuit breaker so a failing
// database is shed quickly instead of stalling every session.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"notecanvas/application/ports"
	"notecanvas/domain/core/entities"
	pkgerrors "notecanvas/pkg/errors"
)

var _ ports.Store = (*BreakerStore)(nil)

// BreakerConfig holds configuration for the store circuit breaker
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "store",
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      10,
	}
}

// BreakerStore trips on persistence failures only. Conflicts, validation
// errors and missing records are normal answers and count as successes.
type BreakerStore struct {
	next ports.Store
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerStore(next ports.Store, cfg BreakerConfig, logger *zap.Logger) *BreakerStore {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: countsAsSuccess,
	})
	return &BreakerStore{next: next, cb: cb}
}

func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	appErr := pkgerrors.GetAppError(err)
	return appErr != nil && appErr.Type != pkgerrors.ErrorTypeDatabase
}

// State reports the breaker state, for readiness checks.
func (s *BreakerStore) State() gobreaker.State { return s.cb.State() }

func (s *BreakerStore) Ping(ctx context.Context) error {
	if s.cb.State() == gobreaker.StateOpen {
		return pkgerrors.NewUnavailableError(s.cb.Name())
	}
	if hc, ok := s.next.(ports.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}

func guard[T any](s *BreakerStore, fn func() (T, error)) (T, error) {
	var zero T
	out, err := s.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, pkgerrors.NewUnavailableError(s.cb.Name()).WithCause(err)
	}
	if err != nil {
		return zero, err
	}
	return out.(T), nil
}

func (s *BreakerStore) ListNotes(ctx context.Context) ([]*entities.Note, error) {
	return guard(s, func() ([]*entities.Note, error) { return s.next.ListNotes(ctx) })
}

func (s *BreakerStore) GetNote(ctx context.Context, id int64) (*entities.Note, error) {
	return guard(s, func() (*entities.Note, error) { return s.next.GetNote(ctx, id) })
}

func (s *BreakerStore) NoteExists(ctx context.Context, id int64) (bool, error) {
	return guard(s, func() (bool, error) { return s.next.NoteExists(ctx, id) })
}

func (s *BreakerStore) CreateNote(ctx context.Context, note *entities.Note) (*entities.Note, error) {
	return guard(s, func() (*entities.Note, error) { return s.next.CreateNote(ctx, note) })
}

func (s *BreakerStore) UpdateNote(ctx context.Context, note *entities.Note) (*entities.Note, error) {
	return guard(s, func() (*entities.Note, error) { return s.next.UpdateNote(ctx, note) })
}

func (s *BreakerStore) MoveNote(ctx context.Context, id int64, x, y float64, at time.Time) (*entities.Note, error) {
	return guard(s, func() (*entities.Note, error) { return s.next.MoveNote(ctx, id, x, y, at) })
}

func (s *BreakerStore) DeleteNote(ctx context.Context, id int64) (bool, error) {
	return guard(s, func() (bool, error) { return s.next.DeleteNote(ctx, id) })
}

func (s *BreakerStore) ListConnections(ctx context.Context) ([]*entities.NoteConnection, error) {
	return guard(s, func() ([]*entities.NoteConnection, error) { return s.next.ListConnections(ctx) })
}

func (s *BreakerStore) FindConnection(ctx context.Context, a, b int64) (*entities.NoteConnection, error) {
	return guard(s, func() (*entities.NoteConnection, error) { return s.next.FindConnection(ctx, a, b) })
}

func (s *BreakerStore) CreateConnection(ctx context.Context, conn *entities.NoteConnection) (*entities.NoteConnection, error) {
	return guard(s, func() (*entities.NoteConnection, error) { return s.next.CreateConnection(ctx, conn) })
}

func (s *BreakerStore) DeleteConnection(ctx context.Context, id int64) (bool, error) {
	return guard(s, func() (bool, error) { return s.next.DeleteConnection(ctx, id) })
}
