// Package apigateway delivers events to websocket connections held by API
// Gateway, for the Lambda deployment where no process owns the sockets.
package apigateway

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwTypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"go.uber.org/zap"

	"notecanvas/application/ports"
	"notecanvas/domain/events"
	pkgerrors "notecanvas/pkg/errors"
)

// PostAPI is the subset of the Management API used here.
type PostAPI interface {
	PostToConnection(ctx context.Context, params *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error)
}

var _ PostAPI = (*apigatewaymanagementapi.Client)(nil)

// Registry lists and forgets open connections.
type Registry interface {
	List(ctx context.Context) ([]ports.SessionID, error)
	Unregister(ctx context.Context, id ports.SessionID) error
}

// maxParallelPosts bounds concurrent PostToConnection calls per broadcast.
const maxParallelPosts = 16

type Fanout struct {
	client   PostAPI
	registry Registry
	clock    ports.Clock
	logger   *zap.Logger
}

var _ ports.Fanout = (*Fanout)(nil)

func New(client PostAPI, registry Registry, clock ports.Clock, logger *zap.Logger) *Fanout {
	return &Fanout{
		client:   client,
		registry: registry,
		clock:    clock,
		logger:   logger.Named("apigw_fanout"),
	}
}

// NewClient builds a Management API client for the websocket stage endpoint,
// e.g. "abc123.execute-api.eu-west-1.amazonaws.com/prod".
func NewClient(cfg aws.Config, endpoint string) *apigatewaymanagementapi.Client {
	return apigatewaymanagementapi.NewFromConfig(cfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = aws.String("https://" + endpoint)
	})
}

func (f *Fanout) SendToCaller(ctx context.Context, caller ports.SessionID, event events.Name, payload interface{}) error {
	frame, err := events.Encode(event, payload, f.clock.Now())
	if err != nil {
		return err
	}
	return f.post(ctx, caller, frame)
}

// SendToAll posts to every registered connection. Connections that are
// gone are removed from the registry; other failures are logged and the
// first one is returned after every connection was tried.
func (f *Fanout) SendToAll(ctx context.Context, event events.Name, payload interface{}) error {
	frame, err := events.Encode(event, payload, f.clock.Now())
	if err != nil {
		return err
	}

	ids, err := f.registry.List(ctx)
	if err != nil {
		return err
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		sem      = make(chan struct{}, maxParallelPosts)
	)
	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(id ports.SessionID) {
			defer func() {
				<-sem
				wg.Done()
			}()
			if err := f.post(ctx, id, frame); err != nil && !errors.Is(err, errGone) {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	f.logger.Debug("Broadcast complete",
		zap.String("event", event.String()),
		zap.Int("connections", len(ids)),
	)
	return firstErr
}

var errGone = errors.New("connection gone")

func (f *Fanout) post(ctx context.Context, id ports.SessionID, frame []byte) error {
	_, err := f.client.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(string(id)),
		Data:         frame,
	})
	if err == nil {
		return nil
	}

	var goneErr *apigwTypes.GoneException
	if errors.As(err, &goneErr) {
		f.logger.Info("Connection is gone, removing", zap.String("connectionID", string(id)))
		if err := f.registry.Unregister(ctx, id); err != nil {
			f.logger.Warn("Failed to remove stale connection", zap.String("connectionID", string(id)), zap.Error(err))
		}
		return errGone
	}

	f.logger.Warn("Failed to post to connection", zap.String("connectionID", string(id)), zap.Error(err))
	return pkgerrors.NewExternalError("apigateway", err)
}
