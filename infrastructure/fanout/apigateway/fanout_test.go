package apigateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwTypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notecanvas/application/ports"
	"notecanvas/domain/events"
	pkgerrors "notecanvas/pkg/errors"
	"notecanvas/pkg/utils/clocktest"
)

type mockPostAPI struct {
	mock.Mock
}

func (m *mockPostAPI) PostToConnection(ctx context.Context, in *apigatewaymanagementapi.PostToConnectionInput, _ ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error) {
	args := m.Called(ctx, *in.ConnectionId, in.Data)
	return &apigatewaymanagementapi.PostToConnectionOutput{}, args.Error(0)
}

type fakeRegistry struct {
	mu      sync.Mutex
	ids     []ports.SessionID
	removed []ports.SessionID
}

func (r *fakeRegistry) List(context.Context) ([]ports.SessionID, error) {
	return r.ids, nil
}

func (r *fakeRegistry) Unregister(_ context.Context, id ports.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
	return nil
}

var clock = &clocktest.Clock{At: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}

func TestFanout_SendToAllRemovesGoneConnections(t *testing.T) {
	// Arrange
	api := new(mockPostAPI)
	api.On("PostToConnection", mock.Anything, "a", mock.Anything).Return(nil)
	api.On("PostToConnection", mock.Anything, "b", mock.Anything).
		Return(&apigwTypes.GoneException{Message: str("gone")})
	registry := &fakeRegistry{ids: []ports.SessionID{"a", "b"}}
	f := New(api, registry, clock, zap.NewNop())

	// Act
	err := f.SendToAll(context.Background(), events.DeleteNote, events.DeletedPayload{ID: 7})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []ports.SessionID{"b"}, registry.removed)
	api.AssertNumberOfCalls(t, "PostToConnection", 2)
}

func TestFanout_SendToAllReportsOtherFailures(t *testing.T) {
	api := new(mockPostAPI)
	api.On("PostToConnection", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("throttled"))
	f := New(api, &fakeRegistry{ids: []ports.SessionID{"a"}}, clock, zap.NewNop())

	err := f.SendToAll(context.Background(), events.DeleteNote, events.DeletedPayload{ID: 7})

	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeExternal))
}

func TestFanout_SendToCallerPostsFrame(t *testing.T) {
	api := new(mockPostAPI)
	api.On("PostToConnection", mock.Anything, "caller", mock.MatchedBy(func(data []byte) bool {
		var f events.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			return false
		}
		return f.Type == events.Pong && f.Timestamp == clock.At.UnixMilli()
	})).Return(nil)
	f := New(api, &fakeRegistry{}, clock, zap.NewNop())

	require.NoError(t, f.SendToCaller(context.Background(), "caller", events.Pong, nil))

	api.AssertExpectations(t)
}

func str(s string) *string { return &s }
