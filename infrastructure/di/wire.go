//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"notecanvas/infrastructure/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideClock,
	ProvideStore,
	ProvideHealthChecker,
	ProvideMetrics,
	ProvideRecorder,
	ProvideTracer,
	ProvideHub,
	ProvideConnectionRegistry,
	ProvideRedisClient,
	ProvideRelay,
	ProvideFanout,
	ProvideEventPublisher,
	ProvideSyncService,
	ProvideCommandBus,
	ProvideQueryBus,
	ProvideWebSocketServer,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
