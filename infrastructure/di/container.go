package di

import (
	"notecanvas/application/commands/bus"
	"notecanvas/application/ports"
	querybus "notecanvas/application/queries/bus"
	"notecanvas/application/services"
	"notecanvas/infrastructure/config"
	"notecanvas/infrastructure/fanout/redisfanout"
	"notecanvas/infrastructure/persistence/dynamodb"
	"notecanvas/interfaces/http/rest"
	"notecanvas/interfaces/websocket"
	"notecanvas/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Store      ports.Store
	Fanout     ports.Fanout
	Hub        *websocket.Hub
	WebSocket  *websocket.Server
	Service    *services.SyncService
	CommandBus *bus.CommandBus
	QueryBus   *querybus.QueryBus
	Metrics    *observability.Collector
	Tracer     *observability.Tracer
	Router     *rest.Router
	Registry   *dynamodb.ConnectionRegistry

	// Relay is set only when the redis fanout is selected. Its Run loop must
	// be started by the caller.
	Relay *redisfanout.Fanout
}
