package di

import (
	"context"
	"fmt"

	"notecanvas/application/commands/bus"
	commandhandlers "notecanvas/application/commands/handlers"
	"notecanvas/application/ports"
	querybus "notecanvas/application/queries/bus"
	queryhandlers "notecanvas/application/queries/handlers"
	"notecanvas/application/services"
	"notecanvas/infrastructure/config"
	"notecanvas/infrastructure/fanout/apigateway"
	"notecanvas/infrastructure/fanout/redisfanout"
	"notecanvas/infrastructure/messaging/eventbridge"
	"notecanvas/infrastructure/persistence/dynamodb"
	"notecanvas/infrastructure/persistence/memory"
	"notecanvas/infrastructure/persistence/postgres"
	"notecanvas/infrastructure/persistence/resilience"
	"notecanvas/interfaces/http/rest"
	"notecanvas/interfaces/websocket"
	"notecanvas/pkg/observability"
	"notecanvas/pkg/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const serviceName = "notecanvas"

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zcfg.Level = level
	}

	return zcfg.Build()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

func ProvideClock() ports.Clock {
	return utils.SystemClock{}
}

// ProvideStore opens the configured store. The cleanup closes any pooled
// connections it holds.
func ProvideStore(
	ctx context.Context,
	cfg *config.Config,
	client *awsdynamodb.Client,
	logger *zap.Logger,
) (ports.Store, func(), error) {
	var (
		store   ports.Store
		cleanup = func() {}
	)

	switch cfg.StoreDriver {
	case config.StoreMemory:
		store = memory.NewStore()

	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if cfg.AutoMigrate {
			if err := postgres.Migrate(db.DB, postgres.Up); err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("Database migrations applied")
		}
		store = postgres.New(db)
		cleanup = func() {
			if err := db.Close(); err != nil {
				logger.Warn("Failed to close database", zap.Error(err))
			}
		}

	case config.StoreDynamoDB:
		store = dynamodb.NewStore(client, cfg.DynamoDBTable, logger)

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if cfg.StoreCircuitBreaker {
		store = resilience.NewBreakerStore(store, resilience.DefaultBreakerConfig(), logger)
	}

	logger.Info("Store ready",
		zap.String("driver", cfg.StoreDriver),
		zap.Bool("circuit_breaker", cfg.StoreCircuitBreaker))
	return store, cleanup, nil
}

// ProvideHealthChecker exposes the store ping when the store has one.
func ProvideHealthChecker(store ports.Store) ports.HealthChecker {
	if hc, ok := store.(ports.HealthChecker); ok {
		return hc
	}
	return nil
}

// ProvideMetrics creates the Prometheus collector. It is always built so the
// buses and the hub have a recorder; cfg.EnableMetrics only controls whether
// /metrics is served.
func ProvideMetrics() *observability.Collector {
	return observability.NewCollector(serviceName)
}

// Recorder receives intent and query metrics.
type Recorder interface {
	bus.Recorder
	querybus.Recorder
}

// ProvideRecorder selects where intent and query metrics go.
func ProvideRecorder(
	cfg *config.Config,
	collector *observability.Collector,
	client *awscloudwatch.Client,
	logger *zap.Logger,
) Recorder {
	if cfg.MetricsBackend == config.MetricsCloudWatch {
		namespace := fmt.Sprintf("NoteCanvas/%s", cfg.Environment)
		return observability.NewCloudWatchRecorder(namespace, client, logger)
	}
	return collector
}

func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer(serviceName, cfg.EnableTracing)
}

func ProvideHub(clock ports.Clock, metrics *observability.Collector, logger *zap.Logger) *websocket.Hub {
	return websocket.NewHub(clock, metrics, logger)
}

// ProvideConnectionRegistry builds the DynamoDB registry of API Gateway
// connections.
func ProvideConnectionRegistry(
	client *awsdynamodb.Client,
	cfg *config.Config,
	clock ports.Clock,
	logger *zap.Logger,
) *dynamodb.ConnectionRegistry {
	return dynamodb.NewConnectionRegistry(client, cfg.ConnectionsTable, clock, logger)
}

// ProvideRedisClient connects to Redis when the redis fanout is selected and
// returns nil otherwise.
func ProvideRedisClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redis.Client, func(), error) {
	if cfg.FanoutDriver != config.FanoutRedis {
		return nil, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideRelay wraps the hub in the Redis relay, or returns nil when the
// redis fanout is not selected.
func ProvideRelay(cfg *config.Config, hub *websocket.Hub, client *redis.Client, logger *zap.Logger) *redisfanout.Fanout {
	if client == nil {
		return nil
	}
	return redisfanout.New(hub, client, cfg.RedisChannel, logger)
}

// ProvideFanout selects how events reach sessions.
func ProvideFanout(
	cfg *config.Config,
	awsCfg aws.Config,
	hub *websocket.Hub,
	relay *redisfanout.Fanout,
	registry *dynamodb.ConnectionRegistry,
	clock ports.Clock,
	logger *zap.Logger,
) (ports.Fanout, error) {
	switch cfg.FanoutDriver {
	case config.FanoutLocal:
		return hub, nil
	case config.FanoutRedis:
		if relay == nil {
			return nil, fmt.Errorf("redis fanout selected without a redis client")
		}
		return relay, nil
	case config.FanoutAPIGateway:
		client := apigateway.NewClient(awsCfg, cfg.WebSocketEndpoint)
		return apigateway.New(client, registry, clock, logger), nil
	default:
		return nil, fmt.Errorf("unknown fanout driver %q", cfg.FanoutDriver)
	}
}

// ProvideEventPublisher forwards applied changes to EventBridge when events
// are enabled.
func ProvideEventPublisher(cfg *config.Config, client *awseventbridge.Client, logger *zap.Logger) ports.EventPublisher {
	if !cfg.EnableEvents {
		return ports.NopPublisher{}
	}
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
}

func ProvideSyncService(
	store ports.Store,
	fanout ports.Fanout,
	publisher ports.EventPublisher,
	clock ports.Clock,
	logger *zap.Logger,
) *services.SyncService {
	return services.NewSyncService(store, fanout, publisher, clock, logger)
}

// ProvideCommandBus creates a command bus with registered handlers
func ProvideCommandBus(
	svc *services.SyncService,
	recorder Recorder,
	logger *zap.Logger,
) (*bus.CommandBus, error) {
	commandBus := bus.NewCommandBus(
		bus.LoggingMiddleware(&zapLoggerAdapter{logger.Named("commands")}),
		bus.MetricsMiddleware(recorder),
	)
	if err := commandhandlers.Register(commandBus, svc); err != nil {
		return nil, fmt.Errorf("register command handlers: %w", err)
	}
	return commandBus, nil
}

// ProvideQueryBus creates a query bus with registered handlers
func ProvideQueryBus(
	store ports.Store,
	svc *services.SyncService,
	recorder Recorder,
) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus(recorder)
	if err := queryhandlers.Register(queryBus, store, svc); err != nil {
		return nil, fmt.Errorf("register query handlers: %w", err)
	}
	return queryBus, nil
}

func ProvideWebSocketServer(
	cfg *config.Config,
	hub *websocket.Hub,
	commandBus *bus.CommandBus,
	logger *zap.Logger,
) *websocket.Server {
	wsCfg := websocket.DefaultServerConfig()
	wsCfg.AllowedOrigins = cfg.AllowedOrigins
	wsCfg.RateLimit = cfg.SessionRateLimit
	wsCfg.RateBurst = cfg.SessionRateBurst
	return websocket.NewServer(hub, commandBus, wsCfg, logger)
}

// ProvideRouter assembles the HTTP surface. /ws is only mounted when this
// process owns its sessions.
func ProvideRouter(
	cfg *config.Config,
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	ws *websocket.Server,
	metrics *observability.Collector,
	health ports.HealthChecker,
	logger *zap.Logger,
) *rest.Router {
	routerCfg := rest.RouterConfig{
		EnableCORS:     cfg.EnableCORS,
		AllowedOrigins: cfg.AllowedOrigins,
		Debug:          cfg.IsDevelopment(),
		Health:         health,
		RateLimit:      cfg.SessionRateLimit,
		RateBurst:      cfg.SessionRateBurst,
	}
	if cfg.FanoutDriver != config.FanoutAPIGateway {
		routerCfg.WebSocket = ws.HandleWebSocket
	}
	if cfg.EnableMetrics {
		routerCfg.Metrics = metrics
	}
	return rest.NewRouter(commandBus, queryBus, routerCfg, logger)
}

// zapLoggerAdapter adapts zap.Logger to the bus logger interface
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Debug(msg string, fields ...interface{}) {
	a.logger.Debug(msg, fieldsToZap(fields)...)
}

func (a *zapLoggerAdapter) Error(msg string, fields ...interface{}) {
	a.logger.Error(msg, fieldsToZap(fields)...)
}

func fieldsToZap(fields []interface{}) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			key = fmt.Sprint(fields[i])
		}
		zapFields = append(zapFields, zap.Any(key, fields[i+1]))
	}
	return zapFields
}
