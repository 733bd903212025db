// Package main serves the API Gateway websocket routes. API Gateway owns the
// connections; this function records them and turns $default frames into
// intents whose events are posted back through the management API.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"notecanvas/application/ports"
	domainevents "notecanvas/domain/events"
	"notecanvas/infrastructure/config"
	"notecanvas/infrastructure/di"
	ws "notecanvas/interfaces/websocket"
	pkgerrors "notecanvas/pkg/errors"
)

var container *di.Container

func init() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cfg.FanoutDriver = config.FanoutAPIGateway
	cfg.MetricsBackend = config.MetricsCloudWatch
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	container, _, err = di.InitializeContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	container.Logger.Info("WebSocket handler initialized")
}

// Handler routes one websocket event.
func Handler(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	session := ports.SessionID(req.RequestContext.ConnectionID)
	logger := container.Logger.With(
		zap.String("route", req.RequestContext.RouteKey),
		zap.String("connection_id", string(session)),
	)

	var err error
	switch req.RequestContext.RouteKey {
	case "$connect":
		// Nothing can be posted to the connection before $connect returns, so
		// clients send RequestSnapshot once connected instead of getting a replay.
		endpoint := req.RequestContext.DomainName + "/" + req.RequestContext.Stage
		err = container.Registry.Register(ctx, session, endpoint)
	case "$disconnect":
		err = container.Registry.Unregister(ctx, session)
	default:
		err = container.Tracer.TraceFunction(ctx, "HandleIntent", func(ctx context.Context) error {
			return handleFrame(ctx, session, []byte(req.Body), logger)
		})
	}

	if err != nil {
		logger.Error("WebSocket route failed", zap.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
	}
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

// handleFrame dispatches one client frame. Intent failures are reported to
// the caller as an Error event; only delivery failures are returned.
func handleFrame(ctx context.Context, session ports.SessionID, body []byte, logger *zap.Logger) error {
	var in ws.Inbound
	if err := json.Unmarshal(body, &in); err != nil {
		return reject(ctx, session, in, pkgerrors.NewValidationError("malformed message").
			WithCode(ws.CodeMalformedMessage).
			WithCause(err), logger)
	}

	container.Tracer.AddAnnotation(ctx, "intent", in.Type)

	if in.Type == ws.IntentPing {
		return container.Fanout.SendToCaller(ctx, session, domainevents.Pong, nil)
	}

	cmd, err := ws.DecodeIntent(session, in)
	if err == nil {
		_, err = container.CommandBus.Send(ctx, cmd)
	}
	if err != nil {
		return reject(ctx, session, in, err, logger)
	}
	return nil
}

func reject(ctx context.Context, session ports.SessionID, in ws.Inbound, cause error, logger *zap.Logger) error {
	logger.Debug("Intent rejected",
		zap.String("intent", in.Type),
		zap.String("requestID", in.RequestID),
		zap.Error(cause),
	)
	return container.Fanout.SendToCaller(ctx, session, domainevents.Error, ws.ErrorFor(in, cause))
}

func main() {
	lambda.Start(Handler)
}
