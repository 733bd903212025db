package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"notecanvas/application/ports"
	pkgerrors "notecanvas/pkg/errors"
)

// connectionTTL bounds how long a record survives a missed $disconnect.
const connectionTTL = 24 * time.Hour

type connectionRecord struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	ConnectionID string `dynamodbav:"ConnectionID"`
	Endpoint     string `dynamodbav:"Endpoint"`
	ConnectedAt  string `dynamodbav:"ConnectedAt"`
	TTL          int64  `dynamodbav:"TTL"`
}

// ConnectionRegistry tracks the API Gateway websocket connections that are
// currently open, so a broadcast can reach every one of them.
type ConnectionRegistry struct {
	client Client
	table  string
	clock  ports.Clock
	logger *zap.Logger
}

func NewConnectionRegistry(client Client, table string, clock ports.Clock, logger *zap.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		client: client,
		table:  table,
		clock:  clock,
		logger: logger.Named("connections"),
	}
}

func connectionKey(id ports.SessionID) string { return "CONNECTION#" + string(id) }

func (r *ConnectionRegistry) Register(ctx context.Context, id ports.SessionID, endpoint string) error {
	now := r.clock.Now()
	item, err := attributevalue.MarshalMap(connectionRecord{
		PK:           connectionKey(id),
		SK:           skMetadata,
		ConnectionID: string(id),
		Endpoint:     endpoint,
		ConnectedAt:  formatTime(now),
		TTL:          now.Add(connectionTTL).Unix(),
	})
	if err != nil {
		return pkgerrors.NewDatabaseError("register_connection", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		return pkgerrors.NewDatabaseError("register_connection", err)
	}

	r.logger.Debug("Connection registered", zap.String("connectionID", string(id)))
	return nil
}

func (r *ConnectionRegistry) Unregister(ctx context.Context, id ports.SessionID) error {
	if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key:       key(connectionKey(id), skMetadata),
	}); err != nil {
		return pkgerrors.NewDatabaseError("unregister_connection", err)
	}

	r.logger.Debug("Connection unregistered", zap.String("connectionID", string(id)))
	return nil
}

// List returns every registered connection that has not expired.
func (r *ConnectionRegistry) List(ctx context.Context) ([]ports.SessionID, error) {
	expr, err := expression.NewBuilder().
		WithFilter(expression.Name("SK").Equal(expression.Value(skMetadata)).
			And(expression.Name("TTL").GreaterThan(expression.Value(r.clock.Now().Unix())))).
		WithProjection(expression.NamesList(expression.Name("ConnectionID"))).
		Build()
	if err != nil {
		return nil, pkgerrors.NewInternalError("build connection scan").WithCause(err)
	}

	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                 aws.String(r.table),
		FilterExpression:          expr.Filter(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var ids []ports.SessionID
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("list_connections", err)
		}
		var records []connectionRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &records); err != nil {
			return nil, pkgerrors.NewDatabaseError("list_connections", err)
		}
		for _, rec := range records {
			ids = append(ids, ports.SessionID(rec.ConnectionID))
		}
	}
	return ids, nil
}
