// Package dynamodb implements the Store and the websocket connection
// registry on DynamoDB.
//
// Canvas table layout (PK / SK):
//
//	COUNTER#NOTE        COUNTER      id sequence for notes
//	COUNTER#CONNECTION  COUNTER      id sequence for connections
//	NOTE#<id>           METADATA     the note, with Links = number of connections
//	NOTE#<id>           CONN#<cid>   adjacency entry, one per connection end
//	CONN#<cid>          METADATA     the connection
//	PAIR#<low>#<high>   GUARD        unordered pair guard, holds the connection
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Client is the subset of the DynamoDB API used by this package.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

const (
	skMetadata = "METADATA"
	skCounter  = "COUNTER"
	skGuard    = "GUARD"

	entityNote       = "NOTE"
	entityConnection = "CONNECTION"

	// timeLayout has a fixed width so stored timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

func notePK(id int64) string { return "NOTE#" + strconv.FormatInt(id, 10) }

func connPK(id int64) string { return "CONN#" + strconv.FormatInt(id, 10) }

func adjacencySK(id int64) string { return "CONN#" + strconv.FormatInt(id, 10) }

func pairPK(low, high int64) string { return fmt.Sprintf("PAIR#%d#%d", low, high) }

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// cancellationCodes returns the per-item reasons of a cancelled transaction,
// or nil when err is something else.
func cancellationCodes(err error) []string {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return nil
	}
	codes := make([]string, len(tce.CancellationReasons))
	for i, r := range tce.CancellationReasons {
		if r.Code != nil {
			codes[i] = *r.Code
		}
	}
	return codes
}

func itoa(n int) string { return strconv.Itoa(n) }
