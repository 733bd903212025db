package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notecanvas/application/ports"
	"notecanvas/domain/core/entities"
	pkgerrors "notecanvas/pkg/errors"
	"notecanvas/pkg/utils/clocktest"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}

func (m *mockClient) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.PutItemOutput)
	return out, args.Error(1)
}

func (m *mockClient) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.UpdateItemOutput)
	return out, args.Error(1)
}

func (m *mockClient) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.DeleteItemOutput)
	return out, args.Error(1)
}

func (m *mockClient) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}

func (m *mockClient) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.ScanOutput)
	return out, args.Error(1)
}

func (m *mockClient) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.TransactWriteItemsOutput)
	return out, args.Error(1)
}

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(c *mockClient) *Store {
	return NewStore(c, "canvas", zap.NewNop())
}

func marshal(t *testing.T, v interface{}) map[string]types.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMap(v)
	require.NoError(t, err)
	return av
}

func storedNote(id int64, title string, links int) noteItem {
	return noteItem{
		PK: notePK(id), SK: skMetadata, EntityType: entityNote, ID: id,
		Title: title, Color: "#FF0000", Links: links,
		CreatedAt: formatTime(t0), UpdatedAt: formatTime(t0),
	}
}

func cancelled(codes ...string) error {
	reasons := make([]types.CancellationReason, len(codes))
	for i, c := range codes {
		reasons[i] = types.CancellationReason{Code: aws.String(c)}
	}
	return &types.TransactionCanceledException{
		Message:             aws.String("Transaction cancelled"),
		CancellationReasons: reasons,
	}
}

func keyOf(in map[string]types.AttributeValue) string {
	pk := in["PK"].(*types.AttributeValueMemberS).Value
	sk := in["SK"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func TestStore_GetNoteMissingReturnsNil(t *testing.T) {
	c := new(mockClient)
	c.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	n, err := newTestStore(c).GetNote(context.Background(), 3)

	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestStore_GetNoteDecodesItem(t *testing.T) {
	c := new(mockClient)
	c.On("GetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		return keyOf(in.Key) == "NOTE#3|METADATA" && *in.ConsistentRead
	})).Return(&dynamodb.GetItemOutput{Item: marshal(t, storedNote(3, "Plan", 0))}, nil)

	n, err := newTestStore(c).GetNote(context.Background(), 3)

	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, int64(3), n.ID)
	assert.Equal(t, "Plan", n.Title)
	assert.True(t, n.CreatedAt.Equal(t0))
}

func TestStore_CreateNoteUsesCounter(t *testing.T) {
	// Arrange
	c := new(mockClient)
	c.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return keyOf(in.Key) == "COUNTER#NOTE|COUNTER"
	})).Return(&dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{"Value": &types.AttributeValueMemberN{Value: "7"}},
	}, nil)
	c.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		return keyOf(in.Item) == "NOTE#7|METADATA" && in.ConditionExpression != nil
	})).Return(&dynamodb.PutItemOutput{}, nil)

	// Act
	n, err := newTestStore(c).CreateNote(context.Background(), entities.NewNote(entities.NoteFields{
		Title: "A", Color: "#00FF00", PositionX: 10, PositionY: 20,
	}, t0))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(7), n.ID)
	assert.Equal(t, 10.0, n.PositionX)
	c.AssertExpectations(t)
}

func TestStore_CreateNoteRejectsInvalidFieldsWithoutWriting(t *testing.T) {
	c := new(mockClient)

	_, err := newTestStore(c).CreateNote(context.Background(), entities.NewNote(entities.NoteFields{
		Title: "A", Color: "red",
	}, t0))

	assert.True(t, pkgerrors.IsValidation(err))
	c.AssertNotCalled(t, "UpdateItem", mock.Anything, mock.Anything)
}

func TestStore_UpdateMissingNoteReturnsNil(t *testing.T) {
	c := new(mockClient)
	c.On("UpdateItem", mock.Anything, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{Message: aws.String("gone")})
	note := entities.NewNote(entities.NoteFields{Title: "A", Color: "#00FF00"}, t0)
	note.ID = 9

	n, err := newTestStore(c).UpdateNote(context.Background(), note)

	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestStore_MoveNoteReturnsUpdatedNote(t *testing.T) {
	moved := storedNote(2, "A", 0)
	moved.PositionX, moved.PositionY = 5, 6
	c := new(mockClient)
	c.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return keyOf(in.Key) == "NOTE#2|METADATA" && in.ReturnValues == types.ReturnValueAllNew
	})).Return(&dynamodb.UpdateItemOutput{Attributes: marshal(t, moved)}, nil)

	n, err := newTestStore(c).MoveNote(context.Background(), 2, 5, 6, t0.Add(time.Minute))

	require.NoError(t, err)
	assert.Equal(t, 5.0, n.PositionX)
	assert.Equal(t, 6.0, n.PositionY)
}

func stampedWith(stamp string) func(*dynamodb.UpdateItemInput) bool {
	return func(in *dynamodb.UpdateItemInput) bool {
		if keyOf(in.Key) != "NOTE#2|METADATA" {
			return false
		}
		for _, v := range in.ExpressionAttributeValues {
			if s, ok := v.(*types.AttributeValueMemberS); ok && s.Value == stamp {
				return true
			}
		}
		return false
	}
}

func TestStore_MoveNoteClampsUpdatedAtToCreatedAt(t *testing.T) {
	// Arrange
	early := t0.Add(-time.Hour)
	moved := storedNote(2, "A", 0)
	moved.PositionX, moved.PositionY = 5, 6
	c := new(mockClient)
	c.On("UpdateItem", mock.Anything, mock.MatchedBy(stampedWith(formatTime(early)))).
		Return(nil, &types.ConditionalCheckFailedException{Message: aws.String("predates creation")}).Once()
	c.On("GetItem", mock.Anything, mock.Anything).
		Return(&dynamodb.GetItemOutput{Item: marshal(t, storedNote(2, "A", 0))}, nil)
	c.On("UpdateItem", mock.Anything, mock.MatchedBy(stampedWith(formatTime(t0)))).
		Return(&dynamodb.UpdateItemOutput{Attributes: marshal(t, moved)}, nil).Once()

	// Act
	n, err := newTestStore(c).MoveNote(context.Background(), 2, 5, 6, early)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, 5.0, n.PositionX)
	assert.False(t, n.UpdatedAt.Before(n.CreatedAt))
	c.AssertExpectations(t)
}

func TestStore_MoveNoteMissingAfterFailedConditionReturnsNil(t *testing.T) {
	c := new(mockClient)
	c.On("UpdateItem", mock.Anything, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{Message: aws.String("gone")}).Once()
	c.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	n, err := newTestStore(c).MoveNote(context.Background(), 2, 5, 6, t0)

	require.NoError(t, err)
	assert.Nil(t, n)
	c.AssertNumberOfCalls(t, "UpdateItem", 1)
}

func TestStore_ListNotesSortsByID(t *testing.T) {
	c := new(mockClient)
	c.On("Scan", mock.Anything, mock.Anything).Return(&dynamodb.ScanOutput{
		Items: []map[string]types.AttributeValue{
			marshal(t, storedNote(3, "C", 0)),
			marshal(t, storedNote(1, "A", 0)),
		},
	}, nil)

	notes, err := newTestStore(c).ListNotes(context.Background())

	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, int64(1), notes[0].ID)
	assert.Equal(t, int64(3), notes[1].ID)
}

func connectionCounter(c *mockClient, id string) {
	c.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return keyOf(in.Key) == "COUNTER#CONNECTION|COUNTER"
	})).Return(&dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{"Value": &types.AttributeValueMemberN{Value: id}},
	}, nil)
}

func TestStore_CreateConnectionWritesOneTransaction(t *testing.T) {
	// Arrange
	c := new(mockClient)
	connectionCounter(c, "4")
	c.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
		items := in.TransactItems
		return len(items) == 6 &&
			keyOf(items[0].Put.Item) == "CONN#4|METADATA" &&
			keyOf(items[1].Put.Item) == "PAIR#1#2|GUARD" &&
			keyOf(items[4].Update.Key) == "NOTE#2|METADATA" &&
			keyOf(items[5].Update.Key) == "NOTE#1|METADATA"
	})).Return(&dynamodb.TransactWriteItemsOutput{}, nil)

	// Act
	conn, err := newTestStore(c).CreateConnection(context.Background(), entities.NewNoteConnection(2, 1, t0))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(4), conn.ID)
	assert.Equal(t, int64(2), conn.SourceNoteID)
	assert.Equal(t, int64(1), conn.TargetNoteID)
}

func TestStore_CreateConnectionMapsCancellationReasons(t *testing.T) {
	cases := []struct {
		name  string
		codes []string
		check func(error) bool
	}{
		{"duplicate pair", []string{"None", "ConditionalCheckFailed", "None", "None", "None", "None"}, pkgerrors.IsConflict},
		{"missing target", []string{"None", "None", "None", "None", "None", "ConditionalCheckFailed"}, pkgerrors.IsNotFound},
		{"throttled", []string{"None", "ThrottlingError"}, func(err error) bool { return pkgerrors.IsType(err, pkgerrors.ErrorTypeDatabase) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := new(mockClient)
			connectionCounter(c, "4")
			c.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, cancelled(tc.codes...))

			_, err := newTestStore(c).CreateConnection(context.Background(), entities.NewNoteConnection(1, 2, t0))

			assert.True(t, tc.check(err), "unexpected error %v", err)
		})
	}
}

func TestStore_CreateSelfConnectionRejected(t *testing.T) {
	c := new(mockClient)

	_, err := newTestStore(c).CreateConnection(context.Background(), entities.NewNoteConnection(1, 1, t0))

	assert.True(t, pkgerrors.IsValidation(err))
	c.AssertExpectations(t)
}

func TestStore_FindConnectionUsesPairGuard(t *testing.T) {
	guard := connectionItem{
		PK: pairPK(1, 5), SK: skGuard, EntityType: "PAIR",
		ID: 8, SourceNoteID: 5, TargetNoteID: 1, CreatedAt: formatTime(t0),
	}
	c := new(mockClient)
	c.On("GetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		return keyOf(in.Key) == "PAIR#1#5|GUARD"
	})).Return(&dynamodb.GetItemOutput{Item: marshal(t, guard)}, nil)

	conn, err := newTestStore(c).FindConnection(context.Background(), 1, 5)

	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, int64(8), conn.ID)
	assert.Equal(t, int64(5), conn.SourceNoteID)
}

func TestStore_DeleteNoteCascadesInOneTransaction(t *testing.T) {
	// Arrange
	c := new(mockClient)
	c.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{
			marshal(t, storedNote(1, "A", 1)),
			marshal(t, adjacencyItem{PK: notePK(1), SK: adjacencySK(4), EntityType: "ADJACENCY", ConnectionID: 4, OtherNoteID: 2}),
		},
	}, nil)
	c.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
		items := in.TransactItems
		return len(items) == 6 &&
			keyOf(items[0].Delete.Key) == "NOTE#1|METADATA" &&
			keyOf(items[1].Delete.Key) == "CONN#4|METADATA" &&
			keyOf(items[2].Delete.Key) == "PAIR#1#2|GUARD" &&
			keyOf(items[5].Update.Key) == "NOTE#2|METADATA"
	})).Return(&dynamodb.TransactWriteItemsOutput{}, nil)

	// Act
	ok, err := newTestStore(c).DeleteNote(context.Background(), 1)

	// Assert
	require.NoError(t, err)
	assert.True(t, ok)
	c.AssertExpectations(t)
}

func TestStore_DeleteNoteRetriesWhenLinksChange(t *testing.T) {
	c := new(mockClient)
	c.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{marshal(t, storedNote(1, "A", 0))},
	}, nil)
	c.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, cancelled("ConditionalCheckFailed")).Once()
	c.On("TransactWriteItems", mock.Anything, mock.Anything).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()

	ok, err := newTestStore(c).DeleteNote(context.Background(), 1)

	require.NoError(t, err)
	assert.True(t, ok)
	c.AssertNumberOfCalls(t, "Query", 2)
}

func TestStore_DeleteMissingNote(t *testing.T) {
	c := new(mockClient)
	c.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil)

	ok, err := newTestStore(c).DeleteNote(context.Background(), 1)

	require.NoError(t, err)
	assert.False(t, ok)
	c.AssertNotCalled(t, "TransactWriteItems", mock.Anything, mock.Anything)
}

func TestStore_DeleteConnectionAlreadyGone(t *testing.T) {
	c := new(mockClient)
	c.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	ok, err := newTestStore(c).DeleteConnection(context.Background(), 4)

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_DeleteConnectionRacedWithAnotherDelete(t *testing.T) {
	c := new(mockClient)
	c.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{
		Item: marshal(t, connectionItem{PK: connPK(4), SK: skMetadata, ID: 4, SourceNoteID: 1, TargetNoteID: 2}),
	}, nil)
	c.On("TransactWriteItems", mock.Anything, mock.Anything).
		Return(nil, cancelled("ConditionalCheckFailed", "None", "None", "None", "None", "None"))

	ok, err := newTestStore(c).DeleteConnection(context.Background(), 4)

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ClientErrorsBecomeDatabaseErrors(t *testing.T) {
	c := new(mockClient)
	c.On("GetItem", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	_, err := newTestStore(c).NoteExists(context.Background(), 1)

	assert.True(t, pkgerrors.IsPersistence(err))
}

func TestConnectionRegistry_RegisterListUnregister(t *testing.T) {
	// Arrange
	clock := &clocktest.Clock{At: t0}
	c := new(mockClient)
	c.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		ttl := in.Item["TTL"].(*types.AttributeValueMemberN).Value
		return keyOf(in.Item) == "CONNECTION#abc=|METADATA" && ttl == "1714640400"
	})).Return(&dynamodb.PutItemOutput{}, nil)
	c.On("Scan", mock.Anything, mock.Anything).Return(&dynamodb.ScanOutput{
		Items: []map[string]types.AttributeValue{
			{"ConnectionID": &types.AttributeValueMemberS{Value: "abc="}},
		},
	}, nil)
	c.On("DeleteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.DeleteItemInput) bool {
		return keyOf(in.Key) == "CONNECTION#abc=|METADATA"
	})).Return(&dynamodb.DeleteItemOutput{}, nil)
	r := NewConnectionRegistry(c, "connections", clock, zap.NewNop())

	// Act
	require.NoError(t, r.Register(context.Background(), "abc=", "example.com/dev"))
	ids, err := r.List(context.Background())
	require.NoError(t, err)
	require.NoError(t, r.Unregister(context.Background(), "abc="))

	// Assert
	assert.Equal(t, []ports.SessionID{"abc="}, ids)
	c.AssertExpectations(t)
}
