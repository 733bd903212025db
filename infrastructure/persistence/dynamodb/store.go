package dynamodb

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"notecanvas/application/ports"
	"notecanvas/domain/core/entities"
	pkgerrors "notecanvas/pkg/errors"
)

var (
	_ ports.Store         = (*Store)(nil)
	_ ports.HealthChecker = (*Store)(nil)
)

const (
	// A transaction holds at most 100 actions; each removed connection costs
	// five of them.
	cascadeBatch       = 19
	maxCascadeAttempts = 5
	codeConditionCheck = "ConditionalCheckFailed"
)

type noteItem struct {
	PK         string  `dynamodbav:"PK"`
	SK         string  `dynamodbav:"SK"`
	EntityType string  `dynamodbav:"EntityType"`
	ID         int64   `dynamodbav:"ID"`
	Title      string  `dynamodbav:"Title"`
	Content    string  `dynamodbav:"Content"`
	Color      string  `dynamodbav:"Color"`
	PositionX  float64 `dynamodbav:"PositionX"`
	PositionY  float64 `dynamodbav:"PositionY"`
	Links      int     `dynamodbav:"Links"`
	CreatedAt  string  `dynamodbav:"CreatedAt"`
	UpdatedAt  string  `dynamodbav:"UpdatedAt"`
}

func (i noteItem) toEntity() *entities.Note {
	return &entities.Note{
		ID: i.ID,
		NoteFields: entities.NoteFields{
			Title:     i.Title,
			Content:   i.Content,
			Color:     i.Color,
			PositionX: i.PositionX,
			PositionY: i.PositionY,
		},
		CreatedAt: parseTime(i.CreatedAt),
		UpdatedAt: parseTime(i.UpdatedAt),
	}
}

// connectionItem is stored twice: under CONN#<id> and as the pair guard.
type connectionItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	EntityType   string `dynamodbav:"EntityType"`
	ID           int64  `dynamodbav:"ID"`
	SourceNoteID int64  `dynamodbav:"SourceNoteID"`
	TargetNoteID int64  `dynamodbav:"TargetNoteID"`
	CreatedAt    string `dynamodbav:"CreatedAt"`
}

func (i connectionItem) toEntity() *entities.NoteConnection {
	return &entities.NoteConnection{
		ID:           i.ID,
		SourceNoteID: i.SourceNoteID,
		TargetNoteID: i.TargetNoteID,
		CreatedAt:    parseTime(i.CreatedAt),
	}
}

type adjacencyItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	EntityType   string `dynamodbav:"EntityType"`
	ConnectionID int64  `dynamodbav:"ConnectionID"`
	OtherNoteID  int64  `dynamodbav:"OtherNoteID"`
}

type Store struct {
	client Client
	table  string
	logger *zap.Logger
}

func NewStore(client Client, table string, logger *zap.Logger) *Store {
	return &Store{client: client, table: table, logger: logger.Named("dynamodb")}
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(s.table),
		Key:                  key("COUNTER#"+entityNote, skCounter),
		ProjectionExpression: aws.String("PK"),
	})
	if err != nil {
		return pkgerrors.NewDatabaseError("ping", err)
	}
	return nil
}

func (s *Store) nextID(ctx context.Context, entity string) (int64, error) {
	expr, err := expression.NewBuilder().
		WithUpdate(expression.Add(expression.Name("Value"), expression.Value(1))).
		Build()
	if err != nil {
		return 0, pkgerrors.NewInternalError("build counter update").WithCause(err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       key("COUNTER#"+entity, skCounter),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, pkgerrors.NewDatabaseError("next_id", err)
	}

	var counter struct {
		Value int64 `dynamodbav:"Value"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &counter); err != nil {
		return 0, pkgerrors.NewDatabaseError("next_id", err)
	}
	return counter.Value, nil
}

func (s *Store) ListNotes(ctx context.Context) ([]*entities.Note, error) {
	var items []noteItem
	if err := s.scanEntities(ctx, entityNote, &items); err != nil {
		return nil, pkgerrors.NewDatabaseError("list_notes", err)
	}
	out := make([]*entities.Note, 0, len(items))
	for _, i := range items {
		out = append(out, i.toEntity())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *Store) GetNote(ctx context.Context, id int64) (*entities.Note, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key(notePK(id), skMetadata),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get_note", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var item noteItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("get_note", err)
	}
	return item.toEntity(), nil
}

func (s *Store) NoteExists(ctx context.Context, id int64) (bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(s.table),
		Key:                  key(notePK(id), skMetadata),
		ConsistentRead:       aws.Bool(true),
		ProjectionExpression: aws.String("PK"),
	})
	if err != nil {
		return false, pkgerrors.NewDatabaseError("note_exists", err)
	}
	return len(out.Item) > 0, nil
}

func (s *Store) CreateNote(ctx context.Context, note *entities.Note) (*entities.Note, error) {
	if err := note.Validate(); err != nil {
		return nil, err
	}

	id, err := s.nextID(ctx, entityNote)
	if err != nil {
		return nil, err
	}

	item := noteItem{
		PK:         notePK(id),
		SK:         skMetadata,
		EntityType: entityNote,
		ID:         id,
		Title:      note.Title,
		Content:    note.Content,
		Color:      note.Color,
		PositionX:  note.PositionX,
		PositionY:  note.PositionY,
		CreatedAt:  formatTime(note.CreatedAt),
		UpdatedAt:  formatTime(note.UpdatedAt),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("create_note", err)
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return nil, pkgerrors.NewInternalError("build create condition").WithCause(err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.table),
		Item:                     av,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	}); err != nil {
		return nil, pkgerrors.NewDatabaseError("create_note", err)
	}
	return item.toEntity(), nil
}

func (s *Store) UpdateNote(ctx context.Context, note *entities.Note) (*entities.Note, error) {
	if err := note.Validate(); err != nil {
		return nil, err
	}

	update := expression.Set(expression.Name("Title"), expression.Value(note.Title)).
		Set(expression.Name("Content"), expression.Value(note.Content)).
		Set(expression.Name("Color"), expression.Value(note.Color)).
		Set(expression.Name("PositionX"), expression.Value(note.PositionX)).
		Set(expression.Name("PositionY"), expression.Value(note.PositionY)).
		Set(expression.Name("UpdatedAt"), expression.Value(formatTime(note.UpdatedAt)))
	return s.updateExisting(ctx, "update_note", note.ID, update)
}

// MoveNote never lets UpdatedAt fall behind CreatedAt. The first attempt is
// conditioned on at not predating creation; when it fails the note is read
// back and the move is retried stamped with its CreatedAt.
func (s *Store) MoveNote(ctx context.Context, id int64, x, y float64, at time.Time) (*entities.Note, error) {
	stamp := formatTime(at)
	note, err := s.updateExisting(ctx, "move_note", id, moveUpdate(x, y, stamp),
		expression.Name("CreatedAt").LessThanEqual(expression.Value(stamp)))
	if err != nil || note != nil {
		return note, err
	}

	current, err := s.GetNote(ctx, id)
	if err != nil || current == nil {
		return nil, err
	}
	return s.updateExisting(ctx, "move_note", id, moveUpdate(x, y, formatTime(current.CreatedAt)))
}

func moveUpdate(x, y float64, stamp string) expression.UpdateBuilder {
	return expression.Set(expression.Name("PositionX"), expression.Value(x)).
		Set(expression.Name("PositionY"), expression.Value(y)).
		Set(expression.Name("UpdatedAt"), expression.Value(stamp))
}

// updateExisting applies update to a note that must already exist. A failed
// condition means the note is gone (or an extra condition did not hold) and
// yields (nil, nil).
func (s *Store) updateExisting(ctx context.Context, op string, id int64, update expression.UpdateBuilder, extra ...expression.ConditionBuilder) (*entities.Note, error) {
	cond := expression.AttributeExists(expression.Name("PK"))
	for _, c := range extra {
		cond = cond.And(c)
	}
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(cond).
		Build()
	if err != nil {
		return nil, pkgerrors.NewInternalError("build " + op).WithCause(err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       key(notePK(id), skMetadata),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.NewDatabaseError(op, err)
	}

	var item noteItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError(op, err)
	}
	return item.toEntity(), nil
}

// DeleteNote removes the note and all of its connections in one transaction.
// The note delete is conditioned on its link count so a connection created
// after the adjacency read cancels the transaction, which is then retried.
func (s *Store) DeleteNote(ctx context.Context, id int64) (bool, error) {
	for attempt := 0; attempt < maxCascadeAttempts; attempt++ {
		found, adjacent, err := s.loadNote(ctx, id)
		if err != nil {
			return false, err
		}
		if !found {
			return false, nil
		}

		if len(adjacent) > cascadeBatch {
			// Too many for one transaction: strip a batch and go again.
			if err := s.detach(ctx, id, adjacent[:cascadeBatch]); err != nil && cancellationCodes(err) == nil {
				return false, pkgerrors.NewDatabaseError("delete_note", err)
			}
			continue
		}

		linksCond, err := expression.NewBuilder().
			WithCondition(expression.Name("Links").Equal(expression.Value(len(adjacent)))).
			Build()
		if err != nil {
			return false, pkgerrors.NewInternalError("build delete condition").WithCause(err)
		}

		tx := []types.TransactWriteItem{{
			Delete: &types.Delete{
				TableName:                 aws.String(s.table),
				Key:                       key(notePK(id), skMetadata),
				ConditionExpression:       linksCond.Condition(),
				ExpressionAttributeNames:  linksCond.Names(),
				ExpressionAttributeValues: linksCond.Values(),
			},
		}}
		for _, adj := range adjacent {
			tx = append(tx, s.removeConnection(id, adj)...)
			tx = append(tx, s.addLinks(adj.OtherNoteID, -1))
		}

		_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: tx})
		if err == nil {
			return true, nil
		}
		if cancellationCodes(err) == nil {
			return false, pkgerrors.NewDatabaseError("delete_note", err)
		}
		s.logger.Debug("Cascade delete raced, retrying", zap.Int64("noteID", id), zap.Int("attempt", attempt))
	}
	return false, pkgerrors.NewDatabaseError("delete_note", errors.New("note kept changing during cascade delete"))
}

// detach removes a batch of a note's connections without deleting the note.
func (s *Store) detach(ctx context.Context, id int64, adjacent []adjacencyItem) error {
	tx := []types.TransactWriteItem{s.addLinks(id, -len(adjacent))}
	for _, adj := range adjacent {
		tx = append(tx, s.removeConnection(id, adj)...)
		tx = append(tx, s.addLinks(adj.OtherNoteID, -1))
	}
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: tx})
	return err
}

// loadNote reads the note partition: whether the note exists and its
// adjacency entries.
func (s *Store) loadNote(ctx context.Context, id int64) (bool, []adjacencyItem, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("PK").Equal(expression.Value(notePK(id)))).
		Build()
	if err != nil {
		return false, nil, pkgerrors.NewInternalError("build note query").WithCause(err)
	}

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	})

	found := false
	var adjacent []adjacencyItem
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return false, nil, pkgerrors.NewDatabaseError("load_note", err)
		}
		for _, raw := range page.Items {
			sk, _ := raw["SK"].(*types.AttributeValueMemberS)
			switch {
			case sk == nil:
			case sk.Value == skMetadata:
				found = true
			case strings.HasPrefix(sk.Value, "CONN#"):
				var adj adjacencyItem
				if err := attributevalue.UnmarshalMap(raw, &adj); err != nil {
					return false, nil, pkgerrors.NewDatabaseError("load_note", err)
				}
				adjacent = append(adjacent, adj)
			}
		}
	}
	return found, adjacent, nil
}

func (s *Store) ListConnections(ctx context.Context) ([]*entities.NoteConnection, error) {
	var items []connectionItem
	if err := s.scanEntities(ctx, entityConnection, &items); err != nil {
		return nil, pkgerrors.NewDatabaseError("list_connections", err)
	}
	out := make([]*entities.NoteConnection, 0, len(items))
	for _, i := range items {
		out = append(out, i.toEntity())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *Store) FindConnection(ctx context.Context, a, b int64) (*entities.NoteConnection, error) {
	pair := entities.PairKey(a, b)
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key(pairPK(pair.Low, pair.High), skGuard),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("find_connection", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var item connectionItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("find_connection", err)
	}
	return item.toEntity(), nil
}

// CreateConnection writes the connection, its pair guard and both adjacency
// entries and bumps both link counts in one transaction. The guard condition
// rejects duplicates; the link updates reject missing notes.
func (s *Store) CreateConnection(ctx context.Context, conn *entities.NoteConnection) (*entities.NoteConnection, error) {
	if err := conn.Validate(); err != nil {
		return nil, err
	}

	id, err := s.nextID(ctx, entityConnection)
	if err != nil {
		return nil, err
	}
	pair := conn.Pair()

	record := connectionItem{
		PK:           connPK(id),
		SK:           skMetadata,
		EntityType:   entityConnection,
		ID:           id,
		SourceNoteID: conn.SourceNoteID,
		TargetNoteID: conn.TargetNoteID,
		CreatedAt:    formatTime(conn.CreatedAt),
	}
	guard := record
	guard.PK = pairPK(pair.Low, pair.High)
	guard.SK = skGuard
	guard.EntityType = "PAIR"

	notExists, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return nil, pkgerrors.NewInternalError("build connection condition").WithCause(err)
	}

	put := func(v interface{}) (types.TransactWriteItem, error) {
		av, err := attributevalue.MarshalMap(v)
		if err != nil {
			return types.TransactWriteItem{}, err
		}
		return types.TransactWriteItem{Put: &types.Put{
			TableName:                aws.String(s.table),
			Item:                     av,
			ConditionExpression:      notExists.Condition(),
			ExpressionAttributeNames: notExists.Names(),
		}}, nil
	}

	tx := make([]types.TransactWriteItem, 0, 6)
	for _, v := range []interface{}{
		record,
		guard,
		adjacencyItem{PK: notePK(conn.SourceNoteID), SK: adjacencySK(id), EntityType: "ADJACENCY", ConnectionID: id, OtherNoteID: conn.TargetNoteID},
		adjacencyItem{PK: notePK(conn.TargetNoteID), SK: adjacencySK(id), EntityType: "ADJACENCY", ConnectionID: id, OtherNoteID: conn.SourceNoteID},
	} {
		item, err := put(v)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("create_connection", err)
		}
		tx = append(tx, item)
	}
	tx = append(tx, s.addLinks(conn.SourceNoteID, 1), s.addLinks(conn.TargetNoteID, 1))

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: tx})
	if codes := cancellationCodes(err); codes != nil {
		switch {
		case codeAt(codes, 1) == codeConditionCheck:
			return nil, pkgerrors.NewConflictError("connection already exists").WithCause(err)
		case codeAt(codes, 4) == codeConditionCheck, codeAt(codes, 5) == codeConditionCheck:
			return nil, pkgerrors.NewNotFoundError("note").WithCause(err)
		}
	}
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("create_connection", err)
	}
	return record.toEntity(), nil
}

func (s *Store) DeleteConnection(ctx context.Context, id int64) (bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key(connPK(id), skMetadata),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, pkgerrors.NewDatabaseError("delete_connection", err)
	}
	if len(out.Item) == 0 {
		return false, nil
	}
	var item connectionItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return false, pkgerrors.NewDatabaseError("delete_connection", err)
	}

	tx := s.removeConnection(item.SourceNoteID, adjacencyItem{ConnectionID: id, OtherNoteID: item.TargetNoteID})
	tx = append(tx, s.addLinks(item.SourceNoteID, -1), s.addLinks(item.TargetNoteID, -1))

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: tx})
	if codes := cancellationCodes(err); codes != nil && codeAt(codes, 0) == codeConditionCheck {
		// Removed by someone else in the meantime.
		return false, nil
	}
	if err != nil {
		return false, pkgerrors.NewDatabaseError("delete_connection", err)
	}
	return true, nil
}

// removeConnection deletes a connection record, its guard and both adjacency
// entries. The first action is conditioned on the record still existing.
func (s *Store) removeConnection(owner int64, adj adjacencyItem) []types.TransactWriteItem {
	pair := entities.PairKey(owner, adj.OtherNoteID)
	del := func(pk, sk string) types.TransactWriteItem {
		return types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(s.table),
			Key:       key(pk, sk),
		}}
	}

	first := del(connPK(adj.ConnectionID), skMetadata)
	first.Delete.ConditionExpression = aws.String("attribute_exists(PK)")

	return []types.TransactWriteItem{
		first,
		del(pairPK(pair.Low, pair.High), skGuard),
		del(notePK(owner), adjacencySK(adj.ConnectionID)),
		del(notePK(adj.OtherNoteID), adjacencySK(adj.ConnectionID)),
	}
}

// addLinks adjusts a note's link count. The note must exist.
func (s *Store) addLinks(noteID int64, delta int) types.TransactWriteItem {
	return types.TransactWriteItem{Update: &types.Update{
		TableName:           aws.String(s.table),
		Key:                 key(notePK(noteID), skMetadata),
		UpdateExpression:    aws.String("ADD #links :delta"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{
			"#links": "Links",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":delta": &types.AttributeValueMemberN{Value: itoa(delta)},
		},
	}}
}

func (s *Store) scanEntities(ctx context.Context, entity string, out interface{}) error {
	expr, err := expression.NewBuilder().
		WithFilter(expression.Name("EntityType").Equal(expression.Value(entity)).
			And(expression.Name("SK").Equal(expression.Value(skMetadata)))).
		Build()
	if err != nil {
		return err
	}

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 aws.String(s.table),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	})

	var all []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		all = append(all, page.Items...)
	}
	return attributevalue.UnmarshalListOfMaps(all, out)
}

func codeAt(codes []string, i int) string {
	if i < len(codes) {
		return codes[i]
	}
	return ""
}
