// Package postgres is the durable Store. Field constraints, cascade deletes
// and unordered pair uniqueness are enforced by the schema as well as by the
// code, so concurrent writers cannot bypass them.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"notecanvas/application/ports"
	"notecanvas/domain/core/entities"
	pkgerrors "notecanvas/pkg/errors"
)

var (
	_ ports.Store         = (*Store)(nil)
	_ ports.HealthChecker = (*Store)(nil)
)

const (
	noteColumns       = `id, title, content, color, position_x, position_y, created_at, updated_at`
	connectionColumns = `id, source_note_id, target_note_id, created_at`

	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

type noteRow struct {
	ID        int64     `db:"id"`
	Title     string    `db:"title"`
	Content   string    `db:"content"`
	Color     string    `db:"color"`
	PositionX float64   `db:"position_x"`
	PositionY float64   `db:"position_y"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r noteRow) toEntity() *entities.Note {
	return &entities.Note{
		ID: r.ID,
		NoteFields: entities.NoteFields{
			Title:     r.Title,
			Content:   r.Content,
			Color:     r.Color,
			PositionX: r.PositionX,
			PositionY: r.PositionY,
		},
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type connectionRow struct {
	ID           int64     `db:"id"`
	SourceNoteID int64     `db:"source_note_id"`
	TargetNoteID int64     `db:"target_note_id"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r connectionRow) toEntity() *entities.NoteConnection {
	return &entities.NoteConnection{
		ID:           r.ID,
		SourceNoteID: r.SourceNoteID,
		TargetNoteID: r.TargetNoteID,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("connect", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return pkgerrors.NewDatabaseError("ping", err)
	}
	return nil
}

func (s *Store) ListNotes(ctx context.Context) ([]*entities.Note, error) {
	var rows []noteRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+noteColumns+` FROM notes ORDER BY id`); err != nil {
		return nil, pkgerrors.NewDatabaseError("list_notes", err)
	}
	out := make([]*entities.Note, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEntity())
	}
	return out, nil
}

func (s *Store) GetNote(ctx context.Context, id int64) (*entities.Note, error) {
	var row noteRow
	err := s.db.GetContext(ctx, &row, `SELECT `+noteColumns+` FROM notes WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get_note", err)
	}
	return row.toEntity(), nil
}

func (s *Store) NoteExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM notes WHERE id = $1)`, id); err != nil {
		return false, pkgerrors.NewDatabaseError("note_exists", err)
	}
	return exists, nil
}

func (s *Store) CreateNote(ctx context.Context, note *entities.Note) (*entities.Note, error) {
	if err := note.Validate(); err != nil {
		return nil, err
	}

	created := note.Clone()
	created.CreatedAt = note.CreatedAt.UTC()
	created.UpdatedAt = note.UpdatedAt.UTC()
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO notes (title, content, color, position_x, position_y, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		note.Title, note.Content, note.Color, note.PositionX, note.PositionY, created.CreatedAt, created.UpdatedAt,
	).Scan(&created.ID)
	if err != nil {
		return nil, translate("create_note", err)
	}
	return created, nil
}

func (s *Store) UpdateNote(ctx context.Context, note *entities.Note) (*entities.Note, error) {
	if err := note.Validate(); err != nil {
		return nil, err
	}

	var row noteRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE notes
		SET title = $2, content = $3, color = $4, position_x = $5, position_y = $6,
		    updated_at = GREATEST($7, created_at)
		WHERE id = $1
		RETURNING `+noteColumns,
		note.ID, note.Title, note.Content, note.Color, note.PositionX, note.PositionY, note.UpdatedAt.UTC(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("update_note", err)
	}
	return row.toEntity(), nil
}

func (s *Store) MoveNote(ctx context.Context, id int64, x, y float64, at time.Time) (*entities.Note, error) {
	var row noteRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE notes
		SET position_x = $2, position_y = $3, updated_at = GREATEST($4, created_at)
		WHERE id = $1
		RETURNING `+noteColumns,
		id, x, y, at.UTC(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("move_note", err)
	}
	return row.toEntity(), nil
}

// DeleteNote relies on ON DELETE CASCADE to remove the note's connections in
// the same statement.
func (s *Store) DeleteNote(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		return false, pkgerrors.NewDatabaseError("delete_note", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, pkgerrors.NewDatabaseError("delete_note", err)
	}
	return n > 0, nil
}

func (s *Store) ListConnections(ctx context.Context) ([]*entities.NoteConnection, error) {
	var rows []connectionRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+connectionColumns+` FROM note_connections ORDER BY id`); err != nil {
		return nil, pkgerrors.NewDatabaseError("list_connections", err)
	}
	out := make([]*entities.NoteConnection, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEntity())
	}
	return out, nil
}

func (s *Store) FindConnection(ctx context.Context, a, b int64) (*entities.NoteConnection, error) {
	pair := entities.PairKey(a, b)
	var row connectionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+connectionColumns+` FROM note_connections
		WHERE LEAST(source_note_id, target_note_id) = $1
		  AND GREATEST(source_note_id, target_note_id) = $2`,
		pair.Low, pair.High,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("find_connection", err)
	}
	return row.toEntity(), nil
}

func (s *Store) CreateConnection(ctx context.Context, conn *entities.NoteConnection) (*entities.NoteConnection, error) {
	if err := conn.Validate(); err != nil {
		return nil, err
	}

	created := conn.Clone()
	created.CreatedAt = conn.CreatedAt.UTC()
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO note_connections (source_note_id, target_note_id, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`,
		conn.SourceNoteID, conn.TargetNoteID, created.CreatedAt,
	).Scan(&created.ID)
	if err != nil {
		return nil, translate("create_connection", err)
	}
	return created, nil
}

func (s *Store) DeleteConnection(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM note_connections WHERE id = $1`, id)
	if err != nil {
		return false, pkgerrors.NewDatabaseError("delete_connection", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, pkgerrors.NewDatabaseError("delete_connection", err)
	}
	return n > 0, nil
}

// translate maps constraint violations onto the domain error types the sync
// service understands.
func translate(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgUniqueViolation:
			return pkgerrors.NewConflictError("connection already exists").WithCause(err)
		case pgForeignKeyViolation:
			return pkgerrors.NewNotFoundError("note").WithCause(err)
		case pgCheckViolation:
			return pkgerrors.NewValidationError(pqErr.Message).WithCause(err)
		}
	}
	return pkgerrors.NewDatabaseError(op, err)
}
