package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notecanvas/domain/core/entities"
	pkgerrors "notecanvas/pkg/errors"
)

var (
	created  = time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	noteCols = []string{"id", "title", "content", "color", "position_x", "position_y", "created_at", "updated_at"}
	connCols = []string{"id", "source_note_id", "target_note_id", "created_at"}
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func validNote() *entities.Note {
	return entities.NewNote(entities.NoteFields{Title: "A", Color: "#FF0000", PositionX: 1, PositionY: 2}, created)
}

func TestCreateNote_ReturnsAssignedID(t *testing.T) {
	// Arrange
	s, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO notes").
		WithArgs("A", "", "#FF0000", 1.0, 2.0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	// Act
	n, err := s.CreateNote(context.Background(), validNote())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(7), n.ID)
	assert.Equal(t, created, n.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateNote_ValidatesBeforeWriting(t *testing.T) {
	s, mock := newMockStore(t)
	n := validNote()
	n.Color = "red"

	_, err := s.CreateNote(context.Background(), n)

	assert.True(t, pkgerrors.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNote(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM notes WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(noteCols).AddRow(int64(1), "A", "body", "#FF0000", 3.5, 4.5, created, created))
	mock.ExpectQuery("SELECT (.+) FROM notes WHERE id").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(noteCols))

	found, err := s.GetNote(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "body", found.Content)
	assert.Equal(t, 3.5, found.PositionX)

	missing, err := s.GetNote(context.Background(), 2)
	assert.NoError(t, err)
	assert.Nil(t, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateNote_MissingRowIsNil(t *testing.T) {
	s, mock := newMockStore(t)
	n := validNote()
	n.ID = 9
	mock.ExpectQuery("UPDATE notes").
		WithArgs(int64(9), "A", "", "#FF0000", 1.0, 2.0, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(noteCols))

	got, err := s.UpdateNote(context.Background(), n)

	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMoveNote_ReturnsStoredRow(t *testing.T) {
	s, mock := newMockStore(t)
	moved := created.Add(time.Minute)
	mock.ExpectQuery("UPDATE notes\\s+SET position_x").
		WithArgs(int64(1), 10.0, 20.0, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(noteCols).AddRow(int64(1), "A", "", "#FF0000", 10.0, 20.0, created, moved))

	got, err := s.MoveNote(context.Background(), 1, 10, 20, moved)

	require.NoError(t, err)
	assert.Equal(t, 10.0, got.PositionX)
	assert.Equal(t, "A", got.Title)
	assert.Equal(t, moved, got.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteNote(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM notes").WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM notes").WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := s.DeleteNote(context.Background(), 1)
	require.NoError(t, err)
	second, err := s.DeleteNote(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindConnection_UsesNormalisedPair(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM note_connections\\s+WHERE LEAST").
		WithArgs(int64(2), int64(5)).
		WillReturnRows(sqlmock.NewRows(connCols).AddRow(int64(3), int64(5), int64(2), created))

	c, err := s.FindConnection(context.Background(), 2, 5)

	require.NoError(t, err)
	assert.Equal(t, int64(3), c.ID)
	assert.Equal(t, int64(5), c.SourceNoteID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateConnection_TranslatesConstraintViolations(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"unique pair", &pq.Error{Code: pgUniqueViolation}, pkgerrors.IsConflict},
		{"missing note", &pq.Error{Code: pgForeignKeyViolation}, pkgerrors.IsNotFound},
		{"driver failure", errors.New("connection reset"), pkgerrors.IsPersistence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			mock.ExpectQuery("INSERT INTO note_connections").
				WithArgs(int64(1), int64(2), sqlmock.AnyArg()).
				WillReturnError(tt.err)

			_, err := s.CreateConnection(context.Background(), entities.NewNoteConnection(1, 2, created))

			assert.True(t, tt.check(err), err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateConnection_RejectsSelfWithoutQuery(t *testing.T) {
	s, mock := newMockStore(t)

	_, err := s.CreateConnection(context.Background(), entities.NewNoteConnection(4, 4, created))

	assert.True(t, pkgerrors.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListConnections(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM note_connections ORDER BY id").
		WillReturnRows(sqlmock.NewRows(connCols).
			AddRow(int64(1), int64(1), int64(2), created).
			AddRow(int64(2), int64(2), int64(3), created))

	conns, err := s.ListConnections(context.Background())

	require.NoError(t, err)
	assert.Len(t, conns, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNotes_DatabaseError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM notes ORDER BY id").WillReturnError(errors.New("timeout"))

	_, err := s.ListNotes(context.Background())

	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeDatabase))
}

func TestNoteExists(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT EXISTS").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.NoteExists(context.Background(), 1)

	require.NoError(t, err)
	assert.True(t, ok)
}
