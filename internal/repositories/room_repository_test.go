package repositories

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, dbmock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), dbmock
}

var roomColumns = []string{"id", "chat_key", "name", "type", "created_at"}

func TestGetOrCreateDirectReturnsExisting(t *testing.T) {
	db, dbmock := newMockDB(t)
	repo := NewRoomRepo(db)

	dbmock.ExpectQuery(regexp.QuoteMeta("FROM rooms WHERE chat_key=$1")).
		WithArgs("1:2", "DIRECT").
		WillReturnRows(sqlmock.NewRows(roomColumns).AddRow(5, "1:2", "1:2", "DIRECT", time.Now()))

	room, created, err := repo.GetOrCreateDirect(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 5, room.ID)
	require.NoError(t, dbmock.ExpectationsWereMet())
}

func TestGetOrCreateDirectCreatesRoomAndMemberships(t *testing.T) {
	db, dbmock := newMockDB(t)
	repo := NewRoomRepo(db)

	dbmock.ExpectQuery(regexp.QuoteMeta("FROM rooms WHERE chat_key=$1")).
		WithArgs("1:2", "DIRECT").
		WillReturnError(sql.ErrNoRows)
	dbmock.ExpectBegin()
	dbmock.ExpectQuery(regexp.QuoteMeta("INSERT INTO rooms")).
		WithArgs("1:2", "1:2", "DIRECT").
		WillReturnRows(sqlmock.NewRows(roomColumns).AddRow(5, "1:2", "1:2", "DIRECT", time.Now()))
	dbmock.ExpectExec(regexp.QuoteMeta("INSERT INTO room_members")).
		WithArgs(5, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbmock.ExpectExec(regexp.QuoteMeta("INSERT INTO room_members")).
		WithArgs(5, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbmock.ExpectCommit()

	room, created, err := repo.GetOrCreateDirect(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 5, room.ID)
	assert.Equal(t, "1:2", room.ChatKey)
	require.NoError(t, dbmock.ExpectationsWereMet())
}

func TestGetOrCreateDirectLosesRaceAndReadsWinner(t *testing.T) {
	db, dbmock := newMockDB(t)
	repo := NewRoomRepo(db)

	dbmock.ExpectQuery(regexp.QuoteMeta("FROM rooms WHERE chat_key=$1")).
		WithArgs("1:2", "DIRECT").
		WillReturnError(sql.ErrNoRows)
	dbmock.ExpectBegin()
	dbmock.ExpectQuery(regexp.QuoteMeta("INSERT INTO rooms")).
		WithArgs("1:2", "1:2", "DIRECT").
		WillReturnError(&pq.Error{Code: "23505"})
	dbmock.ExpectRollback()
	dbmock.ExpectQuery(regexp.QuoteMeta("FROM rooms WHERE chat_key=$1")).
		WithArgs("1:2", "DIRECT").
		WillReturnRows(sqlmock.NewRows(roomColumns).AddRow(9, "1:2", "1:2", "DIRECT", time.Now()))

	room, created, err := repo.GetOrCreateDirect(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.False(t, created, "losing the insert race must not report a creation")
	assert.Equal(t, 9, room.ID)
	require.NoError(t, dbmock.ExpectationsWereMet())
}

func TestGetOrCreateDirectPropagatesOtherInsertErrors(t *testing.T) {
	db, dbmock := newMockDB(t)
	repo := NewRoomRepo(db)

	dbmock.ExpectQuery(regexp.QuoteMeta("FROM rooms WHERE chat_key=$1")).
		WithArgs("1:2", "DIRECT").
		WillReturnError(sql.ErrNoRows)
	dbmock.ExpectBegin()
	dbmock.ExpectQuery(regexp.QuoteMeta("INSERT INTO rooms")).
		WithArgs("1:2", "1:2", "DIRECT").
		WillReturnError(&pq.Error{Code: "53300"})
	dbmock.ExpectRollback()

	_, _, err := repo.GetOrCreateDirect(context.Background(), 1, 2)
	require.Error(t, err)
	require.NoError(t, dbmock.ExpectationsWereMet())
}

func TestLeaveRoomUnknownRoomIsNoOp(t *testing.T) {
	db, dbmock := newMockDB(t)
	repo := NewRoomRepo(db)

	dbmock.ExpectBegin()
	dbmock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(99).
		WillReturnError(sql.ErrNoRows)
	dbmock.ExpectCommit()

	removed, err := repo.LeaveRoom(context.Background(), 99, 1)
	require.NoError(t, err)
	assert.False(t, removed)
	require.NoError(t, dbmock.ExpectationsWereMet())
}

func TestLeaveRoomNonMemberIsNoOp(t *testing.T) {
	db, dbmock := newMockDB(t)
	repo := NewRoomRepo(db)

	dbmock.ExpectBegin()
	dbmock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	dbmock.ExpectExec(regexp.QuoteMeta("DELETE FROM room_members")).
		WithArgs(3, 9).
		WillReturnResult(sqlmock.NewResult(0, 0))
	dbmock.ExpectCommit()

	removed, err := repo.LeaveRoom(context.Background(), 3, 9)
	require.NoError(t, err)
	assert.False(t, removed)
	require.NoError(t, dbmock.ExpectationsWereMet())
}

func TestLeaveRoomOthersRemain(t *testing.T) {
	db, dbmock := newMockDB(t)
	repo := NewRoomRepo(db)

	dbmock.ExpectBegin()
	dbmock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	dbmock.ExpectExec(regexp.QuoteMeta("DELETE FROM room_members")).
		WithArgs(3, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbmock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM room_members")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	dbmock.ExpectCommit()

	removed, err := repo.LeaveRoom(context.Background(), 3, 1)
	require.NoError(t, err)
	assert.False(t, removed, "room must survive while members remain")
	require.NoError(t, dbmock.ExpectationsWereMet())
}

func TestLeaveRoomLastMemberRemovesRoomAndMessages(t *testing.T) {
	db, dbmock := newMockDB(t)
	repo := NewRoomRepo(db)

	dbmock.ExpectBegin()
	dbmock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	dbmock.ExpectExec(regexp.QuoteMeta("DELETE FROM room_members")).
		WithArgs(3, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbmock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM room_members")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	dbmock.ExpectExec(regexp.QuoteMeta("DELETE FROM messages")).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 12))
	dbmock.ExpectExec(regexp.QuoteMeta("DELETE FROM rooms")).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbmock.ExpectCommit()

	removed, err := repo.LeaveRoom(context.Background(), 3, 2)
	require.NoError(t, err)
	assert.True(t, removed)
	require.NoError(t, dbmock.ExpectationsWereMet())
}
