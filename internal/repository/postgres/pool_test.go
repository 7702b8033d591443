package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/sociallink/internal/errs"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func TestMapErr(t *testing.T) {
	require.NoError(t, mapErr(nil))
	require.ErrorIs(t, mapErr(pgx.ErrNoRows), errs.ErrNotFound)
	require.ErrorIs(t, mapErr(&pgconn.PgError{Code: "23505"}), errs.ErrAlreadyExists)

	other := errors.New("boom")
	require.ErrorIs(t, mapErr(other), other)
}

func TestInTx_RollbackOnError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := db.inTx(context.Background(), func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}
