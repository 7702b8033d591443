package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/sociallink/internal/errs"
	"github.com/and161185/sociallink/internal/model"
)

func TestChatRepo_FindBetween(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewChatRepo(db)
	ctx := context.Background()
	a, b, id := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`WHERE \(user_id_1=\$1 AND user_id_2=\$2\) OR \(user_id_1=\$2 AND user_id_2=\$1\)`).
		WithArgs(a, b).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id_1", "user_id_2", "created_at"}).
			AddRow(id, b, a, time.Now()))
	c, err := r.FindBetween(ctx, a, b)
	require.NoError(t, err)
	require.Equal(t, id, c.ID)

	mock.ExpectQuery(`FROM chats`).WithArgs(a, b).WillReturnError(pgx.ErrNoRows)
	_, err = r.FindBetween(ctx, a, b)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestChatRepo_Create(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewChatRepo(db)
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO chats \(id, user_id_1, user_id_2\) VALUES \(\$1, \$2, \$3\) RETURNING created_at`).
		WithArgs(pgxmock.AnyArg(), a, b).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	c, err := r.Create(context.Background(), a, b)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, c.ID)
	require.Equal(t, a, c.UserID1)
	require.Equal(t, b, c.UserID2)
	require.Equal(t, now, c.CreatedAt)
}

func TestMessageRepo_MarkSeen_EmptyIsNoop(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMessageRepo(db)

	n, err := r.MarkSeen(context.Background(), nil, time.Now())
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_MarkSeen_Batch(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMessageRepo(db)
	ids := []uuid.UUID{uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())}
	at := time.Now()

	mock.ExpectExec(`UPDATE messages SET seen_at=\$2 WHERE id = ANY\(\$1::uuid\[\]\) AND seen_at IS NULL`).
		WithArgs([]string{ids[0].String(), ids[1].String()}, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	n, err := r.MarkSeen(context.Background(), ids, at)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestMessageRepo_Insert(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMessageRepo(db)
	chat, me := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	id := uuid.Must(uuid.NewV4())
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO messages \(id, chat_id, text, sent_by\)`).
		WithArgs(pgxmock.AnyArg(), chat, "hi", me).
		WillReturnRows(pgxmock.NewRows([]string{"id", "chat_id", "text", "sent_by", "created_at", "sent_at", "seen_at"}).
			AddRow(id, chat, "hi", me, now, &now, (*time.Time)(nil)))
	m, err := r.Insert(context.Background(), model.NewMessage{ChatID: chat, SentBy: me, Text: "hi"})
	require.NoError(t, err)
	require.Equal(t, id, m.ID)
	require.NotNil(t, m.SentAt)
	require.Nil(t, m.SeenAt)
}

func TestMessageRepo_Get(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMessageRepo(db)
	chat, me, id := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	now := time.Now()

	mock.ExpectQuery(`FROM messages WHERE id=\$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "chat_id", "text", "sent_by", "created_at", "sent_at", "seen_at"}).
			AddRow(id, chat, "long text", me, now, &now, (*time.Time)(nil)))
	m, err := r.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "long text", m.Text)
	require.Equal(t, chat, m.ChatID)

	mock.ExpectQuery(`FROM messages WHERE id=\$1`).WithArgs(id).WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(context.Background(), id)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
