package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/and161185/sociallink/internal/errs"
	"github.com/and161185/sociallink/internal/model"
)

type fakeConn struct {
	execSQL []string
	queue   []string
	closed  bool
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.execSQL = append(c.execSQL, sql)
	return pgconn.NewCommandTag("LISTEN"), nil
}

func (c *fakeConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	if len(c.queue) == 0 {
		return nil, context.Canceled
	}
	p := c.queue[0]
	c.queue = c.queue[1:]
	return &pgconn.Notification{Channel: ChangeChannel, Payload: p}, nil
}

func (c *fakeConn) Close(context.Context) error { c.closed = true; return nil }

func TestListener_Next(t *testing.T) {
	conn := &fakeConn{queue: []string{
		`{"table":"messages","op":"INSERT","record":{"id":"m1","chat_id":"c1"}}`,
		`not json`,
		`{"table":"chats","op":"UPDATE"}`,
	}}
	ctx := context.Background()
	l, err := listenOn(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, []string{"LISTEN row_changes"}, conn.execSQL)

	ev, err := l.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, model.TableMessages, ev.Table)
	require.Equal(t, model.OpInsert, ev.Op)
	v, ok := ev.Field("chat_id")
	require.True(t, ok)
	require.Equal(t, "c1", v)

	_, err = l.Next(ctx)
	require.ErrorIs(t, err, errs.ErrMalformedEvent)

	_, err = l.Next(ctx)
	require.ErrorIs(t, err, errs.ErrMalformedEvent)

	_, err = l.Next(ctx)
	require.True(t, errors.Is(err, context.Canceled))

	require.NoError(t, l.Close(ctx))
	require.True(t, conn.closed)
}

func TestListener_NextPartial(t *testing.T) {
	conn := &fakeConn{queue: []string{
		`{"table":"messages","op":"INSERT","partial":true,"record":{"id":"m1","chat_id":"c1"}}`,
		`{"table":"messages","op":"INSERT","record":{"id":"m2","chat_id":"c1","text":"hi"}}`,
	}}
	ctx := context.Background()
	l, err := listenOn(ctx, conn)
	require.NoError(t, err)

	ev, err := l.Next(ctx)
	require.NoError(t, err)
	require.True(t, ev.Partial)
	_, ok := ev.Field("text")
	require.False(t, ok)

	ev, err = l.Next(ctx)
	require.NoError(t, err)
	require.False(t, ev.Partial)
}
