package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/and161185/sociallink/internal/errs"
	"github.com/and161185/sociallink/internal/model"
)

// ChangeChannel is the NOTIFY channel fed by the row-change triggers.
const ChangeChannel = "row_changes"

type notifyConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Listener turns NOTIFY payloads into change events. It holds a dedicated
// connection because LISTEN is bound to a session.
type Listener struct {
	conn notifyConn
}

// NewListener connects and subscribes to ChangeChannel.
func NewListener(ctx context.Context, dsn string) (*Listener, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	l, err := listenOn(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	return l, nil
}

func listenOn(ctx context.Context, conn notifyConn) (*Listener, error) {
	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return nil, fmt.Errorf("listen %s: %w", ChangeChannel, err)
	}
	return &Listener{conn: conn}, nil
}

type envelope struct {
	Table   string          `json:"table"`
	Op      string          `json:"op"`
	Partial bool            `json:"partial"`
	Record  json.RawMessage `json:"record"`
}

// Next blocks until the next notification. A payload that cannot be decoded
// yields an error wrapping errs.ErrMalformedEvent; the listener stays usable.
func (l *Listener) Next(ctx context.Context) (model.ChangeEvent, error) {
	n, err := l.conn.WaitForNotification(ctx)
	if err != nil {
		return model.ChangeEvent{}, err
	}
	return decodeEnvelope(n.Payload)
}

func decodeEnvelope(payload string) (model.ChangeEvent, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return model.ChangeEvent{}, fmt.Errorf("%w: %v", errs.ErrMalformedEvent, err)
	}
	if env.Table == "" || len(env.Record) == 0 {
		return model.ChangeEvent{}, fmt.Errorf("%w: missing table or record", errs.ErrMalformedEvent)
	}
	ev, err := model.NewChangeEvent(env.Table, model.ChangeOp(env.Op), env.Record)
	if err != nil {
		return model.ChangeEvent{}, fmt.Errorf("%w: %v", errs.ErrMalformedEvent, err)
	}
	ev.Partial = env.Partial
	return ev, nil
}

// Close releases the listening connection.
func (l *Listener) Close(ctx context.Context) error { return l.conn.Close(ctx) }
