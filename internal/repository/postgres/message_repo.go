package postgres

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/sociallink/internal/model"
)

// MessageRepo implements MessageRepository using PostgreSQL.
type MessageRepo struct{ db *DB }

// NewMessageRepo constructs a message repository.
func NewMessageRepo(db *DB) *MessageRepo { return &MessageRepo{db: db} }

const messageColumns = `id, chat_id, text, sent_by, created_at, sent_at, seen_at`

func scanMessage(row pgx.Row) (model.Message, error) {
	var m model.Message
	err := row.Scan(&m.ID, &m.ChatID, &m.Text, &m.SentBy, &m.CreatedAt, &m.SentAt, &m.SeenAt)
	return m, err
}

// ListByChat returns the transcript oldest first.
func (r *MessageRepo) ListByChat(ctx context.Context, chatID uuid.UUID) ([]model.Message, error) {
	q := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id=$1 ORDER BY created_at, id`
	rows, err := r.db.Pool.Query(ctx, q, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Latest returns the newest message of a chat, or errs.ErrNotFound.
func (r *MessageRepo) Latest(ctx context.Context, chatID uuid.UUID) (*model.Message, error) {
	q := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1`
	m, err := scanMessage(r.db.Pool.QueryRow(ctx, q, chatID))
	if err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

// Get returns a message by id, or errs.ErrNotFound.
func (r *MessageRepo) Get(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	q := `SELECT ` + messageColumns + ` FROM messages WHERE id=$1`
	m, err := scanMessage(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

// Insert stores a message and returns the row as written.
func (r *MessageRepo) Insert(ctx context.Context, nm model.NewMessage) (*model.Message, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	q := `INSERT INTO messages (id, chat_id, text, sent_by) VALUES ($1, $2, $3, $4) RETURNING ` + messageColumns
	m, err := scanMessage(r.db.Pool.QueryRow(ctx, q, id, nm.ChatID, nm.Text, nm.SentBy))
	if err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

// MarkSeen stamps seen_at on the given messages that have not been seen yet.
func (r *MessageRepo) MarkSeen(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	const q = `UPDATE messages SET seen_at=$2 WHERE id = ANY($1::uuid[]) AND seen_at IS NULL`
	tag, err := r.db.Pool.Exec(ctx, q, keys, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
