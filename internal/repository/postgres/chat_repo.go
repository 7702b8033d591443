package postgres

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/sociallink/internal/model"
)

// ChatRepo implements ChatRepository using PostgreSQL.
type ChatRepo struct{ db *DB }

// NewChatRepo constructs a chat repository.
func NewChatRepo(db *DB) *ChatRepo { return &ChatRepo{db: db} }

// ListForUser returns chats where userID is either participant.
func (r *ChatRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.Chat, error) {
	const q = `
SELECT id, user_id_1, user_id_2, created_at
FROM chats
WHERE user_id_1=$1 OR user_id_2=$1
ORDER BY created_at DESC, id`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Chat
	for rows.Next() {
		var c model.Chat
		if err = rows.Scan(&c.ID, &c.UserID1, &c.UserID2, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindBetween looks up a chat between a and b in either order.
func (r *ChatRepo) FindBetween(ctx context.Context, a, b uuid.UUID) (*model.Chat, error) {
	const q = `
SELECT id, user_id_1, user_id_2, created_at
FROM chats
WHERE (user_id_1=$1 AND user_id_2=$2) OR (user_id_1=$2 AND user_id_2=$1)
ORDER BY created_at, id
LIMIT 1`
	var c model.Chat
	if err := r.db.Pool.QueryRow(ctx, q, a, b).Scan(&c.ID, &c.UserID1, &c.UserID2, &c.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

// Create inserts a chat with a as user_id_1.
func (r *ChatRepo) Create(ctx context.Context, a, b uuid.UUID) (*model.Chat, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	const q = `INSERT INTO chats (id, user_id_1, user_id_2) VALUES ($1, $2, $3) RETURNING created_at`
	var created time.Time
	if err := r.db.Pool.QueryRow(ctx, q, id, a, b).Scan(&created); err != nil {
		return nil, mapErr(err)
	}
	return &model.Chat{ID: id, UserID1: a, UserID2: b, CreatedAt: created}, nil
}
