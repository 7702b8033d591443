// Package repository defines the gateway storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/sociallink/internal/model"
)

// AccountRepository stores authentication records.
type AccountRepository interface {
	// Create inserts a new account; a taken email yields errs.ErrAlreadyExists.
	Create(ctx context.Context, a *model.Account) error
	// GetByEmail loads an account by its normalized email.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	// UpdatePassword replaces hash and salt.
	UpdatePassword(ctx context.Context, id uuid.UUID, hash, salt []byte) error
}

// AuthTokenRepository stores reset tickets and revoked access tokens.
type AuthTokenRepository interface {
	// SaveReset stores a pending reset ticket.
	SaveReset(ctx context.Context, r model.PasswordReset) error
	// ConsumeReset marks an unexpired, unused ticket as used and returns its account.
	ConsumeReset(ctx context.Context, digest []byte, now time.Time) (uuid.UUID, error)
	// Revoke records a token id as revoked until exp.
	Revoke(ctx context.Context, tokenID string, exp time.Time) error
	// IsRevoked reports whether a token id was revoked.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	// PruneExpired drops revocations and reset tickets past their expiry.
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

// ProfileRepository provides access to profile records.
type ProfileRepository interface {
	Create(ctx context.Context, p *model.Profile) error
	Get(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	// Summary loads the minimal projection (id, name, username, avatar_url).
	Summary(ctx context.Context, id uuid.UUID) (model.ProfileSummary, error)
	// ListOthers returns profiles except self whose username contains query (case-insensitive).
	ListOthers(ctx context.Context, self uuid.UUID, query string, limit int) ([]model.ProfileSummary, error)
	Update(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) (*model.Profile, error)
	SetAvatar(ctx context.Context, id uuid.UUID, url string) error
}

// ChatRepository provides access to chat rows.
type ChatRepository interface {
	// ListForUser returns chats where user is either participant.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]model.Chat, error)
	// FindBetween looks a chat up in either participant order.
	FindBetween(ctx context.Context, a, b uuid.UUID) (*model.Chat, error)
	// Create inserts a chat between a and b.
	Create(ctx context.Context, a, b uuid.UUID) (*model.Chat, error)
}

// MessageRepository provides access to chat messages.
type MessageRepository interface {
	// ListByChat returns the transcript ordered by created_at ascending.
	ListByChat(ctx context.Context, chatID uuid.UUID) ([]model.Message, error)
	// Latest returns the most recent message of a chat.
	Latest(ctx context.Context, chatID uuid.UUID) (*model.Message, error)
	// Get returns one message by id.
	Get(ctx context.Context, id uuid.UUID) (*model.Message, error)
	Insert(ctx context.Context, m model.NewMessage) (*model.Message, error)
	// MarkSeen stamps seen_at on messages that lack it; an empty id set is a no-op.
	MarkSeen(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error)
}

// PostRepository provides access to posts and reactions.
type PostRepository interface {
	// ListFeed returns posts joined with author name and avatar, newest first.
	ListFeed(ctx context.Context) ([]model.FeedPost, error)
	Insert(ctx context.Context, p model.NewPost) (*model.Post, error)
	HasLike(ctx context.Context, postID, userID uuid.UUID) (bool, error)
	// InsertLike records a like; an existing like yields errs.ErrAlreadyExists.
	InsertLike(ctx context.Context, postID, userID uuid.UUID) error
	DeleteLike(ctx context.Context, postID, userID uuid.UUID) error
	InsertComment(ctx context.Context, c model.PostComment) (*model.PostComment, error)
	ListComments(ctx context.Context, postID uuid.UUID) ([]model.PostComment, error)
}
