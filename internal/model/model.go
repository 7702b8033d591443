// Package model defines domain entities shared by the gateway, the sync cache and the views.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Profile is the public identity record of a user.
type Profile struct {
	ID             uuid.UUID // PK, equals the account id
	Name           string
	Username       *string // unique; nil during onboarding
	AvatarURL      string
	Bio            string
	Website        string
	Location       string
	FollowersCount int64
	FollowingCount int64
	PostsCount     int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Summary returns the minimal projection of the profile.
func (p Profile) Summary() ProfileSummary {
	s := ProfileSummary{ID: p.ID, Name: p.Name, AvatarURL: p.AvatarURL}
	if p.Username != nil {
		s.Username = *p.Username
	}
	return s
}

// ProfileSummary is the projection used for chat participants and post authors.
type ProfileSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
}

// UnknownName is displayed for a participant whose profile is not resolved yet.
const UnknownName = "Unknown"

// PlaceholderSummary returns the unresolved participant shown until a profile fetch completes.
func PlaceholderSummary(id uuid.UUID) ProfileSummary {
	return ProfileSummary{ID: id, Name: UnknownName}
}

// ProfileUpdate carries editable profile fields; nil means "leave unchanged".
type ProfileUpdate struct {
	Name     *string `validate:"omitempty,max=80"`
	Username *string `validate:"omitempty,username"`
	Bio      *string `validate:"omitempty,max=280"`
	Website  *string `validate:"omitempty,url"`
	Location *string `validate:"omitempty,max=80"`
}

// Chat is a stored pairing of exactly two profiles.
type Chat struct {
	ID        uuid.UUID
	UserID1   uuid.UUID
	UserID2   uuid.UUID
	CreatedAt time.Time
}

// Counterpart returns the participant that is not self, and whether self participates at all.
func (c Chat) Counterpart(self uuid.UUID) (uuid.UUID, bool) {
	switch self {
	case c.UserID1:
		return c.UserID2, true
	case c.UserID2:
		return c.UserID1, true
	default:
		return uuid.Nil, false
	}
}

// ChatItem is a chat list entry as rendered for the signed-in user.
type ChatItem struct {
	ChatID      uuid.UUID
	Participant ProfileSummary
	LastMessage *Message
	Resolved    bool // false while Participant is the placeholder
	CreatedAt   time.Time
}

// Message is a single chat message. Only SentAt and SeenAt change after insert.
type Message struct {
	ID        uuid.UUID
	ChatID    uuid.UUID
	Text      string
	SentBy    uuid.UUID
	CreatedAt time.Time
	SentAt    *time.Time // set once the gateway acknowledged the write
	SeenAt    *time.Time // set once the recipient viewed it
}

// NewMessage is a send intent.
type NewMessage struct {
	ChatID uuid.UUID
	SentBy uuid.UUID
	Text   string
}

// PostType tells how a post's media is rendered.
type PostType string

// Post types.
const (
	PostImage PostType = "image"
	PostVideo PostType = "video"
	PostText  PostType = "text"
)

// Valid reports whether t is a known post type.
func (t PostType) Valid() bool {
	switch t {
	case PostImage, PostVideo, PostText:
		return true
	}
	return false
}

// Post is a stored post. Counters are maintained by gateway triggers.
type Post struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Type          PostType
	Content       string
	MediaURL      *string
	LikesCount    int64
	CommentsCount int64
	CreatedAt     time.Time
}

// FeedPost is a post joined with its author projection.
type FeedPost struct {
	Post
	AuthorName   string
	AuthorAvatar string
}

// NewPost is a publish intent.
type NewPost struct {
	UserID   uuid.UUID
	Type     PostType
	Content  string
	MediaURL *string
}

// PostComment is a comment on a post, optionally replying to another comment.
type PostComment struct {
	ID              uuid.UUID
	PostID          uuid.UUID
	UserID          uuid.UUID
	Text            string
	ParentCommentID *uuid.UUID
	CreatedAt       time.Time
}
