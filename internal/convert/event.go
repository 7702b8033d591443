// Package convert decodes change-feed records into domain types and validates them.
// Anything that does not decode into a well-formed record is rejected with errs.ErrMalformedEvent.
package convert

import (
	"encoding/json"
	"fmt"
	"time"

	u "github.com/gofrs/uuid/v5"

	"github.com/and161185/sociallink/internal/errs"
	model "github.com/and161185/sociallink/internal/model"
)

// --- helpers ---

func malformed(table, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", errs.ErrMalformedEvent, table, fmt.Sprintf(format, args...))
}

func parseID(table, field, s string) (u.UUID, error) {
	id, err := u.FromString(s)
	if err != nil || id == u.Nil {
		return u.Nil, malformed(table, "invalid %s %q", field, s)
	}
	return id, nil
}

func expect(ev model.ChangeEvent, table string) error {
	if ev.Table != table {
		return malformed(table, "unexpected table %q", ev.Table)
	}
	switch ev.Op {
	case model.OpInsert, model.OpUpdate:
		return nil
	default:
		return malformed(table, "unsupported op %q", ev.Op)
	}
}

// --- messages ---

type messageRecord struct {
	ID        string     `json:"id"`
	ChatID    string     `json:"chat_id"`
	Text      *string    `json:"text"`
	SentBy    string     `json:"sent_by"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at"`
	SeenAt    *time.Time `json:"seen_at"`
}

// Message decodes a messages row. A partial event may omit text; the
// returned message then has an empty Text and must be re-read by id.
func Message(ev model.ChangeEvent) (model.Message, error) {
	const t = model.TableMessages
	if err := expect(ev, t); err != nil {
		return model.Message{}, err
	}
	var r messageRecord
	if err := json.Unmarshal(ev.Record, &r); err != nil {
		return model.Message{}, malformed(t, "%v", err)
	}
	id, err := parseID(t, "id", r.ID)
	if err != nil {
		return model.Message{}, err
	}
	chatID, err := parseID(t, "chat_id", r.ChatID)
	if err != nil {
		return model.Message{}, err
	}
	sentBy, err := parseID(t, "sent_by", r.SentBy)
	if err != nil {
		return model.Message{}, err
	}
	if r.Text == nil && !ev.Partial {
		return model.Message{}, malformed(t, "missing text")
	}
	if r.CreatedAt.IsZero() {
		return model.Message{}, malformed(t, "missing created_at")
	}
	m := model.Message{
		ID:        id,
		ChatID:    chatID,
		SentBy:    sentBy,
		CreatedAt: r.CreatedAt,
		SentAt:    r.SentAt,
		SeenAt:    r.SeenAt,
	}
	if r.Text != nil {
		m.Text = *r.Text
	}
	return m, nil
}

// --- chats ---

type chatRecord struct {
	ID        string    `json:"id"`
	UserID1   string    `json:"user_id_1"`
	UserID2   string    `json:"user_id_2"`
	CreatedAt time.Time `json:"created_at"`
}

// Chat decodes a chats row.
func Chat(ev model.ChangeEvent) (model.Chat, error) {
	const t = model.TableChats
	if err := expect(ev, t); err != nil {
		return model.Chat{}, err
	}
	var r chatRecord
	if err := json.Unmarshal(ev.Record, &r); err != nil {
		return model.Chat{}, malformed(t, "%v", err)
	}
	id, err := parseID(t, "id", r.ID)
	if err != nil {
		return model.Chat{}, err
	}
	a, err := parseID(t, "user_id_1", r.UserID1)
	if err != nil {
		return model.Chat{}, err
	}
	b, err := parseID(t, "user_id_2", r.UserID2)
	if err != nil {
		return model.Chat{}, err
	}
	if a == b {
		return model.Chat{}, malformed(t, "participants are equal")
	}
	return model.Chat{ID: id, UserID1: a, UserID2: b, CreatedAt: r.CreatedAt}, nil
}

// --- posts ---

type postRecord struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Type          string    `json:"type"`
	Content       string    `json:"content"`
	MediaURL      *string   `json:"media_url"`
	LikesCount    int64     `json:"likes_count"`
	CommentsCount int64     `json:"comments_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Post decodes a posts row. The feed reloads on post events, so callers
// mostly use this to validate before triggering a reload.
func Post(ev model.ChangeEvent) (model.Post, error) {
	const t = model.TablePosts
	if err := expect(ev, t); err != nil {
		return model.Post{}, err
	}
	var r postRecord
	if err := json.Unmarshal(ev.Record, &r); err != nil {
		return model.Post{}, malformed(t, "%v", err)
	}
	id, err := parseID(t, "id", r.ID)
	if err != nil {
		return model.Post{}, err
	}
	author, err := parseID(t, "user_id", r.UserID)
	if err != nil {
		return model.Post{}, err
	}
	typ := model.PostType(r.Type)
	if !typ.Valid() {
		return model.Post{}, malformed(t, "unknown type %q", r.Type)
	}
	if r.LikesCount < 0 || r.CommentsCount < 0 {
		return model.Post{}, malformed(t, "negative counters")
	}
	return model.Post{
		ID:            id,
		UserID:        author,
		Type:          typ,
		Content:       r.Content,
		MediaURL:      r.MediaURL,
		LikesCount:    r.LikesCount,
		CommentsCount: r.CommentsCount,
		CreatedAt:     r.CreatedAt,
	}, nil
}
