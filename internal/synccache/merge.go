// Package synccache keeps the signed-in user's chats, open transcripts and the
// post feed consistent with the gateway and its change feed.
//
// Every cache is guarded by its own mutex. Gateway calls never run under a
// cache lock; the lock is taken only to read inputs and to apply results.
package synccache

import (
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/sociallink/internal/model"
)

// mergeMessage folds an incoming copy of a message into the stored one.
// Delivery timestamps never go from set back to unset.
func mergeMessage(old, in model.Message) model.Message {
	out := in
	if out.SentAt == nil {
		out.SentAt = old.SentAt
	}
	if out.SeenAt == nil {
		out.SeenAt = old.SeenAt
	}
	return out
}

// upsertMessage replaces the message with the same id in place, or appends it.
func upsertMessage(list []model.Message, m model.Message) []model.Message {
	for i := range list {
		if list[i].ID == m.ID {
			list[i] = mergeMessage(list[i], m)
			return list
		}
	}
	return append(list, m)
}

func cloneMessage(m *model.Message) *model.Message {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

func indexOfChat(items []model.ChatItem, id uuid.UUID) int {
	for i := range items {
		if items[i].ChatID == id {
			return i
		}
	}
	return -1
}

// activity is the instant a chat list entry sorts by.
func activity(it model.ChatItem) time.Time {
	if it.LastMessage != nil {
		return it.LastMessage.CreatedAt
	}
	return it.CreatedAt
}
