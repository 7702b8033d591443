package synccache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/sociallink/internal/errs"
	"github.com/and161185/sociallink/internal/model"
	"github.com/and161185/sociallink/internal/repository"
)

// Transcript is the ordered message list of one open chat.
type Transcript struct {
	chatID uuid.UUID
	userID uuid.UUID
	msgs   repository.MessageRepository
	log    *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	items []model.Message
}

// NewTranscript constructs an empty transcript of chatID viewed by userID.
func NewTranscript(chatID, userID uuid.UUID, msgs repository.MessageRepository, log *zap.Logger) *Transcript {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transcript{chatID: chatID, userID: userID, msgs: msgs, log: log, now: time.Now}
}

// ChatID returns the chat the transcript belongs to.
func (t *Transcript) ChatID() uuid.UUID { return t.chatID }

// Messages returns a snapshot ordered by created_at.
func (t *Transcript) Messages() []model.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.Message, len(t.items))
	copy(out, t.items)
	return out
}

// LoadMessages fetches the full transcript and marks every unseen
// counterpart message as seen in one write. Nothing is replaced unless both
// steps succeed.
func (t *Transcript) LoadMessages(ctx context.Context) error {
	list, err := t.msgs.ListByChat(ctx, t.chatID)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	var unseen []uuid.UUID
	for _, m := range list {
		if m.SentBy != t.userID && m.SeenAt == nil {
			unseen = append(unseen, m.ID)
		}
	}
	if len(unseen) > 0 {
		at := t.now()
		if _, err := t.msgs.MarkSeen(ctx, unseen, at); err != nil {
			return fmt.Errorf("mark seen: %w", err)
		}
		for i := range list {
			if list[i].SentBy != t.userID && list[i].SeenAt == nil {
				list[i].SeenAt = &at
			}
		}
	}

	t.mu.Lock()
	t.items = list
	t.mu.Unlock()
	return nil
}

// SendMessage stores text as a message from the viewer and merges the
// confirmed row. The change-feed echo of the same row merges into the same
// slot later.
func (t *Transcript) SendMessage(ctx context.Context, text string) (model.Message, error) {
	if strings.TrimSpace(text) == "" {
		return model.Message{}, errs.ErrEmptyMessage
	}
	m, err := t.msgs.Insert(ctx, model.NewMessage{ChatID: t.chatID, SentBy: t.userID, Text: text})
	if err != nil {
		return model.Message{}, fmt.Errorf("send message: %w", err)
	}
	t.mu.Lock()
	t.items = upsertMessage(t.items, *m)
	t.mu.Unlock()
	return *m, nil
}

// ApplyMessageEvent merges a message from the change feed. A counterpart
// message without seen_at is marked seen first, since the chat is on screen.
// If that write fails the message is still merged and the error returned.
func (t *Transcript) ApplyMessageEvent(ctx context.Context, m model.Message) error {
	if m.ChatID != t.chatID {
		return nil
	}
	var seenErr error
	if m.SentBy != t.userID && m.SeenAt == nil {
		at := t.now()
		if _, err := t.msgs.MarkSeen(ctx, []uuid.UUID{m.ID}, at); err != nil {
			seenErr = fmt.Errorf("mark seen %s: %w", m.ID, err)
		} else {
			m.SeenAt = &at
		}
	}
	t.mu.Lock()
	t.items = upsertMessage(t.items, m)
	t.mu.Unlock()
	return seenErr
}
