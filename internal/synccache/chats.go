package synccache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/sociallink/internal/errs"
	"github.com/and161185/sociallink/internal/model"
	"github.com/and161185/sociallink/internal/repository"
)

// ProfileResolver looks up the participant projection of a profile.
type ProfileResolver interface {
	Summary(ctx context.Context, id uuid.UUID) (model.ProfileSummary, error)
}

// loadConcurrency bounds per-chat lookups during LoadChats.
const loadConcurrency = 8

// ChatCache is the chat list of one signed-in user.
type ChatCache struct {
	userID   uuid.UUID
	chats    repository.ChatRepository
	msgs     repository.MessageRepository
	profiles ProfileResolver
	log      *zap.Logger
	sf       singleflight.Group

	mu    sync.RWMutex
	items []model.ChatItem
}

// NewChatCache constructs an empty chat list for userID.
func NewChatCache(userID uuid.UUID, chats repository.ChatRepository, msgs repository.MessageRepository,
	profiles ProfileResolver, log *zap.Logger) *ChatCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatCache{userID: userID, chats: chats, msgs: msgs, profiles: profiles, log: log}
}

// UserID returns the owner of the list.
func (c *ChatCache) UserID() uuid.UUID { return c.userID }

// Chats returns a snapshot of the list.
func (c *ChatCache) Chats() []model.ChatItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.ChatItem, len(c.items))
	for i, it := range c.items {
		it.LastMessage = cloneMessage(it.LastMessage)
		out[i] = it
	}
	return out
}

// Has reports whether chatID is in the list.
func (c *ChatCache) Has(chatID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return indexOfChat(c.items, chatID) >= 0
}

// LoadChats fetches every chat of userID with its participant and last
// message and replaces the list. On error the previous list is kept.
func (c *ChatCache) LoadChats(ctx context.Context, userID uuid.UUID) error {
	if userID != c.userID {
		return errs.ErrUnauthorized
	}
	rows, err := c.chats.ListForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}

	others := make([]uuid.UUID, len(rows))
	for i, ch := range rows {
		other, ok := ch.Counterpart(userID)
		if !ok {
			return fmt.Errorf("chat %s does not include %s", ch.ID, userID)
		}
		others[i] = other
	}

	items := make([]model.ChatItem, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, ch := range rows {
		other := others[i]
		g.Go(func() error {
			it := model.ChatItem{ChatID: ch.ID, CreatedAt: ch.CreatedAt}
			it.Participant, it.Resolved = c.resolve(gctx, other)

			last, err := c.msgs.Latest(gctx, ch.ID)
			switch {
			case err == nil:
				it.LastMessage = last
			case !errors.Is(err, errs.ErrNotFound):
				return fmt.Errorf("latest message of %s: %w", ch.ID, err)
			}
			items[i] = it
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sortChats(items)
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return nil
}

// sortChats orders by newest activity first, ties by chat id.
func sortChats(items []model.ChatItem) {
	sort.SliceStable(items, func(i, j int) bool {
		ai, aj := activity(items[i]), activity(items[j])
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return items[i].ChatID.String() < items[j].ChatID.String()
	})
}

// resolve fetches a participant, falling back to the placeholder.
func (c *ChatCache) resolve(ctx context.Context, id uuid.UUID) (model.ProfileSummary, bool) {
	s, err := c.profiles.Summary(ctx, id)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			c.log.Warn("participant lookup failed", zap.String("profile_id", id.String()), zap.Error(err))
		}
		return model.PlaceholderSummary(id), false
	}
	return s, true
}

// CreateChat returns the chat with targetID, creating it if none exists.
// Calling it again for the same target returns the same chat. Concurrent
// calls for one target share a single gateway round trip.
func (c *ChatCache) CreateChat(ctx context.Context, targetID uuid.UUID) (model.ChatItem, error) {
	if targetID == c.userID || targetID == uuid.Nil {
		return model.ChatItem{}, fmt.Errorf("%w: cannot chat with %s", errs.ErrValidation, targetID)
	}
	v, err, _ := c.sf.Do(targetID.String(), func() (any, error) {
		return c.createChat(ctx, targetID)
	})
	if err != nil {
		return model.ChatItem{}, err
	}
	return v.(model.ChatItem), nil
}

func (c *ChatCache) createChat(ctx context.Context, targetID uuid.UUID) (model.ChatItem, error) {
	ch, err := c.chats.FindBetween(ctx, c.userID, targetID)
	fresh := false
	switch {
	case errors.Is(err, errs.ErrNotFound):
		if ch, err = c.chats.Create(ctx, c.userID, targetID); err != nil {
			return model.ChatItem{}, fmt.Errorf("create chat: %w", err)
		}
		fresh = true
	case err != nil:
		return model.ChatItem{}, fmt.Errorf("find chat: %w", err)
	}

	it := model.ChatItem{ChatID: ch.ID, CreatedAt: ch.CreatedAt}
	it.Participant, it.Resolved = c.resolve(ctx, targetID)
	if !fresh {
		last, err := c.msgs.Latest(ctx, ch.ID)
		switch {
		case err == nil:
			it.LastMessage = last
		case !errors.Is(err, errs.ErrNotFound):
			return model.ChatItem{}, fmt.Errorf("latest message of %s: %w", ch.ID, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if i := indexOfChat(c.items, it.ChatID); i >= 0 {
		// the change feed may have delivered it first; prefer resolved data
		if it.Resolved || !c.items[i].Resolved {
			c.items[i].Participant, c.items[i].Resolved = it.Participant, it.Resolved
		}
		if c.items[i].LastMessage == nil {
			c.items[i].LastMessage = it.LastMessage
		}
		out := c.items[i]
		out.LastMessage = cloneMessage(out.LastMessage)
		return out, nil
	}
	c.items = append([]model.ChatItem{it}, c.items...)
	it.LastMessage = cloneMessage(it.LastMessage)
	return it, nil
}

// ApplyChatEvent merges a chat row from the change feed. It reports whether
// the entry still needs its participant resolved (see ResolveParticipant).
func (c *ChatCache) ApplyChatEvent(ch model.Chat) bool {
	other, ok := ch.Counterpart(c.userID)
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := indexOfChat(c.items, ch.ID); i >= 0 {
		it := &c.items[i]
		it.CreatedAt = ch.CreatedAt
		if it.Participant.ID != other {
			it.Participant, it.Resolved = model.PlaceholderSummary(other), false
		}
		return !it.Resolved
	}
	c.items = append([]model.ChatItem{{
		ChatID:      ch.ID,
		Participant: model.PlaceholderSummary(other),
		CreatedAt:   ch.CreatedAt,
	}}, c.items...)
	return true
}

// ResolveParticipant fetches the participant of chatID and applies it if the
// entry is still present and unchanged.
func (c *ChatCache) ResolveParticipant(ctx context.Context, chatID uuid.UUID) error {
	c.mu.RLock()
	i := indexOfChat(c.items, chatID)
	var pid uuid.UUID
	if i >= 0 {
		pid = c.items[i].Participant.ID
	}
	c.mu.RUnlock()
	if i < 0 {
		return errs.ErrNotFound
	}

	s, err := c.profiles.Summary(ctx, pid)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil
		}
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if i = indexOfChat(c.items, chatID); i >= 0 && c.items[i].Participant.ID == pid {
		c.items[i].Participant, c.items[i].Resolved = s, true
	}
	return nil
}

// ApplyMessagePreview updates the last-message preview of a cached chat.
// Messages of chats not in the list are discarded. It reports whether the
// list changed.
func (c *ChatCache) ApplyMessagePreview(m model.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := indexOfChat(c.items, m.ChatID)
	if i < 0 {
		return false
	}
	it := &c.items[i]
	switch {
	case it.LastMessage == nil:
		it.LastMessage = cloneMessage(&m)
	case it.LastMessage.ID == m.ID:
		merged := mergeMessage(*it.LastMessage, m)
		it.LastMessage = &merged
	case !m.CreatedAt.Before(it.LastMessage.CreatedAt):
		it.LastMessage = cloneMessage(&m)
	default:
		return false
	}
	return true
}
