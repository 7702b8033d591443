// Package session owns the per-user caches and their change-feed consumers
// for the lifetime of one signed-in session.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/sociallink/internal/changefeed"
	"github.com/and161185/sociallink/internal/convert"
	"github.com/and161185/sociallink/internal/errs"
	"github.com/and161185/sociallink/internal/model"
	"github.com/and161185/sociallink/internal/repository"
	"github.com/and161185/sociallink/internal/synccache"
)

// Deps are the collaborators a session is built from.
type Deps struct {
	Chats    repository.ChatRepository
	Messages repository.MessageRepository
	Posts    repository.PostRepository
	Profiles synccache.ProfileResolver
	Hub      *changefeed.Hub
	Log      *zap.Logger
}

// Kind tells what changed.
type Kind int

// Change kinds.
const (
	ChatsChanged Kind = iota + 1
	PostsChanged
	TranscriptChanged
	// FeedStopped is reported once when the change feed stops under a live
	// session. Caches keep their last state but no longer update.
	FeedStopped
)

// Change is reported after a change-feed event was applied.
type Change struct {
	Kind   Kind
	ChatID uuid.UUID // set for TranscriptChanged
	Err    error     // set for FeedStopped when the feed failed
}

// Option configures Start.
type Option func(*Session)

// WithOnChange registers a callback invoked from consumer goroutines after
// each applied change. It must not block.
func WithOnChange(fn func(Change)) Option {
	return func(s *Session) { s.onChange = fn }
}

// Session is the state of one signed-in user.
type Session struct {
	auth model.Session
	deps Deps
	log  *zap.Logger

	Chats *synccache.ChatCache
	Posts *synccache.PostCache

	onChange func(Change)
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu    sync.Mutex
	subs  []*changefeed.Subscription
	views map[*ChatView]struct{}
	ended bool
}

// Start builds the caches for auth, subscribes to the change feed, performs
// the initial loads and starts the consumers. Subscriptions are registered
// before loading so nothing that changes during the load is missed.
func Start(ctx context.Context, deps Deps, auth model.Session, opts ...Option) (*Session, error) {
	if auth.UserID == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("user_id", auth.UserID.String()))

	s := &Session{
		auth:  auth,
		deps:  deps,
		log:   log,
		Chats: synccache.NewChatCache(auth.UserID, deps.Chats, deps.Messages, deps.Profiles, log),
		Posts: synccache.NewPostCache(auth.UserID, deps.Posts, log),
		views: map[*ChatView]struct{}{},
	}
	for _, o := range opts {
		o(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	uid := auth.UserID.String()
	chats1 := deps.Hub.Subscribe(changefeed.Filter{Table: model.TableChats, Column: "user_id_1", Value: uid})
	chats2 := deps.Hub.Subscribe(changefeed.Filter{Table: model.TableChats, Column: "user_id_2", Value: uid})
	previews := deps.Hub.Subscribe(changefeed.Filter{Table: model.TableMessages})
	posts := deps.Hub.Subscribe(changefeed.Filter{Table: model.TablePosts})
	s.subs = []*changefeed.Subscription{chats1, chats2, previews, posts}

	if err := s.Chats.LoadChats(ctx, auth.UserID); err != nil {
		s.End()
		return nil, fmt.Errorf("load chats: %w", err)
	}
	if err := s.Posts.LoadPosts(ctx); err != nil {
		s.End()
		return nil, fmt.Errorf("load posts: %w", err)
	}

	s.consume(chats1, s.applyChat)
	s.consume(chats2, s.applyChat)
	s.consume(previews, s.applyPreview)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = changefeed.ConsumeBatch(s.ctx, posts, s.applyPosts)
	}()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.ctx.Done():
		case <-deps.Hub.Done():
			err := deps.Hub.Err()
			s.log.Warn("change feed stopped", zap.Error(err))
			s.notify(Change{Kind: FeedStopped, Err: err})
		}
	}()
	return s, nil
}

// Auth returns the authenticated session data.
func (s *Session) Auth() model.Session { return s.auth }

// UserID returns the signed-in user.
func (s *Session) UserID() uuid.UUID { return s.auth.UserID }

func (s *Session) consume(sub *changefeed.Subscription, apply func(context.Context, model.ChangeEvent)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = changefeed.Consume(s.ctx, sub, apply)
	}()
}

func (s *Session) notify(c Change) {
	if s.onChange != nil {
		s.onChange(c)
	}
}

func (s *Session) applyChat(ctx context.Context, ev model.ChangeEvent) {
	ch, err := convert.Chat(ev)
	if err != nil {
		s.log.Warn("dropping chat event", zap.Error(err))
		return
	}
	if s.Chats.ApplyChatEvent(ch) {
		if err := s.Chats.ResolveParticipant(ctx, ch.ID); err != nil && ctx.Err() == nil {
			s.log.Warn("resolve participant", zap.String("chat_id", ch.ID.String()), zap.Error(err))
		}
	}
	s.notify(Change{Kind: ChatsChanged})
}

// message decodes a message event, re-reading rows that arrived partial.
func (s *Session) message(ctx context.Context, ev model.ChangeEvent) (model.Message, error) {
	m, err := convert.Message(ev)
	if err != nil || !ev.Partial {
		return m, err
	}
	full, err := s.deps.Messages.Get(ctx, m.ID)
	if err != nil {
		return model.Message{}, fmt.Errorf("fetch message %s: %w", m.ID, err)
	}
	return *full, nil
}

func (s *Session) applyPreview(ctx context.Context, ev model.ChangeEvent) {
	m, err := s.message(ctx, ev)
	if err != nil {
		s.log.Warn("dropping message event", zap.Error(err))
		return
	}
	if s.Chats.ApplyMessagePreview(m) {
		s.notify(Change{Kind: ChatsChanged})
	}
}

func (s *Session) applyPosts(ctx context.Context, evs []model.ChangeEvent) {
	valid := 0
	for _, ev := range evs {
		if _, err := convert.Post(ev); err != nil {
			s.log.Warn("dropping post event", zap.Error(err))
			continue
		}
		valid++
	}
	if valid == 0 {
		return
	}
	if err := s.Posts.LoadPosts(ctx); err != nil {
		if ctx.Err() == nil {
			s.log.Warn("reload posts", zap.Error(err))
		}
		return
	}
	s.notify(Change{Kind: PostsChanged})
}

// ChatView is an open chat screen: a transcript plus its own subscription.
type ChatView struct {
	*synccache.Transcript

	sess   *Session
	sub    *changefeed.Subscription
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// OpenChat loads the transcript of a cached chat and keeps it live until
// the view is closed.
func (s *Session) OpenChat(ctx context.Context, chatID uuid.UUID) (*ChatView, error) {
	if !s.Chats.Has(chatID) {
		return nil, fmt.Errorf("chat %s: %w", chatID, errs.ErrNotFound)
	}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil, errs.ErrClosed
	}
	s.mu.Unlock()

	tr := synccache.NewTranscript(chatID, s.auth.UserID, s.deps.Messages, s.log)
	sub := s.deps.Hub.Subscribe(changefeed.Filter{Table: model.TableMessages, Column: "chat_id", Value: chatID.String()})
	if err := tr.LoadMessages(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	vctx, cancel := context.WithCancel(s.ctx)
	v := &ChatView{Transcript: tr, sess: s, sub: sub, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		cancel()
		sub.Close()
		return nil, errs.ErrClosed
	}
	s.views[v] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer close(v.done)
		err := changefeed.Consume(vctx, sub, func(ctx context.Context, ev model.ChangeEvent) {
			m, err := s.message(ctx, ev)
			if err != nil {
				s.log.Warn("dropping message event", zap.Error(err))
				return
			}
			if err := tr.ApplyMessageEvent(ctx, m); err != nil && ctx.Err() == nil {
				s.log.Warn("apply message", zap.String("chat_id", chatID.String()), zap.Error(err))
			}
			s.notify(Change{Kind: TranscriptChanged, ChatID: chatID})
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errs.ErrClosed) {
			s.log.Warn("chat view consumer stopped", zap.Error(err))
		}
	}()
	return v, nil
}

// Close stops live updates for the view. It is safe to call more than once.
func (v *ChatView) Close() {
	v.once.Do(func() {
		v.cancel()
		v.sub.Close()
		<-v.done
		v.sess.mu.Lock()
		delete(v.sess.views, v)
		v.sess.mu.Unlock()
	})
}

// End tears the session down: every subscription and open view is closed
// and all consumers have returned when End returns.
func (s *Session) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	views := make([]*ChatView, 0, len(s.views))
	for v := range s.views {
		views = append(views, v)
	}
	subs := s.subs
	s.mu.Unlock()

	for _, v := range views {
		v.Close()
	}
	s.cancel()
	for _, sub := range subs {
		sub.Close()
	}
	s.wg.Wait()
}
