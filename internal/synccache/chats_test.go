package synccache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/sociallink/internal/errs"
	"github.com/and161185/sociallink/internal/model"
)

func newChatCache(g *fakeGateway, self uuid.UUID) *ChatCache {
	return NewChatCache(self, chatRepo{g}, msgRepo{g}, g, nil)
}

func TestLoadChats_OrdersByActivityAndUsesPlaceholder(t *testing.T) {
	ctx := context.Background()
	g := newFakeGateway()
	me, ann := g.addProfile("me"), g.addProfile("ann")
	ghost := uuid.Must(uuid.NewV4()) // no profile row

	quiet, _ := chatRepo{g}.Create(ctx, me, ann)
	busy, _ := chatRepo{g}.Create(ctx, ghost, me)
	_, _ = msgRepo{g}.Insert(ctx, model.NewMessage{ChatID: busy.ID, SentBy: ghost, Text: "hey"})
	other, _ := chatRepo{g}.Create(ctx, ann, ghost)

	c := newChatCache(g, me)
	require.NoError(t, c.LoadChats(ctx, me))

	items := c.Chats()
	require.Len(t, items, 2)
	require.Equal(t, busy.ID, items[0].ChatID)
	require.Equal(t, model.UnknownName, items[0].Participant.Name)
	require.False(t, items[0].Resolved)
	require.Equal(t, "hey", items[0].LastMessage.Text)
	require.Equal(t, quiet.ID, items[1].ChatID)
	require.Equal(t, "ann", items[1].Participant.Name)
	require.Nil(t, items[1].LastMessage)
	require.False(t, c.Has(other.ID))
}

func TestLoadChats_FailureKeepsPreviousList(t *testing.T) {
	ctx := context.Background()
	g := newFakeGateway()
	me, ann := g.addProfile("me"), g.addProfile("ann")
	_, _ = chatRepo{g}.Create(ctx, me, ann)

	c := newChatCache(g, me)
	require.NoError(t, c.LoadChats(ctx, me))

	g.failList = true
	require.ErrorIs(t, c.LoadChats(ctx, me), errGateway)
	require.Len(t, c.Chats(), 1)

	require.ErrorIs(t, c.LoadChats(ctx, ann), errs.ErrUnauthorized)
}

func TestCreateChat_IdempotentGrowsByOne(t *testing.T) {
	ctx := context.Background()
	g := newFakeGateway()
	me, bob := g.addProfile("me"), g.addProfile("bob")
	c := newChatCache(g, me)
	require.NoError(t, c.LoadChats(ctx, me))

	first, err := c.CreateChat(ctx, bob)
	require.NoError(t, err)
	second, err := c.CreateChat(ctx, bob)
	require.NoError(t, err)

	require.Equal(t, first.ChatID, second.ChatID)
	require.Len(t, c.Chats(), 1)
	require.Equal(t, 1, g.creates)
	require.Equal(t, "bob", first.Participant.Name)

	_, err = c.CreateChat(ctx, me)
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestCreateChat_FindsChatStartedByCounterpart(t *testing.T) {
	ctx := context.Background()
	g := newFakeGateway()
	me, bob := g.addProfile("me"), g.addProfile("bob")
	existing, _ := chatRepo{g}.Create(ctx, bob, me)
	_, _ = msgRepo{g}.Insert(ctx, model.NewMessage{ChatID: existing.ID, SentBy: bob, Text: "yo"})

	c := newChatCache(g, me)
	it, err := c.CreateChat(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, existing.ID, it.ChatID)
	require.Equal(t, "yo", it.LastMessage.Text)
	require.Equal(t, 1, g.creates)
}

func TestCreateChat_ConcurrentCallsCreateOnce(t *testing.T) {
	ctx := context.Background()
	g := newFakeGateway()
	me, bob := g.addProfile("me"), g.addProfile("bob")
	c := newChatCache(g, me)

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 16)
	errList := make([]error, len(ids))
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			it, err := c.CreateChat(ctx, bob)
			ids[i], errList[i] = it.ChatID, err
		}()
	}
	wg.Wait()

	for i, id := range ids {
		require.NoError(t, errList[i])
		require.Equal(t, ids[0], id)
	}
	require.Equal(t, 1, g.creates)
	require.Len(t, c.Chats(), 1)
}

func TestApplyChatEvent(t *testing.T) {
	ctx := context.Background()
	g := newFakeGateway()
	me, ann := g.addProfile("me"), g.addProfile("ann")
	c := newChatCache(g, me)

	foreign := model.Chat{ID: uuid.Must(uuid.NewV4()), UserID1: ann, UserID2: uuid.Must(uuid.NewV4())}
	require.False(t, c.ApplyChatEvent(foreign))
	require.Empty(t, c.Chats())

	ch := model.Chat{ID: uuid.Must(uuid.NewV4()), UserID1: ann, UserID2: me, CreatedAt: time.Now()}
	require.True(t, c.ApplyChatEvent(ch))
	require.Equal(t, model.UnknownName, c.Chats()[0].Participant.Name)

	require.NoError(t, c.ResolveParticipant(ctx, ch.ID))
	require.Equal(t, "ann", c.Chats()[0].Participant.Name)

	// an update keeps resolved data and does not duplicate
	require.False(t, c.ApplyChatEvent(ch))
	require.Len(t, c.Chats(), 1)
	require.True(t, c.Chats()[0].Resolved)

	require.ErrorIs(t, c.ResolveParticipant(ctx, uuid.Must(uuid.NewV4())), errs.ErrNotFound)
}

func TestApplyMessagePreview(t *testing.T) {
	g := newFakeGateway()
	me, ann := g.addProfile("me"), g.addProfile("ann")
	c := newChatCache(g, me)
	ch := model.Chat{ID: uuid.Must(uuid.NewV4()), UserID1: me, UserID2: ann}
	c.ApplyChatEvent(ch)

	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m1 := model.Message{ID: uuid.Must(uuid.NewV4()), ChatID: ch.ID, SentBy: me, CreatedAt: t0, SentAt: &t0}

	dangling := model.Message{ID: uuid.Must(uuid.NewV4()), ChatID: uuid.Must(uuid.NewV4()), CreatedAt: t0}
	require.False(t, c.ApplyMessagePreview(dangling))

	require.True(t, c.ApplyMessagePreview(m1))

	older := model.Message{ID: uuid.Must(uuid.NewV4()), ChatID: ch.ID, CreatedAt: t0.Add(-time.Minute)}
	require.False(t, c.ApplyMessagePreview(older))
	require.Equal(t, m1.ID, c.Chats()[0].LastMessage.ID)

	// a later copy of m1 without sent_at must not clear it
	echo := m1
	echo.SentAt = nil
	require.True(t, c.ApplyMessagePreview(echo))
	require.NotNil(t, c.Chats()[0].LastMessage.SentAt)
}

func TestCreateChat_CreateFailureLeavesListUnchanged(t *testing.T) {
	ctx := context.Background()
	g := newFakeGateway()
	me, ann, bob := g.addProfile("me"), g.addProfile("ann"), g.addProfile("bob")
	existing, _ := chatRepo{g}.Create(ctx, me, ann)

	c := newChatCache(g, me)
	require.NoError(t, c.LoadChats(ctx, me))
	before := c.Chats()

	g.failCreate = true
	_, err := c.CreateChat(ctx, bob)
	require.ErrorIs(t, err, errGateway)
	require.Equal(t, before, c.Chats())
	require.True(t, c.Has(existing.ID))
	require.Len(t, g.chats, 1)

	g.failCreate = false
	it, err := c.CreateChat(ctx, bob)
	require.NoError(t, err)
	require.Len(t, c.Chats(), 2)
	require.Equal(t, it.ChatID, c.Chats()[0].ChatID)
}

func TestLoadChats_ForeignRowFailsBeforeAnyLookup(t *testing.T) {
	ctx := context.Background()
	g := newFakeGateway()
	me, ann, bob := g.addProfile("me"), g.addProfile("ann"), g.addProfile("bob")
	mine, _ := chatRepo{g}.Create(ctx, me, ann)

	c := newChatCache(g, me)
	require.NoError(t, c.LoadChats(ctx, me))
	calls := g.latestCalls

	g.foreign = []model.Chat{{ID: uuid.Must(uuid.NewV4()), UserID1: ann, UserID2: bob, CreatedAt: g.tick()}}
	require.Error(t, c.LoadChats(ctx, me))
	require.Equal(t, calls, g.latestCalls)
	require.Len(t, c.Chats(), 1)
	require.Equal(t, mine.ID, c.Chats()[0].ChatID)
}
