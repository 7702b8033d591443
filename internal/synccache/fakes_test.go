package synccache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/sociallink/internal/errs"
	"github.com/and161185/sociallink/internal/model"
)

var errGateway = errors.New("gateway unavailable")

// fakeGateway is an in-memory stand-in for the chat, message, post and profile stores.
type fakeGateway struct {
	mu       sync.Mutex
	clock    time.Time
	profiles map[uuid.UUID]model.ProfileSummary
	chats    []model.Chat
	messages []model.Message
	posts    []model.FeedPost
	likes    map[[2]uuid.UUID]bool
	comments []model.PostComment
	foreign  []model.Chat // returned by ListForUser regardless of participant

	failList     bool
	failCreate   bool
	failMarkSeen bool
	latestCalls  int
	markSeenIDs  [][]uuid.UUID
	creates      int
	inserts      int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		clock:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		profiles: map[uuid.UUID]model.ProfileSummary{},
		likes:    map[[2]uuid.UUID]bool{},
	}
}

func (g *fakeGateway) tick() time.Time {
	g.clock = g.clock.Add(time.Second)
	return g.clock
}

func (g *fakeGateway) addProfile(name string) uuid.UUID {
	id := uuid.Must(uuid.NewV4())
	g.mu.Lock()
	g.profiles[id] = model.ProfileSummary{ID: id, Name: name, Username: name}
	g.mu.Unlock()
	return id
}

// --- ProfileResolver ---

func (g *fakeGateway) Summary(_ context.Context, id uuid.UUID) (model.ProfileSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.profiles[id]
	if !ok {
		return model.ProfileSummary{}, errs.ErrNotFound
	}
	return p, nil
}

// --- ChatRepository ---

type chatRepo struct{ *fakeGateway }

func (g chatRepo) ListForUser(_ context.Context, userID uuid.UUID) ([]model.Chat, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failList {
		return nil, errGateway
	}
	var out []model.Chat
	for _, c := range g.chats {
		if c.UserID1 == userID || c.UserID2 == userID {
			out = append(out, c)
		}
	}
	return append(out, g.foreign...), nil
}

func (g chatRepo) FindBetween(_ context.Context, a, b uuid.UUID) (*model.Chat, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.chats {
		if (c.UserID1 == a && c.UserID2 == b) || (c.UserID1 == b && c.UserID2 == a) {
			c := c
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (g chatRepo) Create(_ context.Context, a, b uuid.UUID) (*model.Chat, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCreate {
		return nil, errGateway
	}
	g.creates++
	c := model.Chat{ID: uuid.Must(uuid.NewV4()), UserID1: a, UserID2: b, CreatedAt: g.tick()}
	g.chats = append(g.chats, c)
	return &c, nil
}

// --- MessageRepository ---

type msgRepo struct{ *fakeGateway }

func (g msgRepo) ListByChat(_ context.Context, chatID uuid.UUID) ([]model.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failList {
		return nil, errGateway
	}
	var out []model.Message
	for _, m := range g.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (g msgRepo) Latest(_ context.Context, chatID uuid.UUID) (*model.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latestCalls++
	var last *model.Message
	for i := range g.messages {
		if g.messages[i].ChatID == chatID {
			m := g.messages[i]
			last = &m
		}
	}
	if last == nil {
		return nil, errs.ErrNotFound
	}
	return last, nil
}

func (g msgRepo) Get(_ context.Context, id uuid.UUID) (*model.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.messages {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (g msgRepo) Insert(_ context.Context, nm model.NewMessage) (*model.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inserts++
	now := g.tick()
	m := model.Message{ID: uuid.Must(uuid.NewV4()), ChatID: nm.ChatID, Text: nm.Text, SentBy: nm.SentBy,
		CreatedAt: now, SentAt: &now}
	g.messages = append(g.messages, m)
	return &m, nil
}

func (g msgRepo) MarkSeen(_ context.Context, ids []uuid.UUID, at time.Time) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.markSeenIDs = append(g.markSeenIDs, ids)
	if g.failMarkSeen {
		return 0, errGateway
	}
	var n int64
	for _, id := range ids {
		for i := range g.messages {
			if g.messages[i].ID == id && g.messages[i].SeenAt == nil {
				t := at
				g.messages[i].SeenAt = &t
				n++
			}
		}
	}
	return n, nil
}

func (g *fakeGateway) message(id uuid.UUID) model.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.messages {
		if m.ID == id {
			return m
		}
	}
	return model.Message{}
}

// --- PostRepository ---

type postRepo struct{ *fakeGateway }

func (g postRepo) ListFeed(context.Context) ([]model.FeedPost, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failList {
		return nil, errGateway
	}
	out := make([]model.FeedPost, len(g.posts))
	copy(out, g.posts)
	return out, nil
}

func (g postRepo) Insert(_ context.Context, np model.NewPost) (*model.Post, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := model.Post{ID: uuid.Must(uuid.NewV4()), UserID: np.UserID, Type: np.Type, Content: np.Content,
		MediaURL: np.MediaURL, CreatedAt: g.tick()}
	g.posts = append([]model.FeedPost{{Post: p, AuthorName: g.profiles[np.UserID].Name}}, g.posts...)
	return &p, nil
}

func (g postRepo) HasLike(_ context.Context, postID, userID uuid.UUID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.likes[[2]uuid.UUID{postID, userID}], nil
}

func (g postRepo) InsertLike(_ context.Context, postID, userID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := [2]uuid.UUID{postID, userID}
	if g.likes[k] {
		return errs.ErrAlreadyExists
	}
	g.likes[k] = true
	g.bumpLikes(postID, 1)
	return nil
}

func (g postRepo) DeleteLike(_ context.Context, postID, userID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := [2]uuid.UUID{postID, userID}
	if g.likes[k] {
		delete(g.likes, k)
		g.bumpLikes(postID, -1)
	}
	return nil
}

func (g *fakeGateway) bumpLikes(postID uuid.UUID, d int64) {
	for i := range g.posts {
		if g.posts[i].ID == postID {
			g.posts[i].LikesCount += d
		}
	}
}

func (g postRepo) InsertComment(_ context.Context, c model.PostComment) (*model.PostComment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c.ID = uuid.Must(uuid.NewV4())
	c.CreatedAt = g.tick()
	g.comments = append(g.comments, c)
	return &c, nil
}

func (g postRepo) ListComments(_ context.Context, postID uuid.UUID) ([]model.PostComment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failList {
		return nil, errGateway
	}
	var out []model.PostComment
	for _, c := range g.comments {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	return out, nil
}
