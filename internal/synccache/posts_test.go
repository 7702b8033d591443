package synccache

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/sociallink/internal/errs"
	"github.com/and161185/sociallink/internal/model"
)

func TestLoadPosts_ReplacesWholesale(t *testing.T) {
	ctx := context.Background()
	g := newFakeGateway()
	me := g.addProfile("me")
	pc := NewPostCache(me, postRepo{g}, nil)

	first, err := pc.CreatePost(ctx, model.PostText, "one", nil)
	require.NoError(t, err)
	require.NoError(t, pc.LoadPosts(ctx))
	require.Len(t, pc.Posts(), 1)

	_, err = pc.CreatePost(ctx, model.PostText, "two", nil)
	require.NoError(t, err)
	require.Len(t, pc.Posts(), 1, "no speculative update")

	require.NoError(t, pc.LoadPosts(ctx))
	posts := pc.Posts()
	require.Len(t, posts, 2)
	require.Equal(t, "two", posts[0].Content)
	require.Equal(t, first.ID, posts[1].ID)

	g.failList = true
	require.ErrorIs(t, pc.LoadPosts(ctx), errGateway)
	require.Len(t, pc.Posts(), 2)
}

func TestLoadPosts_UnknownAuthor(t *testing.T) {
	ctx := context.Background()
	g := newFakeGateway()
	ghost := uuid.Must(uuid.NewV4())
	pc := NewPostCache(ghost, postRepo{g}, nil)
	_, err := pc.CreatePost(ctx, model.PostImage, "", nil)
	require.NoError(t, err)

	require.NoError(t, pc.LoadPosts(ctx))
	require.Equal(t, model.UnknownName, pc.Posts()[0].AuthorName)
}

func TestCreatePost_UnknownType(t *testing.T) {
	g := newFakeGateway()
	pc := NewPostCache(g.addProfile("me"), postRepo{g}, nil)
	_, err := pc.CreatePost(context.Background(), "audio", "x", nil)
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestToggleLike(t *testing.T) {
	ctx := context.Background()
	g := newFakeGateway()
	me := g.addProfile("me")
	pc := NewPostCache(me, postRepo{g}, nil)
	p, err := pc.CreatePost(ctx, model.PostText, "x", nil)
	require.NoError(t, err)

	liked, err := pc.ToggleLike(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, liked)
	require.NoError(t, pc.LoadPosts(ctx))
	require.Equal(t, int64(1), pc.Posts()[0].LikesCount)

	liked, err = pc.ToggleLike(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, liked)
	require.NoError(t, pc.LoadPosts(ctx))
	require.Equal(t, int64(0), pc.Posts()[0].LikesCount)
}

func TestLikePost_NeverDuplicates(t *testing.T) {
	ctx := context.Background()
	g := newFakeGateway()
	me := g.addProfile("me")
	pc := NewPostCache(me, postRepo{g}, nil)
	p, _ := pc.CreatePost(ctx, model.PostText, "x", nil)

	added, err := pc.LikePost(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, added)
	added, err = pc.LikePost(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, added)
	require.Len(t, g.likes, 1)
}

func TestCommentPost(t *testing.T) {
	ctx := context.Background()
	g := newFakeGateway()
	pc := NewPostCache(g.addProfile("me"), postRepo{g}, nil)
	postID := uuid.Must(uuid.NewV4())

	_, err := pc.CommentPost(ctx, postID, "  ", nil)
	require.ErrorIs(t, err, errs.ErrEmptyMessage)

	parent, err := pc.CommentPost(ctx, postID, "first", nil)
	require.NoError(t, err)
	reply, err := pc.CommentPost(ctx, postID, "reply", &parent.ID)
	require.NoError(t, err)
	require.Equal(t, parent.ID, *reply.ParentCommentID)
}

func TestComments_ListsAndWrapsErrors(t *testing.T) {
	ctx := context.Background()
	g := newFakeGateway()
	pc := NewPostCache(g.addProfile("me"), postRepo{g}, nil)
	postID, otherID := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())

	_, err := pc.CommentPost(ctx, postID, "first", nil)
	require.NoError(t, err)
	_, err = pc.CommentPost(ctx, otherID, "elsewhere", nil)
	require.NoError(t, err)

	list, err := pc.Comments(ctx, postID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "first", list[0].Text)

	g.failList = true
	_, err = pc.Comments(ctx, postID)
	require.ErrorIs(t, err, errGateway)
	require.Contains(t, err.Error(), "list comments")
}
