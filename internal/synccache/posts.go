package synccache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/sociallink/internal/errs"
	"github.com/and161185/sociallink/internal/model"
	"github.com/and161185/sociallink/internal/repository"
)

// PostCache is the home feed. It is only ever replaced wholesale.
type PostCache struct {
	userID uuid.UUID
	posts  repository.PostRepository
	log    *zap.Logger

	reload sync.Mutex // serializes LoadPosts
	mu     sync.RWMutex
	items  []model.FeedPost
}

// NewPostCache constructs an empty feed for userID.
func NewPostCache(userID uuid.UUID, posts repository.PostRepository, log *zap.Logger) *PostCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostCache{userID: userID, posts: posts, log: log}
}

// Posts returns a snapshot, newest first.
func (p *PostCache) Posts() []model.FeedPost {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.FeedPost, len(p.items))
	copy(out, p.items)
	return out
}

// LoadPosts replaces the feed. On error the previous feed is kept.
func (p *PostCache) LoadPosts(ctx context.Context) error {
	p.reload.Lock()
	defer p.reload.Unlock()

	list, err := p.posts.ListFeed(ctx)
	if err != nil {
		return fmt.Errorf("list posts: %w", err)
	}
	for i := range list {
		if list[i].AuthorName == "" {
			list[i].AuthorName = model.UnknownName
		}
	}
	p.mu.Lock()
	p.items = list
	p.mu.Unlock()
	return nil
}

// CreatePost publishes a post. The feed picks it up from the change feed.
func (p *PostCache) CreatePost(ctx context.Context, typ model.PostType, content string, mediaURL *string) (*model.Post, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown post type %q", errs.ErrValidation, typ)
	}
	post, err := p.posts.Insert(ctx, model.NewPost{UserID: p.userID, Type: typ, Content: content, MediaURL: mediaURL})
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// ToggleLike likes the post if the viewer has not, otherwise removes the like.
// It returns the resulting state.
func (p *PostCache) ToggleLike(ctx context.Context, postID uuid.UUID) (bool, error) {
	liked, err := p.posts.HasLike(ctx, postID, p.userID)
	if err != nil {
		return false, fmt.Errorf("check like: %w", err)
	}
	if liked {
		if err := p.posts.DeleteLike(ctx, postID, p.userID); err != nil {
			return true, fmt.Errorf("unlike: %w", err)
		}
		return false, nil
	}
	if err := p.posts.InsertLike(ctx, postID, p.userID); err != nil && !errors.Is(err, errs.ErrAlreadyExists) {
		return false, fmt.Errorf("like: %w", err)
	}
	return true, nil
}

// LikePost records a like unless one exists. It reports whether a like was added.
func (p *PostCache) LikePost(ctx context.Context, postID uuid.UUID) (bool, error) {
	liked, err := p.posts.HasLike(ctx, postID, p.userID)
	if err != nil {
		return false, fmt.Errorf("check like: %w", err)
	}
	if liked {
		return false, nil
	}
	err = p.posts.InsertLike(ctx, postID, p.userID)
	switch {
	case errors.Is(err, errs.ErrAlreadyExists):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("like: %w", err)
	}
	return true, nil
}

// CommentPost adds a comment, optionally as a reply.
func (p *PostCache) CommentPost(ctx context.Context, postID uuid.UUID, text string, parentID *uuid.UUID) (*model.PostComment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errs.ErrEmptyMessage
	}
	c, err := p.posts.InsertComment(ctx, model.PostComment{
		PostID:          postID,
		UserID:          p.userID,
		Text:            text,
		ParentCommentID: parentID,
	})
	if err != nil {
		return nil, fmt.Errorf("comment: %w", err)
	}
	return c, nil
}

// Comments lists the comments of a post.
func (p *PostCache) Comments(ctx context.Context, postID uuid.UUID) ([]model.PostComment, error) {
	list, err := p.posts.ListComments(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return list, nil
}
