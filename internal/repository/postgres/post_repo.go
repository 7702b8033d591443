package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/sociallink/internal/model"
)

// PostRepo implements PostRepository using PostgreSQL.
type PostRepo struct{ db *DB }

// NewPostRepo constructs a post repository.
func NewPostRepo(db *DB) *PostRepo { return &PostRepo{db: db} }

// ListFeed returns all posts with their author projection, newest first.
func (r *PostRepo) ListFeed(ctx context.Context) ([]model.FeedPost, error) {
	const q = `
SELECT p.id, p.user_id, p.type, p.content, p.media_url, p.likes_count, p.comments_count, p.created_at,
       COALESCE(pr.name, ''), COALESCE(pr.avatar_url, '')
FROM posts p
LEFT JOIN profiles pr ON pr.id = p.user_id
ORDER BY p.created_at DESC, p.id`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FeedPost
	for rows.Next() {
		var fp model.FeedPost
		var typ string
		if err = rows.Scan(&fp.ID, &fp.UserID, &typ, &fp.Content, &fp.MediaURL,
			&fp.LikesCount, &fp.CommentsCount, &fp.CreatedAt, &fp.AuthorName, &fp.AuthorAvatar); err != nil {
			return nil, err
		}
		fp.Type = model.PostType(typ)
		out = append(out, fp)
	}
	return out, rows.Err()
}

// Insert publishes a post.
func (r *PostRepo) Insert(ctx context.Context, np model.NewPost) (*model.Post, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	const q = `
INSERT INTO posts (id, user_id, type, content, media_url) VALUES ($1, $2, $3, $4, $5)
RETURNING likes_count, comments_count, created_at`
	p := model.Post{ID: id, UserID: np.UserID, Type: np.Type, Content: np.Content, MediaURL: np.MediaURL}
	err = r.db.Pool.QueryRow(ctx, q, id, np.UserID, string(np.Type), np.Content, np.MediaURL).
		Scan(&p.LikesCount, &p.CommentsCount, &p.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

// HasLike reports whether userID liked postID.
func (r *PostRepo) HasLike(ctx context.Context, postID, userID uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM post_likes WHERE post_id=$1 AND user_id=$2)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, postID, userID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// InsertLike records a like.
func (r *PostRepo) InsertLike(ctx context.Context, postID, userID uuid.UUID) error {
	const q = `INSERT INTO post_likes (post_id, user_id) VALUES ($1, $2)`
	_, err := r.db.Pool.Exec(ctx, q, postID, userID)
	return mapErr(err)
}

// DeleteLike removes a like; removing a missing like is not an error.
func (r *PostRepo) DeleteLike(ctx context.Context, postID, userID uuid.UUID) error {
	const q = `DELETE FROM post_likes WHERE post_id=$1 AND user_id=$2`
	_, err := r.db.Pool.Exec(ctx, q, postID, userID)
	return err
}

// InsertComment stores a comment and fills ID and CreatedAt.
func (r *PostRepo) InsertComment(ctx context.Context, c model.PostComment) (*model.PostComment, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	c.ID = id
	const q = `
INSERT INTO post_comments (id, post_id, user_id, text, parent_comment_id) VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`
	if err := r.db.Pool.QueryRow(ctx, q, c.ID, c.PostID, c.UserID, c.Text, c.ParentCommentID).Scan(&c.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

// ListComments returns a post's comments oldest first.
func (r *PostRepo) ListComments(ctx context.Context, postID uuid.UUID) ([]model.PostComment, error) {
	const q = `
SELECT id, post_id, user_id, text, parent_comment_id, created_at
FROM post_comments WHERE post_id=$1 ORDER BY created_at, id`
	rows, err := r.db.Pool.Query(ctx, q, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PostComment
	for rows.Next() {
		var c model.PostComment
		if err = rows.Scan(&c.ID, &c.PostID, &c.UserID, &c.Text, &c.ParentCommentID, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
