package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/sociallink/internal/errs"
	"github.com/and161185/sociallink/internal/model"
)

// ProfileRepo implements ProfileRepository using PostgreSQL.
type ProfileRepo struct{ db *DB }

// NewProfileRepo constructs a profile repository.
func NewProfileRepo(db *DB) *ProfileRepo { return &ProfileRepo{db: db} }

const profileColumns = `id, name, username, avatar_url, bio, website, location,
followers_count, following_count, posts_count, created_at, updated_at`

// Create inserts the profile created alongside an account.
func (r *ProfileRepo) Create(ctx context.Context, p *model.Profile) error {
	const q = `INSERT INTO profiles (id, name, username, avatar_url) VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, p.ID, p.Name, p.Username, p.AvatarURL)
	return mapErr(err)
}

// Get loads a full profile.
func (r *ProfileRepo) Get(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	q := `SELECT ` + profileColumns + ` FROM profiles WHERE id=$1`
	var p model.Profile
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.Name, &p.Username, &p.AvatarURL, &p.Bio, &p.Website, &p.Location,
		&p.FollowersCount, &p.FollowingCount, &p.PostsCount, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

// Summary loads the participant/author projection.
func (r *ProfileRepo) Summary(ctx context.Context, id uuid.UUID) (model.ProfileSummary, error) {
	const q = `SELECT id, name, COALESCE(username, ''), avatar_url FROM profiles WHERE id=$1`
	var s model.ProfileSummary
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.Name, &s.Username, &s.AvatarURL); err != nil {
		return model.ProfileSummary{}, mapErr(err)
	}
	return s, nil
}

// ListOthers lists profiles other than self, filtered by username substring.
func (r *ProfileRepo) ListOthers(ctx context.Context, self uuid.UUID, query string, limit int) ([]model.ProfileSummary, error) {
	const q = `
SELECT id, name, COALESCE(username, ''), avatar_url
FROM profiles
WHERE id <> $1 AND ($2 = '' OR username ILIKE '%' || $2 || '%')
ORDER BY username NULLS LAST, id
LIMIT $3`
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, q, self, escapeLike(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ProfileSummary
	for rows.Next() {
		var s model.ProfileSummary
		if err = rows.Scan(&s.ID, &s.Name, &s.Username, &s.AvatarURL); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Update applies the non-nil fields of upd and returns the stored profile.
func (r *ProfileRepo) Update(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) (*model.Profile, error) {
	sets := []string{"updated_at=now()"}
	args := []any{id}
	add := func(col string, v *string) {
		if v == nil {
			return
		}
		args = append(args, *v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	add("name", upd.Name)
	add("username", upd.Username)
	add("bio", upd.Bio)
	add("website", upd.Website)
	add("location", upd.Location)

	q := `UPDATE profiles SET ` + strings.Join(sets, ", ") + ` WHERE id=$1 RETURNING ` + profileColumns
	var p model.Profile
	err := r.db.Pool.QueryRow(ctx, q, args...).Scan(
		&p.ID, &p.Name, &p.Username, &p.AvatarURL, &p.Bio, &p.Website, &p.Location,
		&p.FollowersCount, &p.FollowingCount, &p.PostsCount, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

// SetAvatar stores a new avatar URL.
func (r *ProfileRepo) SetAvatar(ctx context.Context, id uuid.UUID, url string) error {
	const q = `UPDATE profiles SET avatar_url=$2, updated_at=now() WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.TrimSpace(s))
}
