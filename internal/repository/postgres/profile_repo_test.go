package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/sociallink/internal/errs"
	"github.com/and161185/sociallink/internal/model"
)

var profileCols = []string{"id", "name", "username", "avatar_url", "bio", "website", "location",
	"followers_count", "following_count", "posts_count", "created_at", "updated_at"}

func TestProfileRepo_ListOthers_EscapesQuery(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	self := uuid.Must(uuid.NewV4())
	other := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`FROM profiles\s+WHERE id <> \$1`).
		WithArgs(self, `al\_ice`, 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "username", "avatar_url"}).
			AddRow(other, "Alice", "al_ice", ""))
	got, err := r.ListOthers(context.Background(), self, " al_ice ", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, other, got[0].ID)
	require.Equal(t, "al_ice", got[0].Username)
}

func TestProfileRepo_Update_OnlyProvidedFields(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	id := uuid.Must(uuid.NewV4())
	name, bio := "Bob", "hi"
	uname := "bob"
	now := time.Now()

	mock.ExpectQuery(`UPDATE profiles SET updated_at=now\(\), name=\$2, bio=\$3 WHERE id=\$1 RETURNING`).
		WithArgs(id, name, bio).
		WillReturnRows(pgxmock.NewRows(profileCols).
			AddRow(id, name, &uname, "", bio, "", "", int64(0), int64(0), int64(0), now, now))
	p, err := r.Update(context.Background(), id, model.ProfileUpdate{Name: &name, Bio: &bio})
	require.NoError(t, err)
	require.Equal(t, "Bob", p.Name)
	require.Equal(t, "hi", p.Bio)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepo_SetAvatar(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE profiles SET avatar_url=\$2`).
		WithArgs(id, "https://cdn/a.png").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetAvatar(context.Background(), id, "https://cdn/a.png"))

	mock.ExpectExec(`UPDATE profiles SET avatar_url=\$2`).
		WithArgs(id, "x").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.SetAvatar(context.Background(), id, "x"), errs.ErrNotFound)
}
