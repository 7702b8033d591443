package migrate

import (
	"io/fs"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/sociallink/migrations"
)

func TestEmbeddedMigrationsAreSequential(t *testing.T) {
	goose.SetBaseFS(migrations.FS)
	t.Cleanup(func() { goose.SetBaseFS(nil) })

	ms, err := goose.CollectMigrations(".", 0, goose.MaxVersion)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	for i, m := range ms {
		require.EqualValues(t, i+1, m.Version)
	}
}

func TestNotifyTriggerGuardsPayloadSize(t *testing.T) {
	b, err := fs.ReadFile(migrations.FS, "00002_notify_size_guard.sql")
	require.NoError(t, err)
	sql := string(b)
	require.Contains(t, sql, "octet_length(payload) >= 8000")
	require.Contains(t, sql, "'partial', true")
	require.Contains(t, sql, "rec - ARRAY['text', 'content', 'media_url']")
}
