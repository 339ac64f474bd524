package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/thuinanutshell/ux-interviewer/storage"
)

func TestResetDatabase(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.InstanceDir, 0755))
	junk := filepath.Join(cfg.InstanceDir, "stale.txt")
	require.NoError(t, os.WriteFile(junk, []byte("old"), 0644))

	sugar := zaptest.NewLogger(t).Sugar()
	require.NoError(t, ResetDatabase(context.Background(), cfg, ResetOptions{Confirmed: true}, sugar))

	_, err := os.Stat(junk)
	assert.True(t, os.IsNotExist(err), "instance directory contents are removed")

	dbPath, err := cfg.DatabasePath()
	require.NoError(t, err)
	db, err := storage.NewSQLite(dbPath, sugar)
	require.NoError(t, err)
	defer db.Close()
	tables, err := db.Tables(context.Background())
	require.NoError(t, err)
	assert.Subset(t, tables, []string{"users", "products", "interviews", "invitations"})
}

func TestResetDatabase_Twice(t *testing.T) {
	cfg := testConfig(t)
	sugar := zaptest.NewLogger(t).Sugar()
	ctx := context.Background()
	opts := ResetOptions{Confirmed: true}

	dbPath, err := cfg.DatabasePath()
	require.NoError(t, err)

	require.NoError(t, ResetDatabase(ctx, cfg, opts, sugar))
	db, err := storage.NewSQLite(dbPath, sugar)
	require.NoError(t, err)
	_, err = storage.NewSQLiteUserStorage(db).UpsertGoogleUser(ctx, storage.GoogleProfile{
		Subject: "sub-1", Email: "ada@example.com", EmailVerified: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	require.NoError(t, ResetDatabase(ctx, cfg, opts, sugar))

	db, err = storage.NewSQLite(dbPath, sugar)
	require.NoError(t, err)
	defer db.Close()

	tables, err := db.Tables(ctx)
	require.NoError(t, err)
	assert.Subset(t, tables, []string{"users", "products", "interviews", "invitations"})

	var count int
	require.NoError(t, db.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count))
	assert.Zero(t, count, "second reset starts from an empty database")

	_, err = storage.NewSQLiteUserStorage(db).UpsertGoogleUser(ctx, storage.GoogleProfile{
		Subject: "sub-1", Email: "ada@example.com", EmailVerified: true,
	})
	assert.NoError(t, err, "database is usable after the second reset")
}

func TestResetDatabase_MissingInstanceDir(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, ResetDatabase(context.Background(), cfg, ResetOptions{Confirmed: true}, zaptest.NewLogger(t).Sugar()))

	info, err := os.Stat(cfg.InstanceDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestResetDatabase_SafetyGate(t *testing.T) {
	sugar := zaptest.NewLogger(t).Sugar()

	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.InstanceDir, 0755))
	keep := filepath.Join(cfg.InstanceDir, "keep.txt")
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0644))

	err := ResetDatabase(context.Background(), cfg, ResetOptions{}, sugar)
	assert.ErrorIs(t, err, ErrResetNotConfirmed)
	assert.FileExists(t, keep)

	cfg.Environment = "production"
	err = ResetDatabase(context.Background(), cfg, ResetOptions{Confirmed: true}, sugar)
	assert.ErrorIs(t, err, ErrResetInProduction)
	assert.FileExists(t, keep)

	require.NoError(t, ResetDatabase(context.Background(), cfg, ResetOptions{Confirmed: true, Force: true}, sugar))
	assert.NoFileExists(t, keep)
}

func TestResetDatabase_FailureIsReturned(t *testing.T) {
	cfg := testConfig(t)
	parent := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(parent, []byte("file"), 0644))
	cfg.InstanceDir = filepath.Join(parent, "instance")

	err := ResetDatabase(context.Background(), cfg, ResetOptions{Confirmed: true}, zaptest.NewLogger(t).Sugar())
	assert.Error(t, err)
}

func TestCheckReset_UnsafeInstanceDir(t *testing.T) {
	cfg := testConfig(t)
	opts := ResetOptions{Confirmed: true}

	for _, dir := range []string{"", "/", "."} {
		cfg.InstanceDir = dir
		assert.ErrorIs(t, CheckReset(cfg, opts), ErrUnsafeInstanceDir, dir)
	}
}
