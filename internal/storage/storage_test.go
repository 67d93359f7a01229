package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/home-device-controller/backend/internal/storage/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "controller.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	applied, err := db.Migrate(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)

	version, err := db.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestParseMigration(t *testing.T) {
	tests := []struct {
		file    string
		want    migration
		wantErr bool
	}{
		{file: "migrations/001_initial.sql", want: migration{version: 1, name: "001_initial", sql: "x"}},
		{file: "migrations/012_add_index.sql", want: migration{version: 12, name: "012_add_index", sql: "x"}},
		{file: "migrations/initial.sql", wantErr: true},
		{file: "migrations/abc_initial.sql", wantErr: true},
		{file: "migrations/000_zero.sql", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			got, err := parseMigration(tt.file, "x")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadMigrations(t *testing.T) {
	ordered, err := loadMigrations(fstest.MapFS{
		"migrations/010_later.sql":  {Data: []byte("b")},
		"migrations/002_second.sql": {Data: []byte("a")},
		"migrations/notes.txt":      {Data: []byte("ignored")},
	})
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, 2, ordered[0].version)
	assert.Equal(t, 10, ordered[1].version)

	_, err = loadMigrations(fstest.MapFS{
		"migrations/002_a.sql": {Data: []byte("a")},
		"migrations/02_b.sql":  {Data: []byte("b")},
	})
	assert.ErrorContains(t, err, "share version 2")
}

func TestTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewSettingsRepository(db)
	boom := errors.New("boom")

	err := db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := repo.set(ctx, tx, "theme", "dark"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, ok, err := repo.Get(ctx, "theme")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDSN(t *testing.T) {
	got := dsn("/data/c.db", dbOptions{busyTimeout: 2 * time.Second, journalMode: "WAL"})
	assert.Equal(t, "file:/data/c.db?_busy_timeout=2000&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL", got)
}

func TestSettingsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepository(openTestDB(t))

	v, ok, err := repo.Get(ctx, models.SettingPollIntervalMS)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "5000", v)

	_, ok, err = repo.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, models.SettingPollIntervalMS, "2500"))
	require.NoError(t, repo.SetMany(ctx, map[string]string{
		models.SettingBulkConcurrency: "4",
		"theme":                       "dark",
	}))

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		models.SettingPollIntervalMS:  "2500",
		models.SettingBulkConcurrency: "4",
		"theme":                       "dark",
	}, all)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, models.SettingBulkConcurrency, list[0].Key)
}

func TestCommandLogRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCommandLogRepository(openTestDB(t))
	base := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	records := []models.CommandRecord{
		{DeviceID: "1", ExternalUID: "uid-1", Command: "turn_on", Success: true, CreatedAt: base},
		{DeviceID: "2", ExternalUID: "uid-2", Command: "turn_on", Success: false, Error: strPtr("offline"), BulkID: strPtr("b1"), CreatedAt: base.Add(time.Second)},
		{DeviceID: "1", ExternalUID: "uid-1", Command: "set_brightness", ValueJSON: strPtr("128"), Success: true, CreatedAt: base.Add(2 * time.Second)},
	}
	for i := range records {
		require.NoError(t, repo.Create(ctx, &records[i]))
		assert.NotEmpty(t, records[i].ID)
	}

	all, err := repo.List(ctx, models.CommandFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "set_brightness", all[0].Command)
	assert.Equal(t, "128", *all[0].ValueJSON)
	assert.Nil(t, all[0].Error)
	assert.True(t, all[2].CreatedAt.Equal(base))

	forDevice, err := repo.List(ctx, models.CommandFilter{DeviceID: "1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, forDevice, 1)
	assert.Equal(t, "set_brightness", forDevice[0].Command)

	bulk, err := repo.List(ctx, models.CommandFilter{BulkID: "b1"})
	require.NoError(t, err)
	require.Len(t, bulk, 1)
	assert.False(t, bulk[0].Success)
	assert.Equal(t, "offline", *bulk[0].Error)

	removed, err := repo.Prune(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)
}

func TestTranscriptRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewTranscriptRepository(openTestDB(t))

	empty, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	first := &models.TranscriptRecord{
		Text: "play music", IntentKind: "unrecognized", ResultKind: "unrecognized",
		Message: "Command not recognized", CreatedAt: time.Now().UTC().Add(-time.Minute),
	}
	second := &models.TranscriptRecord{
		Text: "turn on lamp", IntentKind: "device", TargetName: strPtr("lamp"), TurnOn: true,
		ResultKind: "applied", DeviceID: strPtr("2"), Message: "Turned on Lamp",
	}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	got, err := repo.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "turn on lamp", got[0].Text)
	assert.True(t, got[0].TurnOn)
	assert.Equal(t, "2", *got[0].DeviceID)
	assert.Nil(t, got[1].TargetName)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 50, clampLimit(0, 50, 500))
	assert.Equal(t, 500, clampLimit(1000, 50, 500))
	assert.Equal(t, 7, clampLimit(7, 50, 500))
}
