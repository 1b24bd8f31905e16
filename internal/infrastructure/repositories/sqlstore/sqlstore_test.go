package sqlstore

import (
	"context"
	"testing"
	"time"

	"livehub/internal/core/domain"
	"livehub/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.SQLitePath = ":memory:"
	cfg.Logging.Level = "error"

	db, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func hoursFrom(base time.Time, h int) *time.Time {
	t := base.Add(time.Duration(h) * time.Hour)
	return &t
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Driver = "oracle"

	_, err := Open(cfg)
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, Ping(context.Background(), db))
}

func TestModerationStore_SaveBanReplacesByKey(t *testing.T) {
	ctx := context.Background()
	store := NewModerationStore(newTestDB(t))

	require.NoError(t, store.SaveBan(ctx, &domain.Ban{
		Fingerprint: "fp-1", IP: "10.0.0.1", Reason: "spam", BannedBy: "admin", BannedAt: t0,
		ExpiresAt: hoursFrom(t0, 1),
	}))
	require.NoError(t, store.SaveBan(ctx, &domain.Ban{
		Fingerprint: "fp-1", IP: "10.0.0.1", Reason: "abuse", BannedBy: "admin", BannedAt: t0.Add(time.Minute),
	}))

	bans, err := store.ActiveBans(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, bans, 1)
	assert.Equal(t, "abuse", bans[0].Reason)
	assert.True(t, bans[0].IsPermanent())
}

func TestModerationStore_FindBan(t *testing.T) {
	ctx := context.Background()
	store := NewModerationStore(newTestDB(t))

	require.NoError(t, store.SaveBan(ctx, &domain.Ban{
		IP: "10.0.0.9", Reason: "ip ban", BannedBy: "admin", BannedAt: t0,
	}))
	require.NoError(t, store.SaveBan(ctx, &domain.Ban{
		Fingerprint: "fp-2", Reason: "fp ban", BannedBy: "admin", BannedAt: t0,
		ExpiresAt: hoursFrom(t0, 24),
	}))

	ban, err := store.FindBan(ctx, "fp-2", "10.0.0.9", t0.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, ban)
	assert.Equal(t, "fp ban", ban.Reason)

	ban, err = store.FindBan(ctx, "fp-other", "10.0.0.9", t0)
	require.NoError(t, err)
	require.NotNil(t, ban)
	assert.Equal(t, "ip ban", ban.Reason)

	ban, err = store.FindBan(ctx, "fp-2", "", t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, ban, "expiry equal to now is expired")

	ban, err = store.FindBan(ctx, "", "", t0)
	require.NoError(t, err)
	assert.Nil(t, ban)
}

func TestModerationStore_RemoveBans(t *testing.T) {
	ctx := context.Background()
	store := NewModerationStore(newTestDB(t))

	require.NoError(t, store.SaveBan(ctx, &domain.Ban{Fingerprint: "fp-3", BannedAt: t0}))
	require.NoError(t, store.SaveBan(ctx, &domain.Ban{IP: "10.0.0.3", BannedAt: t0}))
	require.NoError(t, store.SaveBan(ctx, &domain.Ban{Fingerprint: "fp-4", BannedAt: t0}))

	removed, err := store.RemoveBans(ctx, "fp-3", "10.0.0.3")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	removed, err = store.RemoveBans(ctx, "", "")
	require.NoError(t, err)
	assert.Zero(t, removed)

	bans, err := store.ActiveBans(ctx, t0)
	require.NoError(t, err)
	require.Len(t, bans, 1)
	assert.Equal(t, "fp-4", bans[0].Fingerprint)
}

func TestModerationStore_Mutes(t *testing.T) {
	ctx := context.Background()
	store := NewModerationStore(newTestDB(t))

	require.NoError(t, store.SaveMute(ctx, &domain.Mute{
		Fingerprint: "fp-5", Username: "loud", Reason: "caps", MutedBy: "mod",
		MutedAt: t0, ExpiresAt: t0.Add(10 * time.Minute),
	}))

	mute, err := store.FindMute(ctx, "fp-5", t0.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, mute)
	assert.Equal(t, "loud", mute.Username)
	assert.True(t, mute.ExpiresAt.Equal(t0.Add(10*time.Minute)))

	mute, err = store.FindMute(ctx, "fp-5", t0.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, mute)

	mutes, err := store.ActiveMutes(ctx, t0)
	require.NoError(t, err)
	assert.Len(t, mutes, 1)

	removed, err := store.RemoveMute(ctx, "fp-5")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = store.RemoveMute(ctx, "fp-5")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestModerationStore_SweepExpired(t *testing.T) {
	ctx := context.Background()
	store := NewModerationStore(newTestDB(t))

	require.NoError(t, store.SaveBan(ctx, &domain.Ban{Fingerprint: "old", BannedAt: t0, ExpiresAt: hoursFrom(t0, 1)}))
	require.NoError(t, store.SaveBan(ctx, &domain.Ban{Fingerprint: "forever", BannedAt: t0}))
	require.NoError(t, store.SaveMute(ctx, &domain.Mute{Fingerprint: "quiet", MutedAt: t0, ExpiresAt: t0.Add(time.Minute)}))
	require.NoError(t, store.SaveMute(ctx, &domain.Mute{Fingerprint: "still", MutedAt: t0, ExpiresAt: t0.Add(3 * time.Hour)}))

	removed, err := store.SweepExpired(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	bans, err := store.ActiveBans(ctx, t0)
	require.NoError(t, err)
	require.Len(t, bans, 1)
	assert.Equal(t, "forever", bans[0].Fingerprint)

	mutes, err := store.ActiveMutes(ctx, t0)
	require.NoError(t, err)
	require.Len(t, mutes, 1)
	assert.Equal(t, "still", mutes[0].Fingerprint)
}

func TestModerationStore_RecentActionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewModerationStore(newTestDB(t))

	for i, action := range []domain.ModerationActionType{domain.ActionBan, domain.ActionMute, domain.ActionUnban} {
		require.NoError(t, store.RecordAction(ctx, &domain.ModerationAction{
			ID:          string(action),
			Action:      action,
			PerformedBy: "admin",
			CreatedAt:   t0.Add(time.Duration(i) * time.Second),
		}))
	}

	actions, err := store.RecentActions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, domain.ActionUnban, actions[0].Action)
	assert.Equal(t, domain.ActionMute, actions[1].Action)
}

func TestChatRepository_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))

	msg := &domain.ChatMessage{
		ID: "m1", Username: "ana", Role: domain.RoleViewer, Fingerprint: "fp-ana",
		IP: "10.0.0.1", Body: "hello", Timestamp: t0, StreamKey: "main",
	}
	require.NoError(t, repo.Save(ctx, msg))

	got, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Body)
	assert.Equal(t, domain.RoleViewer, got.Role)
	assert.Equal(t, domain.StreamKey("main"), got.StreamKey)
	assert.False(t, got.Deleted)

	require.NoError(t, repo.MarkDeleted(ctx, "m1"))
	require.NoError(t, repo.MarkDeleted(ctx, "m1"))
	got, err = repo.Get(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.Equal(t, "hello", got.Body)

	replay := &domain.ChatMessage{ID: "m1", Username: "eve", Body: "rewritten", Timestamp: t0}
	assert.ErrorIs(t, repo.Save(ctx, replay), domain.ErrDuplicateMessage)
	got, err = repo.Get(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.Equal(t, "hello", got.Body)
	assert.Equal(t, "ana", got.Username)

	assert.ErrorIs(t, repo.MarkDeleted(ctx, "missing"), domain.ErrMessageNotFound)
	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestChatRepository_ListAndCount(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))

	keys := []domain.StreamKey{"main", "side", "main", "main"}
	for i, key := range keys {
		require.NoError(t, repo.Save(ctx, &domain.ChatMessage{
			ID:        string(rune('a' + i)),
			Username:  "ana",
			Body:      "msg",
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			StreamKey: key,
		}))
	}

	all, err := repo.List(ctx, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "d", all[0].ID)

	main, err := repo.List(ctx, "main", 2, 1)
	require.NoError(t, err)
	require.Len(t, main, 2)
	assert.Equal(t, "c", main[0].ID)
	assert.Equal(t, "a", main[1].ID)

	count, err := repo.CountSince(ctx, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
