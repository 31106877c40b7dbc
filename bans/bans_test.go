package bans

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/warden-project/warden/automod/cases"
	"github.com/warden-project/warden/discord"
	"github.com/warden-project/warden/models"
)

type recordingCases struct {
	inputs []cases.Input
}

func (r *recordingCases) Create(ctx context.Context, input cases.Input) (*models.Case, error) {
	r.inputs = append(r.inputs, input)
	return &models.Case{GuildID: input.GuildID}, nil
}

func testScheduler(t *testing.T) (*Scheduler, *discord.FakeClient, *recordingCases, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	client := discord.NewFakeClient()
	rec := &recordingCases{}
	return NewScheduler(db, client, rec, nil), client, rec, db
}

func countRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.TempBan{}).Count(&n).Error)
	return n
}

func TestScheduleUpserts(t *testing.T) {
	ctx := context.Background()
	s, _, _, db := testScheduler(t)

	first := time.Now().Add(time.Hour).UTC()
	require.NoError(t, s.Schedule(ctx, "g1", "u1", first))
	require.NoError(t, s.Schedule(ctx, "g1", "u2", first))
	assert.Equal(t, int64(2), countRows(t, db))

	// re-scheduling the same target replaces the expiry instead of adding a row
	later := first.Add(time.Hour)
	require.NoError(t, s.Schedule(ctx, "g1", "u1", later))
	assert.Equal(t, int64(2), countRows(t, db))

	var row models.TempBan
	require.NoError(t, db.Where("guild_id = ? AND user_id = ?", "g1", "u1").First(&row).Error)
	assert.WithinDuration(t, later, row.ExpiresAt, time.Second)
}

func TestTickExpiryUnbansDueRows(t *testing.T) {
	ctx := context.Background()
	s, client, rec, db := testScheduler(t)

	now := time.Now().UTC()
	require.NoError(t, s.Schedule(ctx, "g1", "u-due", now.Add(-time.Minute)))
	require.NoError(t, s.Schedule(ctx, "g1", "u-later", now.Add(time.Hour)))

	require.NoError(t, s.TickExpiry(ctx, now))

	unbans := client.CallsOf("unban")
	require.Len(t, unbans, 1)
	assert.Equal(t, "u-due", unbans[0].UserID)

	require.Len(t, rec.inputs, 1)
	assert.Equal(t, cases.TypeUnban, rec.inputs[0].Type)
	assert.Equal(t, "u-due", rec.inputs[0].TargetID)
	assert.Nil(t, rec.inputs[0].CreatorID)

	// only the un-expired row survives
	assert.Equal(t, int64(1), countRows(t, db))
}

func TestTickExpiryKeepsRowOnPlatformFailure(t *testing.T) {
	ctx := context.Background()
	s, client, rec, db := testScheduler(t)
	client.Fail["unban"] = &discord.APIError{Code: 0, Message: "502"}

	now := time.Now().UTC()
	require.NoError(t, s.Schedule(ctx, "g1", "u1", now.Add(-time.Minute)))
	require.NoError(t, s.TickExpiry(ctx, now))

	assert.Equal(t, int64(1), countRows(t, db), "row kept for retry")
	assert.Empty(t, rec.inputs)

	// the next sweep succeeds and clears it
	delete(client.Fail, "unban")
	require.NoError(t, s.TickExpiry(ctx, now))
	assert.Equal(t, int64(0), countRows(t, db))
	assert.Len(t, rec.inputs, 1)
}

func TestTickExpiryDropsBanAlreadyGone(t *testing.T) {
	ctx := context.Background()
	s, client, rec, db := testScheduler(t)
	client.Fail["unban"] = &discord.APIError{Code: discord.CodeUnknownMember, Message: "Unknown Member"}

	now := time.Now().UTC()
	require.NoError(t, s.Schedule(ctx, "g1", "u1", now.Add(-time.Minute)))
	require.NoError(t, s.TickExpiry(ctx, now))

	// nothing to lift: row cleared without a case
	assert.Equal(t, int64(0), countRows(t, db))
	assert.Empty(t, rec.inputs)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	s, _, _, db := testScheduler(t)

	require.NoError(t, s.Schedule(ctx, "g1", "u1", time.Now().Add(time.Hour)))
	require.NoError(t, s.Cancel(ctx, "g1", "u1"))
	assert.Equal(t, int64(0), countRows(t, db))
}
