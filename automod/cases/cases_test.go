package cases

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/warden-project/warden/automod/plugincfg"
	"github.com/warden-project/warden/discord"
	"github.com/warden-project/warden/models"
	"github.com/warden-project/warden/settings"
)

type fixture struct {
	recorder *Recorder
	store    *settings.Store
	client   *discord.FakeClient
	db       *gorm.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	store := settings.NewStore(db, settings.NewMemSnapshotCache(100, time.Minute), nil)
	client := discord.NewFakeClient()
	client.AddGuild(&discord.Guild{ID: "g1", Name: "Test Guild"})
	return &fixture{
		recorder: NewRecorder(db, store, client, nil),
		store:    store,
		client:   client,
		db:       db,
	}
}

func (f *fixture) putSettings(t *testing.T, snap *settings.Snapshot) {
	t.Helper()
	require.NoError(t, f.store.PutGuildSettings(context.Background(), "g1", snap))
}

func casesEnabled() *settings.Snapshot {
	return &settings.Snapshot{
		Plugins: settings.Plugins{
			Cases: &plugincfg.PluginConfig[settings.CasesConfig]{
				Config: settings.CasesConfig{
					LogChannel: "log-chan",
					CaseColors: map[string]int{"warn": 0xffcc00},
				},
			},
		},
	}
}

func TestCreateWithoutConfig(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := newFixture(t)
	// no settings document at all: recording unavailable, not an error
	c, err := f.recorder.Create(ctx, Input{GuildID: "g1", Type: TypeWarn, TargetID: "u1"})
	assert.NoError(err)
	assert.Nil(c)

	// settings exist but cases plugin is not configured
	f.putSettings(t, &settings.Snapshot{})
	c, err = f.recorder.Create(ctx, Input{GuildID: "g1", Type: TypeWarn, TargetID: "u1"})
	assert.NoError(err)
	assert.Nil(c)
}

func TestCreateRecordsAndPostsLog(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := newFixture(t)
	f.putSettings(t, casesEnabled())

	c, err := f.recorder.Create(ctx, Input{GuildID: "g1", Type: TypeWarn, TargetID: "u1", Reason: "spamming"})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.NotEmpty(c.UUID)
	assert.Equal("warn", c.CaseType)
	assert.Nil(c.CreatorID)

	// log embed posted and message id backfilled onto the row
	embeds := f.client.CallsOf("sendEmbed")
	require.Len(t, embeds, 1)
	assert.Equal("log-chan", embeds[0].ChannelID)

	var row models.Case
	require.NoError(t, f.db.First(&row, "uuid = ?", c.UUID).Error)
	require.NotNil(t, row.MessageID)
	assert.NotEmpty(*row.MessageID)
	require.NotNil(t, row.ChannelID)
	assert.Equal("log-chan", *row.ChannelID)
}

func TestCreateSurvivesLogFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := newFixture(t)
	f.putSettings(t, casesEnabled())
	f.client.Fail["sendEmbed"] = &discord.APIError{Code: 50001, Message: "Missing Access"}

	c, err := f.recorder.Create(ctx, Input{GuildID: "g1", Type: TypeKick, TargetID: "u1", Reason: "x"})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Nil(c.MessageID)
}

func TestDMToggles(t *testing.T) {
	ctx := context.Background()

	snap := casesEnabled()
	snap.Plugins.ModActions = &plugincfg.PluginConfig[settings.ModActionsConfig]{
		Config: settings.ModActionsConfig{
			DMOnWarn:    true,
			DMOnBan:     false,
			WarnMessage: "You were warned in {{guildName}}: {{reason}}",
			BanMessage:  "You were banned from {{guildName}}",
		},
	}

	t.Run("enabled type sends templated DM", func(t *testing.T) {
		assert := assert.New(t)
		f := newFixture(t)
		f.putSettings(t, snap)

		_, err := f.recorder.Create(ctx, Input{GuildID: "g1", Type: TypeWarn, TargetID: "u1", Reason: "spam"})
		require.NoError(t, err)
		dms := f.client.CallsOf("dm")
		require.Len(t, dms, 1)
		assert.Equal("u1", dms[0].UserID)
		assert.Equal("You were warned in Test Guild: spam", dms[0].Content)
	})

	t.Run("disabled type sends nothing", func(t *testing.T) {
		assert := assert.New(t)
		f := newFixture(t)
		f.putSettings(t, snap)

		_, err := f.recorder.Create(ctx, Input{GuildID: "g1", Type: TypeBan, TargetID: "u1", Reason: "spam"})
		require.NoError(t, err)
		assert.Empty(f.client.CallsOf("dm"))
	})

	t.Run("closed DMs are swallowed", func(t *testing.T) {
		assert := assert.New(t)
		f := newFixture(t)
		f.putSettings(t, snap)
		f.client.Fail["dm"] = &discord.APIError{Code: 50007, Message: "Cannot send messages to this user"}

		c, err := f.recorder.Create(ctx, Input{GuildID: "g1", Type: TypeWarn, TargetID: "u1", Reason: "spam"})
		assert.NoError(err)
		assert.NotNil(c)
	})
}

func TestCreatorLevelGatesOverrides(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	// a high-level creator's cases go to a different log channel
	snap := casesEnabled()
	snap.Levels = map[string]int{"mod1": 50}
	snap.Plugins.Cases.Overrides = []plugincfg.Override{
		{Level: ">=50", Config: json.RawMessage(`{"log_channel": "senior-log"}`)},
	}

	f := newFixture(t)
	f.putSettings(t, snap)
	f.client.AddMember("g1", &discord.Member{UserID: "mod1", Username: "mod"})

	creator := "mod1"
	_, err := f.recorder.Create(ctx, Input{GuildID: "g1", Type: TypeNote, TargetID: "u1", CreatorID: &creator})
	require.NoError(t, err)
	embeds := f.client.CallsOf("sendEmbed")
	require.Len(t, embeds, 1)
	assert.Equal("senior-log", embeds[0].ChannelID)

	// automated cases resolve at level 0 and keep the base channel
	_, err = f.recorder.Create(ctx, Input{GuildID: "g1", Type: TypeNote, TargetID: "u1"})
	require.NoError(t, err)
	embeds = f.client.CallsOf("sendEmbed")
	require.Len(t, embeds, 2)
	assert.Equal("log-chan", embeds[1].ChannelID)
}

func TestUpdateReasonEditsLogMessage(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := newFixture(t)
	f.putSettings(t, casesEnabled())

	c, err := f.recorder.Create(ctx, Input{GuildID: "g1", Type: TypeWarn, TargetID: "u1", Reason: "spamming"})
	require.NoError(t, err)
	require.NotNil(t, c.MessageID)

	updated, err := f.recorder.UpdateReason(ctx, "g1", c.UUID, "spamming (repeat offender)")
	require.NoError(t, err)
	assert.Equal("spamming (repeat offender)", updated.Reason)

	var row models.Case
	require.NoError(t, f.db.First(&row, "uuid = ?", c.UUID).Error)
	assert.Equal("spamming (repeat offender)", row.Reason)

	// the posted log message was rewritten in place
	edits := f.client.CallsOf("editEmbed")
	require.Len(t, edits, 1)
	assert.Equal(*c.ChannelID, edits[0].ChannelID)
	assert.Equal(*c.MessageID, edits[0].MessageID)
	assert.Contains(edits[0].Content, "repeat offender")

	_, err = f.recorder.UpdateReason(ctx, "g1", "no-such-uuid", "x")
	assert.ErrorIs(err, ErrNotFound)
	// cases are scoped to their guild
	_, err = f.recorder.UpdateReason(ctx, "g2", c.UUID, "x")
	assert.ErrorIs(err, ErrNotFound)
}

func TestUpdateReasonWithoutLogMessage(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := newFixture(t)
	f.putSettings(t, casesEnabled())
	f.client.Fail["sendEmbed"] = &discord.APIError{Code: 50001, Message: "Missing Access"}

	c, err := f.recorder.Create(ctx, Input{GuildID: "g1", Type: TypeWarn, TargetID: "u1", Reason: "x"})
	require.NoError(t, err)
	require.Nil(t, c.MessageID)

	// no posted message to edit: the row still updates
	updated, err := f.recorder.UpdateReason(ctx, "g1", c.UUID, "y")
	require.NoError(t, err)
	assert.Equal("y", updated.Reason)
	assert.Empty(f.client.CallsOf("editEmbed"))
}

func TestListGuildCases(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := newFixture(t)
	f.putSettings(t, casesEnabled())

	for _, typ := range []Type{TypeWarn, TypeMute, TypeKick} {
		_, err := f.recorder.Create(ctx, Input{GuildID: "g1", Type: typ, TargetID: "u1"})
		require.NoError(t, err)
	}

	out, err := f.recorder.ListGuildCases(ctx, "g1", 2)
	assert.NoError(err)
	require.Len(t, out, 2)
	// newest first
	assert.Equal("kick", out[0].CaseType)
	assert.Equal("mute", out[1].CaseType)
}
