package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-project/warden/automod/cases"
	"github.com/warden-project/warden/automod/counterstore"
	"github.com/warden-project/warden/automod/plugincfg"
	"github.com/warden-project/warden/discord"
	"github.com/warden-project/warden/settings"
)

const testGuild = "g-100"

func automodSnapshot(rules map[string]*settings.AutomodRule) *settings.Snapshot {
	return &settings.Snapshot{
		Plugins: settings.Plugins{
			Automod: &plugincfg.PluginConfig[settings.AutomodConfig]{
				Config: settings.AutomodConfig{Rules: rules},
			},
		},
	}
}

func counterTrigger(counter, trigger string) settings.Trigger {
	return settings.Trigger{Counter: &settings.CounterTriggerRef{Counter: counter, Trigger: trigger}}
}

func platformTrigger(ruleID string) settings.Trigger {
	return settings.Trigger{PlatformAutomod: &settings.PlatformAutomodTrigger{RuleID: ruleID}}
}

// syncCounters declares a per-user spamScore counter with the given triggers
// and returns its id.
func syncCounters(t *testing.T, f *Fixture, triggers map[string]string) uint {
	t.Helper()
	ctx := context.Background()
	cfg := settings.CountersConfig{Counters: map[string]settings.CounterConfig{
		"spamScore": {PerUser: true, Triggers: triggers},
	}}
	require.NoError(t, f.Counters.Sync(ctx, testGuild, cfg))
	c, err := f.Counters.GetCounter(ctx, testGuild, "spamScore")
	require.NoError(t, err)
	return c.ID
}

func TestCounterTriggerEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := EngineTestFixture()
	f.Client.AddMember(testGuild, &discord.Member{UserID: "u-1"})
	f.Settings[testGuild] = automodSnapshot(map[string]*settings.AutomodRule{
		"spam": {
			Enabled:  true,
			Triggers: []settings.Trigger{counterTrigger("spamScore", "tooSpammy")},
			Actions:  settings.ActionSet{Mute: &settings.DurationAction{Duration: "10m"}},
		},
	})
	id := syncCounters(t, f, map[string]string{"tooSpammy": ">= 5"})

	// crossing the threshold dispatches the rule through the change listener
	require.NoError(t, f.Counters.Increment(ctx, id, counterstore.Scope{UserID: "u-1"}, 5))

	mutes := f.Cases.OfType(cases.TypeMute)
	require.Len(t, mutes, 1)
	assert.Equal(t, testGuild, mutes[0].GuildID)
	assert.Equal(t, "u-1", mutes[0].TargetID)
	assert.Nil(t, mutes[0].CreatorID)

	timeouts := f.Client.CallsOf("timeout")
	require.Len(t, timeouts, 1)
	assert.Equal(t, "u-1", timeouts[0].UserID)
	require.NotNil(t, timeouts[0].Until)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), *timeouts[0].Until, 5*time.Second)
}

func TestCounterTriggerFanOut(t *testing.T) {
	ctx := context.Background()
	f := EngineTestFixture()
	f.Client.AddMember(testGuild, &discord.Member{UserID: "u-1"})
	f.Settings[testGuild] = automodSnapshot(map[string]*settings.AutomodRule{
		"escalate": {
			Enabled: true,
			Triggers: []settings.Trigger{
				counterTrigger("spamScore", "low"),
				counterTrigger("spamScore", "high"),
			},
			Actions: settings.ActionSet{Warn: &settings.MessageAction{}},
		},
	})
	id := syncCounters(t, f, map[string]string{"low": ">= 5", "high": ">= 10"})

	// one change satisfying both triggers emits two facts, so the rule
	// dispatches once per fact
	require.NoError(t, f.Counters.Increment(ctx, id, counterstore.Scope{UserID: "u-1"}, 10))
	assert.Len(t, f.Cases.OfType(cases.TypeWarn), 2)
}

func TestNonUserTriggerNotDispatched(t *testing.T) {
	ctx := context.Background()
	f := EngineTestFixture()
	f.Client.AddMember(testGuild, &discord.Member{UserID: "u-1"})
	f.Settings[testGuild] = automodSnapshot(map[string]*settings.AutomodRule{
		"raid": {
			Enabled:  true,
			Triggers: []settings.Trigger{counterTrigger("raidLevel", "hot")},
			Actions:  settings.ActionSet{Warn: &settings.MessageAction{}},
		},
	})
	cfg := settings.CountersConfig{Counters: map[string]settings.CounterConfig{
		"raidLevel": {Triggers: map[string]string{"hot": ">= 3"}},
	}}
	require.NoError(t, f.Counters.Sync(ctx, testGuild, cfg))
	c, err := f.Counters.GetCounter(ctx, testGuild, "raidLevel")
	require.NoError(t, err)

	// guild-scoped counters carry no user, so the fact is dropped before rules
	require.NoError(t, f.Counters.Increment(ctx, c.ID, counterstore.Scope{}, 3))
	assert.Empty(t, f.Cases.Inputs)
}

func TestPlatformAutomodTrigger(t *testing.T) {
	ctx := context.Background()
	f := EngineTestFixture()
	f.Client.AddMember(testGuild, &discord.Member{UserID: "u-1"})
	f.Settings[testGuild] = automodSnapshot(map[string]*settings.AutomodRule{
		"badwords": {
			Enabled:  true,
			Triggers: []settings.Trigger{platformTrigger("native-rule-7")},
			Actions:  settings.ActionSet{Warn: &settings.MessageAction{Message: "rule {{ruleName}} matched"}},
		},
	})

	f.Engine.HandlePlatformAutomodTrigger(ctx, testGuild, "native-rule-7", "u-1")

	warns := f.Cases.OfType(cases.TypeWarn)
	require.Len(t, warns, 1)
	assert.Equal(t, `rule badwords matched`, warns[0].Reason)

	// unrelated rule ids match nothing
	f.Engine.HandlePlatformAutomodTrigger(ctx, testGuild, "native-rule-8", "u-1")
	assert.Len(t, f.Cases.OfType(cases.TypeWarn), 1)
}

func TestDisabledRuleSkipped(t *testing.T) {
	ctx := context.Background()
	f := EngineTestFixture()
	f.Client.AddMember(testGuild, &discord.Member{UserID: "u-1"})
	f.Settings[testGuild] = automodSnapshot(map[string]*settings.AutomodRule{
		"dormant": {
			Enabled:  false,
			Triggers: []settings.Trigger{platformTrigger("native-rule-7")},
			Actions:  settings.ActionSet{Kick: &settings.MessageAction{}},
		},
	})

	f.Engine.HandlePlatformAutomodTrigger(ctx, testGuild, "native-rule-7", "u-1")
	assert.Empty(t, f.Cases.Inputs)
	assert.Empty(t, f.Client.CallsOf("kick"))
}

func TestUnconfiguredGuildIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := EngineTestFixture()

	f.Engine.HandlePlatformAutomodTrigger(ctx, "g-unknown", "native-rule-7", "u-1")
	assert.Empty(t, f.Cases.Inputs)
}

func TestLevelOverrideDisablesRules(t *testing.T) {
	ctx := context.Background()
	f := EngineTestFixture()
	f.Client.AddMember(testGuild, &discord.Member{UserID: "u-plain"})
	f.Client.AddMember(testGuild, &discord.Member{UserID: "u-mod", RoleIDs: []string{"r-mod"}})

	snap := automodSnapshot(map[string]*settings.AutomodRule{
		"spam": {
			Enabled:  true,
			Triggers: []settings.Trigger{platformTrigger("native-rule-7")},
			Actions:  settings.ActionSet{Warn: &settings.MessageAction{}},
		},
	})
	snap.Levels = map[string]int{"r-mod": 50}
	snap.Plugins.Automod.Overrides = []plugincfg.Override{
		{Level: ">= 50", Config: json.RawMessage(`{"rules":{}}`)},
	}
	f.Settings[testGuild] = snap

	f.Engine.HandlePlatformAutomodTrigger(ctx, testGuild, "native-rule-7", "u-mod")
	assert.Empty(t, f.Cases.Inputs, "moderator-level user exempt via override")

	f.Engine.HandlePlatformAutomodTrigger(ctx, testGuild, "native-rule-7", "u-plain")
	assert.Len(t, f.Cases.OfType(cases.TypeWarn), 1)
}

func TestUnresolvableTargetAbandonsRule(t *testing.T) {
	ctx := context.Background()
	f := EngineTestFixture()
	f.Settings[testGuild] = automodSnapshot(map[string]*settings.AutomodRule{
		"spam": {
			Enabled:  true,
			Triggers: []settings.Trigger{platformTrigger("native-rule-7")},
			Actions:  settings.ActionSet{Kick: &settings.MessageAction{}},
		},
	})

	// target never registered with the client: member fetch fails
	f.Engine.HandlePlatformAutomodTrigger(ctx, testGuild, "native-rule-7", "u-gone")
	assert.Empty(t, f.Cases.Inputs)
	assert.Empty(t, f.Client.CallsOf("kick"))
}
