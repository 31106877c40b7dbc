// Package settings defines the per-guild settings document (level table plus
// plugin configs with level-gated overrides) and the snapshot source the
// moderation engine reads from.
package settings

import (
	"github.com/warden-project/warden/automod/levels"
	"github.com/warden-project/warden/automod/plugincfg"
)

// Snapshot is a read-only view of one guild's settings, decoded from the
// stored JSON document. Dispatch reads a fresh snapshot per inbound fact and
// never mutates it; resolution of effective config always produces new values.
type Snapshot struct {
	GuildID string       `json:"-"`
	Levels  levels.Table `json:"levels,omitempty"`
	Plugins Plugins      `json:"plugins"`
}

// Plugins holds the per-plugin config blocks. A nil entry means the plugin is
// not configured for the guild, which disables the corresponding feature.
type Plugins struct {
	Automod    *plugincfg.PluginConfig[AutomodConfig]    `json:"automod,omitempty"`
	Cases      *plugincfg.PluginConfig[CasesConfig]      `json:"cases,omitempty"`
	ModActions *plugincfg.PluginConfig[ModActionsConfig] `json:"mod_actions,omitempty"`
	Counters   *plugincfg.PluginConfig[CountersConfig]   `json:"counters,omitempty"`
}

// AutomodConfig is the automod plugin's config: rules keyed by name.
type AutomodConfig struct {
	Rules map[string]*AutomodRule `json:"rules,omitempty"`
}

// AutomodRule chains triggers to an action set. Any matching trigger
// dispatches the rule; only enabled rules are evaluated.
type AutomodRule struct {
	Enabled  bool      `json:"enabled"`
	Triggers []Trigger `json:"triggers,omitempty"`
	Actions  ActionSet `json:"actions"`
}

// Trigger is a tagged union: exactly one member should be set. Entries with
// no member set never match.
type Trigger struct {
	PlatformAutomod *PlatformAutomodTrigger `json:"automod_trigger,omitempty"`
	Counter         *CounterTriggerRef      `json:"counter_trigger,omitempty"`
}

// PlatformAutomodTrigger matches the platform's native automod reporting a
// hit for the given rule id.
type PlatformAutomodTrigger struct {
	RuleID string `json:"rule_id"`
}

// CounterTriggerRef matches a named counter trigger firing.
type CounterTriggerRef struct {
	Counter string `json:"counter"`
	Trigger string `json:"trigger"`
}

// ActionSet holds at most one instance of each action kind. Execution order
// is fixed (warn, mute, kick, ban, add_counter, remove_counter) regardless of
// declaration order.
type ActionSet struct {
	Warn          *MessageAction  `json:"warn,omitempty"`
	Mute          *DurationAction `json:"mute,omitempty"`
	Kick          *MessageAction  `json:"kick,omitempty"`
	Ban           *DurationAction `json:"ban,omitempty"`
	AddCounter    *CounterAction  `json:"add_counter,omitempty"`
	RemoveCounter *CounterAction  `json:"remove_counter,omitempty"`
}

// Empty reports whether no action is declared at all.
func (a *ActionSet) Empty() bool {
	return a.Warn == nil && a.Mute == nil && a.Kick == nil && a.Ban == nil &&
		a.AddCounter == nil && a.RemoveCounter == nil
}

// MessageAction carries just a message template ({{ruleName}} is available).
type MessageAction struct {
	Message string `json:"message,omitempty"`
}

// DurationAction is a message template plus a duration string ("10m", "1d").
// Mute or ban without a usable duration creates the audit case but skips the
// platform primitive.
type DurationAction struct {
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// CounterAction adjusts a named counter, scoped to the target user.
type CounterAction struct {
	Counter string `json:"counter"`
	Amount  int64  `json:"amount"`
}

// CasesConfig is the cases plugin's config: where and how to post the mod
// log.
type CasesConfig struct {
	LogChannel string            `json:"log_channel,omitempty"`
	CaseColors map[string]int    `json:"case_colors,omitempty"`
	CaseIcons  map[string]string `json:"case_icons,omitempty"`
}

// ModActionsConfig controls DM notifications sent to targets after a case is
// recorded. The message template may use {{guildName}}, {{reason}} and
// {{moderator}}.
type ModActionsConfig struct {
	DMOnWarn    bool   `json:"dm_on_warn"`
	DMOnKick    bool   `json:"dm_on_kick"`
	DMOnBan     bool   `json:"dm_on_ban"`
	WarnMessage string `json:"warn_message,omitempty"`
	KickMessage string `json:"kick_message,omitempty"`
	BanMessage  string `json:"ban_message,omitempty"`
	// number of seconds of message history to delete on ban
	BanDeleteMessageSeconds int `json:"ban_delete_message_seconds,omitempty"`
}

// CountersConfig declares the guild's counters. Declarations are synced into
// counter rows; scope flags are immutable after creation.
type CountersConfig struct {
	Counters map[string]CounterConfig `json:"counters,omitempty"`
}

// CounterConfig declares one counter.
type CounterConfig struct {
	InitialValue int64             `json:"initial_value"`
	PerUser      bool              `json:"per_user"`
	PerChannel   bool              `json:"per_channel"`
	Decay        *DecayConfig      `json:"decay,omitempty"`
	Triggers     map[string]string `json:"triggers,omitempty"`
}

// DecayConfig moves a counter's scoped values toward the initial value by
// Amount once per Every interval.
type DecayConfig struct {
	Amount int64  `json:"amount"`
	Every  string `json:"every"`
}
