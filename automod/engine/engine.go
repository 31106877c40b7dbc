// Package engine dispatches inbound moderation facts (counter value changes
// and platform automod hits) against the guild's configured automod rules,
// and executes the action sets of the rules that fire.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/warden-project/warden/automod/cases"
	"github.com/warden-project/warden/automod/condition"
	"github.com/warden-project/warden/automod/counterstore"
	"github.com/warden-project/warden/automod/levels"
	"github.com/warden-project/warden/automod/plugincfg"
	"github.com/warden-project/warden/discord"
	"github.com/warden-project/warden/models"
	"github.com/warden-project/warden/settings"
)

// CaseRecorder is the slice of the cases package the engine depends on.
type CaseRecorder interface {
	Create(ctx context.Context, input cases.Input) (*models.Case, error)
}

// TempBanScheduler registers an automatic unban for a timed ban.
type TempBanScheduler interface {
	Schedule(ctx context.Context, guildID, userID string, expiresAt time.Time) error
}

// Engine is the runtime for trigger dispatch and action execution. All
// collaborators are injected; there are no ambient singletons.
type Engine struct {
	Logger   *slog.Logger
	Settings settings.Source
	Counters counterstore.Store
	Cases    CaseRecorder
	Client   discord.Client
	TempBans TempBanScheduler
}

// CounterTriggerFact is emitted when a counter value change satisfies a named
// trigger condition. UserID is set only for per-user counters; facts without
// a user are accepted but not forwarded to rule matching (automod is
// user-scoped).
type CounterTriggerFact struct {
	GuildID string
	Counter string
	Trigger string
	UserID  string
}

// ListenCounterChanges registers the engine as the store's value-changed
// listener.
func (eng *Engine) ListenCounterChanges(store counterstore.Store) {
	store.OnChange(func(ctx context.Context, change counterstore.ValueChange) {
		eng.HandleCounterValueChanged(ctx, change)
	})
}

// HandleCounterValueChanged evaluates every trigger declared on the changed
// counter against the new value and dispatches a counterTrigger fact for each
// match. Conditions are evaluated on every change, not only on threshold
// crossings, so duplicate change delivery reaches the same decision.
func (eng *Engine) HandleCounterValueChanged(ctx context.Context, change counterstore.ValueChange) {
	defer eng.recoverPanic("counterValueChanged", change.GuildID)
	eventsProcessed.WithLabelValues("counterValueChanged").Inc()

	trigs, err := eng.Counters.ListTriggers(ctx, change.CounterID)
	if err != nil {
		eventErrors.WithLabelValues("counterValueChanged").Inc()
		eng.Logger.Error("loading counter triggers failed", "guildID", change.GuildID, "counter", change.Name, "err", err)
		return
	}

	for _, trig := range trigs {
		if !condition.EvaluateNumeric(trig.Condition, change.NewValue) {
			continue
		}
		fact := CounterTriggerFact{
			GuildID: change.GuildID,
			Counter: change.Name,
			Trigger: trig.Name,
		}
		if change.PerUser {
			fact.UserID = change.Scope.UserID
		}
		eng.DispatchCounterTrigger(ctx, fact)
	}
}

// DispatchCounterTrigger matches a counterTrigger fact against the guild's
// automod rules. Channel- and guild-scoped facts are accepted but not matched
// against rules: automod acts on users only.
func (eng *Engine) DispatchCounterTrigger(ctx context.Context, fact CounterTriggerFact) {
	defer eng.recoverPanic("counterTrigger", fact.GuildID)
	eventsProcessed.WithLabelValues("counterTrigger").Inc()
	triggersFired.Inc()

	if fact.UserID == "" {
		eng.Logger.Debug("skipping non-user counter trigger", "guildID", fact.GuildID, "counter", fact.Counter, "trigger", fact.Trigger)
		return
	}
	eng.dispatchToRules(ctx, fact.GuildID, fact.UserID, func(t settings.Trigger) bool {
		return t.Counter != nil && t.Counter.Counter == fact.Counter && t.Counter.Trigger == fact.Trigger
	})
}

// HandlePlatformAutomodTrigger matches a platform-native automod hit against
// the guild's rules.
func (eng *Engine) HandlePlatformAutomodTrigger(ctx context.Context, guildID, ruleID, userID string) {
	defer eng.recoverPanic("platformAutomod", guildID)
	eventsProcessed.WithLabelValues("platformAutomod").Inc()

	eng.dispatchToRules(ctx, guildID, userID, func(t settings.Trigger) bool {
		return t.PlatformAutomod != nil && t.PlatformAutomod.RuleID == ruleID
	})
}

// dispatchToRules is the shared tail of both entry points: snapshot the guild
// settings, resolve the principal's level, compute the effective automod
// config, and execute every enabled rule with a matching trigger. Each rule's
// action set executes independently; one rule failing never blocks another.
func (eng *Engine) dispatchToRules(ctx context.Context, guildID, userID string, match func(settings.Trigger) bool) {
	snap, err := eng.Settings.GetGuildSettings(ctx, guildID)
	if err != nil {
		eventErrors.WithLabelValues("dispatch").Inc()
		eng.Logger.Error("loading guild settings failed", "guildID", guildID, "err", err)
		return
	}
	if snap == nil || snap.Plugins.Automod == nil {
		return
	}

	level := eng.resolveLevel(ctx, snap, userID)
	cfg := plugincfg.Resolve(*snap.Plugins.Automod, level)
	if len(cfg.Rules) == 0 {
		return
	}

	// deterministic rule order; rules are independent either way
	names := make([]string, 0, len(cfg.Rules))
	for name := range cfg.Rules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rule := cfg.Rules[name]
		if rule == nil || !rule.Enabled {
			continue
		}
		for _, trig := range rule.Triggers {
			if !match(trig) {
				continue
			}
			rulesFired.WithLabelValues(name).Inc()
			eng.executeRule(ctx, snap, name, rule, userID)
			break
		}
	}
}

// executeRule runs one rule's action set with panic isolation.
func (eng *Engine) executeRule(ctx context.Context, snap *settings.Snapshot, name string, rule *settings.AutomodRule, targetID string) {
	defer eng.recoverPanic("rule:"+name, snap.GuildID)
	eng.ExecuteActions(ctx, snap, name, &rule.Actions, targetID)
}

// resolveLevel computes the principal's effective level. When the member
// cannot be fetched (left the guild), only the raw user-level entry counts.
func (eng *Engine) resolveLevel(ctx context.Context, snap *settings.Snapshot, userID string) int {
	member, err := eng.Client.FetchMember(ctx, snap.GuildID, userID)
	if err != nil {
		if !discord.IsUnknownTarget(err) {
			eng.Logger.Warn("fetching member for level resolution failed", "guildID", snap.GuildID, "userID", userID, "err", err)
		}
		return levels.Resolve(snap.Levels, userID, nil)
	}
	return levels.Resolve(snap.Levels, userID, member.RoleIDs)
}

func (eng *Engine) recoverPanic(event, guildID string) {
	if r := recover(); r != nil {
		eventErrors.WithLabelValues("panic").Inc()
		eng.Logger.Error("automod event execution exception", "event", event, "guildID", guildID, "err", r)
	}
}
