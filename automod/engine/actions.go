package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warden-project/warden/automod/cases"
	"github.com/warden-project/warden/automod/counterstore"
	"github.com/warden-project/warden/automod/plugincfg"
	"github.com/warden-project/warden/discord"
	"github.com/warden-project/warden/settings"
	"github.com/warden-project/warden/util/duration"
	msgtpl "github.com/warden-project/warden/util/template"
)

// ActionKind is the closed set of automod action kinds.
type ActionKind int

const (
	ActionWarn ActionKind = iota
	ActionMute
	ActionKick
	ActionBan
	ActionAddCounter
	ActionRemoveCounter
)

// actionOrder is the fixed execution priority; declaration order in config is
// irrelevant.
var actionOrder = [...]ActionKind{
	ActionWarn,
	ActionMute,
	ActionKick,
	ActionBan,
	ActionAddCounter,
	ActionRemoveCounter,
}

func (k ActionKind) String() string {
	switch k {
	case ActionWarn:
		return "warn"
	case ActionMute:
		return "mute"
	case ActionKick:
		return "kick"
	case ActionBan:
		return "ban"
	case ActionAddCounter:
		return "add_counter"
	case ActionRemoveCounter:
		return "remove_counter"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// ExecuteActions runs a rule's action set against the target, in fixed
// priority order, sequentially. A permission failure from the platform
// converts to a softban audit case and halts the remaining actions of this
// rule; any other platform failure halts with a log line. There is no
// synchronous caller to surface errors to.
func (eng *Engine) ExecuteActions(ctx context.Context, snap *settings.Snapshot, ruleName string, actions *settings.ActionSet, targetID string) {
	if actions.Empty() {
		return
	}

	if _, err := eng.Client.FetchMember(ctx, snap.GuildID, targetID); err != nil {
		// target gone: abandon the whole execution
		eng.Logger.Info("automod target unresolvable", "guildID", snap.GuildID, "rule", ruleName, "target", targetID, "err", err)
		return
	}

	for _, kind := range actionOrder {
		err := eng.runAction(ctx, snap, ruleName, actions, kind, targetID)
		if err == nil {
			continue
		}
		actionsFailed.WithLabelValues(kind.String()).Inc()
		if discord.IsPermissionDenied(err) {
			eng.recordPermissionFailure(ctx, snap.GuildID, ruleName, targetID)
			return
		}
		eng.Logger.Error("automod action failed", "guildID", snap.GuildID, "rule", ruleName, "action", kind.String(), "err", err)
		return
	}
}

// runAction executes one action kind if the set declares it. The switch is
// exhaustive over ActionKind; TestActionKindsHandled keeps it that way.
func (eng *Engine) runAction(ctx context.Context, snap *settings.Snapshot, ruleName string, actions *settings.ActionSet, kind ActionKind, targetID string) error {
	switch kind {
	case ActionWarn:
		if actions.Warn == nil {
			return nil
		}
		return eng.runWarn(ctx, snap.GuildID, ruleName, actions.Warn, targetID)
	case ActionMute:
		if actions.Mute == nil {
			return nil
		}
		return eng.runMute(ctx, snap.GuildID, ruleName, actions.Mute, targetID)
	case ActionKick:
		if actions.Kick == nil {
			return nil
		}
		return eng.runKick(ctx, snap.GuildID, ruleName, actions.Kick, targetID)
	case ActionBan:
		if actions.Ban == nil {
			return nil
		}
		return eng.runBan(ctx, snap, ruleName, actions.Ban, targetID)
	case ActionAddCounter:
		if actions.AddCounter == nil {
			return nil
		}
		return eng.runCounterAdjust(ctx, snap.GuildID, ruleName, actions.AddCounter, targetID, true)
	case ActionRemoveCounter:
		if actions.RemoveCounter == nil {
			return nil
		}
		return eng.runCounterAdjust(ctx, snap.GuildID, ruleName, actions.RemoveCounter, targetID, false)
	default:
		return fmt.Errorf("unhandled action kind: %s", kind)
	}
}

func renderReason(message, ruleName string) string {
	if message == "" {
		return "automod rule " + ruleName
	}
	return msgtpl.Render(message, map[string]string{"ruleName": ruleName})
}

func (eng *Engine) runWarn(ctx context.Context, guildID, ruleName string, action *settings.MessageAction, targetID string) error {
	_, err := eng.Cases.Create(ctx, cases.Input{
		GuildID:  guildID,
		Type:     cases.TypeWarn,
		TargetID: targetID,
		Reason:   renderReason(action.Message, ruleName),
	})
	if err != nil {
		return fmt.Errorf("recording warn case: %w", err)
	}
	actionsExecuted.WithLabelValues("warn").Inc()
	return nil
}

func (eng *Engine) runMute(ctx context.Context, guildID, ruleName string, action *settings.DurationAction, targetID string) error {
	reason := renderReason(action.Message, ruleName)
	if _, err := eng.Cases.Create(ctx, cases.Input{
		GuildID:  guildID,
		Type:     cases.TypeMute,
		TargetID: targetID,
		Reason:   reason,
	}); err != nil {
		return fmt.Errorf("recording mute case: %w", err)
	}

	// a mute without a usable duration records the case but never invokes the
	// timeout primitive: a nil until would clear an existing timeout
	if action.Duration == "" {
		return nil
	}
	d, err := duration.Parse(action.Duration)
	if err != nil {
		eng.Logger.Warn("unparseable mute duration", "guildID", guildID, "rule", ruleName, "duration", action.Duration)
		return nil
	}
	until := time.Now().Add(d)
	if err := eng.Client.Timeout(ctx, guildID, targetID, &until, reason); err != nil {
		return err
	}
	actionsExecuted.WithLabelValues("mute").Inc()
	return nil
}

func (eng *Engine) runKick(ctx context.Context, guildID, ruleName string, action *settings.MessageAction, targetID string) error {
	reason := renderReason(action.Message, ruleName)
	if _, err := eng.Cases.Create(ctx, cases.Input{
		GuildID:  guildID,
		Type:     cases.TypeKick,
		TargetID: targetID,
		Reason:   reason,
	}); err != nil {
		return fmt.Errorf("recording kick case: %w", err)
	}
	if err := eng.Client.Kick(ctx, guildID, targetID, reason); err != nil {
		return err
	}
	actionsExecuted.WithLabelValues("kick").Inc()
	return nil
}

func (eng *Engine) runBan(ctx context.Context, snap *settings.Snapshot, ruleName string, action *settings.DurationAction, targetID string) error {
	reason := renderReason(action.Message, ruleName)
	if _, err := eng.Cases.Create(ctx, cases.Input{
		GuildID:  snap.GuildID,
		Type:     cases.TypeBan,
		TargetID: targetID,
		Reason:   reason,
	}); err != nil {
		return fmt.Errorf("recording ban case: %w", err)
	}

	// a duration-less automod ban records the case but never invokes the ban
	// primitive: notify-only, not a permanent ban
	if action.Duration == "" {
		return nil
	}
	d, err := duration.Parse(action.Duration)
	if err != nil {
		eng.Logger.Warn("unparseable ban duration", "guildID", snap.GuildID, "rule", ruleName, "duration", action.Duration)
		return nil
	}

	deleteSeconds := 0
	if snap.Plugins.ModActions != nil {
		deleteSeconds = plugincfg.Resolve(*snap.Plugins.ModActions, 0).BanDeleteMessageSeconds
	}
	if err := eng.Client.Ban(ctx, snap.GuildID, targetID, reason, deleteSeconds); err != nil {
		return err
	}
	actionsExecuted.WithLabelValues("ban").Inc()

	if eng.TempBans != nil {
		if err := eng.TempBans.Schedule(ctx, snap.GuildID, targetID, time.Now().Add(d)); err != nil {
			eng.Logger.Error("scheduling temp ban expiry failed", "guildID", snap.GuildID, "target", targetID, "err", err)
		}
	}
	return nil
}

// runCounterAdjust applies add_counter / remove_counter, always scoped to the
// target user (automod actions are user-scoped only; no channel scope). A
// missing counter or scope mismatch is a configuration problem, logged and
// treated as non-fatal for the rest of the rule.
func (eng *Engine) runCounterAdjust(ctx context.Context, guildID, ruleName string, action *settings.CounterAction, targetID string, add bool) error {
	c, err := eng.Counters.GetCounter(ctx, guildID, action.Counter)
	if err != nil {
		eng.Logger.Warn("automod references unknown counter", "guildID", guildID, "rule", ruleName, "counter", action.Counter, "err", err)
		return nil
	}
	scope := counterstore.Scope{UserID: targetID}
	amount := action.Amount
	if amount == 0 {
		amount = 1
	}
	if add {
		err = eng.Counters.Increment(ctx, c.ID, scope, amount)
	} else {
		err = eng.Counters.Decrement(ctx, c.ID, scope, amount)
	}
	if err != nil {
		if errors.Is(err, counterstore.ErrScopeMismatch) {
			eng.Logger.Warn("automod counter adjust scope mismatch", "guildID", guildID, "rule", ruleName, "counter", action.Counter)
			return nil
		}
		return fmt.Errorf("adjusting counter %q: %w", action.Counter, err)
	}
	if add {
		actionsExecuted.WithLabelValues("add_counter").Inc()
	} else {
		actionsExecuted.WithLabelValues("remove_counter").Inc()
	}
	return nil
}

// recordPermissionFailure documents a permission-denied platform failure as a
// softban-typed case so moderators can see the rule tried and could not act.
func (eng *Engine) recordPermissionFailure(ctx context.Context, guildID, ruleName, targetID string) {
	reason := fmt.Sprintf("Cannot act on this user (missing permission or role hierarchy); rule %q", ruleName)
	if _, err := eng.Cases.Create(ctx, cases.Input{
		GuildID:  guildID,
		Type:     cases.TypeSoftban,
		TargetID: targetID,
		Reason:   reason,
	}); err != nil {
		eng.Logger.Error("recording permission-failure case failed", "guildID", guildID, "rule", ruleName, "err", err)
	}
}
