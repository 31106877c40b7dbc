// Package counterstore manages named, scoped numeric state: counters
// declared per guild, with one value row per scope key (user, channel, or
// guild-global), optional periodic decay toward the initial value, and named
// threshold triggers.
//
// Includes an interface and implementations backed by a database (gorm) and
// in-process memory. Every successful mutation that changes a value publishes
// a value-changed fact to the registered listener, synchronously and
// at-least-once; downstream trigger evaluation is pure in (condition, value),
// so duplicate delivery is harmless.
package counterstore

import (
	"context"
	"errors"
	"time"

	"github.com/warden-project/warden/models"
	"github.com/warden-project/warden/settings"
)

var (
	// ErrScopeMismatch indicates the caller passed a scope key that does not
	// fit the counter's declared scope (eg, incrementing a per-user counter
	// without a user id). A validation failure, reported to the immediate
	// caller, never a fault.
	ErrScopeMismatch = errors.New("counter scope mismatch")
	// ErrNotFound indicates no counter, or no value row for the scope key.
	ErrNotFound = errors.New("counter not found")
	// ErrNegativeDelta indicates a negative increment/decrement amount.
	ErrNegativeDelta = errors.New("negative counter delta")
)

// Scope identifies the value row a read or mutation applies to. Which fields
// must be set is dictated by the counter's declared scope.
type Scope struct {
	UserID    string
	ChannelID string
}

// ValueChange is the fact published after a mutation changes a value.
type ValueChange struct {
	CounterID uint
	GuildID   string
	Name      string
	PerUser   bool
	Scope     Scope
	NewValue  int64
}

// ChangeListener consumes value-changed facts. Listeners run synchronously on
// the mutating goroutine.
type ChangeListener func(ctx context.Context, change ValueChange)

type Store interface {
	// GetCounter looks a counter up by guild and name. ErrNotFound when the
	// counter is not declared.
	GetCounter(ctx context.Context, guildID, name string) (*models.Counter, error)
	// Get returns the value for a scope key. ErrNotFound when no row exists
	// yet (reads do not create rows).
	Get(ctx context.Context, counterID uint, scope Scope) (int64, error)
	// Increment adds delta (>= 0) to the scoped value, creating the row
	// seeded at the counter's initial value first if needed.
	Increment(ctx context.Context, counterID uint, scope Scope, delta int64) error
	// Decrement subtracts delta (>= 0) from the scoped value, with the same
	// lazy-creation semantics as Increment.
	Decrement(ctx context.Context, counterID uint, scope Scope, delta int64) error
	// Set writes an absolute value.
	Set(ctx context.Context, counterID uint, scope Scope, value int64) error
	// Reset sets the scoped value back to the counter's initial value.
	Reset(ctx context.Context, counterID uint, scope Scope) error
	// ListTriggers returns the counter's declared triggers.
	ListTriggers(ctx context.Context, counterID uint) ([]models.CounterTrigger, error)
	// TickDecay runs one decay sweep: every counter with decay configured and
	// due (now >= lastDecayAt + period) has each off-initial value moved
	// toward the initial value by the decay amount, clamped so it never
	// crosses past it. lastDecayAt advances once per counter.
	TickDecay(ctx context.Context, now time.Time) error
	// Sync materializes a guild's counters plugin config into counter and
	// trigger rows. Declarations that disappeared are removed; a scope change
	// recreates the counter (values do not carry over).
	Sync(ctx context.Context, guildID string, cfg settings.CountersConfig) error
	// OnChange registers the value-changed listener.
	OnChange(fn ChangeListener)
}

// clampTowards moves value by amount toward target without overshooting it.
func clampTowards(value, target, amount int64) int64 {
	if value > target {
		if v := value - amount; v > target {
			return v
		}
		return target
	}
	if value < target {
		if v := value + amount; v < target {
			return v
		}
		return target
	}
	return value
}

// validateScope checks a scope key against the counter's declared scope.
func validateScope(c *models.Counter, scope Scope) error {
	switch {
	case c.PerUser:
		if scope.UserID == "" || scope.ChannelID != "" {
			return ErrScopeMismatch
		}
	case c.PerChannel:
		if scope.ChannelID == "" || scope.UserID != "" {
			return ErrScopeMismatch
		}
	default:
		if scope.UserID != "" || scope.ChannelID != "" {
			return ErrScopeMismatch
		}
	}
	return nil
}
