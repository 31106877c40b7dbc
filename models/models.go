package models

import (
	"time"

	"gorm.io/gorm"
)

// Counter is the materialized form of a configured counter. Rows are synced
// from guild settings; scope (per-user / per-channel / global) is fixed at
// creation and changing it requires recreating the counter.
type Counter struct {
	ID           uint   `gorm:"primarykey"`
	GuildID      string `gorm:"index:idx_counter_guild_name,unique"`
	Name         string `gorm:"index:idx_counter_guild_name,unique"`
	InitialValue int64
	PerUser      bool
	PerChannel   bool
	DecayAmount  int64
	DecayPeriod  time.Duration
	LastDecayAt  time.Time
}

// HasDecay reports whether a decay sweep applies to this counter.
func (c *Counter) HasDecay() bool {
	return c.DecayAmount > 0 && c.DecayPeriod > 0
}

// CounterValue holds one scoped value for a counter. Exactly one row per
// distinct (counter, user, channel) triple; rows are created lazily on first
// mutation, seeded at the counter's initial value.
type CounterValue struct {
	ID        uint   `gorm:"primarykey"`
	CounterID uint   `gorm:"index:idx_counter_value_scope,unique"`
	UserID    string `gorm:"index:idx_counter_value_scope,unique"`
	ChannelID string `gorm:"index:idx_counter_value_scope,unique"`
	Value     int64
	UpdatedAt time.Time
}

// CounterTrigger names a numeric condition on a counter. The trigger fires a
// counterTrigger fact whenever a value mutation satisfies the condition.
type CounterTrigger struct {
	ID        uint   `gorm:"primarykey"`
	CounterID uint   `gorm:"index:idx_counter_trigger_name,unique"`
	Name      string `gorm:"index:idx_counter_trigger_name,unique"`
	Condition string
}

// Case is an audit record of a single moderation action. A null CreatorID
// marks an automated (automod-origin) case. Rows are immutable after creation
// except for backfilling the mod-log channel/message ids.
type Case struct {
	ID        uint   `gorm:"primarykey"`
	UUID      string `gorm:"uniqueindex"`
	GuildID   string `gorm:"index"`
	CaseType  string `gorm:"index"`
	TargetID  string `gorm:"index"`
	CreatorID *string
	Reason    string
	ChannelID *string
	MessageID *string
	CreatedAt time.Time
}

// TempBan schedules an automatic unban. ExpiresAt is always set; permanent
// bans never get a row here.
type TempBan struct {
	ID        uint      `gorm:"primarykey"`
	GuildID   string    `gorm:"index:idx_temp_ban_target,unique"`
	UserID    string    `gorm:"index:idx_temp_ban_target,unique"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}

// GuildSettings stores the full settings document for one guild as a JSON
// blob (level table plus per-plugin config and overrides). Writes happen only
// through full replacement; the engine reads snapshots.
type GuildSettings struct {
	GuildID   string `gorm:"primarykey"`
	Blob      []byte
	UpdatedAt time.Time
}

// AutoMigrate runs schema migration for every table this module owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Counter{},
		&CounterValue{},
		&CounterTrigger{},
		&Case{},
		&TempBan{},
		&GuildSettings{},
	)
}
