package counterstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/warden-project/warden/models"
	"github.com/warden-project/warden/settings"
	"github.com/warden-project/warden/util/duration"
)

// GormStore persists counters in the module's database. Increments and
// decrements apply as a single `value = value + ?` statement so concurrent
// mutations and the decay sweep cannot lose updates.
type GormStore struct {
	db       *gorm.DB
	logger   *slog.Logger
	onChange ChangeListener
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB, logger *slog.Logger) *GormStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &GormStore{db: db, logger: logger.With("component", "counterstore")}
}

func (s *GormStore) OnChange(fn ChangeListener) {
	s.onChange = fn
}

func (s *GormStore) notify(ctx context.Context, c *models.Counter, scope Scope, newValue int64) {
	if s.onChange == nil {
		return
	}
	s.onChange(ctx, ValueChange{
		CounterID: c.ID,
		GuildID:   c.GuildID,
		Name:      c.Name,
		PerUser:   c.PerUser,
		Scope:     scope,
		NewValue:  newValue,
	})
}

func (s *GormStore) GetCounter(ctx context.Context, guildID, name string) (*models.Counter, error) {
	var c models.Counter
	if err := s.db.WithContext(ctx).First(&c, "guild_id = ? AND name = ?", guildID, name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading counter: %w", err)
	}
	return &c, nil
}

func (s *GormStore) loadCounter(ctx context.Context, counterID uint) (*models.Counter, error) {
	var c models.Counter
	if err := s.db.WithContext(ctx).First(&c, counterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading counter: %w", err)
	}
	return &c, nil
}

func (s *GormStore) Get(ctx context.Context, counterID uint, scope Scope) (int64, error) {
	c, err := s.loadCounter(ctx, counterID)
	if err != nil {
		return 0, err
	}
	if err := validateScope(c, scope); err != nil {
		return 0, err
	}
	var row models.CounterValue
	err = s.db.WithContext(ctx).
		First(&row, "counter_id = ? AND user_id = ? AND channel_id = ?", counterID, scope.UserID, scope.ChannelID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("loading counter value: %w", err)
	}
	return row.Value, nil
}

func (s *GormStore) Increment(ctx context.Context, counterID uint, scope Scope, delta int64) error {
	if delta < 0 {
		return ErrNegativeDelta
	}
	return s.applyDelta(ctx, counterID, scope, delta)
}

func (s *GormStore) Decrement(ctx context.Context, counterID uint, scope Scope, delta int64) error {
	if delta < 0 {
		return ErrNegativeDelta
	}
	return s.applyDelta(ctx, counterID, scope, -delta)
}

func (s *GormStore) applyDelta(ctx context.Context, counterID uint, scope Scope, delta int64) error {
	c, err := s.loadCounter(ctx, counterID)
	if err != nil {
		return err
	}
	if err := validateScope(c, scope); err != nil {
		return err
	}
	if delta == 0 {
		return nil
	}

	// the published value must come back from the same statement that applied
	// the delta; a separate read could miss an intermediate value under
	// concurrent mutation
	var updated []models.CounterValue
	res := s.db.WithContext(ctx).Model(&updated).Clauses(clause.Returning{}).
		Where("counter_id = ? AND user_id = ? AND channel_id = ?", counterID, scope.UserID, scope.ChannelID).
		Update("value", gorm.Expr("value + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("incrementing counter value: %w", res.Error)
	}
	var newValue int64
	if res.RowsAffected > 0 && len(updated) > 0 {
		newValue = updated[0].Value
	} else {
		// first mutation for this scope key: seed at the initial value, with
		// a conflict fallback in case another writer created the row first
		row := models.CounterValue{
			CounterID: counterID,
			UserID:    scope.UserID,
			ChannelID: scope.ChannelID,
			Value:     c.InitialValue + delta,
		}
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "counter_id"}, {Name: "user_id"}, {Name: "channel_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"value": gorm.Expr("value + ?", delta),
			}),
		}, clause.Returning{}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("creating counter value: %w", err)
		}
		newValue = row.Value
	}

	s.notify(ctx, c, scope, newValue)
	return nil
}

func (s *GormStore) Set(ctx context.Context, counterID uint, scope Scope, value int64) error {
	c, err := s.loadCounter(ctx, counterID)
	if err != nil {
		return err
	}
	if err := validateScope(c, scope); err != nil {
		return err
	}

	var row models.CounterValue
	err = s.db.WithContext(ctx).
		First(&row, "counter_id = ? AND user_id = ? AND channel_id = ?", counterID, scope.UserID, scope.ChannelID).Error
	switch {
	case err == nil:
		if row.Value == value {
			return nil
		}
		if err := s.db.WithContext(ctx).Model(&row).Update("value", value).Error; err != nil {
			return fmt.Errorf("updating counter value: %w", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = models.CounterValue{CounterID: counterID, UserID: scope.UserID, ChannelID: scope.ChannelID, Value: value}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return fmt.Errorf("creating counter value: %w", err)
		}
	default:
		return fmt.Errorf("loading counter value: %w", err)
	}

	s.notify(ctx, c, scope, value)
	return nil
}

func (s *GormStore) Reset(ctx context.Context, counterID uint, scope Scope) error {
	c, err := s.loadCounter(ctx, counterID)
	if err != nil {
		return err
	}
	return s.Set(ctx, counterID, scope, c.InitialValue)
}

func (s *GormStore) ListTriggers(ctx context.Context, counterID uint) ([]models.CounterTrigger, error) {
	var trigs []models.CounterTrigger
	if err := s.db.WithContext(ctx).Where("counter_id = ?", counterID).Find(&trigs).Error; err != nil {
		return nil, fmt.Errorf("loading counter triggers: %w", err)
	}
	return trigs, nil
}

func (s *GormStore) TickDecay(ctx context.Context, now time.Time) error {
	var counters []models.Counter
	err := s.db.WithContext(ctx).
		Where("decay_amount > 0 AND decay_period > 0").Find(&counters).Error
	if err != nil {
		return fmt.Errorf("loading decaying counters: %w", err)
	}

	for i := range counters {
		c := &counters[i]
		if now.Before(c.LastDecayAt.Add(c.DecayPeriod)) {
			continue
		}
		if err := s.decayCounter(ctx, c, now); err != nil {
			// one counter failing should not starve the rest of the sweep
			s.logger.Error("decay sweep failed for counter", "guildID", c.GuildID, "counter", c.Name, "err", err)
		}
	}
	return nil
}

func (s *GormStore) decayCounter(ctx context.Context, c *models.Counter, now time.Time) error {
	var rows []models.CounterValue
	err := s.db.WithContext(ctx).
		Where("counter_id = ? AND value != ?", c.ID, c.InitialValue).Find(&rows).Error
	if err != nil {
		return fmt.Errorf("loading counter values: %w", err)
	}

	for _, row := range rows {
		newValue := clampTowards(row.Value, c.InitialValue, c.DecayAmount)
		// compare-and-set so a racing increment is not overwritten; the row
		// gets picked up again on the next sweep
		res := s.db.WithContext(ctx).Model(&models.CounterValue{}).
			Where("id = ? AND value = ?", row.ID, row.Value).
			Update("value", newValue)
		if res.Error != nil {
			return fmt.Errorf("decaying counter value: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		decayedRows.Inc()
		s.notify(ctx, c, Scope{UserID: row.UserID, ChannelID: row.ChannelID}, newValue)
	}

	// advance once per counter, regardless of how many rows were touched
	if err := s.db.WithContext(ctx).Model(c).Update("last_decay_at", now).Error; err != nil {
		return fmt.Errorf("updating decay timestamp: %w", err)
	}
	return nil
}

func (s *GormStore) Sync(ctx context.Context, guildID string, cfg settings.CountersConfig) error {
	var existing []models.Counter
	if err := s.db.WithContext(ctx).Where("guild_id = ?", guildID).Find(&existing).Error; err != nil {
		return fmt.Errorf("loading guild counters: %w", err)
	}
	byName := make(map[string]*models.Counter, len(existing))
	for i := range existing {
		byName[existing[i].Name] = &existing[i]
	}

	for name, def := range cfg.Counters {
		var decayAmount int64
		var decayPeriod time.Duration
		if def.Decay != nil {
			every, err := duration.Parse(def.Decay.Every)
			if err != nil {
				s.logger.Warn("ignoring unparseable counter decay interval", "guildID", guildID, "counter", name, "every", def.Decay.Every)
			} else {
				decayAmount = def.Decay.Amount
				decayPeriod = every
			}
		}

		cur := byName[name]
		if cur != nil && (cur.PerUser != def.PerUser || cur.PerChannel != def.PerChannel) {
			// scope is immutable; a scope change recreates the counter and
			// drops its values
			if err := s.dropCounter(ctx, cur); err != nil {
				return err
			}
			cur = nil
		}

		if cur == nil {
			row := models.Counter{
				GuildID:      guildID,
				Name:         name,
				InitialValue: def.InitialValue,
				PerUser:      def.PerUser,
				PerChannel:   def.PerChannel,
				DecayAmount:  decayAmount,
				DecayPeriod:  decayPeriod,
				LastDecayAt:  time.Now(),
			}
			if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
				return fmt.Errorf("creating counter: %w", err)
			}
			cur = &row
			byName[name] = cur
		} else {
			updates := map[string]interface{}{
				"initial_value": def.InitialValue,
				"decay_amount":  decayAmount,
				"decay_period":  decayPeriod,
			}
			if err := s.db.WithContext(ctx).Model(cur).Updates(updates).Error; err != nil {
				return fmt.Errorf("updating counter: %w", err)
			}
		}

		if err := s.syncTriggers(ctx, cur, def.Triggers); err != nil {
			return err
		}
	}

	// drop counters no longer declared
	for name, cur := range byName {
		if _, ok := cfg.Counters[name]; ok {
			continue
		}
		if err := s.dropCounter(ctx, cur); err != nil {
			return err
		}
	}
	return nil
}

func (s *GormStore) syncTriggers(ctx context.Context, c *models.Counter, declared map[string]string) error {
	var existing []models.CounterTrigger
	if err := s.db.WithContext(ctx).Where("counter_id = ?", c.ID).Find(&existing).Error; err != nil {
		return fmt.Errorf("loading counter triggers: %w", err)
	}
	byName := make(map[string]*models.CounterTrigger, len(existing))
	for i := range existing {
		byName[existing[i].Name] = &existing[i]
	}

	for name, cond := range declared {
		cur := byName[name]
		if cur == nil {
			row := models.CounterTrigger{CounterID: c.ID, Name: name, Condition: cond}
			if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
				return fmt.Errorf("creating counter trigger: %w", err)
			}
			continue
		}
		if cur.Condition != cond {
			if err := s.db.WithContext(ctx).Model(cur).Update("condition", cond).Error; err != nil {
				return fmt.Errorf("updating counter trigger: %w", err)
			}
		}
	}

	for name, cur := range byName {
		if _, ok := declared[name]; ok {
			continue
		}
		if err := s.db.WithContext(ctx).Delete(cur).Error; err != nil {
			return fmt.Errorf("deleting counter trigger: %w", err)
		}
	}
	return nil
}

func (s *GormStore) dropCounter(ctx context.Context, c *models.Counter) error {
	if err := s.db.WithContext(ctx).Where("counter_id = ?", c.ID).Delete(&models.CounterValue{}).Error; err != nil {
		return fmt.Errorf("deleting counter values: %w", err)
	}
	if err := s.db.WithContext(ctx).Where("counter_id = ?", c.ID).Delete(&models.CounterTrigger{}).Error; err != nil {
		return fmt.Errorf("deleting counter triggers: %w", err)
	}
	if err := s.db.WithContext(ctx).Delete(c).Error; err != nil {
		return fmt.Errorf("deleting counter: %w", err)
	}
	return nil
}
