package counterstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warden-project/warden/models"
	"github.com/warden-project/warden/settings"
	"github.com/warden-project/warden/util/duration"
)

// MemStore is the in-process implementation, used in tests and for running
// without a database. Mutations hold a single mutex, which makes increments
// atomic; change notifications run outside the lock so listeners can call
// back into the store.
type MemStore struct {
	mu       sync.Mutex
	nextID   uint
	counters map[uint]*models.Counter
	byName   map[string]uint
	values   map[uint]map[Scope]int64
	triggers map[uint][]models.CounterTrigger
	onChange ChangeListener
	logger   *slog.Logger
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		nextID:   1,
		counters: make(map[uint]*models.Counter),
		byName:   make(map[string]uint),
		values:   make(map[uint]map[Scope]int64),
		triggers: make(map[uint][]models.CounterTrigger),
		logger:   slog.Default(),
	}
}

func (s *MemStore) OnChange(fn ChangeListener) {
	s.onChange = fn
}

func nameKey(guildID, name string) string {
	return guildID + "/" + name
}

func (s *MemStore) notify(ctx context.Context, changes []ValueChange) {
	if s.onChange == nil {
		return
	}
	for _, ch := range changes {
		s.onChange(ctx, ch)
	}
}

func (s *MemStore) change(c *models.Counter, scope Scope, newValue int64) ValueChange {
	return ValueChange{
		CounterID: c.ID,
		GuildID:   c.GuildID,
		Name:      c.Name,
		PerUser:   c.PerUser,
		Scope:     scope,
		NewValue:  newValue,
	}
}

func (s *MemStore) GetCounter(ctx context.Context, guildID, name string) (*models.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byName[nameKey(guildID, name)]
	if !ok {
		return nil, ErrNotFound
	}
	c := *s.counters[id]
	return &c, nil
}

func (s *MemStore) Get(ctx context.Context, counterID uint, scope Scope) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[counterID]
	if !ok {
		return 0, ErrNotFound
	}
	if err := validateScope(c, scope); err != nil {
		return 0, err
	}
	v, ok := s.values[counterID][scope]
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}

func (s *MemStore) Increment(ctx context.Context, counterID uint, scope Scope, delta int64) error {
	if delta < 0 {
		return ErrNegativeDelta
	}
	return s.applyDelta(ctx, counterID, scope, delta)
}

func (s *MemStore) Decrement(ctx context.Context, counterID uint, scope Scope, delta int64) error {
	if delta < 0 {
		return ErrNegativeDelta
	}
	return s.applyDelta(ctx, counterID, scope, -delta)
}

func (s *MemStore) applyDelta(ctx context.Context, counterID uint, scope Scope, delta int64) error {
	s.mu.Lock()
	c, ok := s.counters[counterID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if err := validateScope(c, scope); err != nil {
		s.mu.Unlock()
		return err
	}
	if delta == 0 {
		s.mu.Unlock()
		return nil
	}
	vals := s.values[counterID]
	if vals == nil {
		vals = make(map[Scope]int64)
		s.values[counterID] = vals
	}
	v, ok := vals[scope]
	if !ok {
		v = c.InitialValue
	}
	v += delta
	vals[scope] = v
	ch := s.change(c, scope, v)
	s.mu.Unlock()

	s.notify(ctx, []ValueChange{ch})
	return nil
}

func (s *MemStore) Set(ctx context.Context, counterID uint, scope Scope, value int64) error {
	s.mu.Lock()
	c, ok := s.counters[counterID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if err := validateScope(c, scope); err != nil {
		s.mu.Unlock()
		return err
	}
	vals := s.values[counterID]
	if vals == nil {
		vals = make(map[Scope]int64)
		s.values[counterID] = vals
	}
	if v, ok := vals[scope]; ok && v == value {
		s.mu.Unlock()
		return nil
	}
	vals[scope] = value
	ch := s.change(c, scope, value)
	s.mu.Unlock()

	s.notify(ctx, []ValueChange{ch})
	return nil
}

func (s *MemStore) Reset(ctx context.Context, counterID uint, scope Scope) error {
	s.mu.Lock()
	c, ok := s.counters[counterID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	initial := c.InitialValue
	s.mu.Unlock()
	return s.Set(ctx, counterID, scope, initial)
}

func (s *MemStore) ListTriggers(ctx context.Context, counterID uint) ([]models.CounterTrigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trigs := make([]models.CounterTrigger, len(s.triggers[counterID]))
	copy(trigs, s.triggers[counterID])
	return trigs, nil
}

func (s *MemStore) TickDecay(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	var changes []ValueChange
	for id, c := range s.counters {
		if !c.HasDecay() || now.Before(c.LastDecayAt.Add(c.DecayPeriod)) {
			continue
		}
		for scope, v := range s.values[id] {
			if v == c.InitialValue {
				continue
			}
			newValue := clampTowards(v, c.InitialValue, c.DecayAmount)
			s.values[id][scope] = newValue
			decayedRows.Inc()
			changes = append(changes, s.change(c, scope, newValue))
		}
		c.LastDecayAt = now
	}
	s.mu.Unlock()

	s.notify(ctx, changes)
	return nil
}

func (s *MemStore) Sync(ctx context.Context, guildID string, cfg settings.CountersConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]*models.Counter)
	for _, c := range s.counters {
		if c.GuildID == guildID {
			current[c.Name] = c
		}
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

		cur := current[name]
		if cur != nil && (cur.PerUser != def.PerUser || cur.PerChannel != def.PerChannel) {
			s.dropCounterLocked(cur)
			cur = nil
		}
		if cur == nil {
			cur = &models.Counter{
				ID:           s.nextID,
				GuildID:      guildID,
				Name:         name,
				InitialValue: def.InitialValue,
				PerUser:      def.PerUser,
				PerChannel:   def.PerChannel,
				DecayAmount:  decayAmount,
				DecayPeriod:  decayPeriod,
				LastDecayAt:  time.Now(),
			}
			s.nextID++
			s.counters[cur.ID] = cur
			s.byName[nameKey(guildID, name)] = cur.ID
		} else {
			cur.InitialValue = def.InitialValue
			cur.DecayAmount = decayAmount
			cur.DecayPeriod = decayPeriod
		}

		trigs := make([]models.CounterTrigger, 0, len(def.Triggers))
		for tname, cond := range def.Triggers {
			trigs = append(trigs, models.CounterTrigger{CounterID: cur.ID, Name: tname, Condition: cond})
		}
		s.triggers[cur.ID] = trigs
	}

	for name, cur := range current {
		if _, ok := cfg.Counters[name]; !ok {
			s.dropCounterLocked(cur)
		}
	}
	return nil
}

func (s *MemStore) dropCounterLocked(c *models.Counter) {
	delete(s.values, c.ID)
	delete(s.triggers, c.ID)
	delete(s.byName, nameKey(c.GuildID, c.Name))
	delete(s.counters, c.ID)
}
