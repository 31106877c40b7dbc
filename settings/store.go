package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/warden-project/warden/models"
)

// Source is what dispatch-side components depend on. A (nil, nil) return
// means the guild has no settings document; callers treat that as "feature
// inactive", not an error.
type Source interface {
	GetGuildSettings(ctx context.Context, guildID string) (*Snapshot, error)
}

// Store reads and writes guild settings documents, with a cache tier in
// front of the database. Writes are full document replacement and purge the
// cache entry so the next dispatch sees the new snapshot.
type Store struct {
	db     *gorm.DB
	cache  SnapshotCache
	logger *slog.Logger
}

var _ Source = (*Store)(nil)

func NewStore(db *gorm.DB, cache SnapshotCache, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, cache: cache, logger: logger.With("component", "settings")}
}

func (s *Store) GetGuildSettings(ctx context.Context, guildID string) (*Snapshot, error) {
	if cached, err := s.cache.Get(ctx, guildID); err != nil {
		// cache failure is not fatal, fall through to the database
		s.logger.Warn("settings cache read failed", "guildID", guildID, "err", err)
	} else if cached != nil {
		return cached, nil
	}

	var row models.GuildSettings
	if err := s.db.WithContext(ctx).First(&row, "guild_id = ?", guildID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading guild settings: %w", err)
	}

	snap, err := decodeSnapshot(guildID, row.Blob)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, guildID, snap); err != nil {
		s.logger.Warn("settings cache write failed", "guildID", guildID, "err", err)
	}
	return snap, nil
}

// PutGuildSettings replaces the full settings document for a guild and
// invalidates its cached snapshot.
func (s *Store) PutGuildSettings(ctx context.Context, guildID string, snap *Snapshot) error {
	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding guild settings: %w", err)
	}
	row := models.GuildSettings{GuildID: guildID, Blob: blob}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("storing guild settings: %w", err)
	}
	return s.Invalidate(ctx, guildID)
}

// Invalidate purges the cached snapshot for a guild. Called after any
// external settings write (eg, the dashboard's save path).
func (s *Store) Invalidate(ctx context.Context, guildID string) error {
	return s.cache.Purge(ctx, guildID)
}

func decodeSnapshot(guildID string, blob []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil, fmt.Errorf("decoding guild settings: %w", err)
	}
	snap.GuildID = guildID
	return &snap, nil
}
