// Package bans schedules and expires temporary bans. A temp ban is a regular
// platform ban plus a row noting when to lift it; a periodic sweep unbans
// everyone whose row has expired and records an unban case.
package bans

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/warden-project/warden/automod/cases"
	"github.com/warden-project/warden/discord"
	"github.com/warden-project/warden/models"
)

// CaseRecorder is the slice of the case recorder the sweep needs.
type CaseRecorder interface {
	Create(ctx context.Context, input cases.Input) (*models.Case, error)
}

type Scheduler struct {
	db     *gorm.DB
	client discord.Client
	cases  CaseRecorder
	logger *slog.Logger
}

func NewScheduler(db *gorm.DB, client discord.Client, recorder CaseRecorder, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{db: db, client: client, cases: recorder, logger: logger}
}

// Schedule records that (guildID, userID) should be unbanned at expiresAt.
// Re-banning an already scheduled user replaces the expiry.
func (s *Scheduler) Schedule(ctx context.Context, guildID, userID string, expiresAt time.Time) error {
	row := models.TempBan{GuildID: guildID, UserID: userID, ExpiresAt: expiresAt}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("scheduling temp ban: %w", err)
	}
	return nil
}

// Cancel drops a pending expiry, for when a moderator unbans manually.
func (s *Scheduler) Cancel(ctx context.Context, guildID, userID string) error {
	return s.db.WithContext(ctx).
		Where("guild_id = ? AND user_id = ?", guildID, userID).
		Delete(&models.TempBan{}).Error
}

// TickExpiry lifts every ban which has expired as of now. Each expiry is
// independent: a platform failure leaves that row in place so the next sweep
// retries it, except when the ban is already gone on the platform side.
func (s *Scheduler) TickExpiry(ctx context.Context, now time.Time) error {
	var due []models.TempBan
	err := s.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Order("expires_at asc").
		Find(&due).Error
	if err != nil {
		return fmt.Errorf("loading expired temp bans: %w", err)
	}

	for _, row := range due {
		if err := s.expire(ctx, row); err != nil {
			s.logger.Error("temp ban expiry failed, will retry", "guildID", row.GuildID, "userID", row.UserID, "err", err)
		}
	}
	return nil
}

func (s *Scheduler) expire(ctx context.Context, row models.TempBan) error {
	err := s.client.Unban(ctx, row.GuildID, row.UserID)
	if err != nil && !discord.IsUnknownTarget(err) {
		return fmt.Errorf("unbanning: %w", err)
	}

	if err == nil {
		bansExpired.Inc()
		// automated unban: no creator
		if _, err := s.cases.Create(ctx, cases.Input{
			GuildID:  row.GuildID,
			Type:     cases.TypeUnban,
			TargetID: row.UserID,
			Reason:   "temporary ban expired",
		}); err != nil {
			s.logger.Error("recording unban case failed", "guildID", row.GuildID, "userID", row.UserID, "err", err)
		}
	}

	if err := s.db.WithContext(ctx).Delete(&models.TempBan{}, row.ID).Error; err != nil {
		return fmt.Errorf("deleting temp ban row: %w", err)
	}
	return nil
}
