// Package cases records moderation actions as audit "case" rows, posts the
// mod-log embed for each case, and notifies targets by DM according to the
// guild's mod-actions config.
package cases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/warden-project/warden/automod/levels"
	"github.com/warden-project/warden/automod/plugincfg"
	"github.com/warden-project/warden/discord"
	"github.com/warden-project/warden/models"
	"github.com/warden-project/warden/settings"
	msgtpl "github.com/warden-project/warden/util/template"
)

// Type enumerates the kinds of case this module records.
type Type string

const (
	TypeNote    Type = "note"
	TypeWarn    Type = "warn"
	TypeMute    Type = "mute"
	TypeUnmute  Type = "unmute"
	TypeKick    Type = "kick"
	TypeBan     Type = "ban"
	TypeSoftban Type = "softban"
	TypeUnban   Type = "unban"
)

// ErrNotFound marks a lookup of a case UUID the guild does not have.
var ErrNotFound = errors.New("case not found")

// Input describes one case to record. A nil CreatorID marks an automated
// (automod-origin) case.
type Input struct {
	GuildID   string
	Type      Type
	TargetID  string
	CreatorID *string
	Reason    string
}

// Recorder creates case rows and fans out the mod-log embed and target DM.
type Recorder struct {
	db        *gorm.DB
	source    settings.Source
	client    discord.Client
	logger    *slog.Logger
	dmLimiter *rate.Limiter
}

func NewRecorder(db *gorm.DB, source settings.Source, client discord.Client, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		db:     db,
		source: source,
		client: client,
		logger: logger.With("component", "cases"),
		// DMs are a platform hot path for rate limits; keep sends well under
		// the global ceiling
		dmLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Create records a case. A (nil, nil) return means the guild has no case
// system configured; callers treat that as "recording unavailable", not an
// error. Log posting and DM delivery are best-effort and never fail the case.
func (r *Recorder) Create(ctx context.Context, input Input) (*models.Case, error) {
	snap, err := r.source.GetGuildSettings(ctx, input.GuildID)
	if err != nil {
		return nil, fmt.Errorf("loading guild settings: %w", err)
	}
	if snap == nil || snap.Plugins.Cases == nil {
		return nil, nil
	}

	creatorLevel := r.creatorLevel(ctx, snap, input.CreatorID)
	cfg := plugincfg.Resolve(*snap.Plugins.Cases, creatorLevel)

	c := &models.Case{
		UUID:      uuid.NewString(),
		GuildID:   input.GuildID,
		CaseType:  string(input.Type),
		TargetID:  input.TargetID,
		CreatorID: input.CreatorID,
		Reason:    input.Reason,
		CreatedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("creating case: %w", err)
	}
	casesCreated.WithLabelValues(string(input.Type)).Inc()

	if cfg.LogChannel != "" {
		r.postLogMessage(ctx, c, cfg)
	}
	r.maybeNotifyTarget(ctx, snap, creatorLevel, input)
	return c, nil
}

// ListGuildCases returns a guild's cases, newest first.
func (r *Recorder) ListGuildCases(ctx context.Context, guildID string, limit int) ([]models.Case, error) {
	var out []models.Case
	q := r.db.WithContext(ctx).Where("guild_id = ?", guildID).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing cases: %w", err)
	}
	return out, nil
}

// UpdateReason rewrites a case's reason and refreshes the posted log embed
// through the backfilled channel and message ids, so the mod log never shows
// a stale reason. Cases whose log message was never posted just update the
// row; an edit failure is logged, not returned.
func (r *Recorder) UpdateReason(ctx context.Context, guildID, caseUUID, reason string) (*models.Case, error) {
	var c models.Case
	if err := r.db.WithContext(ctx).First(&c, "guild_id = ? AND uuid = ?", guildID, caseUUID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading case: %w", err)
	}
	if err := r.db.WithContext(ctx).Model(&c).Update("reason", reason).Error; err != nil {
		return nil, fmt.Errorf("updating case reason: %w", err)
	}
	c.Reason = reason

	if c.ChannelID == nil || c.MessageID == nil {
		return &c, nil
	}
	snap, err := r.source.GetGuildSettings(ctx, guildID)
	if err != nil || snap == nil || snap.Plugins.Cases == nil {
		return &c, nil
	}
	cfg := plugincfg.Resolve(*snap.Plugins.Cases, 0)
	if err := r.client.EditEmbed(ctx, *c.ChannelID, *c.MessageID, caseEmbed(&c, cfg)); err != nil {
		r.logger.Warn("editing case log message failed", "guildID", guildID, "case", c.UUID, "err", err)
	}
	return &c, nil
}

// creatorLevel resolves the acting principal's level: 0 for automated cases,
// and the raw user-level entry when the member cannot be fetched.
func (r *Recorder) creatorLevel(ctx context.Context, snap *settings.Snapshot, creatorID *string) int {
	if creatorID == nil {
		return 0
	}
	member, err := r.client.FetchMember(ctx, snap.GuildID, *creatorID)
	if err != nil {
		return levels.Resolve(snap.Levels, *creatorID, nil)
	}
	return levels.Resolve(snap.Levels, *creatorID, member.RoleIDs)
}

func caseEmbed(c *models.Case, cfg settings.CasesConfig) discord.Embed {
	icon := cfg.CaseIcons[c.CaseType]
	title := c.CaseType
	if icon != "" {
		title = icon + " " + c.CaseType
	}
	creator := "automod"
	if c.CreatorID != nil {
		creator = "<@" + *c.CreatorID + ">"
	}
	return discord.Embed{
		Title:       title,
		Description: fmt.Sprintf("**Target:** <@%s>\n**Moderator:** %s\n**Reason:** %s", c.TargetID, creator, c.Reason),
		Color:       cfg.CaseColors[c.CaseType],
		Timestamp:   c.CreatedAt,
	}
}

func (r *Recorder) postLogMessage(ctx context.Context, c *models.Case, cfg settings.CasesConfig) {
	msgID, err := r.client.SendEmbed(ctx, cfg.LogChannel, caseEmbed(c, cfg))
	if err != nil {
		r.logger.Warn("posting case log message failed", "guildID", c.GuildID, "case", c.UUID, "err", err)
		return
	}

	// backfill the posted message onto the case row
	updates := map[string]interface{}{"channel_id": cfg.LogChannel, "message_id": msgID}
	if err := r.db.WithContext(ctx).Model(c).Updates(updates).Error; err != nil {
		r.logger.Warn("backfilling case message id failed", "guildID", c.GuildID, "case", c.UUID, "err", err)
		return
	}
	c.ChannelID = &cfg.LogChannel
	c.MessageID = &msgID
}

// maybeNotifyTarget DMs the target if the mod-actions config enables it for
// this case type. Failures (DMs closed, user gone) are swallowed.
func (r *Recorder) maybeNotifyTarget(ctx context.Context, snap *settings.Snapshot, creatorLevel int, input Input) {
	if snap.Plugins.ModActions == nil {
		return
	}
	cfg := plugincfg.Resolve(*snap.Plugins.ModActions, creatorLevel)

	var tpl string
	switch input.Type {
	case TypeWarn:
		if !cfg.DMOnWarn {
			return
		}
		tpl = cfg.WarnMessage
	case TypeKick:
		if !cfg.DMOnKick {
			return
		}
		tpl = cfg.KickMessage
	case TypeBan:
		if !cfg.DMOnBan {
			return
		}
		tpl = cfg.BanMessage
	default:
		return
	}
	if tpl == "" {
		return
	}

	if err := r.dmLimiter.Wait(ctx); err != nil {
		return
	}
	content := renderDM(ctx, r.client, snap.GuildID, tpl, input)
	if err := r.client.SendDM(ctx, input.TargetID, content); err != nil {
		r.logger.Info("case DM delivery failed", "guildID", snap.GuildID, "target", input.TargetID, "err", err)
		return
	}
	dmsSent.Inc()
}

func renderDM(ctx context.Context, client discord.Client, guildID, tpl string, input Input) string {
	guildName := guildID
	if g, err := client.FetchGuild(ctx, guildID); err == nil {
		guildName = g.Name
	}
	moderator := "automod"
	if input.CreatorID != nil {
		if m, err := client.FetchMember(ctx, guildID, *input.CreatorID); err == nil && m.Username != "" {
			moderator = m.Username
		}
	}
	return msgtpl.Render(tpl, map[string]string{
		"guildName": guildName,
		"reason":    input.Reason,
		"moderator": moderator,
	})
}
