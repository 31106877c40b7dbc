// Package discord is the chat-platform boundary: a narrow client interface
// covering the member, punishment, and messaging primitives the moderation
// engine needs, plus platform error classification. The production
// implementation wraps a discordgo session; tests use the in-package fake.
package discord

import (
	"context"
	"time"
)

// Member is the subset of guild member state the engine consumes.
type Member struct {
	UserID   string
	Username string
	RoleIDs  []string
}

// Guild is the subset of guild state used for message templating.
type Guild struct {
	ID   string
	Name string
}

// Embed is a platform-neutral rich message. The discordgo client converts it
// to the wire shape.
type Embed struct {
	Title       string
	Description string
	Color       int
	Timestamp   time.Time
}

// Client is the full platform surface consumed by this module. Every call
// may suspend on network I/O and may fail with an *APIError carrying the
// platform's numeric code.
type Client interface {
	FetchGuild(ctx context.Context, guildID string) (*Guild, error)
	FetchMember(ctx context.Context, guildID, userID string) (*Member, error)
	// Timeout mutes a member until the given time; a nil until clears an
	// existing timeout.
	Timeout(ctx context.Context, guildID, userID string, until *time.Time, reason string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	Ban(ctx context.Context, guildID, userID, reason string, deleteMessageSeconds int) error
	Unban(ctx context.Context, guildID, userID string) error
	SendEmbed(ctx context.Context, channelID string, embed Embed) (messageID string, err error)
	EditEmbed(ctx context.Context, channelID, messageID string, embed Embed) error
	SendDM(ctx context.Context, userID, content string) error
}
