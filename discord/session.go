package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// SessionClient implements Client on top of a discordgo session.
type SessionClient struct {
	Session *discordgo.Session
}

var _ Client = (*SessionClient)(nil)

// NewSessionClient opens a discordgo session for the given bot token. The
// session only uses the REST surface; no gateway intents are required by this
// module itself.
func NewSessionClient(token string) (*SessionClient, error) {
	sess, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	return &SessionClient{Session: sess}, nil
}

// wrapErr converts discordgo REST errors into *APIError so callers can
// classify them; anything else passes through unchanged.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		return &APIError{Code: restErr.Message.Code, Message: restErr.Message.Message}
	}
	return err
}

func (c *SessionClient) FetchGuild(ctx context.Context, guildID string) (*Guild, error) {
	g, err := c.Session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapErr(err)
	}
	return &Guild{ID: g.ID, Name: g.Name}, nil
}

func (c *SessionClient) FetchMember(ctx context.Context, guildID, userID string) (*Member, error) {
	m, err := c.Session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapErr(err)
	}
	member := &Member{UserID: userID, RoleIDs: m.Roles}
	if m.User != nil {
		member.Username = m.User.Username
	}
	return member, nil
}

func (c *SessionClient) Timeout(ctx context.Context, guildID, userID string, until *time.Time, reason string) error {
	// reason travels in the audit log header
	opts := []discordgo.RequestOption{discordgo.WithContext(ctx)}
	if reason != "" {
		opts = append(opts, discordgo.WithAuditLogReason(reason))
	}
	return wrapErr(c.Session.GuildMemberTimeout(guildID, userID, until, opts...))
}

func (c *SessionClient) Kick(ctx context.Context, guildID, userID, reason string) error {
	return wrapErr(c.Session.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx)))
}

func (c *SessionClient) Ban(ctx context.Context, guildID, userID, reason string, deleteMessageSeconds int) error {
	days := deleteMessageSeconds / 86400
	return wrapErr(c.Session.GuildBanCreateWithReason(guildID, userID, reason, days, discordgo.WithContext(ctx)))
}

func (c *SessionClient) Unban(ctx context.Context, guildID, userID string) error {
	return wrapErr(c.Session.GuildBanDelete(guildID, userID, discordgo.WithContext(ctx)))
}

func (c *SessionClient) SendEmbed(ctx context.Context, channelID string, embed Embed) (string, error) {
	msg, err := c.Session.ChannelMessageSendEmbed(channelID, toMessageEmbed(embed), discordgo.WithContext(ctx))
	if err != nil {
		return "", wrapErr(err)
	}
	return msg.ID, nil
}

func (c *SessionClient) EditEmbed(ctx context.Context, channelID, messageID string, embed Embed) error {
	_, err := c.Session.ChannelMessageEditEmbed(channelID, messageID, toMessageEmbed(embed), discordgo.WithContext(ctx))
	return wrapErr(err)
}

func (c *SessionClient) SendDM(ctx context.Context, userID, content string) error {
	ch, err := c.Session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return wrapErr(err)
	}
	_, err = c.Session.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx))
	return wrapErr(err)
}

func toMessageEmbed(e Embed) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if !e.Timestamp.IsZero() {
		embed.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	return embed
}
