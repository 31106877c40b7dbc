package main

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// openGateway registers the event handlers and connects the websocket. The
// engine receives platform automod hits; everything else the engine consumes
// arrives through counter mutations.
func (s *Server) openGateway() error {
	sess := s.client.Session
	sess.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMembers |
		discordgo.IntentGuildModeration |
		discordgo.IntentAutoModerationExecution

	sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		s.logger.Info("gateway ready", "username", r.User.Username, "guilds", len(r.Guilds))
	})

	sess.AddHandler(func(_ *discordgo.Session, ev *discordgo.AutoModerationActionExecution) {
		s.engine.HandlePlatformAutomodTrigger(context.Background(), ev.GuildID, ev.RuleID, ev.UserID)
	})

	// a manual unban cancels any pending automatic one
	sess.AddHandler(func(_ *discordgo.Session, ev *discordgo.GuildBanRemove) {
		ctx := context.Background()
		if err := s.bans.Cancel(ctx, ev.GuildID, ev.User.ID); err != nil {
			s.logger.Error("cancelling temp ban after manual unban failed", "guildID", ev.GuildID, "userID", ev.User.ID, "err", err)
		}
	})

	return sess.Open()
}
