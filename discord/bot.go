// Package discord is the Discord side of the helper: donation announcements,
// the fundraising summary channel, chat commands, voice room promotion and
// presence-driven game updates.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/onnwee/extralife-helper/commands"
	"github.com/onnwee/extralife-helper/extralife"
	"github.com/onnwee/extralife-helper/gameupdate"
	"github.com/onnwee/extralife-helper/telemetry"
)

// Intents requested at identify time.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsGuildPresences

// session is the subset of *discordgo.Session the bot calls.
type session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelEdit(channelID string, data *discordgo.ChannelEdit, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMemberMove(guildID, userID string, channelID *string, options ...discordgo.RequestOption) error
}

// CommandHandler answers chat commands.
type CommandHandler interface {
	Handle(ctx context.Context, req commands.Request) (string, bool)
}

// Options configures a Bot.
type Options struct {
	Token           string
	DonationChannel string
	SummaryChannel  string
	WaitingRoom     string
	LiveRoom        string
}

// Bot wraps a discordgo session.
type Bot struct {
	Options
	Commands CommandHandler
	// Presence receives presence updates when set.
	Presence *gameupdate.PresenceTracker

	dg          *discordgo.Session
	api         session
	voiceStates func(guildID string) ([]*discordgo.VoiceState, error)
}

// New creates a bot for the given options. The gateway is not opened until Run.
func New(opts Options, h CommandHandler) (*Bot, error) {
	if opts.Token == "" {
		return nil, errors.New("discord: token required")
	}
	dg, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	dg.Identify.Intents = Intents
	b := &Bot{Options: opts, Commands: h, dg: dg, api: dg}
	b.voiceStates = func(guildID string) ([]*discordgo.VoiceState, error) {
		g, err := dg.State.Guild(guildID)
		if err != nil {
			return nil, err
		}
		return g.VoiceStates, nil
	}
	return b, nil
}

// Run opens the gateway and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Discord Bot Online", slog.String("user", r.User.Username), slog.String("component", "discord"))
		b.checkChannels()
	})
	b.dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		b.handleMessage(ctx, m)
	})
	if b.Presence != nil {
		b.dg.AddHandler(func(s *discordgo.Session, p *discordgo.PresenceUpdate) {
			b.handlePresence(ctx, p)
		})
		slog.Info("Game update monitoring enabled", slog.String("user_id", b.Presence.UserID), slog.String("component", "discord"))
	}
	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	<-ctx.Done()
	if err := b.dg.Close(); err != nil {
		slog.Debug("discord close", slog.Any("err", err))
	}
	return nil
}

// checkChannels logs whether the configured text channels resolve.
func (b *Bot) checkChannels() {
	for _, ch := range []struct{ kind, id string }{
		{"Donation", b.DonationChannel},
		{"Summary", b.SummaryChannel},
	} {
		if _, err := b.api.Channel(ch.id); err != nil {
			slog.Error("Unable to find channel", slog.String("kind", ch.kind), slog.String("channel_id", ch.id), slog.Any("err", err), slog.String("component", "discord"))
			continue
		}
		slog.Info("Found Discord "+ch.kind+" Channel", slog.String("channel_id", ch.id), slog.String("component", "discord"))
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || b.Commands == nil {
		return
	}
	if !strings.HasPrefix(m.Content, "!") {
		return
	}
	req := commands.Request{
		Platform: commands.PlatformDiscord,
		UserID:   m.Author.ID,
		Username: m.Author.Username,
		Text:     m.Content,
	}
	cctx := telemetry.WithCorrelation(ctx, uuid.New().String())
	reply, ok := b.Commands.Handle(cctx, req)
	if !ok || reply == "" {
		return
	}
	if _, err := b.api.ChannelMessageSendReply(m.ChannelID, reply, m.Reference()); err != nil {
		slog.Warn("discord reply failed", slog.Any("err", err), slog.String("component", "discord"))
	}
}

func (b *Bot) handlePresence(ctx context.Context, p *discordgo.PresenceUpdate) {
	if p.User == nil {
		return
	}
	cctx := telemetry.WithCorrelation(ctx, uuid.New().String())
	b.Presence.Observe(cctx, p.User.ID, Activities(p.Activities))
}

// Activities converts gateway activities; only game activities count as playing.
func Activities(in []*discordgo.Activity) []gameupdate.Activity {
	out := make([]gameupdate.Activity, 0, len(in))
	for _, a := range in {
		if a == nil {
			continue
		}
		out = append(out, gameupdate.Activity{Name: a.Name, Playing: a.Type == discordgo.ActivityTypeGame})
	}
	return out
}

// AnnounceDonation posts the Discord rendering of a to the donation channel.
func (b *Bot) AnnounceDonation(ctx context.Context, a extralife.Announcement) error {
	if _, err := b.api.ChannelMessageSend(b.DonationChannel, a.Discord); err != nil {
		return fmt.Errorf("donation message: %w", err)
	}
	return nil
}

// UpdateSummary renames the summary channel to text.
func (b *Bot) UpdateSummary(ctx context.Context, text string) error {
	if _, err := b.api.ChannelEdit(b.SummaryChannel, &discordgo.ChannelEdit{Name: text}); err != nil {
		slog.Error("Error updating Discord summary", slog.Any("err", err), slog.String("component", "discord"))
		return fmt.Errorf("rename summary channel: %w", err)
	}
	return nil
}

// Promote moves every member of the waiting room voice channel into the live
// room. Individual move failures are logged and skipped.
func (b *Bot) Promote(ctx context.Context) (moved, waiting int, err error) {
	if b.WaitingRoom == "" || b.LiveRoom == "" {
		return 0, 0, commands.ErrVoiceChannelsNotFound
	}
	waitRoom, err := b.api.Channel(b.WaitingRoom)
	if err != nil || waitRoom.Type != discordgo.ChannelTypeGuildVoice {
		return 0, 0, commands.ErrVoiceChannelsNotFound
	}
	liveRoom, err := b.api.Channel(b.LiveRoom)
	if err != nil || liveRoom.Type != discordgo.ChannelTypeGuildVoice {
		return 0, 0, commands.ErrVoiceChannelsNotFound
	}
	states, err := b.voiceStates(waitRoom.GuildID)
	if err != nil {
		return 0, 0, fmt.Errorf("voice states: %w", err)
	}
	target := liveRoom.ID
	for _, vs := range states {
		if vs == nil || vs.ChannelID != waitRoom.ID {
			continue
		}
		waiting++
		if err := b.api.GuildMemberMove(waitRoom.GuildID, vs.UserID, &target); err != nil {
			slog.Warn("Failed to move member", slog.String("member_id", vs.UserID), slog.Any("err", err), slog.String("component", "discord"))
			continue
		}
		moved++
	}
	return moved, waiting, nil
}

// GameUpdateRelay returns an OnApplied hook that posts template, with {game}
// replaced, through say.
func GameUpdateRelay(template string, say func(string)) func(context.Context, gameupdate.Result) {
	return func(ctx context.Context, res gameupdate.Result) {
		if say == nil || template == "" {
			return
		}
		msg := strings.ReplaceAll(template, "{game}", res.Game)
		say(msg)
		slog.Info("Sent game update notification", slog.String("game", res.Game), slog.String("component", "discord"))
	}
}
