package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/google/uuid"

	"github.com/onnwee/extralife-helper/commands"
	"github.com/onnwee/extralife-helper/extralife"
	"github.com/onnwee/extralife-helper/telemetry"
)

// CommandHandler answers chat commands.
type CommandHandler interface {
	Handle(ctx context.Context, req commands.Request) (string, bool)
}

// ircClient is the subset of *twitch.Client the bot uses.
type ircClient interface {
	OnConnect(func())
	OnPrivateMessage(func(twitch.PrivateMessage))
	Join(channels ...string)
	Say(channel, text string)
	Connect() error
	Disconnect() error
}

// Bot is the Twitch chat side of the helper: it answers commands and posts
// donation announcements and game update notices to one channel.
type Bot struct {
	Channel  string
	Username string
	Commands CommandHandler

	client ircClient
}

// NewBot builds a bot authenticated as username. The chat token may be given
// with or without the "oauth:" prefix.
func NewBot(username, chatOAuth, channel string, h CommandHandler) *Bot {
	return &Bot{
		Channel:  strings.ToLower(channel),
		Username: strings.ToLower(username),
		Commands: h,
		client:   twitch.NewClient(username, normalizeOAuth(chatOAuth)),
	}
}

func normalizeOAuth(token string) string {
	token = strings.TrimSpace(token)
	if token == "" || strings.HasPrefix(token, "oauth:") {
		return token
	}
	return "oauth:" + token
}

// Run connects and serves until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.client.OnConnect(func() {
		slog.Info("twitch chat connected", slog.String("channel", b.Channel), slog.String("component", "twitch_chat"))
	})
	b.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		b.handleMessage(ctx, msg)
	})

	// Handle context cancellation by closing the client
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if err := b.client.Disconnect(); err != nil {
				slog.Debug("twitch chat disconnect", slog.Any("err", err))
			}
		case <-done:
		}
	}()
	defer close(done)

	b.client.Join(b.Channel)
	slog.Info("Twitch Bot connecting...", slog.String("channel", b.Channel), slog.String("component", "twitch_chat"))
	err := b.client.Connect()
	if errors.Is(err, twitch.ErrClientDisconnected) || ctx.Err() != nil {
		return nil
	}
	return err
}

// handleMessage answers commands off the IRC read loop.
func (b *Bot) handleMessage(ctx context.Context, msg twitch.PrivateMessage) {
	if b.Commands == nil || strings.EqualFold(msg.User.Name, b.Username) {
		return
	}
	if !strings.HasPrefix(strings.TrimSpace(msg.Message), "!") {
		return
	}
	name := msg.User.DisplayName
	if name == "" {
		name = msg.User.Name
	}
	req := commands.Request{
		Platform: commands.PlatformTwitch,
		UserID:   strings.ToLower(msg.User.Name),
		Username: name,
		Text:     msg.Message,
	}
	channel := msg.Channel
	if channel == "" {
		channel = b.Channel
	}
	go func() {
		cctx := telemetry.WithCorrelation(ctx, uuid.New().String())
		if reply, ok := b.Commands.Handle(cctx, req); ok && reply != "" {
			b.client.Say(channel, reply)
		}
	}()
}

// Say posts text to the bot's channel.
func (b *Bot) Say(text string) {
	b.client.Say(b.Channel, text)
}

// AnnounceDonation posts the Twitch rendering of a.
func (b *Bot) AnnounceDonation(ctx context.Context, a extralife.Announcement) error {
	b.Say(a.Twitch)
	return nil
}
