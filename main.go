// Command extralife-helper is the Extra Life fundraising bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Polls DonorDrive for new donations and announces them on Discord and
//     Twitch chat, keeping the Discord summary channel name current.
//   - Answers !goal, !promote and !category in both chats.
//   - Mirrors the streamer's Discord "playing" status onto the Twitch
//     channel category, using a cached refresh-token credential.
//   - Optionally records seen donations in Postgres (DB_DSN).
//   - Exposes /healthz, /readyz, /status, /metrics and POST /admin/category.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/extralife-helper/category"
	"github.com/onnwee/extralife-helper/chat"
	"github.com/onnwee/extralife-helper/commands"
	"github.com/onnwee/extralife-helper/config"
	"github.com/onnwee/extralife-helper/db"
	"github.com/onnwee/extralife-helper/discord"
	"github.com/onnwee/extralife-helper/extralife"
	"github.com/onnwee/extralife-helper/gameupdate"
	"github.com/onnwee/extralife-helper/oauth"
	"github.com/onnwee/extralife-helper/server"
	"github.com/onnwee/extralife-helper/telemetry"
	"github.com/onnwee/extralife-helper/twitchapi"
	"github.com/onnwee/extralife-helper/viewers"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func setupLogging() {
	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	// Optional; requires OTEL_EXPORTER_OTLP_ENDPOINT
	shutdown, err := telemetry.InitTracing("extralife-helper", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()
	slog.Info("telemetry initialized", slog.Bool("tracing", telemetry.IsTracingEnabled()))

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handlers := &server.Handlers{AdminToken: cfg.AdminToken, Version: version}

	// Seen-donation ledger: Postgres when configured, memory otherwise.
	var seen extralife.SeenStore = extralife.NewMemorySeenStore()
	if cfg.DBDsn != "" {
		database, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.RunMigrations(database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
		seen = &db.SeenDonations{DB: database, ParticipantID: cfg.ParticipantID}
		handlers.DB = database
	}

	donorDrive := &extralife.Client{BaseURL: cfg.ExtraLifeAPIBase}
	cmdHandler := &commands.Handler{
		Participants:  donorDrive,
		ParticipantID: cfg.ParticipantID,
		Admins:        cfg,
	}

	// Twitch Helix: shared credential cache, category coordinator, viewer monitor.
	var coordinator *gameupdate.Coordinator
	if cfg.HelixReady() {
		cache := twitchapi.NewCredentialCache(twitchapi.RefreshCredentials{
			ClientID:     cfg.TwitchClientID,
			ClientSecret: cfg.TwitchClientSecret,
			RefreshToken: cfg.TwitchRefreshToken,
		}, twitchapi.WithRefreshTimeout(cfg.TwitchHTTPTimeout))
		helix := &twitchapi.HelixClient{Tokens: cache, ClientID: cfg.TwitchClientID, Timeout: cfg.TwitchHTTPTimeout}
		coordinator = &gameupdate.Coordinator{
			Helix:     helix,
			Tokens:    cache,
			Channel:   cfg.TwitchChannel,
			ClientID:  cfg.TwitchClientID,
			Overrides: category.NewOverrides(cfg.GameOverrides...),
		}
		cmdHandler.Categories = coordinator
		handlers.Categories = coordinator
		handlers.Tokens = cache

		oauth.StartRefresher(ctx, cache, cfg.TokenRefreshInterval)
		monitor := &viewers.Monitor{Source: helix, Channel: cfg.TwitchChannel, Interval: cfg.ViewerMonitorInterval}
		go monitor.Run(ctx)
	} else {
		slog.Info("game updates and viewer monitoring disabled (missing TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET, TWITCH_REFRESH_TOKEN or TWITCH_CHANNEL)")
	}

	summary := &extralife.Summary{Source: donorDrive, ParticipantID: cfg.ParticipantID}
	announcer := &extralife.Announcer{
		Source:        donorDrive,
		ParticipantID: cfg.ParticipantID,
		Seen:          seen,
		Summary:       summary,
		SummaryDelay:  5 * time.Second,
	}
	handlers.Summary = summary

	var twitchBot *chat.Bot
	if err := cfg.ValidateTwitchChat(); err == nil {
		twitchBot = chat.NewBot(cfg.TwitchUsername, cfg.TwitchChatOAuth, cfg.TwitchChannel, cmdHandler)
		announcer.Sinks = append(announcer.Sinks, twitchBot)
	} else {
		slog.Info("twitch chat disabled", slog.Any("reason", err))
	}

	var discordBot *discord.Bot
	if err := cfg.ValidateDiscord(); err == nil {
		discordBot, err = discord.New(discord.Options{
			Token:           cfg.DiscordToken,
			DonationChannel: cfg.DiscordDonationChannel,
			SummaryChannel:  cfg.DiscordSummaryChannel,
			WaitingRoom:     cfg.DiscordWaitingRoom,
			LiveRoom:        cfg.DiscordLiveRoom,
		}, cmdHandler)
		if err != nil {
			slog.Error("discord setup failed", slog.Any("err", err))
			os.Exit(1)
		}
		announcer.Sinks = append(announcer.Sinks, discordBot)
		summary.Sink = discordBot
		if cfg.VoiceReady() {
			cmdHandler.Promoter = discordBot
		}
		if cfg.GameUpdatesReady() {
			var say func(string)
			if twitchBot != nil {
				say = twitchBot.Say
			}
			discordBot.Presence = &gameupdate.PresenceTracker{
				UserID:    cfg.DiscordGameUpdateUserID,
				Handler:   coordinator,
				OnApplied: discord.GameUpdateRelay(cfg.DiscordGameUpdateMessage, say),
			}
		}
	} else {
		slog.Info("discord disabled", slog.Any("reason", err))
	}

	if twitchBot != nil {
		go func() {
			if err := twitchBot.Run(ctx); err != nil {
				slog.Error("twitch chat exited with error", slog.Any("err", err))
			}
		}()
	}
	if discordBot != nil {
		go func() {
			if err := discordBot.Run(ctx); err != nil {
				slog.Error("discord exited with error", slog.Any("err", err))
			}
		}()
	}

	go func() {
		if _, err := summary.Refresh(ctx); err != nil {
			slog.Error("Error updating Discord summary", slog.Any("err", err))
		}
	}()
	go announcer.Run(ctx, cfg.DonationPollInterval)

	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, handlers); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
