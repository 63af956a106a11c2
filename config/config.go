// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Features are enabled by the presence of their credentials; use the Validate* helpers to check them.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/extralife-helper/category"
)

const (
	DefaultExtraLifeAPIBase  = "https://www.extra-life.org/api"
	DefaultGameUpdateMessage = "Now playing {game}!"
)

type Config struct {
	// Extra Life
	ParticipantID        string
	ExtraLifeAPIBase     string
	DonationPollInterval time.Duration

	// Twitch chat
	TwitchChannel    string
	TwitchUsername   string
	TwitchChatOAuth  string
	TwitchAdminUsers []string

	// Twitch Helix (game updates, viewer monitor)
	TwitchClientID     string
	TwitchClientSecret string
	TwitchRefreshToken string
	TwitchHTTPTimeout  time.Duration

	// Discord
	DiscordToken             string
	DiscordDonationChannel   string
	DiscordSummaryChannel    string
	DiscordAdminUsers        []string
	DiscordGameUpdateUserID  string
	DiscordGameUpdateMessage string
	DiscordWaitingRoom       string
	DiscordLiveRoom          string

	// Game category overrides, defaults first then GAME_OVERRIDES entries.
	GameOverrides []category.Override

	// Background jobs
	ViewerMonitorInterval time.Duration
	TokenRefreshInterval  time.Duration

	// Database (optional)
	DBDsn string

	// HTTP
	HTTPAddr   string
	AdminToken string
}

// Load reads environment variables and applies defaults. Only malformed values fail;
// missing optional variables disable features.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.ParticipantID = strings.TrimSpace(os.Getenv("EXTRALIFE_PARTICIPANT_ID"))
	cfg.ExtraLifeAPIBase = strings.TrimRight(envOr("EXTRALIFE_API_BASE", DefaultExtraLifeAPIBase), "/")
	if cfg.DonationPollInterval, err = durationEnv("DONATION_POLL_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}

	cfg.TwitchChannel = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(os.Getenv("TWITCH_CHANNEL")), "#"))
	cfg.TwitchUsername = strings.TrimSpace(os.Getenv("TWITCH_USERNAME"))
	cfg.TwitchChatOAuth = os.Getenv("TWITCH_CHAT_OAUTH")
	cfg.TwitchAdminUsers = ParseAdminUsers(os.Getenv("TWITCH_ADMIN_USERS"))

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchRefreshToken = os.Getenv("TWITCH_REFRESH_TOKEN")
	if cfg.TwitchHTTPTimeout, err = durationEnv("TWITCH_HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	cfg.DiscordDonationChannel = os.Getenv("DISCORD_DONATION_CHANNEL")
	cfg.DiscordSummaryChannel = os.Getenv("DISCORD_SUMMARY_CHANNEL")
	cfg.DiscordAdminUsers = ParseAdminUsers(os.Getenv("DISCORD_ADMIN_USERS"))
	cfg.DiscordGameUpdateUserID = os.Getenv("DISCORD_GAME_UPDATE_USER_ID")
	cfg.DiscordGameUpdateMessage = envOr("DISCORD_GAME_UPDATE_MESSAGE", DefaultGameUpdateMessage)
	cfg.DiscordWaitingRoom = os.Getenv("DISCORD_WAITING_ROOM_CHANNEL")
	cfg.DiscordLiveRoom = os.Getenv("DISCORD_LIVE_ROOM_CHANNEL")

	overrides, err := category.ParseOverrides(os.Getenv("GAME_OVERRIDES"))
	if err != nil {
		return nil, fmt.Errorf("invalid GAME_OVERRIDES: %w", err)
	}
	cfg.GameOverrides = append(append([]category.Override{}, category.DefaultOverrides...), overrides...)

	if cfg.ViewerMonitorInterval, err = durationEnv("VIEWER_MONITOR_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TokenRefreshInterval, err = durationEnv("TOKEN_REFRESH_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}

	cfg.DBDsn = os.Getenv("DB_DSN")
	cfg.HTTPAddr = envOr("HTTP_ADDR", ":8080")
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")

	return cfg, nil
}

// Validate checks the settings every run needs.
func (c *Config) Validate() error {
	if c.ParticipantID == "" {
		return errors.New("missing EXTRALIFE_PARTICIPANT_ID")
	}
	if c.ValidateTwitchChat() != nil && c.ValidateDiscord() != nil {
		return errors.New("at least one service must be configured: Twitch chat (TWITCH_CHANNEL, TWITCH_USERNAME, TWITCH_CHAT_OAUTH) or Discord (DISCORD_TOKEN, DISCORD_DONATION_CHANNEL, DISCORD_SUMMARY_CHANNEL)")
	}
	return nil
}

// ValidateTwitchChat checks required fields when the Twitch chat bot is enabled.
func (c *Config) ValidateTwitchChat() error {
	if c.TwitchChannel == "" || c.TwitchUsername == "" || c.TwitchChatOAuth == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNEL, TWITCH_USERNAME, TWITCH_CHAT_OAUTH")
	}
	return nil
}

// ValidateDiscord checks required fields when the Discord bot is enabled.
func (c *Config) ValidateDiscord() error {
	if c.DiscordToken == "" || c.DiscordDonationChannel == "" || c.DiscordSummaryChannel == "" {
		return fmt.Errorf("missing discord env: require DISCORD_TOKEN, DISCORD_DONATION_CHANNEL, DISCORD_SUMMARY_CHANNEL")
	}
	return nil
}

// VoiceReady reports whether the waiting and live voice rooms are configured.
func (c *Config) VoiceReady() bool {
	return c.ValidateDiscord() == nil && c.DiscordWaitingRoom != "" && c.DiscordLiveRoom != ""
}

// HelixReady reports whether Helix calls can be authenticated.
func (c *Config) HelixReady() bool {
	return c.TwitchClientID != "" && c.TwitchClientSecret != "" && c.TwitchRefreshToken != "" && c.TwitchChannel != ""
}

// GameUpdatesReady reports whether presence changes should update the Twitch category.
func (c *Config) GameUpdatesReady() bool {
	return c.HelixReady() && c.DiscordGameUpdateUserID != ""
}

// IsAdmin reports whether user is an admin on platform ("twitch" or "discord").
// Twitch logins are compared case-insensitively; Discord ids exactly.
func (c *Config) IsAdmin(platform, user string) bool {
	switch platform {
	case "twitch":
		user = strings.ToLower(user)
		for _, a := range c.TwitchAdminUsers {
			if strings.ToLower(a) == user {
				return true
			}
		}
	case "discord":
		for _, a := range c.DiscordAdminUsers {
			if a == user {
				return true
			}
		}
	}
	return false
}

// ParseAdminUsers splits a comma separated list, dropping blanks.
func ParseAdminUsers(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// durationEnv accepts a Go duration ("90s", "5m") or a bare number of seconds.
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		secs, serr := strconv.Atoi(v)
		if serr != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
