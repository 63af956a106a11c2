// Package commands implements the chat commands shared by the Twitch and
// Discord bots. Handlers return the reply text; transports only deliver it.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/extralife-helper/extralife"
	"github.com/onnwee/extralife-helper/gameupdate"
	"github.com/onnwee/extralife-helper/telemetry"
)

const (
	PlatformTwitch  = "twitch"
	PlatformDiscord = "discord"
)

// Replies shared with the transports and tests.
const (
	ReplyGoalUnavailable  = "Sorry, unable to get goal information right now."
	ReplyNoPermission     = "You do not have permission to use this command."
	ReplyPromoteNotReady  = "Promote command not configured properly."
	ReplyVoiceNotFound    = "Voice channels not found."
	ReplyWaitingRoomEmpty = "No one in the waiting room to promote."
	ReplyPromoteFailed    = "Error executing promote command."
	ReplyCategoryNotReady = "Game updates are not configured."
	ReplyCategoryUsage    = "Usage: !category <game>"
	ReplyCategoryFailed   = "Unable to update the category right now."
)

// ErrVoiceChannelsNotFound is returned by a Promoter whose rooms are missing.
var ErrVoiceChannelsNotFound = errors.New("voice channels not found")

// Request is one chat message that looked like a command.
type Request struct {
	Platform string
	// UserID is the Discord user id or the lower-case Twitch login.
	UserID   string
	Username string
	Text     string
}

// ParticipantSource fetches the fundraising summary.
type ParticipantSource interface {
	GetParticipant(ctx context.Context, participantID string) (*extralife.Participant, error)
}

// AdminChecker decides who may run privileged commands.
type AdminChecker interface {
	IsAdmin(platform, user string) bool
}

// Promoter moves everyone from the waiting room to the live room and reports
// how many were moved out of how many waiting.
type Promoter interface {
	Promote(ctx context.Context) (moved, waiting int, err error)
}

// CategorySetter applies a game title to the Twitch channel.
type CategorySetter interface {
	Apply(ctx context.Context, title string) (gameupdate.Result, error)
}

// Handler dispatches commands. Nil optional dependencies disable their
// commands with an explanatory reply.
type Handler struct {
	Participants  ParticipantSource
	ParticipantID string
	Admins        AdminChecker
	Promoter      Promoter
	Categories    CategorySetter
}

// Parse splits "!name args" into a lower-case name and the trimmed args.
func Parse(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "!") {
		return "", "", false
	}
	name, args, _ = strings.Cut(text[1:], " ")
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(args), true
}

// Handle runs the command in req. ok is false for non-commands and unknown
// commands, which get no reply.
func (h *Handler) Handle(ctx context.Context, req Request) (reply string, ok bool) {
	name, args, isCmd := Parse(req.Text)
	if !isCmd {
		return "", false
	}
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("platform", req.Platform), slog.String("component", "commands"))
	switch name {
	case "goal":
		reply = h.goal(ctx, log)
	case "promote":
		reply = h.promote(ctx, log, req)
	case "category":
		reply = h.category(ctx, log, req, args)
	default:
		return "", false
	}
	telemetry.ObserveCommand(req.Platform, name)
	return reply, true
}

func (h *Handler) goal(ctx context.Context, log *slog.Logger) string {
	if h.Participants == nil {
		return ReplyGoalUnavailable
	}
	p, err := h.Participants.GetParticipant(ctx, h.ParticipantID)
	if err != nil {
		log.Error("Error getting goal info", slog.Any("err", err))
		return ReplyGoalUnavailable
	}
	msg := extralife.GoalMessage(p)
	log.Info("Goal command executed", slog.String("message", msg))
	return msg
}

func (h *Handler) isAdmin(req Request) bool {
	return h.Admins != nil && h.Admins.IsAdmin(req.Platform, req.UserID)
}

func (h *Handler) promote(ctx context.Context, log *slog.Logger, req Request) string {
	if !h.isAdmin(req) {
		log.Warn("Unauthorized promote command attempt", slog.String("user_id", req.UserID), slog.String("username", req.Username))
		return ReplyNoPermission
	}
	if h.Promoter == nil {
		return ReplyPromoteNotReady
	}
	moved, waiting, err := h.Promoter.Promote(ctx)
	switch {
	case errors.Is(err, ErrVoiceChannelsNotFound):
		log.Warn("Voice channels not found for promote command")
		return ReplyVoiceNotFound
	case err != nil:
		log.Error("Error executing promote command", slog.Any("err", err))
		return ReplyPromoteFailed
	case waiting == 0:
		return ReplyWaitingRoomEmpty
	}
	log.Info("Promote command executed",
		slog.Int("promoted", moved),
		slog.Int("total_in_room", waiting),
		slog.String("executed_by", req.Username))
	return fmt.Sprintf("Promoted %d member(s) to live chat!", moved)
}

func (h *Handler) category(ctx context.Context, log *slog.Logger, req Request, game string) string {
	if !h.isAdmin(req) {
		log.Warn("Unauthorized category command attempt", slog.String("user_id", req.UserID), slog.String("username", req.Username))
		return ReplyNoPermission
	}
	if h.Categories == nil {
		return ReplyCategoryNotReady
	}
	if game == "" {
		return ReplyCategoryUsage
	}
	res, err := h.Categories.Apply(ctx, game)
	if err != nil {
		log.Error("category command failed", slog.Any("err", err))
		return ReplyCategoryFailed
	}
	switch res.Outcome {
	case gameupdate.OutcomeApplied:
		return fmt.Sprintf("Category set to %s.", res.Match.Candidate.Name)
	case gameupdate.OutcomeNoMatch:
		return fmt.Sprintf("No Twitch category found for %s.", res.Game)
	default:
		return ReplyCategoryFailed
	}
}
