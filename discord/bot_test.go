package discord

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/extralife-helper/commands"
	"github.com/onnwee/extralife-helper/extralife"
	"github.com/onnwee/extralife-helper/gameupdate"
)

type sent struct {
	channel, content string
	reply            bool
}

type fakeSession struct {
	mu       sync.Mutex
	sent     []sent
	renamed  []string
	moves    []string
	channels map[string]*discordgo.Channel
	moveErr  map[string]error
	sendErr  error
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, sent{channel: channelID, content: content})
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (f *fakeSession) ChannelMessageSendReply(channelID, content string, ref *discordgo.MessageReference, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{channel: channelID, content: content, reply: ref != nil})
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (f *fakeSession) ChannelEdit(channelID string, data *discordgo.ChannelEdit, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[channelID]; !ok {
		return nil, errors.New("unknown channel")
	}
	f.renamed = append(f.renamed, data.Name)
	return &discordgo.Channel{ID: channelID, Name: data.Name}, nil
}

func (f *fakeSession) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, errors.New("unknown channel")
	}
	return ch, nil
}

func (f *fakeSession) GuildMemberMove(guildID, userID string, channelID *string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.moveErr[userID]; err != nil {
		return err
	}
	f.moves = append(f.moves, userID+"->"+*channelID)
	return nil
}

func newTestBot(states []*discordgo.VoiceState) (*Bot, *fakeSession) {
	fs := &fakeSession{
		channels: map[string]*discordgo.Channel{
			"donations": {ID: "donations", Type: discordgo.ChannelTypeGuildText},
			"summary":   {ID: "summary", Type: discordgo.ChannelTypeGuildVoice},
			"waiting":   {ID: "waiting", GuildID: "g1", Type: discordgo.ChannelTypeGuildVoice},
			"live":      {ID: "live", GuildID: "g1", Type: discordgo.ChannelTypeGuildVoice},
			"text":      {ID: "text", GuildID: "g1", Type: discordgo.ChannelTypeGuildText},
		},
	}
	b := &Bot{
		Options: Options{DonationChannel: "donations", SummaryChannel: "summary", WaitingRoom: "waiting", LiveRoom: "live"},
		api:     fs,
		voiceStates: func(guildID string) ([]*discordgo.VoiceState, error) {
			return states, nil
		},
	}
	return b, fs
}

func TestBot_AnnounceDonationAndSummary(t *testing.T) {
	b, fs := newTestBot(nil)
	ann := extralife.NewAnnouncement(extralife.Donation{DisplayName: "Bob", Amount: 25})
	if err := b.AnnounceDonation(context.Background(), ann); err != nil {
		t.Fatalf("AnnounceDonation() error = %v", err)
	}
	if len(fs.sent) != 1 || fs.sent[0].channel != "donations" || fs.sent[0].content != "Bob just donated $25.00!" {
		t.Errorf("sent = %+v", fs.sent)
	}

	if err := b.UpdateSummary(context.Background(), "$25.00 (3%) Raised"); err != nil {
		t.Fatalf("UpdateSummary() error = %v", err)
	}
	if len(fs.renamed) != 1 || fs.renamed[0] != "$25.00 (3%) Raised" {
		t.Errorf("renamed = %v", fs.renamed)
	}

	b.SummaryChannel = "missing"
	if err := b.UpdateSummary(context.Background(), "x"); err == nil {
		t.Error("UpdateSummary() on missing channel should fail")
	}
	fs.sendErr = errors.New("forbidden")
	if err := b.AnnounceDonation(context.Background(), ann); err == nil {
		t.Error("AnnounceDonation() should surface send errors")
	}
}

func TestBot_Promote(t *testing.T) {
	states := []*discordgo.VoiceState{
		{UserID: "u1", ChannelID: "waiting"},
		{UserID: "u2", ChannelID: "live"},
		{UserID: "u3", ChannelID: "waiting"},
		{UserID: "u4", ChannelID: "waiting"},
	}
	b, fs := newTestBot(states)
	fs.moveErr = map[string]error{"u3": errors.New("missing permissions")}

	moved, waiting, err := b.Promote(context.Background())
	if err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if moved != 2 || waiting != 3 {
		t.Errorf("Promote() = %d/%d, want 2/3", moved, waiting)
	}
	if len(fs.moves) != 2 || fs.moves[0] != "u1->live" || fs.moves[1] != "u4->live" {
		t.Errorf("moves = %v", fs.moves)
	}
}

func TestBot_PromoteRoomsMissing(t *testing.T) {
	tests := []struct {
		name          string
		waiting, live string
	}{
		{"unset", "", "live"},
		{"unknown waiting", "nope", "live"},
		{"unknown live", "waiting", "nope"},
		{"text channel", "text", "live"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBot(nil)
			b.WaitingRoom, b.LiveRoom = tt.waiting, tt.live
			if _, _, err := b.Promote(context.Background()); !errors.Is(err, commands.ErrVoiceChannelsNotFound) {
				t.Errorf("Promote() error = %v, want ErrVoiceChannelsNotFound", err)
			}
		})
	}
}

type fakeHandler struct {
	reqs []commands.Request
}

func (h *fakeHandler) Handle(ctx context.Context, req commands.Request) (string, bool) {
	h.reqs = append(h.reqs, req)
	return "pong", true
}

func TestBot_HandleMessage(t *testing.T) {
	b, fs := newTestBot(nil)
	h := &fakeHandler{}
	b.Commands = h

	msg := func(author *discordgo.User, content string) *discordgo.MessageCreate {
		return &discordgo.MessageCreate{Message: &discordgo.Message{ID: "m1", ChannelID: "text", GuildID: "g1", Author: author, Content: content}}
	}
	b.handleMessage(context.Background(), msg(&discordgo.User{ID: "1001", Username: "admin"}, "!goal"))
	b.handleMessage(context.Background(), msg(&discordgo.User{ID: "9", Username: "helper", Bot: true}, "!goal"))
	b.handleMessage(context.Background(), msg(&discordgo.User{ID: "1001", Username: "admin"}, "hello"))

	if len(h.reqs) != 1 {
		t.Fatalf("handler calls = %d, want 1", len(h.reqs))
	}
	if r := h.reqs[0]; r.Platform != commands.PlatformDiscord || r.UserID != "1001" || r.Username != "admin" {
		t.Errorf("request = %+v", r)
	}
	if len(fs.sent) != 1 || fs.sent[0].content != "pong" || !fs.sent[0].reply {
		t.Errorf("sent = %+v", fs.sent)
	}
}

func TestActivities(t *testing.T) {
	got := Activities([]*discordgo.Activity{
		{Name: "Spotify", Type: discordgo.ActivityTypeListening},
		nil,
		{Name: "Minecraft", Type: discordgo.ActivityTypeGame},
	})
	if len(got) != 2 || got[0].Playing || !got[1].Playing || gameupdate.GameFromActivities(got) != "Minecraft" {
		t.Errorf("Activities() = %+v", got)
	}
}

type fakePresenceHandler struct {
	res gameupdate.Result
}

func (f fakePresenceHandler) HandlePresenceChange(ctx context.Context, oldGame, newGame string) (gameupdate.Result, error) {
	res := f.res
	res.Game = newGame
	return res, nil
}

func TestBot_PresenceRelaysGameUpdate(t *testing.T) {
	b, _ := newTestBot(nil)
	var said []string
	b.Presence = &gameupdate.PresenceTracker{
		UserID:    "streamer",
		Handler:   fakePresenceHandler{res: gameupdate.Result{Outcome: gameupdate.OutcomeApplied}},
		OnApplied: GameUpdateRelay("Now playing {game}!", func(s string) { said = append(said, s) }),
	}
	update := func(userID, game string) *discordgo.PresenceUpdate {
		return &discordgo.PresenceUpdate{Presence: discordgo.Presence{
			User:       &discordgo.User{ID: userID},
			Activities: []*discordgo.Activity{{Name: game, Type: discordgo.ActivityTypeGame}},
		}}
	}
	b.handlePresence(context.Background(), update("someone-else", "Tetris"))
	b.handlePresence(context.Background(), update("streamer", "Minecraft"))
	b.handlePresence(context.Background(), update("streamer", "Minecraft"))

	if len(said) != 1 || said[0] != "Now playing Minecraft!" {
		t.Errorf("relayed = %v", said)
	}
}
