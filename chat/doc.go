// Package chat contains the Twitch chat bot.
//
// The bot joins TWITCH_CHANNEL over IRC and:
//   - answers chat commands (!goal, !promote, !category) through a
//     commands.Handler, replying in the channel the command came from;
//   - posts donation announcements as an extralife.Sink;
//   - relays game update notices from the Discord presence tracker.
//
// Credentials: the IRC client requires a bot username and a chat OAuth token
// with chat:read/chat:edit scopes (TWITCH_USERNAME, TWITCH_CHAT_OAUTH). The
// token is separate from the refresh-token credential used for Helix calls.
package chat
