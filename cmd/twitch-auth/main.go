// Command twitch-auth mints the refresh token the helper needs for game
// updates.
//
// Without -code it prints the authorize URL. Open it, approve the app, and
// copy the code parameter from the redirect. With -code it exchanges the code
// and prints TWITCH_REFRESH_TOKEN; -verify then refreshes once to prove the
// token works.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"

	"github.com/onnwee/extralife-helper/twitchapi"
)

const defaultScopes = "channel:manage:broadcast"

type options struct {
	clientID     string
	clientSecret string
	redirectURL  string
	scopes       string
	state        string
	code         string
	verify       bool
	endpoint     oauth2.Endpoint
}

func parseFlags(args []string) (options, error) {
	o := options{endpoint: twitch.Endpoint}
	fs := flag.NewFlagSet("twitch-auth", flag.ContinueOnError)
	fs.StringVar(&o.clientID, "client-id", os.Getenv("TWITCH_CLIENT_ID"), "Twitch application client id")
	fs.StringVar(&o.clientSecret, "client-secret", os.Getenv("TWITCH_CLIENT_SECRET"), "Twitch application client secret")
	fs.StringVar(&o.redirectURL, "redirect", "http://localhost:3000", "redirect URL registered for the application")
	fs.StringVar(&o.scopes, "scopes", defaultScopes, "space separated scopes")
	fs.StringVar(&o.state, "state", "", "state value for the authorize URL (random when empty)")
	fs.StringVar(&o.code, "code", "", "authorization code to exchange")
	fs.BoolVar(&o.verify, "verify", false, "refresh once with the new refresh token")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.clientID == "" {
		return o, errors.New("client id required (-client-id or TWITCH_CLIENT_ID)")
	}
	if o.code != "" && o.clientSecret == "" {
		return o, errors.New("client secret required to exchange a code")
	}
	return o, nil
}

func (o options) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     o.clientID,
		ClientSecret: o.clientSecret,
		Endpoint:     o.endpoint,
		RedirectURL:  o.redirectURL,
		Scopes:       strings.Fields(o.scopes),
	}
}

func randomState() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func run(ctx context.Context, o options, out io.Writer) error {
	oc := o.oauthConfig()
	if o.code == "" {
		state := o.state
		if state == "" {
			state = randomState()
		}
		fmt.Fprintln(out, "Open this URL, approve the app, then rerun with -code:")
		fmt.Fprintln(out, oc.AuthCodeURL(state))
		return nil
	}

	tok, err := oc.Exchange(ctx, o.code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	if tok.RefreshToken == "" {
		return errors.New("token response carried no refresh token")
	}
	fmt.Fprintf(out, "TWITCH_REFRESH_TOKEN=%s\n", tok.RefreshToken)
	fmt.Fprintf(out, "# access token expires %s\n", tok.Expiry.Format(time.RFC3339))

	if !o.verify {
		return nil
	}
	cache := twitchapi.NewCredentialCache(twitchapi.RefreshCredentials{
		ClientID:     o.clientID,
		ClientSecret: o.clientSecret,
		RefreshToken: tok.RefreshToken,
	}, twitchapi.WithTokenEndpoint(&twitchapi.TokenEndpoint{URL: oc.Endpoint.TokenURL}))
	verified, err := cache.TokenSource(ctx).Token()
	if err != nil {
		return fmt.Errorf("verify refresh token: %w", err)
	}
	fmt.Fprintf(out, "# refresh verified, new access token valid until %s\n", verified.Expiry.Format(time.RFC3339))
	return nil
}

func main() {
	_ = godotenv.Load()
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("invalid arguments", slog.Any("err", err))
		os.Exit(2)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := run(ctx, o, os.Stdout); err != nil {
		slog.Error("twitch-auth failed", slog.Any("err", err))
		os.Exit(1)
	}
}
