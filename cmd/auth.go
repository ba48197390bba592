package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/desertthunder/genrefy/internal/server"
	"github.com/desertthunder/genrefy/internal/services"
	"github.com/desertthunder/genrefy/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const authTimeout = 2 * time.Minute

// authorizer is the OAuth side of [services.SpotifyService].
type authorizer interface {
	GetAuthURL(state string) string
	GetOAuthConfig() *oauth2.Config
}

// Auth performs the OAuth2 authorization code flow for Spotify.
//
// Starts a local HTTP server, opens the browser for user authorization, exchanges the code
// for tokens and saves them to the config file.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	spotifyService, err := services.NewSpotifyService(r.config.Credentials.Spotify.Map())
	if err != nil {
		return fmt.Errorf("%w: set client_id and client_secret in %s or SPOTIFY_CLIENT_ID/SPOTIFY_CLIENT_SECRET", err, r.configPath)
	}

	token, err := r.authorize(ctx, spotifyService)
	if err != nil {
		return &shared.OpError{Op: "authorize", Err: err}
	}

	r.mu.Lock()
	err = r.config.Credentials.Spotify.Update(token)
	if err == nil {
		err = shared.SaveConfig(r.configPath, r.config)
	}
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to %s\n", r.configPath)

	if err := spotifyService.AuthenticateWithToken(ctx, token); err != nil {
		return err
	}
	user, err := spotifyService.CurrentUser(ctx)
	if err != nil {
		r.logger.Warn("could not fetch the signed in user", "err", err)
		return nil
	}
	r.writePlain("✓ Signed in as %s\n\nYou can now use: genrefy scan\n", user.DisplayName)
	return nil
}

// authorize runs the callback server until the browser redirect delivers a token.
func (r *Runner) authorize(ctx context.Context, auth authorizer) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	handler := server.NewOAuthHandler(auth.GetOAuthConfig(), state)
	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger))
	router.Handler(handler)

	addr := net.JoinHostPort(r.config.Server.Host, strconv.Itoa(r.config.Server.Port))
	srv := server.NewCallbackServer(addr, router, r.logger)
	if err := srv.Start(); err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "err", err)
		}
	}()
	r.logger.Info("started OAuth callback server", "addr", srv.Addr())

	authURL := auth.GetAuthURL(state)
	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := r.browser(authURL); err != nil {
		r.logger.Warn("failed to open browser automatically", "err", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", authTimeout)

	waitCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()
	return handler.Wait(waitCtx)
}
