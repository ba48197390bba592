// Spotify Web API implementation of [Library]
package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/shared"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

const defaultRedirectURI = "http://127.0.0.1:3000/callback"

// Scopes is the minimal permission set: read the library and profile, write playlists.
var Scopes = []string{
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
}

// SpotifyService implements [Library] on top of [spotify.Client].
type SpotifyService struct {
	config         *oauth2.Config
	httpClient     *http.Client
	baseURL        string
	client         *spotify.Client
	onTokenRefresh func(*oauth2.Token)

	mu    sync.Mutex
	token *oauth2.Token
}

// Option configures a [SpotifyService].
type Option func(*SpotifyService)

// WithBaseURL points API requests at url instead of api.spotify.com. url must end with "/".
func WithBaseURL(url string) Option {
	return func(s *SpotifyService) { s.baseURL = url }
}

// WithHTTPClient sets the transport used for API and token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *SpotifyService) { s.httpClient = c }
}

// WithEndpoint overrides the OAuth authorize and token URLs.
func WithEndpoint(e oauth2.Endpoint) Option {
	return func(s *SpotifyService) { s.config.Endpoint = e }
}

// NewSpotifyService creates a Spotify service from client_id, client_secret and redirect_uri credentials.
func NewSpotifyService(credentials map[string]string, opts ...Option) (*SpotifyService, error) {
	clientID := credentials["client_id"]
	if clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret := credentials["client_secret"]
	if clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := credentials["redirect_uri"]
	if redirectURI == "" {
		redirectURI = defaultRedirectURI
	}

	s := &SpotifyService{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  spotifyauth.AuthURL,
				TokenURL: spotifyauth.TokenURL,
			},
		},
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// SetTokenRefreshCallback registers fn to receive every token the oauth2 transport obtains after the initial one.
//
// Must be called before [SpotifyService.Authenticate].
func (s *SpotifyService) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	s.onTokenRefresh = fn
}

// Authenticate builds the API client from a stored token (access_token, refresh_token, expiry)
// or by exchanging an auth_code.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)

	var token *oauth2.Token
	switch {
	case credentials["access_token"] != "" || credentials["refresh_token"] != "":
		token = &oauth2.Token{
			AccessToken:  credentials["access_token"],
			RefreshToken: credentials["refresh_token"],
			TokenType:    credentials["token_type"],
		}
		if exp := credentials["expiry"]; exp != "" {
			t, err := time.Parse(time.RFC3339, exp)
			if err != nil {
				return fmt.Errorf("%w: expiry %q: %v", shared.ErrInvalidCredentials, exp, err)
			}
			token.Expiry = t
		}
	case credentials["auth_code"] != "":
		t, err := s.config.Exchange(ctx, credentials["auth_code"])
		if err != nil {
			return fmt.Errorf("%w: failed to exchange auth code: %w", shared.ErrAuthFailed, err)
		}
		token = t
	default:
		return fmt.Errorf("%w: missing access_token or auth_code", shared.ErrMissingCredentials)
	}

	s.useToken(ctx, token)
	return nil
}

// AuthenticateWithToken builds the API client from an already obtained token.
func (s *SpotifyService) AuthenticateWithToken(ctx context.Context, token *oauth2.Token) error {
	if token == nil || (token.AccessToken == "" && token.RefreshToken == "") {
		return fmt.Errorf("%w: empty token", shared.ErrMissingCredentials)
	}
	s.useToken(context.WithValue(ctx, oauth2.HTTPClient, s.httpClient), token)
	return nil
}

func (s *SpotifyService) useToken(ctx context.Context, token *oauth2.Token) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	source := &refreshableTokenSource{
		source: s.config.TokenSource(ctx, token),
		last:   token.AccessToken,
		callback: func(t *oauth2.Token) {
			s.mu.Lock()
			s.token = t
			s.mu.Unlock()
			if s.onTokenRefresh != nil {
				s.onTokenRefresh(t)
			}
		},
	}

	opts := []spotify.ClientOption{}
	if s.baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(s.baseURL))
	}
	s.client = spotify.New(oauth2.NewClient(ctx, source), opts...)
}

// Token returns the most recent token, or nil before authentication.
func (s *SpotifyService) Token() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// GetOAuthConfig exposes the OAuth2 configuration for the callback server's code exchange.
func (s *SpotifyService) GetOAuthConfig() *oauth2.Config {
	return s.config
}

func (s *SpotifyService) api() (*spotify.Client, error) {
	if s.client == nil {
		return nil, fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}
	return s.client, nil
}

// CurrentUser retrieves the authenticated user's profile.
func (s *SpotifyService) CurrentUser(ctx context.Context) (*models.User, error) {
	c, err := s.api()
	if err != nil {
		return nil, err
	}

	u, err := c.CurrentUser(ctx)
	if err != nil {
		return nil, classifyError(err)
	}
	return &models.User{ID: u.ID, DisplayName: u.DisplayName}, nil
}

// SavedTracks retrieves one page of the user's saved tracks. limit is clamped to [shared.MaxPageSize].
func (s *SpotifyService) SavedTracks(ctx context.Context, limit, offset int) (*models.TrackPage, error) {
	c, err := s.api()
	if err != nil {
		return nil, err
	}

	page, err := c.CurrentUsersTracks(ctx, spotify.Limit(clampLimit(limit)), spotify.Offset(offset))
	if err != nil {
		return nil, classifyError(err)
	}
	return toTrackPage(page), nil
}

// SavedTrackPages lazily walks the saved-track listing through the API's next links.
func (s *SpotifyService) SavedTrackPages(ctx context.Context, pageSize int) iter.Seq2[*models.TrackPage, error] {
	return func(yield func(*models.TrackPage, error) bool) {
		c, err := s.api()
		if err != nil {
			yield(nil, err)
			return
		}

		page, err := c.CurrentUsersTracks(ctx, spotify.Limit(clampLimit(pageSize)))
		if err != nil {
			yield(nil, classifyError(err))
			return
		}

		for {
			if !yield(toTrackPage(page), nil) {
				return
			}

			err := c.NextPage(ctx, page)
			if errors.Is(err, spotify.ErrNoMorePages) {
				return
			}
			if err != nil {
				yield(nil, classifyError(err))
				return
			}
		}
	}
}

// Artist retrieves an artist and its genres.
func (s *SpotifyService) Artist(ctx context.Context, artistID string) (*models.Artist, error) {
	c, err := s.api()
	if err != nil {
		return nil, err
	}

	a, err := c.GetArtist(ctx, spotify.ID(artistID))
	if err != nil {
		return nil, classifyError(err)
	}
	return &models.Artist{ID: string(a.ID), Name: a.Name, Genres: a.Genres}, nil
}

// CreatePlaylist creates a non-collaborative playlist for userID.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (*models.Playlist, error) {
	c, err := s.api()
	if err != nil {
		return nil, err
	}

	p, err := c.CreatePlaylistForUser(ctx, userID, name, description, public, false)
	if err != nil {
		return nil, classifyError(err)
	}
	return &models.Playlist{
		ID:          string(p.ID),
		Name:        p.Name,
		Description: description,
		URI:         string(p.URI),
		Public:      p.IsPublic,
	}, nil
}

// AddItems appends trackIDs to a playlist in a single request.
func (s *SpotifyService) AddItems(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) > shared.MaxBatchSize {
		return fmt.Errorf("%w: %d items exceeds the limit of %d per request", shared.ErrInvalidArgument, len(trackIDs), shared.MaxBatchSize)
	}
	if len(trackIDs) == 0 {
		return nil
	}

	c, err := s.api()
	if err != nil {
		return err
	}

	ids := make([]spotify.ID, len(trackIDs))
	for i, id := range trackIDs {
		ids[i] = spotify.ID(id)
	}

	if _, err := c.AddTracksToPlaylist(ctx, spotify.ID(playlistID), ids...); err != nil {
		return classifyError(err)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > shared.MaxPageSize {
		return shared.MaxPageSize
	}
	return limit
}

func toTrackPage(page *spotify.SavedTrackPage) *models.TrackPage {
	out := &models.TrackPage{
		Tracks: make([]models.Track, 0, len(page.Tracks)),
		Offset: int(page.Offset),
		Total:  int(page.Total),
		Next:   page.Next != "",
	}

	for _, st := range page.Tracks {
		track := models.Track{
			ID:    string(st.ID),
			Name:  st.Name,
			Album: st.Album.Name,
		}
		for _, a := range st.Artists {
			track.ArtistIDs = append(track.ArtistIDs, string(a.ID))
			track.ArtistNames = append(track.ArtistNames, a.Name)
		}
		if added, err := time.Parse(time.RFC3339, st.AddedAt); err == nil {
			track.AddedAt = added
		}
		out.Tracks = append(out.Tracks, track)
	}
	return out
}

// classifyError wraps err with the shared sentinel matching its cause.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
			return fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
		case apiErr.Status == http.StatusNotFound:
			return fmt.Errorf("%w: %w", shared.ErrNotFound, err)
		case apiErr.Status == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", shared.ErrRateLimited, err)
		case apiErr.Status >= 500:
			return fmt.Errorf("%w: %w", shared.ErrTransientUpstream, err)
		}
		return fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", shared.ErrTransientUpstream, err)
	}

	return fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
}

// refreshableTokenSource reports each token that differs from the previous one.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(*oauth2.Token)

	mu   sync.Mutex
	last string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := token.AccessToken != r.last
	r.last = token.AccessToken
	r.mu.Unlock()

	if changed && r.callback != nil {
		r.callback(token)
	}
	return token, nil
}
