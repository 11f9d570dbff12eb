package music

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var (
	ErrSpotifyResolveFailed = errors.New("failed to resolve spotify track")
	ErrSpotifyNotAuthorized = errors.New("spotify token missing, run the login command")
)

const (
	playlistPageLimit = 50
	itemsPageLimit    = 100
	tokenFileMode     = 0o600
)

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenPath    string
}

type tokenData struct {
	Token *oauth2.Token `json:"token"`
}

type SpotifyCatalog struct {
	config SpotifyConfig
	auth   *spotifyauth.Authenticator
	logger *zap.Logger

	mu        sync.Mutex
	client    *spotify.Client
	lastToken string
}

func newAuthenticator(cfg SpotifyConfig) *spotifyauth.Authenticator {
	return spotifyauth.New(
		spotifyauth.WithRedirectURL(cfg.RedirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPrivate,
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistReadCollaborative,
		),
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
	)
}

// NewSpotifyCatalog builds a catalog from the cached OAuth token. The token
// must have been written by Login beforehand.
func NewSpotifyCatalog(ctx context.Context, cfg SpotifyConfig, logger *zap.Logger) (*SpotifyCatalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &SpotifyCatalog{
		config: cfg,
		auth:   newAuthenticator(cfg),
		logger: logger,
	}

	token, err := loadToken(cfg.TokenPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrSpotifyNotAuthorized
		}
		return nil, fmt.Errorf("failed to load spotify token: %w", err)
	}

	c.client = spotify.New(c.auth.Client(ctx, token))
	c.lastToken = token.AccessToken
	return c, nil
}

func (c *SpotifyCatalog) ResolveTrack(ctx context.Context, input string) (Track, error) {
	trackID := extractSpotifyTrackID(input)
	if trackID == "" {
		return Track{}, fmt.Errorf("%w: unsupported spotify input %q", ErrSpotifyResolveFailed, input)
	}

	full, err := c.client.GetTrack(ctx, spotify.ID(trackID))
	if err != nil {
		return Track{}, fmt.Errorf("%w: %v", ErrSpotifyResolveFailed, err)
	}
	c.persistToken()

	return convertSpotifyTrack(full), nil
}

func (c *SpotifyCatalog) UserPlaylists(ctx context.Context) ([]PlaylistSummary, error) {
	var playlists []PlaylistSummary
	offset := 0

	for {
		page, err := c.client.CurrentUsersPlaylists(ctx, spotify.Limit(playlistPageLimit), spotify.Offset(offset))
		if err != nil {
			return nil, fmt.Errorf("failed to list playlists: %w", err)
		}

		for _, p := range page.Playlists {
			playlists = append(playlists, PlaylistSummary{
				ID:         string(p.ID),
				Name:       p.Name,
				SnapshotID: p.SnapshotID,
				TrackCount: int(p.Tracks.Total),
			})
		}

		if len(page.Playlists) < playlistPageLimit {
			break
		}
		offset += playlistPageLimit
	}

	c.persistToken()
	return playlists, nil
}

func (c *SpotifyCatalog) PlaylistTracks(ctx context.Context, playlist PlaylistSummary) ([]Track, error) {
	var tracks []Track
	offset := 0

	for {
		page, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlist.ID),
			spotify.Limit(itemsPageLimit), spotify.Offset(offset))
		if err != nil {
			return nil, fmt.Errorf("failed to get playlist items: %w", err)
		}

		for i := range page.Items {
			item := page.Items[i]
			// local files and episodes have no catalog id to stream
			if item.IsLocal || item.Track.Track == nil {
				continue
			}
			track := convertSpotifyTrack(item.Track.Track)
			if at, err := time.Parse(time.RFC3339, item.AddedAt); err == nil {
				track.AddedAt = &at
			}
			tracks = append(tracks, track)
		}

		if len(page.Items) < itemsPageLimit {
			break
		}
		offset += itemsPageLimit
	}

	c.logger.Debug("retrieved playlist tracks",
		zap.String("playlist", playlist.Name),
		zap.Int("count", len(tracks)))

	c.persistToken()
	return tracks, nil
}

func (c *SpotifyCatalog) CurrentUserID(ctx context.Context) (string, error) {
	user, err := c.client.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %w", err)
	}
	c.persistToken()
	return user.ID, nil
}

// persistToken writes the token back when the oauth2 transport refreshed it.
func (c *SpotifyCatalog) persistToken() {
	token, err := c.client.Token()
	if err != nil || token == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if token.AccessToken == c.lastToken {
		return
	}
	if err := saveToken(c.config.TokenPath, token); err != nil {
		c.logger.Warn("failed to save refreshed spotify token", zap.Error(err))
		return
	}
	c.lastToken = token.AccessToken
}

// Login runs the authorization code flow: it serves the redirect URL,
// prints the consent URL to out and stores the resulting token.
func Login(ctx context.Context, cfg SpotifyConfig, out io.Writer) error {
	redirect, err := url.Parse(cfg.RedirectURL)
	if err != nil {
		return fmt.Errorf("invalid redirect url: %w", err)
	}

	auth := newAuthenticator(cfg)
	state := uuid.NewString()
	tokenCh := make(chan *oauth2.Token, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.Token(r.Context(), state, r)
		if err != nil {
			http.Error(w, "authorization failed", http.StatusForbidden)
			errCh <- err
			return
		}
		fmt.Fprintln(w, "Login completed, you can close this window.")
		tokenCh <- token
	})

	srv := &http.Server{Addr: redirect.Host, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	defer srv.Close()

	fmt.Fprintf(out, "Please visit the following URL to authorize the application:\n%s\n", auth.AuthURL(state))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("login failed: %w", err)
	case token := <-tokenCh:
		if err := saveToken(cfg.TokenPath, token); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}
		fmt.Fprintf(out, "Token saved to %s\n", cfg.TokenPath)
		return nil
	}
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var td tokenData
	if err := json.Unmarshal(data, &td); err != nil {
		return nil, err
	}
	if td.Token == nil {
		return nil, fmt.Errorf("token file %s has no token", path)
	}
	return td.Token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(tokenData{Token: token}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, tokenFileMode)
}

func convertSpotifyTrack(t *spotify.FullTrack) Track {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}
	albumArtists := make([]string, 0, len(t.Album.Artists))
	for _, a := range t.Album.Artists {
		albumArtists = append(albumArtists, a.Name)
	}

	return Track{
		ID:           string(t.ID),
		Title:        t.Name,
		TrackNumber:  int(t.TrackNumber),
		DiscNumber:   int(t.DiscNumber),
		DurationMS:   int64(t.Duration),
		Artists:      artists,
		Album:        t.Album.Name,
		AlbumID:      string(t.Album.ID),
		AlbumArtists: albumArtists,
		URI:          string(t.URI),
		ReleaseDate:  t.Album.ReleaseDate,
	}
}

// extractSpotifyTrackID accepts a spotify:track URI, an open.spotify.com
// link or a bare base62 id.
func extractSpotifyTrackID(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}

	if trackID, ok := strings.CutPrefix(input, "spotify:track:"); ok {
		return trackID
	}

	if !strings.Contains(input, "/") && !strings.Contains(input, ":") {
		return input
	}

	u, err := url.Parse(input)
	if err != nil {
		return ""
	}
	if !strings.Contains(strings.ToLower(u.Host), "spotify.com") {
		return ""
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := range len(parts) {
		if parts[i] == "track" && i+1 < len(parts) {
			return parts[i+1]
		}
	}

	return ""
}
