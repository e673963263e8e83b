// Package catalog resolves track metadata from the Spotify Web API using
// the client-credentials flow.  It is the only place that talks to the
// music catalog; the service layer depends on it through a small
// interface and never sees transport errors.
package catalog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/IstFranco/utn-events/internal/config"
)

// ErrTrackNotFound is returned when the catalog has no track with the
// requested id.
var ErrTrackNotFound = errors.New("catalog: track not found")

// ErrDisabled is returned when no credentials are configured.
var ErrDisabled = errors.New("catalog: not configured")

// Track is the canonical metadata of a catalog track.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	DurationMS int    `json:"duration_ms"`
}

type apiTrack struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name string `json:"name"`
	} `json:"album"`
	Duration int `json:"duration_ms"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Client calls the catalog API.  Access tokens are shared through a
// TokenCache so that every replica reuses the same token.
type Client struct {
	cfg        config.CatalogConfig
	httpClient *http.Client
	tokens     TokenCache
}

// NewClient returns a Client.  A nil cache keeps the token in memory.
func NewClient(cfg config.CatalogConfig, tokens TokenCache) *Client {
	if tokens == nil {
		tokens = NewMemoryTokenCache()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}
}

// ResolveTrack fetches the track with the given catalog id.  A rejected
// token is discarded and the request retried once with a fresh one.
func (c *Client) ResolveTrack(ctx context.Context, id string) (Track, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Track{}, ErrTrackNotFound
	}
	if !c.cfg.Enabled() {
		return Track{}, ErrDisabled
	}
	for attempt := 0; ; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return Track{}, err
		}
		t, status, err := c.getTrack(ctx, token, id)
		if status == http.StatusUnauthorized && attempt == 0 {
			_ = c.tokens.Clear(ctx)
			continue
		}
		return t, err
	}
}

func (c *Client) getTrack(ctx context.Context, token, id string) (Track, int, error) {
	endpoint := strings.TrimRight(c.cfg.APIURL, "/") + "/tracks/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Track{}, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Track{}, 0, fmt.Errorf("catalog: get track: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusBadRequest:
		// The API answers 400 for ids that are not valid base62.
		return Track{}, resp.StatusCode, ErrTrackNotFound
	default:
		return Track{}, resp.StatusCode, fmt.Errorf("catalog: track request failed with status %d", resp.StatusCode)
	}

	var at apiTrack
	if err := json.NewDecoder(resp.Body).Decode(&at); err != nil {
		return Track{}, resp.StatusCode, fmt.Errorf("catalog: decode track: %w", err)
	}
	artists := make([]string, 0, len(at.Artists))
	for _, a := range at.Artists {
		artists = append(artists, a.Name)
	}
	return Track{
		ID:         at.ID,
		Title:      at.Name,
		Artist:     strings.Join(artists, ", "),
		Album:      at.Album.Name,
		DurationMS: at.Duration,
	}, resp.StatusCode, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if tok, ok := c.tokens.Get(ctx); ok {
		return tok, nil
	}
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID + ":" + c.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("catalog: token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("catalog: token request failed with status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("catalog: decode token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("catalog: empty access token")
	}
	// Expire a little early so a token is never used at its deadline.
	ttl := time.Duration(tr.ExpiresIn)*time.Second - 30*time.Second
	if ttl > 0 {
		_ = c.tokens.Set(ctx, tr.AccessToken, ttl)
	}
	return tr.AccessToken, nil
}
