package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const defaultBaseURL = "https://api.steampowered.com"

// ResolutionError reports a failed avatar lookup for a Steam ID.
type ResolutionError struct {
	SteamID string
	Err     error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve avatar for %s: %v", e.SteamID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// playerSummariesResponse mirrors the GetPlayerSummaries payload.
type playerSummariesResponse struct {
	Response struct {
		Players []struct {
			AvatarFull string `json:"avatarfull"`
		} `json:"players"`
	} `json:"response"`
}

// Resolver resolves Steam IDs to avatar URLs via the Steam Web API, caching
// results with a TTL. Concurrent lookups for the same uncached ID share one
// in-flight request.
type Resolver struct {
	apiKey  string
	baseURL string
	client  *http.Client
	ttl     time.Duration
	cache   *gocache.Cache
	group   singleflight.Group
}

// New creates a resolver. Entries are cached for ttl; requests fail after
// timeout.
func New(apiKey string, ttl, timeout time.Duration) *Resolver {
	return &Resolver{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: timeout},
		ttl:     ttl,
		cache:   gocache.New(ttl, 10*time.Minute),
	}
}

// Resolve returns the avatar URL for a 64-bit Steam ID, from cache when
// possible. Failures are returned as *ResolutionError; the caller is expected
// to log and drop, not retry.
func (r *Resolver) Resolve(ctx context.Context, steamID string) (string, error) {
	if cached, ok := r.cache.Get(steamID); ok {
		return cached.(string), nil
	}

	v, err, _ := r.group.Do(steamID, func() (any, error) {
		// Re-check under the flight; a concurrent caller may have
		// populated the cache while this one waited.
		if cached, ok := r.cache.Get(steamID); ok {
			return cached.(string), nil
		}

		avatarURL, err := r.fetch(ctx, steamID)
		if err != nil {
			return "", err
		}
		r.cache.Set(steamID, avatarURL, r.ttl)
		return avatarURL, nil
	})
	if err != nil {
		return "", &ResolutionError{SteamID: steamID, Err: err}
	}
	return v.(string), nil
}

// fetch issues the GetPlayerSummaries call and extracts the first player's
// full avatar URL.
func (r *Resolver) fetch(ctx context.Context, steamID string) (string, error) {
	endpoint := fmt.Sprintf("%s/ISteamUser/GetPlayerSummaries/v0002/?key=%s&steamids=%s",
		r.baseURL, url.QueryEscape(r.apiKey), url.QueryEscape(steamID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("steam API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("steam API returned status %d", resp.StatusCode)
	}

	var summaries playerSummariesResponse
	if err := json.NewDecoder(resp.Body).Decode(&summaries); err != nil {
		return "", fmt.Errorf("decode steam API response: %w", err)
	}

	players := summaries.Response.Players
	if len(players) == 0 {
		return "", fmt.Errorf("no player found for steam ID")
	}
	if players[0].AvatarFull == "" {
		return "", fmt.Errorf("player has no avatar URL")
	}

	return players[0].AvatarFull, nil
}
