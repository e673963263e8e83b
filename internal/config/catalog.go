package config

import "time"

// CatalogConfig holds the Spotify client-credentials settings used to
// resolve track metadata.  Resolution is disabled when either
// credential is empty.
type CatalogConfig struct {
    ClientID     string
    ClientSecret string
    AuthURL      string
    APIURL       string
    Timeout      time.Duration
}

// Enabled reports whether credentials are configured.
func (c CatalogConfig) Enabled() bool { return c.ClientID != "" && c.ClientSecret != "" }

func LoadCatalogConfig() CatalogConfig {
    return CatalogConfig{
        ClientID:     envStr("SPOTIFY_CLIENT_ID", ""),
        ClientSecret: envStr("SPOTIFY_CLIENT_SECRET", ""),
        AuthURL:      envStr("SPOTIFY_AUTH_URL", "https://accounts.spotify.com/api/token"),
        APIURL:       envStr("SPOTIFY_API_URL", "https://api.spotify.com/v1"),
        Timeout:      envDur("SPOTIFY_TIMEOUT", 10*time.Second),
    }
}
