package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// MaxBatchSize is the most items the playlist "add items" endpoint accepts per call.
const MaxBatchSize = 100

// MaxPageSize is the most saved tracks the library endpoint returns per page.
const MaxPageSize = 50

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Server      ServerConfig      `toml:"server"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Resolver    ResolverConfig    `toml:"resolver"`
	Cache       CacheConfig       `toml:"cache"`
	Database    DatabaseConfig    `toml:"database"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials and the persisted OAuth token.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
	TokenType    string `toml:"token_type"`
	Expiry       string `toml:"expiry"`
}

// ServerConfig contains the OAuth callback listener settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// PipelineConfig selects how the saved library is fetched, grouped and submitted.
type PipelineConfig struct {
	Strategy    string `toml:"strategy"`
	PageSize    int    `toml:"page_size"`
	Limit       int    `toml:"limit"`
	Concurrency int    `toml:"concurrency"`
	BatchSize   int    `toml:"batch_size"`
	Genre       string `toml:"genre"`
	Public      bool   `toml:"public"`
}

// ResolverConfig is the retry policy for artist lookups.
type ResolverConfig struct {
	MaxAttempts       int     `toml:"max_attempts"`
	BaseDelay         string  `toml:"base_delay"`
	MaxDelay          string  `toml:"max_delay"`
	Multiplier        float64 `toml:"multiplier"`
	Jitter            float64 `toml:"jitter"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// CacheConfig selects the snapshot backend.
type CacheConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LogConfig holds the default log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// SaveConfig writes the configuration back to path as TOML.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv reads KEY=value pairs from the given dotenv files into the process environment.
//
// Missing files are ignored; variables already set are left alone.
func LoadEnv(files ...string) error {
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// ApplyEnv overrides Spotify credentials with SPOTIFY_CLIENT_ID, SPOTIFY_CLIENT_SECRET and SPOTIFY_REDIRECT_URI.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Credentials.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Credentials.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REDIRECT_URI"); v != "" {
		c.Credentials.Spotify.RedirectURI = v
	}
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Pipeline.Strategy {
	case "manual", "stream":
	default:
		return fmt.Errorf("%w: unknown pipeline strategy %q", ErrInvalidConfig, c.Pipeline.Strategy)
	}

	if c.Pipeline.BatchSize < 1 || c.Pipeline.BatchSize > MaxBatchSize {
		return fmt.Errorf("%w: batch_size must be between 1 and %d, got %d", ErrInvalidConfig, MaxBatchSize, c.Pipeline.BatchSize)
	}

	if c.Pipeline.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency must not be negative", ErrInvalidConfig)
	}

	if c.Pipeline.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrInvalidConfig)
	}

	switch c.Cache.Backend {
	case "file", "sqlite", "none":
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrInvalidConfig, c.Cache.Backend)
	}

	if c.Resolver.MaxAttempts < 0 {
		return fmt.Errorf("%w: max_attempts must not be negative", ErrInvalidConfig)
	}
	if c.Resolver.Jitter < 0 || c.Resolver.Jitter > 1 {
		return fmt.Errorf("%w: jitter must be between 0 and 1", ErrInvalidConfig)
	}
	if _, _, err := c.Resolver.Delays(); err != nil {
		return err
	}

	return nil
}

// ClampedPageSize returns the configured page size limited to 1..[MaxPageSize].
func (p PipelineConfig) ClampedPageSize() int {
	switch {
	case p.PageSize <= 0:
		return MaxPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

// Delays parses base_delay and max_delay.
func (r ResolverConfig) Delays() (base, ceiling time.Duration, err error) {
	if base, err = time.ParseDuration(r.BaseDelay); err != nil {
		return 0, 0, fmt.Errorf("%w: base_delay: %v", ErrInvalidConfig, err)
	}
	if ceiling, err = time.ParseDuration(r.MaxDelay); err != nil {
		return 0, 0, fmt.Errorf("%w: max_delay: %v", ErrInvalidConfig, err)
	}
	if ceiling < base {
		return 0, 0, fmt.Errorf("%w: max_delay %s is shorter than base_delay %s", ErrInvalidConfig, ceiling, base)
	}
	return base, ceiling, nil
}

// Map returns the credentials in the form accepted by services.NewSpotifyService.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
	}
}

// HasToken reports whether an OAuth token was persisted by a previous `auth` run.
func (s SpotifyConfig) HasToken() bool {
	return strings.TrimSpace(s.AccessToken) != "" || strings.TrimSpace(s.RefreshToken) != ""
}

// Token rebuilds the persisted [oauth2.Token].
func (s SpotifyConfig) Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
	}
	if s.Expiry != "" {
		if expiry, err := time.Parse(time.RFC3339, s.Expiry); err == nil {
			token.Expiry = expiry
		}
	}
	return token
}

// Update stores token in the config. A refreshed token without a refresh token keeps the previous one.
func (s *SpotifyConfig) Update(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidCredentials)
	}

	s.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		s.RefreshToken = token.RefreshToken
	}
	s.TokenType = token.TokenType
	if token.Expiry.IsZero() {
		s.Expiry = ""
	} else {
		s.Expiry = token.Expiry.UTC().Format(time.RFC3339)
	}
	return nil
}
