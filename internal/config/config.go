package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Discord DiscordConfig `yaml:"discord"`
	Steam   SteamConfig   `yaml:"steam"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Archive ArchiveConfig `yaml:"archive"`
}

// DiscordConfig holds Discord-specific configuration
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// SteamConfig holds Steam Web API configuration
type SteamConfig struct {
	APIKey          string `yaml:"api_key"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// BridgeConfig holds the game-server-facing HTTP surface configuration
type BridgeConfig struct {
	TrustedIP string `yaml:"trusted_ip"`
	Port      int    `yaml:"port"`
	BufferCap int    `yaml:"buffer_cap"` // 0 means unbounded
}

// ArchiveConfig holds the optional transcript archive configuration
type ArchiveConfig struct {
	OutputDir         string   `yaml:"output_dir"`
	RotateMinutes     int      `yaml:"rotate_minutes"`
	RotateMegabytes   int      `yaml:"rotate_megabytes"`
	DeleteAfterUpload bool     `yaml:"delete_after_upload"`
	MaxRetries        int      `yaml:"max_retries"`
	S3                S3Config `yaml:"s3"`
}

// S3Config holds S3 upload configuration. The archive pipeline is enabled
// only when a bucket is configured.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// CacheTTL returns the avatar cache TTL as a duration.
func (c SteamConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// Timeout returns the Steam API request timeout as a duration.
func (c SteamConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ArchiveEnabled reports whether the transcript archive pipeline should run.
func (c Config) ArchiveEnabled() bool {
	return c.Archive.S3.Bucket != ""
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Read YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// Apply environment variable overrides
	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		cfg.Discord.Token = token
	}
	if key := os.Getenv("STEAM_API_KEY"); key != "" {
		cfg.Steam.APIKey = key
	}
	if keyID := os.Getenv("S3_ACCESS_KEY_ID"); keyID != "" {
		cfg.Archive.S3.AccessKeyID = keyID
	}
	if secretKey := os.Getenv("S3_SECRET_ACCESS_KEY"); secretKey != "" {
		cfg.Archive.S3.SecretAccessKey = secretKey
	}

	// Set defaults
	if cfg.Bridge.Port == 0 {
		cfg.Bridge.Port = 27060
	}
	if cfg.Bridge.BufferCap == 0 {
		cfg.Bridge.BufferCap = 1000
	}
	if cfg.Steam.CacheTTLMinutes == 0 {
		cfg.Steam.CacheTTLMinutes = 180
	}
	if cfg.Steam.TimeoutSeconds == 0 {
		cfg.Steam.TimeoutSeconds = 5
	}
	if cfg.Archive.OutputDir == "" {
		cfg.Archive.OutputDir = "./data"
	}
	if cfg.Archive.RotateMinutes == 0 {
		cfg.Archive.RotateMinutes = 60
	}
	if cfg.Archive.RotateMegabytes == 0 {
		cfg.Archive.RotateMegabytes = 100
	}
	if cfg.Archive.MaxRetries == 0 {
		cfg.Archive.MaxRetries = 3
	}

	// Validate required fields
	if cfg.Discord.Token == "" {
		return nil, fmt.Errorf("discord.token is required (or set DISCORD_TOKEN env var)")
	}
	if cfg.Discord.ChannelID == "" {
		return nil, fmt.Errorf("discord.channel_id is required")
	}
	if cfg.Steam.APIKey == "" {
		return nil, fmt.Errorf("steam.api_key is required (or set STEAM_API_KEY env var)")
	}
	if cfg.Bridge.TrustedIP == "" {
		return nil, fmt.Errorf("bridge.trusted_ip is required")
	}
	if ip := net.ParseIP(cfg.Bridge.TrustedIP); ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("bridge.trusted_ip must be an IPv4 address, got %q", cfg.Bridge.TrustedIP)
	}
	if cfg.Archive.S3.Bucket != "" && cfg.Archive.S3.Region == "" {
		return nil, fmt.Errorf("archive.s3.region is required when archive.s3.bucket is set")
	}
	if cfg.Archive.S3.AccessKeyID != "" && cfg.Archive.S3.SecretAccessKey == "" {
		return nil, fmt.Errorf("archive.s3.secret_access_key is required when using access_key_id")
	}

	return &cfg, nil
}
