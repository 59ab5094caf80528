package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
discord:
  token: tok
  channel_id: "123456789"
steam:
  api_key: steam-key
bridge:
  trusted_ip: 203.0.113.5
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Bridge.Port != 27060 {
		t.Fatalf("default port = %d", cfg.Bridge.Port)
	}
	if cfg.Bridge.BufferCap != 1000 {
		t.Fatalf("default buffer cap = %d", cfg.Bridge.BufferCap)
	}
	if cfg.Steam.CacheTTL() != 3*time.Hour {
		t.Fatalf("default cache TTL = %v", cfg.Steam.CacheTTL())
	}
	if cfg.Steam.Timeout() != 5*time.Second {
		t.Fatalf("default timeout = %v", cfg.Steam.Timeout())
	}
	if cfg.ArchiveEnabled() {
		t.Fatalf("archive should be disabled without a bucket")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "env-token")
	t.Setenv("STEAM_API_KEY", "env-steam-key")

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Discord.Token != "env-token" {
		t.Fatalf("token = %q, want env override", cfg.Discord.Token)
	}
	if cfg.Steam.APIKey != "env-steam-key" {
		t.Fatalf("api key = %q, want env override", cfg.Steam.APIKey)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"missing token",
			`
discord:
  channel_id: "1"
steam:
  api_key: k
bridge:
  trusted_ip: 203.0.113.5
`,
			"discord.token",
		},
		{
			"missing channel",
			`
discord:
  token: t
steam:
  api_key: k
bridge:
  trusted_ip: 203.0.113.5
`,
			"discord.channel_id",
		},
		{
			"missing steam key",
			`
discord:
  token: t
  channel_id: "1"
bridge:
  trusted_ip: 203.0.113.5
`,
			"steam.api_key",
		},
		{
			"missing trusted ip",
			`
discord:
  token: t
  channel_id: "1"
steam:
  api_key: k
`,
			"bridge.trusted_ip",
		},
		{
			"non-IPv4 trusted ip",
			`
discord:
  token: t
  channel_id: "1"
steam:
  api_key: k
bridge:
  trusted_ip: "::1"
`,
			"IPv4",
		},
		{
			"bucket without region",
			validConfig + `
archive:
  s3:
    bucket: b
`,
			"archive.s3.region",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, c.content))
			if err == nil {
				t.Fatalf("expected error mentioning %q", c.wantErr)
			}
			if !strings.Contains(err.Error(), c.wantErr) {
				t.Fatalf("error %q does not mention %q", err, c.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
