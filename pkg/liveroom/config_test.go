package liveroom

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LIVEROOM_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("LIVEROOM_APP_ID", "app-1")
	t.Setenv("LIVEROOM_TRANSPORT_URL", "wss://media.example.com")
	t.Setenv("LIVEROOM_STORE_URL", "wss://rooms.example.com")
	t.Setenv("LIVEROOM_API_KEY", "key")
	t.Setenv("LIVEROOM_API_SECRET", "secret")
	t.Setenv("LIVEROOM_VIDEO_ENABLED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "app-1", cfg.AppID)
	assert.Equal(t, "wss://media.example.com", cfg.TransportURL)
	assert.Equal(t, DefaultSpeakerThreshold, cfg.SpeakerThreshold)
	assert.True(t, cfg.VideoEnabled)
	assert.True(t, cfg.ModerationEnabled)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "liveroom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_id: app-from-file
transport_url: wss://media.example.com
store_url: wss://rooms.example.com
token_endpoint: https://issuer.example.com/token
speaker_threshold: 25
moderation_enabled: false
`), 0o644))
	t.Setenv("LIVEROOM_CONFIG", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "app-from-file", cfg.AppID)
	assert.Equal(t, 25, cfg.SpeakerThreshold)
	assert.False(t, cfg.ModerationEnabled)
	assert.False(t, cfg.Capabilities().Moderation)
}

func TestLoadConfigMissingRequiredValues(t *testing.T) {
	t.Setenv("LIVEROOM_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("LIVEROOM_APP_ID", "")
	t.Setenv("LIVEROOM_TRANSPORT_URL", "")
	t.Setenv("LIVEROOM_STORE_URL", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Equal(t, ErrorKindConfiguration, Classify(err))
}

func TestConfigValidateTokenSettings(t *testing.T) {
	cfg := &Config{
		AppID:        "app",
		TransportURL: "wss://media",
		StoreURL:     "wss://rooms",
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, ErrorKindConfiguration, Classify(err))

	cfg.APIKey = "key"
	assert.Error(t, cfg.Validate(), "secret still missing")

	cfg.APISecret = "secret"
	assert.NoError(t, cfg.Validate())
}

func TestConfigTokenProviderSelection(t *testing.T) {
	cfg := &Config{
		TokenEndpoint: "https://issuer.example.com/token",
		APIKey:        "key",
		APISecret:     "secret",
	}
	// The endpoint wins when both are configured.
	_, ok := cfg.TokenProvider().(*HTTPTokenProvider)
	assert.True(t, ok)

	cfg.TokenEndpoint = ""
	_, ok = cfg.TokenProvider().(*LocalTokenProvider)
	assert.True(t, ok)
}
