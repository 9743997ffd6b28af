package liveroom

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the deployment settings for opening live rooms. Values come
// from an optional yaml file plus LIVEROOM_* environment overrides.
type Config struct {
	AppID        string `mapstructure:"app_id"`
	TransportURL string `mapstructure:"transport_url"`
	StoreURL     string `mapstructure:"store_url"`
	StoreToken   string `mapstructure:"store_token"`

	// Either an external issuance endpoint or a local API key pair must be
	// configured; the endpoint wins when both are present.
	TokenEndpoint string `mapstructure:"token_endpoint"`
	APIKey        string `mapstructure:"api_key"`
	APISecret     string `mapstructure:"api_secret"`

	SpeakerThreshold  int           `mapstructure:"speaker_threshold"`
	VideoEnabled      bool          `mapstructure:"video_enabled"`
	ModerationEnabled bool          `mapstructure:"moderation_enabled"`
	JoinTimeout       time.Duration `mapstructure:"join_timeout"`
}

// LoadConfig reads configuration from LIVEROOM_CONFIG (or
// config/liveroom.yaml) and the environment. A missing file is fine;
// missing required values are a configuration error.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	file := os.Getenv("LIVEROOM_CONFIG")
	if file == "" {
		file = "config/liveroom.yaml"
	}
	v.SetConfigFile(file)

	v.SetEnvPrefix("LIVEROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app_id", "")
	v.SetDefault("transport_url", "")
	v.SetDefault("store_url", "")
	v.SetDefault("store_token", "")
	v.SetDefault("token_endpoint", "")
	v.SetDefault("api_key", "")
	v.SetDefault("api_secret", "")
	v.SetDefault("speaker_threshold", DefaultSpeakerThreshold)
	v.SetDefault("video_enabled", false)
	v.SetDefault("moderation_enabled", true)
	v.SetDefault("join_timeout", "15s")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigParseError); ok {
			return nil, fmt.Errorf("failed to parse config %s: %w", file, err)
		}
		// No config file is fine; the environment can carry everything.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings a session cannot open without.
func (c *Config) Validate() error {
	if c.AppID == "" {
		return newSessionError(ErrorKindConfiguration, "load config",
			fmt.Errorf("app_id is required"))
	}
	if c.TransportURL == "" {
		return newSessionError(ErrorKindConfiguration, "load config",
			fmt.Errorf("transport_url is required"))
	}
	if c.StoreURL == "" {
		return newSessionError(ErrorKindConfiguration, "load config",
			fmt.Errorf("store_url is required"))
	}
	if c.TokenEndpoint == "" && (c.APIKey == "" || c.APISecret == "") {
		return newSessionError(ErrorKindConfiguration, "load config",
			fmt.Errorf("either token_endpoint or api_key/api_secret is required"))
	}
	return nil
}

// TokenProvider builds the provider matching the configured issuance mode.
func (c *Config) TokenProvider() TokenProvider {
	if c.TokenEndpoint != "" {
		return &HTTPTokenProvider{Endpoint: c.TokenEndpoint}
	}
	return &LocalTokenProvider{APIKey: c.APIKey, APISecret: c.APISecret}
}

// Capabilities returns the room capability set this deployment enables.
func (c *Config) Capabilities() RoomCapabilities {
	return RoomCapabilities{
		Video:      c.VideoEnabled,
		Moderation: c.ModerationEnabled,
	}
}
