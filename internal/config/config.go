package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// Defaults
const (
	DefaultServerURL      = "ws://localhost:3272/"
	DefaultBeaconURL      = "http://localhost/start-headless-on-close"
	DefaultBeaconGrace    = 300 * time.Millisecond
	DefaultConnectTimeout = 5 * time.Second
	DefaultImageCacheSize = 256
	DefaultOutputFormat   = "{{.Author}} - {{.Title}}"
	DefaultMarqueeSpeed   = 2
	DefaultMarqueeSep     = " • "
)

// Config holds application configuration
type Config struct {
	// Websocket endpoint of the remote player
	// Default: "ws://localhost:3272/"
	ServerURL string

	// Endpoint receiving the start-headless packet when a session ends
	BeaconURL string

	// How long teardown waits for the beacon before exiting
	BeaconGrace time.Duration

	// How long to wait for the websocket handshake
	ConnectTimeout time.Duration

	// Directory holding the state database
	// Default: $XDG_DATA_HOME/encore
	DataDir string

	// Number of artwork images kept in memory
	ImageCacheSize int

	// Output format template for the now command
	// Default: "{{.Author}} - {{.Title}}"
	OutputFormat string

	// Fixed display width for the now command (0 disables padding)
	OutputWidth int

	// Scroll text wider than OutputWidth instead of truncating it
	MarqueeEnabled bool

	// Marquee scroll speed in characters per second
	MarqueeSpeed int

	// Text placed between repetitions while scrolling
	MarqueeSeparator string
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Config file locations (in order of precedence)
	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	// Set defaults
	v.SetDefault("server_url", DefaultServerURL)
	v.SetDefault("beacon_url", DefaultBeaconURL)
	v.SetDefault("beacon_grace", DefaultBeaconGrace)
	v.SetDefault("connect_timeout", DefaultConnectTimeout)
	v.SetDefault("data_dir", filepath.Join(xdg.DataHome, "encore"))
	v.SetDefault("image_cache_size", DefaultImageCacheSize)
	v.SetDefault("output_format", DefaultOutputFormat)
	v.SetDefault("output_width", 0)
	v.SetDefault("marquee_enabled", false)
	v.SetDefault("marquee_speed", DefaultMarqueeSpeed)
	v.SetDefault("marquee_separator", DefaultMarqueeSep)

	// Read config file (optional - don't fail if missing)
	_ = v.ReadInConfig()

	// Read from environment variables
	v.SetEnvPrefix("ENCORE")
	v.AutomaticEnv()

	cfg := &Config{
		ServerURL:      v.GetString("server_url"),
		BeaconURL:      v.GetString("beacon_url"),
		BeaconGrace:    v.GetDuration("beacon_grace"),
		ConnectTimeout: v.GetDuration("connect_timeout"),
		DataDir:        v.GetString("data_dir"),
		ImageCacheSize: v.GetInt("image_cache_size"),
		OutputFormat:   v.GetString("output_format"),

		OutputWidth:      v.GetInt("output_width"),
		MarqueeEnabled:   v.GetBool("marquee_enabled"),
		MarqueeSpeed:     v.GetInt("marquee_speed"),
		MarqueeSeparator: v.GetString("marquee_separator"),
	}

	return cfg, nil
}

// DBPath returns the path of the state database, creating its directory.
func (c *Config) DBPath() (string, error) {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(c.DataDir, "encore.db"), nil
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "encore")

	// Create config directory if it doesn't exist
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

// Save writes configuration to file
func (c *Config) Save() error {
	v := viper.New()

	configFile := filepath.Join(getConfigDir(), "config.yaml")

	v.Set("server_url", c.ServerURL)
	v.Set("beacon_url", c.BeaconURL)
	v.Set("beacon_grace", c.BeaconGrace.String())
	v.Set("connect_timeout", c.ConnectTimeout.String())
	v.Set("data_dir", c.DataDir)
	v.Set("image_cache_size", c.ImageCacheSize)
	v.Set("output_format", c.OutputFormat)
	v.Set("output_width", c.OutputWidth)
	v.Set("marquee_enabled", c.MarqueeEnabled)
	v.Set("marquee_speed", c.MarqueeSpeed)
	v.Set("marquee_separator", c.MarqueeSeparator)

	return v.WriteConfigAs(configFile)
}
