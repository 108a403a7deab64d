package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration settings for the director service
type Config struct {
	// ListenAddr is the address and port for the HTTP API
	ListenAddr string `toml:"listen_addr"`

	// DatabasePath is the path to the SQLite database file
	DatabasePath string `toml:"database_path"`

	// ImagesDir is the directory containing service image definitions
	ImagesDir string `toml:"images_dir"`

	// StartPort and EndPort bound the host port pool used for
	// published container ports
	StartPort int `toml:"start_port"`
	EndPort   int `toml:"end_port"`

	// DefaultEnv is merged into the environment of every container
	DefaultEnv map[string]string `toml:"default_env"`

	// FrontierURL is the callback endpoint that receives registration
	// pushes. Empty disables pushes.
	FrontierURL string `toml:"frontier_url"`

	// InitialStartup seeds the startup set on first boot
	InitialStartup []string `toml:"initial_startup"`

	// SessionKey signs the session cookies of the HTTP API
	SessionKey string `toml:"session_key"`
}

// defaultConfig returns the default configuration
func defaultConfig() *Config {
	return &Config{
		ListenAddr:   ":8080",
		DatabasePath: "director.db",
		ImagesDir:    "./images",
		StartPort:    8900,
		EndPort:      8999,
		DefaultEnv:   map[string]string{},
		SessionKey:   "director-insecure-dev-key-32b!!",
	}
}

// Load loads the configuration from file and environment variables
func Load() (*Config, error) {
	// Start with default configuration
	config := defaultConfig()

	// Try to load from director.toml if it exists
	configPath := "director.toml"
	if p := os.Getenv("DIRECTOR_CONFIG"); p != "" {
		configPath = p
	}
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	// Override with environment variables if set. HOST/PORT are the
	// container-facing knobs and take precedence over listen_addr.
	host := os.Getenv("HOST")
	port := os.Getenv("PORT")
	if host != "" || port != "" {
		if host == "" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		config.ListenAddr = net.JoinHostPort(host, port)
	}

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}

	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		config.DatabasePath = dbPath
	}

	if imagesDir := os.Getenv("DIRECTOR_IMAGES_DIR"); imagesDir != "" {
		config.ImagesDir = imagesDir
	}

	if frontier := os.Getenv("FRONTIER_URL"); frontier != "" {
		config.FrontierURL = frontier
	}

	if key := os.Getenv("DIRECTOR_SESSION_KEY"); key != "" {
		config.SessionKey = key
	}

	// Ensure ImagesDir is absolute
	if !filepath.IsAbs(config.ImagesDir) {
		absPath, err := filepath.Abs(config.ImagesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for images_dir: %w", err)
		}
		config.ImagesDir = absPath
	}

	if config.StartPort <= 0 || config.EndPort <= config.StartPort {
		return nil, fmt.Errorf("invalid port pool bounds: %d..%d", config.StartPort, config.EndPort)
	}

	return config, nil
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("ListenAddr: %s", c.ListenAddr))
	parts = append(parts, fmt.Sprintf("DatabasePath: %s", c.DatabasePath))
	parts = append(parts, fmt.Sprintf("ImagesDir: %s", c.ImagesDir))
	parts = append(parts, fmt.Sprintf("Ports: %d..%d", c.StartPort, c.EndPort))
	return strings.Join(parts, ", ")
}
