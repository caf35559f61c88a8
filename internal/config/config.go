package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the daemon configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Image cache configuration
	Cache CacheConfig `json:"cache"`

	// Flash defaults
	Flash FlashConfig `json:"flash"`

	// mDNS/Avahi configuration
	MDNS MDNSConfig `json:"mdns"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	// Timeout settings in seconds
	ReadTimeout  int `json:"read_timeout"`
	WriteTimeout int `json:"write_timeout"`
	IdleTimeout  int `json:"idle_timeout"`

	// CORS settings
	CORS CORSConfig `json:"cors"`
}

// CORSConfig contains CORS settings
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// CacheConfig contains downloaded image cache settings
type CacheConfig struct {
	// Directory for downloaded images
	Dir string `json:"dir"`
}

// FlashConfig contains default flash behavior
type FlashConfig struct {
	// Skip the read-back verification pass
	SkipVerify bool `json:"skip_verify"`

	// Eject the media after a successful flash
	Eject bool `json:"eject"`
}

// MDNSConfig contains mDNS/Avahi service discovery settings
type MDNSConfig struct {
	// Enable mDNS service advertisement
	Enabled bool `json:"enabled"`

	// Service name (e.g., "Card Flash")
	ServiceName string `json:"service_name"`

	// Additional TXT records (key=value pairs)
	TXTRecords []string `json:"txt_records"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			ReadTimeout: 15,
			// No write timeout: progress event streams stay open for
			// the whole flash.
			WriteTimeout: 0,
			IdleTimeout:  60,
			CORS: CORSConfig{
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				AllowCredentials: true,
			},
		},
		Cache: CacheConfig{
			Dir: "/var/cache/cardflash",
		},
		Flash: FlashConfig{
			SkipVerify: false,
			Eject:      true,
		},
		MDNS: MDNSConfig{
			Enabled:     true,
			ServiceName: "Card Flash",
			TXTRecords: []string{
				"path=/",
				"version=1.0",
			},
		},
	}
}

// Load loads configuration from a JSON file
// If the file doesn't exist, it returns the default configuration
func Load(path string) (*Config, error) {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	// Read the file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON
	config := Default() // Start with defaults
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Save writes the configuration to a JSON file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to JSON with indentation
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
