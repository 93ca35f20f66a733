package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// globalConfig stores the configuration loaded with command-line overrides
// so handlers can read the same settings the server started with.
var (
	globalConfig *Config
	configMutex  sync.Mutex
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Codec    CodecConfig    `json:"codec"`
	Archive  ArchiveConfig  `json:"archive"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`
}

// LoadOptions holds command-line override options. Empty strings and nil
// pointers leave the environment value in place.
type LoadOptions struct {
	Host        string
	Port        string
	LogLevel    string
	PaletteFile string
	Transparent *int
	HeaderSize  *int
	BottomUp    bool
	Compress    bool
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string        `json:"host" env:"SERVER_HOST" default:"0.0.0.0"`
	Port         string        `json:"port" env:"SERVER_PORT" default:"8080"`
	ReadTimeout  time.Duration `json:"readTimeout" env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `json:"writeTimeout" env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `json:"idleTimeout" env:"SERVER_IDLE_TIMEOUT" default:"120s"`
}

// CodecConfig holds the default CLX encoding parameters
type CodecConfig struct {
	// TransparentIndex is the palette index encoded as transparent runs, or -1 for none.
	TransparentIndex int    `json:"transparentIndex" env:"CLX_TRANSPARENT_INDEX" default:"-1"`
	HeaderSize       int    `json:"headerSize" env:"CLX_HEADER_SIZE" default:"6"`
	BottomUp         bool   `json:"bottomUp" env:"CLX_BOTTOM_UP" default:"false"`
	MaxWidth         int    `json:"maxWidth" env:"CLX_MAX_WIDTH" default:"4096"`
	MaxHeight        int    `json:"maxHeight" env:"CLX_MAX_HEIGHT" default:"4096"`
	PaletteFile      string `json:"paletteFile" env:"CLX_PALETTE_FILE" default:""`
}

// ArchiveConfig holds sprite-list compression settings
type ArchiveConfig struct {
	Compress bool   `json:"compress" env:"CLX_COMPRESS" default:"false"`
	Level    string `json:"level" env:"CLX_ZSTD_LEVEL" default:"default"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string `json:"allowedOrigins" env:"ALLOWED_ORIGINS" default:""`
	MaxUploadBytes int64    `json:"maxUploadBytes" env:"MAX_UPLOAD_BYTES" default:"16777216"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"LOG_FORMAT" default:"text"`
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	return LoadWithOverrides(LoadOptions{})
}

// LoadWithOverrides loads configuration with command-line overrides
func LoadWithOverrides(opts LoadOptions) (*Config, error) {
	config := &Config{}

	// Server config
	config.Server.Host = getOverrideOrEnv(opts.Host, "SERVER_HOST", "0.0.0.0")
	config.Server.Port = getOverrideOrEnv(opts.Port, "SERVER_PORT", "8080")
	config.Server.ReadTimeout = getDurationWithDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	config.Server.WriteTimeout = getDurationWithDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)
	config.Server.IdleTimeout = getDurationWithDefault("SERVER_IDLE_TIMEOUT", 120*time.Second)

	// Codec config
	config.Codec.TransparentIndex = getIntWithDefault("CLX_TRANSPARENT_INDEX", -1)
	if opts.Transparent != nil {
		config.Codec.TransparentIndex = *opts.Transparent
	}
	config.Codec.HeaderSize = getIntWithDefault("CLX_HEADER_SIZE", 6)
	if opts.HeaderSize != nil {
		config.Codec.HeaderSize = *opts.HeaderSize
	}
	config.Codec.BottomUp = getBoolWithDefault("CLX_BOTTOM_UP", false) || opts.BottomUp
	config.Codec.MaxWidth = getIntWithDefault("CLX_MAX_WIDTH", 4096)
	config.Codec.MaxHeight = getIntWithDefault("CLX_MAX_HEIGHT", 4096)
	config.Codec.PaletteFile = getOverrideOrEnv(opts.PaletteFile, "CLX_PALETTE_FILE", "")

	// Archive config
	config.Archive.Compress = getBoolWithDefault("CLX_COMPRESS", false) || opts.Compress
	config.Archive.Level = getEnvWithDefault("CLX_ZSTD_LEVEL", "default")

	// Security config
	config.Security.AllowedOrigins = getStringSliceWithDefault("ALLOWED_ORIGINS", []string{})
	config.Security.MaxUploadBytes = int64(getIntWithDefault("MAX_UPLOAD_BYTES", 16<<20))

	// Logging config
	config.Logging.Level = getOverrideOrEnv(opts.LogLevel, "LOG_LEVEL", "info")
	config.Logging.Format = getEnvWithDefault("LOG_FORMAT", "text")

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	configMutex.Lock()
	globalConfig = config
	configMutex.Unlock()

	return config, nil
}

// GetGlobalConfig returns the configuration most recently loaded by
// LoadWithOverrides, or nil if nothing was loaded yet.
func GetGlobalConfig() *Config {
	configMutex.Lock()
	defer configMutex.Unlock()
	return globalConfig
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}

	// Validate codec config
	if c.Codec.TransparentIndex < -1 || c.Codec.TransparentIndex > 255 {
		return fmt.Errorf("transparent index must be -1 or 0..255, got %d", c.Codec.TransparentIndex)
	}

	if c.Codec.HeaderSize != 6 && c.Codec.HeaderSize != 10 {
		return fmt.Errorf("header size must be 6 or 10, got %d", c.Codec.HeaderSize)
	}

	if c.Codec.MaxWidth <= 0 || c.Codec.MaxWidth > 65535 || c.Codec.MaxHeight <= 0 || c.Codec.MaxHeight > 65535 {
		return fmt.Errorf("max dimensions must be within 1..65535")
	}

	if c.Codec.PaletteFile != "" {
		if _, err := os.Stat(c.Codec.PaletteFile); os.IsNotExist(err) {
			return fmt.Errorf("palette file does not exist: %s", c.Codec.PaletteFile)
		}
	}

	// Validate archive config
	validLevels := map[string]bool{
		"fastest": true,
		"default": true,
		"better":  true,
		"best":    true,
	}

	if !validLevels[c.Archive.Level] {
		return fmt.Errorf("invalid zstd level: %s", c.Archive.Level)
	}

	// Validate security config
	if c.Security.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}

	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceWithDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return splitString(value, ",")
	}
	return defaultValue
}

// getOverrideOrEnv returns command-line override value, env value, or default
func getOverrideOrEnv(override, envKey, defaultValue string) string {
	if override != "" {
		return override
	}
	return getEnvWithDefault(envKey, defaultValue)
}

func splitString(s, sep string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
