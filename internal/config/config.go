package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	dbconfig "roomchat/pkg/database"
)

// envPrefix namespaces every environment variable the server reads
const envPrefix = "ROOMCHAT_"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database  *dbconfig.Config `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Chat      *ChatConfig      `json:"chat"`
	Redis     *RedisConfig     `json:"redis"`
	Log       *LogConfig       `json:"log"`
}

// HTTPConfig holds listener settings
type HTTPConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	CORSOrigins     []string      `json:"cors_origins"`
}

// Addr returns host:port for the listener
func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// WebSocketConfig holds transport settings
type WebSocketConfig struct {
	PingInterval   time.Duration `json:"ping_interval"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	BufferSize     int           `json:"buffer_size"`
	ReadLimit      int64         `json:"read_limit"`
	AllowedOrigins []string      `json:"allowed_origins"`
}

// ChatConfig holds room behavior limits
type ChatConfig struct {
	HistoryLimit     int           `json:"history_limit"`
	MaxMessageLength int           `json:"max_message_length"`
	RateLimit        int           `json:"rate_limit"` // sends per RateWindow, 0 disables
	RateWindow       time.Duration `json:"rate_window"`
}

// RedisConfig configures the optional event mirror; an empty Addr disables it
type RedisConfig struct {
	Addr          string `json:"addr"`
	Password      string `json:"password"`
	DB            int    `json:"db"`
	ChannelPrefix string `json:"channel_prefix"`
}

// Enabled reports whether the mirror should be started
func (r *RedisConfig) Enabled() bool {
	return r != nil && r.Addr != ""
}

// LogConfig selects the log handler and level
type LogConfig struct {
	Env   string `json:"env"`   // "prod" logs JSON, anything else logs text
	Level string `json:"level"` // debug, info, warn, error
}

// FUNCTIONAL DISCOVERY: Production-ready defaults; SQLite on local disk,
// mirror disabled, 100 messages of history on join
func DefaultConfig() *Config {
	return &Config{
		Database: dbconfig.DefaultConfig(),
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 5 * time.Second,
			BufferSize:   100,
			ReadLimit:    16 * 1024,
		},
		Chat: &ChatConfig{
			HistoryLimit:     100,
			MaxMessageLength: 1000,
			RateLimit:        20,
			RateWindow:       10 * time.Second,
		},
		Redis: &RedisConfig{
			ChannelPrefix: "roomchat:room:",
		},
		Log: &LogConfig{
			Env:   "dev",
			Level: "info",
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
func (c *Config) Validate() error {
	if c.Database == nil {
		return errors.New("database configuration is required")
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if c.HTTP == nil {
		return errors.New("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.New("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return errors.New("HTTP timeouts must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return errors.New("HTTP shutdown timeout must be positive")
	}

	if c.WebSocket == nil {
		return errors.New("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return errors.New("WebSocket intervals and timeouts must be positive")
	}
	if c.WebSocket.PingInterval >= c.WebSocket.ReadTimeout {
		return errors.New("WebSocket ping interval must be shorter than the read timeout")
	}
	if c.WebSocket.BufferSize <= 0 {
		return errors.New("WebSocket buffer size must be positive")
	}
	if c.WebSocket.ReadLimit <= 0 {
		return errors.New("WebSocket read limit must be positive")
	}

	if c.Chat == nil {
		return errors.New("chat configuration is required")
	}
	if c.Chat.HistoryLimit <= 0 {
		return errors.New("history limit must be positive")
	}
	if c.Chat.MaxMessageLength <= 0 {
		return errors.New("max message length must be positive")
	}
	if c.Chat.RateLimit < 0 {
		return errors.New("rate limit cannot be negative")
	}
	if c.Chat.RateLimit > 0 && c.Chat.RateWindow <= 0 {
		return errors.New("rate window must be positive when rate limiting is enabled")
	}

	if c.Redis != nil && c.Redis.DB < 0 {
		return errors.New("redis db cannot be negative")
	}

	if c.Log == nil {
		return errors.New("log configuration is required")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	return nil
}

// LoadDotEnv loads .env style files into the process environment
// FUNCTIONAL DISCOVERY: Missing files are not an error so the same binary runs
// with or without a local .env; variables already set are never overridden
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// LoadFromEnv returns defaults overridden by ROOMCHAT_* environment variables
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

// FUNCTIONAL DISCOVERY: Environment variables override defaults with fallback;
// unparsable values are ignored and the previous value kept
func applyEnv(c *Config) {
	envString("DATABASE_DRIVER", &c.Database.Driver)
	envString("DATABASE_PATH", &c.Database.DatabasePath)
	envString("DATABASE_DSN", &c.Database.DSN)
	envInt("DATABASE_MAX_CONNECTIONS", &c.Database.MaxConnections)
	envDuration("DATABASE_WRITE_RETRY_DELAY", &c.Database.WriteRetryDelay)

	envString("HTTP_HOST", &c.HTTP.Host)
	envInt("HTTP_PORT", &c.HTTP.Port)
	envDuration("HTTP_READ_TIMEOUT", &c.HTTP.ReadTimeout)
	envDuration("HTTP_WRITE_TIMEOUT", &c.HTTP.WriteTimeout)
	envDuration("HTTP_SHUTDOWN_TIMEOUT", &c.HTTP.ShutdownTimeout)
	envList("HTTP_CORS_ORIGINS", &c.HTTP.CORSOrigins)

	envDuration("WEBSOCKET_PING_INTERVAL", &c.WebSocket.PingInterval)
	envDuration("WEBSOCKET_READ_TIMEOUT", &c.WebSocket.ReadTimeout)
	envDuration("WEBSOCKET_WRITE_TIMEOUT", &c.WebSocket.WriteTimeout)
	envInt("WEBSOCKET_BUFFER_SIZE", &c.WebSocket.BufferSize)
	if v, ok := lookup("WEBSOCKET_READ_LIMIT"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.WebSocket.ReadLimit = n
		}
	}
	envList("WEBSOCKET_ALLOWED_ORIGINS", &c.WebSocket.AllowedOrigins)

	envInt("CHAT_HISTORY_LIMIT", &c.Chat.HistoryLimit)
	envInt("CHAT_MAX_MESSAGE_LENGTH", &c.Chat.MaxMessageLength)
	envInt("CHAT_RATE_LIMIT", &c.Chat.RateLimit)
	envDuration("CHAT_RATE_WINDOW", &c.Chat.RateWindow)

	envString("REDIS_ADDR", &c.Redis.Addr)
	envString("REDIS_PASSWORD", &c.Redis.Password)
	envInt("REDIS_DB", &c.Redis.DB)
	envString("REDIS_CHANNEL_PREFIX", &c.Redis.ChannelPrefix)

	envString("ENV", &c.Log.Env)
	envString("LOG_LEVEL", &c.Log.Level)
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	return v, v != ""
}

func envString(key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envList(key string, dst *[]string) {
	if v, ok := lookup(key); ok {
		*dst = splitCSV(v)
	}
}

// splitCSV trims and filters a comma-separated list
func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings;
// pointer and empty fields leave the underlying value untouched
type ConfigFile struct {
	Database *struct {
		Driver          string `json:"driver"`
		Path            string `json:"path"`
		DSN             string `json:"dsn"`
		MaxConnections  int    `json:"max_connections"`
		WriteRetryDelay string `json:"write_retry_delay"`
	} `json:"database"`
	HTTP *struct {
		Host            string   `json:"host"`
		Port            int      `json:"port"`
		ReadTimeout     string   `json:"read_timeout"`
		WriteTimeout    string   `json:"write_timeout"`
		ShutdownTimeout string   `json:"shutdown_timeout"`
		CORSOrigins     []string `json:"cors_origins"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval   string   `json:"ping_interval"`
		ReadTimeout    string   `json:"read_timeout"`
		WriteTimeout   string   `json:"write_timeout"`
		BufferSize     int      `json:"buffer_size"`
		ReadLimit      int64    `json:"read_limit"`
		AllowedOrigins []string `json:"allowed_origins"`
	} `json:"websocket"`
	Chat *struct {
		HistoryLimit     int    `json:"history_limit"`
		MaxMessageLength int    `json:"max_message_length"`
		RateLimit        *int   `json:"rate_limit"`
		RateWindow       string `json:"rate_window"`
	} `json:"chat"`
	Redis *struct {
		Addr          string `json:"addr"`
		Password      string `json:"password"`
		DB            int    `json:"db"`
		ChannelPrefix string `json:"channel_prefix"`
	} `json:"redis"`
	Log *struct {
		Env   string `json:"env"`
		Level string `json:"level"`
	} `json:"log"`
}

// LoadFromFile returns defaults overridden by a JSON config file
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

func applyFile(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	var errs []error
	duration := func(field, v string, dst *time.Duration) {
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*dst = d
	}

	if f := file.Database; f != nil {
		setString(&c.Database.Driver, f.Driver)
		setString(&c.Database.DatabasePath, f.Path)
		setString(&c.Database.DSN, f.DSN)
		setInt(&c.Database.MaxConnections, f.MaxConnections)
		duration("database.write_retry_delay", f.WriteRetryDelay, &c.Database.WriteRetryDelay)
	}
	if f := file.HTTP; f != nil {
		setString(&c.HTTP.Host, f.Host)
		setInt(&c.HTTP.Port, f.Port)
		duration("http.read_timeout", f.ReadTimeout, &c.HTTP.ReadTimeout)
		duration("http.write_timeout", f.WriteTimeout, &c.HTTP.WriteTimeout)
		duration("http.shutdown_timeout", f.ShutdownTimeout, &c.HTTP.ShutdownTimeout)
		if f.CORSOrigins != nil {
			c.HTTP.CORSOrigins = f.CORSOrigins
		}
	}
	if f := file.WebSocket; f != nil {
		duration("websocket.ping_interval", f.PingInterval, &c.WebSocket.PingInterval)
		duration("websocket.read_timeout", f.ReadTimeout, &c.WebSocket.ReadTimeout)
		duration("websocket.write_timeout", f.WriteTimeout, &c.WebSocket.WriteTimeout)
		setInt(&c.WebSocket.BufferSize, f.BufferSize)
		if f.ReadLimit > 0 {
			c.WebSocket.ReadLimit = f.ReadLimit
		}
		if f.AllowedOrigins != nil {
			c.WebSocket.AllowedOrigins = f.AllowedOrigins
		}
	}
	if f := file.Chat; f != nil {
		setInt(&c.Chat.HistoryLimit, f.HistoryLimit)
		setInt(&c.Chat.MaxMessageLength, f.MaxMessageLength)
		if f.RateLimit != nil {
			c.Chat.RateLimit = *f.RateLimit
		}
		duration("chat.rate_window", f.RateWindow, &c.Chat.RateWindow)
	}
	if f := file.Redis; f != nil {
		setString(&c.Redis.Addr, f.Addr)
		setString(&c.Redis.Password, f.Password)
		setInt(&c.Redis.DB, f.DB)
		setString(&c.Redis.ChannelPrefix, f.ChannelPrefix)
	}
	if f := file.Log; f != nil {
		setString(&c.Log.Env, f.Env)
		setString(&c.Log.Level, f.Level)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid durations in %s: %w", path, err)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// Load builds the runtime configuration
// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > defaults.
// A broken file is reported instead of silently ignored
func Load(path string) (*Config, error) {
	config := LoadFromEnv()
	if path != "" {
		if err := applyFile(config, path); err != nil {
			return nil, err
		}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
