package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeWebhook = "webhook"
	ModeMCP     = "mcp"

	// Template backend constants
	BackendDir = "dir"
	BackendS3  = "s3"

	// Default values
	DefaultPort            = 8080
	DefaultHost            = "127.0.0.1"
	DefaultLogLevel        = "info"
	DefaultTimezone        = "Europe/Moscow"
	DefaultDPI             = 200
	DefaultFontName        = "Helv"
	DefaultFontSize        = 10.0
	DefaultMaxTemplateSize = 20 * 1024 * 1024 // 20MB

	// Directory permissions
	DefaultDirPerm = 0o750
)

// Config holds all configuration for the waybill server
type Config struct {
	// Server configuration
	Mode string // "webhook" or "mcp"
	Host string
	Port int

	// Telegram configuration
	BotToken      string
	WebhookSecret string

	// Template configuration
	TemplateBackend string // "dir" or "s3"
	TemplatesDir    string
	MaxTemplateSize int64

	// S3 template backend
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Prefix    string
	S3UseSSL    bool

	// Generation configuration
	SessionDBPath string
	OutputDir     string
	Timezone      string
	FontName      string
	FontSize      float64
	// FieldFontSizes holds per-field overrides as name=size pairs.
	FieldFontSizes map[string]float64
	DPI            int

	// Application configuration
	Version    string
	ServerName string
	LogLevel   string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:            ModeWebhook,
		Host:            DefaultHost,
		Port:            DefaultPort,
		TemplateBackend: BackendDir,
		TemplatesDir:    filepath.Join(currentDir, "templates"),
		MaxTemplateSize: DefaultMaxTemplateSize,
		SessionDBPath:   filepath.Join(currentDir, "sessions.db"),
		Timezone:        DefaultTimezone,
		FontName:        DefaultFontName,
		FontSize:        DefaultFontSize,
		FieldFontSizes:  map[string]float64{"serial_number": 8},
		DPI:             DefaultDPI,
		Version:         "1.0.0",
		ServerName:      "waybill-server",
		LogLevel:        DefaultLogLevel,
	}
}

// LoadFromFlags parses command line flags and returns a configuration.
// A .env file in the working directory is loaded first, so local setups
// can keep the bot token out of the shell.
func LoadFromFlags() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	pflag.Parse()

	if err := populateConfigFromViper(cfg); err != nil {
		return nil, err
	}

	// Expand paths if needed
	if cfg.TemplatesDir != "" {
		if expandedPath, err := filepath.Abs(cfg.TemplatesDir); err == nil {
			cfg.TemplatesDir = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix("WAYBILL")
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("bot_token", cfg.BotToken)
	viper.SetDefault("webhook_secret", cfg.WebhookSecret)
	viper.SetDefault("template_backend", cfg.TemplateBackend)
	viper.SetDefault("templates_dir", cfg.TemplatesDir)
	viper.SetDefault("max_template_size", cfg.MaxTemplateSize)
	viper.SetDefault("s3_endpoint", cfg.S3Endpoint)
	viper.SetDefault("s3_access_key", cfg.S3AccessKey)
	viper.SetDefault("s3_secret_key", cfg.S3SecretKey)
	viper.SetDefault("s3_bucket", cfg.S3Bucket)
	viper.SetDefault("s3_prefix", cfg.S3Prefix)
	viper.SetDefault("s3_use_ssl", cfg.S3UseSSL)
	viper.SetDefault("session_db", cfg.SessionDBPath)
	viper.SetDefault("output_dir", cfg.OutputDir)
	viper.SetDefault("timezone", cfg.Timezone)
	viper.SetDefault("font_name", cfg.FontName)
	viper.SetDefault("font_size", cfg.FontSize)
	viper.SetDefault("field_font_sizes", "serial_number=8")
	viper.SetDefault("dpi", cfg.DPI)
	viper.SetDefault("loglevel", cfg.LogLevel)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'webhook' for the Telegram HTTP server, 'mcp' for MCP standard I/O")
	pflag.String("host", cfg.Host, "Server host address (webhook mode only)")
	pflag.Int("port", cfg.Port, "Server port (webhook mode only)")
	pflag.String("bot-token", cfg.BotToken, "Telegram bot token (webhook mode only)")
	pflag.String("webhook-secret", cfg.WebhookSecret, "Secret path segment for the Telegram webhook")
	pflag.String("template-backend", cfg.TemplateBackend, "Template storage backend: 'dir' or 's3'")
	pflag.String("templates-dir", cfg.TemplatesDir, "Directory containing driver templates (dir backend)")
	pflag.Int64("max-template-size", cfg.MaxTemplateSize, "Maximum template file size in bytes")
	pflag.String("s3-endpoint", cfg.S3Endpoint, "S3 endpoint (s3 backend)")
	pflag.String("s3-access-key", cfg.S3AccessKey, "S3 access key (s3 backend)")
	pflag.String("s3-secret-key", cfg.S3SecretKey, "S3 secret key (s3 backend)")
	pflag.String("s3-bucket", cfg.S3Bucket, "S3 bucket holding driver templates (s3 backend)")
	pflag.String("s3-prefix", cfg.S3Prefix, "Key prefix for templates in the bucket")
	pflag.Bool("s3-use-ssl", cfg.S3UseSSL, "Use TLS for the S3 endpoint")
	pflag.String("session-db", cfg.SessionDBPath, "Path to the sqlite session database")
	pflag.String("output-dir", cfg.OutputDir, "Directory for intermediate files (defaults to the system temp dir)")
	pflag.String("timezone", cfg.Timezone, "IANA timezone shift times are derived in")
	pflag.String("font-name", cfg.FontName, "PDF font resource name stamped into filled fields")
	pflag.Float64("font-size", cfg.FontSize, "Default font size for filled fields, in points")
	pflag.String("field-font-sizes", "serial_number=8", "Per-field font size overrides as comma-separated name=size pairs")
	pflag.Int("dpi", cfg.DPI, "Rasterization resolution")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	bindings := map[string]string{
		"mode":              "mode",
		"host":              "host",
		"port":              "port",
		"bot_token":         "bot-token",
		"webhook_secret":    "webhook-secret",
		"template_backend":  "template-backend",
		"templates_dir":     "templates-dir",
		"max_template_size": "max-template-size",
		"s3_endpoint":       "s3-endpoint",
		"s3_access_key":     "s3-access-key",
		"s3_secret_key":     "s3-secret-key",
		"s3_bucket":         "s3-bucket",
		"s3_prefix":         "s3-prefix",
		"s3_use_ssl":        "s3-use-ssl",
		"session_db":        "session-db",
		"output_dir":        "output-dir",
		"timezone":          "timezone",
		"font_name":         "font-name",
		"font_size":         "font-size",
		"field_font_sizes":  "field-font-sizes",
		"dpi":               "dpi",
		"loglevel":          "loglevel",
	}
	for key, flag := range bindings {
		_ = viper.BindPFlag(key, pflag.Lookup(flag))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nWaybill Server - generates filled waybill documents for taxi drivers\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --bot-token=... --webhook-secret=...     # webhook mode (default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=mcp --templates-dir=/srv/templates # MCP stdio mode\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --template-backend=s3 --s3-bucket=waybills # S3-backed templates\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables (prefix WAYBILL_, e.g. WAYBILL_BOT_TOKEN):\n")
		fmt.Fprintf(os.Stderr, "  every flag has a matching variable; flags take precedence\n")
	}
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) error {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.BotToken = viper.GetString("bot_token")
	cfg.WebhookSecret = viper.GetString("webhook_secret")
	cfg.TemplateBackend = viper.GetString("template_backend")
	cfg.TemplatesDir = viper.GetString("templates_dir")
	cfg.MaxTemplateSize = viper.GetInt64("max_template_size")
	cfg.S3Endpoint = viper.GetString("s3_endpoint")
	cfg.S3AccessKey = viper.GetString("s3_access_key")
	cfg.S3SecretKey = viper.GetString("s3_secret_key")
	cfg.S3Bucket = viper.GetString("s3_bucket")
	cfg.S3Prefix = viper.GetString("s3_prefix")
	cfg.S3UseSSL = viper.GetBool("s3_use_ssl")
	cfg.SessionDBPath = viper.GetString("session_db")
	cfg.OutputDir = viper.GetString("output_dir")
	cfg.Timezone = viper.GetString("timezone")
	cfg.FontName = viper.GetString("font_name")
	cfg.FontSize = viper.GetFloat64("font_size")
	cfg.DPI = viper.GetInt("dpi")
	cfg.LogLevel = viper.GetString("loglevel")

	sizes, err := ParseFieldFontSizes(viper.GetString("field_font_sizes"))
	if err != nil {
		return err
	}
	cfg.FieldFontSizes = sizes
	return nil
}

// ParseFieldFontSizes parses comma-separated name=size pairs, e.g.
// "serial_number=8,odometr=9".
func ParseFieldFontSizes(s string) (map[string]float64, error) {
	sizes := make(map[string]float64)
	if strings.TrimSpace(s) == "" {
		return sizes, nil
	}
	for _, pair := range strings.Split(s, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || name == "" {
			return nil, fmt.Errorf("invalid font size override %q (want name=size)", pair)
		}
		size, err := strconv.ParseFloat(value, 64)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("invalid font size in override %q", pair)
		}
		sizes[strings.ToLower(name)] = size
	}
	return sizes, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeWebhook && c.Mode != ModeMCP {
		return errors.New("mode must be either 'webhook' or 'mcp'")
	}

	if c.Mode == ModeWebhook {
		if c.Port < 1 || c.Port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		if c.BotToken == "" {
			return errors.New("bot token is required in webhook mode")
		}
		if c.WebhookSecret == "" {
			return errors.New("webhook secret is required in webhook mode")
		}
	}

	switch c.TemplateBackend {
	case BackendDir:
		if c.TemplatesDir == "" {
			return errors.New("templates directory cannot be empty")
		}
		if _, err := os.Stat(c.TemplatesDir); os.IsNotExist(err) {
			if err := os.MkdirAll(c.TemplatesDir, DefaultDirPerm); err != nil {
				return fmt.Errorf("cannot create templates directory %s: %w", c.TemplatesDir, err)
			}
		} else if err != nil {
			return fmt.Errorf("cannot access templates directory %s: %w", c.TemplatesDir, err)
		}
	case BackendS3:
		if c.S3Endpoint == "" || c.S3Bucket == "" {
			return errors.New("s3 backend requires an endpoint and a bucket")
		}
	default:
		return errors.New("template backend must be either 'dir' or 's3'")
	}

	if c.MaxTemplateSize <= 0 {
		return errors.New("maximum template size must be positive")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	if c.FontName == "" {
		return errors.New("font name cannot be empty")
	}
	if c.FontSize <= 0 {
		return errors.New("font size must be positive")
	}
	if c.DPI < 36 || c.DPI > 1200 {
		return errors.New("dpi must be between 36 and 1200")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// Location returns the configured timezone. Validate must have accepted
// the configuration first.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration. Secrets
// are omitted.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, TemplateBackend: %s, TemplatesDir: %s, Timezone: %s, DPI: %d, LogLevel: %s}",
		c.Mode, c.Host, c.Port, c.TemplateBackend, c.TemplatesDir, c.Timezone, c.DPI, c.LogLevel)
}

// IsWebhookMode returns true if the server is running the Telegram webhook
func (c *Config) IsWebhookMode() bool {
	return c.Mode == ModeWebhook
}

// IsMCPMode returns true if the server is running in MCP stdio mode
func (c *Config) IsMCPMode() bool {
	return c.Mode == ModeMCP
}
