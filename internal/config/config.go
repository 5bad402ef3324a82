package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"

	envPrefix = "CHAT"
)

const (
	defaultServerAddr      = "localhost:5000"
	defaultDatabaseDSN     = "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"
	defaultDatabaseName    = "chat"
	defaultSigningKey      = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="
	defaultTokenTTL        = 30 * 24 * time.Hour
	defaultLogLevel        = "info"
	defaultRateBurst       = 0
	defaultRateInterval    = time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// RateLimitConfig bounds how many realtime events a single connection may
// send: Burst events, refilled over RefillInterval. A zero Burst disables the
// limit, which is the default; events over an enabled limit are dropped.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

type Config struct {
	ServerAddr      string
	DatabaseDriver  string
	DatabaseDSN     string
	DatabaseName    string
	SigningKey      []byte
	TokenTTL        time.Duration
	AllowedOrigins  []string
	LogLevel        string
	RateLimit       RateLimitConfig
	ShutdownTimeout time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, errors.New("empty secret")
	}

	return base64.StdEncoding.DecodeString(base64Secret)
}

// NewConfig builds a Config for the postgres driver with default tuning.
func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabaseDriver: DriverPostgres,
		DatabaseDSN:    databaseDSN,
		DatabaseName:   defaultDatabaseName,
		SigningKey:     signingKey,
		TokenTTL:       defaultTokenTTL,
		AllowedOrigins: allowedOrigins,
		LogLevel:       defaultLogLevel,
		RateLimit: RateLimitConfig{
			Burst:          defaultRateBurst,
			RefillInterval: defaultRateInterval,
		},
		ShutdownTimeout: defaultShutdownTimeout,
	}, nil
}

// NewViper returns a viper instance with defaults set, CHAT_* environment
// variables bound and, when fs is non-nil, command line flags registered on fs.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("server.addr", defaultServerAddr)
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.dsn", defaultDatabaseDSN)
	v.SetDefault("database.name", defaultDatabaseName)
	v.SetDefault("auth.signing_key", defaultSigningKey)
	v.SetDefault("auth.token_ttl", defaultTokenTTL)
	v.SetDefault("cors.allowed_origins", []string{})
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("ws.rate_burst", defaultRateBurst)
	v.SetDefault("ws.rate_interval", defaultRateInterval)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs == nil {
		return v, nil
	}

	fs.String("addr", defaultServerAddr, "server address")
	fs.String("db-driver", DriverPostgres, "database driver (postgres or mongo)")
	fs.String("dsn", defaultDatabaseDSN, "database connection string")
	fs.String("db-name", defaultDatabaseName, "database name (mongo only)")
	fs.String("signing-key", defaultSigningKey, "base64 encoded signing key")
	fs.StringSlice("allowed-origins", nil, "comma-separated list of allowed origins for CORS")
	fs.String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.String("config", "", "path to a config file")

	bindings := map[string]string{
		"server.addr":          "addr",
		"database.driver":      "db-driver",
		"database.dsn":         "dsn",
		"database.name":        "db-name",
		"auth.signing_key":     "signing-key",
		"cors.allowed_origins": "allowed-origins",
		"log.level":            "log-level",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %q: %w", flag, err)
		}
	}

	return v, nil
}

// ReadFile merges the config file at path into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	return nil
}

// Load validates the settings held by v and returns the resulting Config.
func Load(v *viper.Viper) (*Config, error) {
	cfg, err := NewConfig(
		v.GetString("server.addr"),
		v.GetString("database.dsn"),
		v.GetString("auth.signing_key"),
		splitOrigins(v.GetStringSlice("cors.allowed_origins")),
	)
	if err != nil {
		return nil, err
	}

	cfg.DatabaseDriver = strings.ToLower(v.GetString("database.driver"))
	switch cfg.DatabaseDriver {
	case DriverPostgres, DriverMongo:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	cfg.DatabaseName = v.GetString("database.name")
	if cfg.DatabaseDriver == DriverMongo && cfg.DatabaseName == "" {
		return nil, fmt.Errorf("database name cannot be empty for the mongo driver")
	}

	cfg.LogLevel = v.GetString("log.level")

	if ttl := v.GetDuration("auth.token_ttl"); ttl > 0 {
		cfg.TokenTTL = ttl
	}

	burst := v.GetInt("ws.rate_burst")
	if burst < 0 {
		return nil, fmt.Errorf("websocket rate burst cannot be negative")
	}
	cfg.RateLimit.Burst = burst

	if interval := v.GetDuration("ws.rate_interval"); interval > 0 {
		cfg.RateLimit.RefillInterval = interval
	}

	if timeout := v.GetDuration("server.shutdown_timeout"); timeout > 0 {
		cfg.ShutdownTimeout = timeout
	}

	return cfg, nil
}

// splitOrigins flattens comma separated entries, which is how origins arrive
// from CHAT_CORS_ALLOWED_ORIGINS.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
	}

	return origins
}
