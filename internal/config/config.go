package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "NOTED"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "noted.db"
	defaultLogLevel     = "info"
	defaultTokenTTL     = 60 * time.Minute

	defaultArgonTime        = 8
	defaultArgonMemoryKiB   = 64 * 1024
	defaultArgonParallelism = 2
	defaultArgonKeyLength   = 32

	defaultRateRequests      = 100
	defaultRateWindow        = time.Hour
	defaultRateBurstRequests = 10
	defaultRateBurstWindow   = time.Minute
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	LogLevel      string
	SigningSecret string
	TokenTTL      time.Duration

	ArgonTime        uint32
	ArgonMemoryKiB   uint32
	ArgonParallelism uint8
	ArgonKeyLength   uint32

	RateRequests      int
	RateWindow        time.Duration
	RateBurstRequests int
	RateBurstWindow   time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper
// instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.token_ttl_minutes", int(defaultTokenTTL.Minutes()))

	configViper.SetDefault("argon2.time", defaultArgonTime)
	configViper.SetDefault("argon2.memory_kib", defaultArgonMemoryKiB)
	configViper.SetDefault("argon2.parallelism", defaultArgonParallelism)
	configViper.SetDefault("argon2.key_length", defaultArgonKeyLength)

	configViper.SetDefault("ratelimit.requests", defaultRateRequests)
	configViper.SetDefault("ratelimit.window", defaultRateWindow)
	configViper.SetDefault("ratelimit.burst_requests", defaultRateBurstRequests)
	configViper.SetDefault("ratelimit.burst_window", defaultRateBurstWindow)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		TokenTTL:      time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,

		ArgonTime:        configViper.GetUint32("argon2.time"),
		ArgonMemoryKiB:   configViper.GetUint32("argon2.memory_kib"),
		ArgonParallelism: uint8(configViper.GetUint("argon2.parallelism")),
		ArgonKeyLength:   configViper.GetUint32("argon2.key_length"),

		RateRequests:      configViper.GetInt("ratelimit.requests"),
		RateWindow:        configViper.GetDuration("ratelimit.window"),
		RateBurstRequests: configViper.GetInt("ratelimit.burst_requests"),
		RateBurstWindow:   configViper.GetDuration("ratelimit.burst_window"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.RateRequests <= 0 || c.RateBurstRequests <= 0 {
		return fmt.Errorf("ratelimit budgets must be positive")
	}
	if c.RateWindow <= 0 || c.RateBurstWindow <= 0 {
		return fmt.Errorf("ratelimit windows must be positive")
	}
	return nil
}
