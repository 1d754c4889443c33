package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"mutaba/internal/core"
	"mutaba/internal/fx"
	"mutaba/internal/guidance"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// Books
	Currencies string

	// Rates
	FXAPIURL          string
	FXOffline         bool
	FXProbeAddr       string
	FXHTTPTimeout     time.Duration
	FXStaleAfter      time.Duration
	FXFallbackMaxAge  time.Duration
	FXRetryAttempts   int
	FXRetryDelay      time.Duration
	FXRefreshInterval time.Duration
	FXPairs           string

	// AMQP; empty URL disables messaging
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Guidance
	GuidanceConfig string

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/mutaba.db"),

		Currencies: getEnv("CURRENCIES", "USD,ILS,EUR"),

		FXAPIURL:          getEnv("FX_API_URL", fx.DefaultBaseURL),
		FXOffline:         getEnvBool("FX_OFFLINE", false),
		FXProbeAddr:       getEnv("FX_PROBE_ADDR", "api.frankfurter.dev:443"),
		FXHTTPTimeout:     getEnvDuration("FX_HTTP_TIMEOUT", fx.DefaultFetchTimeout),
		FXStaleAfter:      getEnvDuration("FX_STALE_AFTER", fx.DefaultStaleAfter),
		FXFallbackMaxAge:  getEnvDuration("FX_FALLBACK_MAX_AGE", 0),
		FXRetryAttempts:   getEnvInt("FX_RETRY_ATTEMPTS", fx.DefaultRetryAttempts),
		FXRetryDelay:      getEnvDuration("FX_RETRY_DELAY", fx.DefaultRetryDelay),
		FXRefreshInterval: getEnvDuration("FX_REFRESH_INTERVAL", 4*time.Hour),
		FXPairs:           getEnv("FX_PAIRS", "USD-ILS,EUR-ILS"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "mutaba"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "fx_refresh"),

		GuidanceConfig: getEnv("GUIDANCE_CONFIG", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if curs, err := core.ParseCurrencies(c.Currencies); err != nil {
		errors = append(errors, fmt.Sprintf("invalid currencies: %v", err))
	} else if len(curs) == 0 {
		errors = append(errors, "at least one currency must be enabled")
	}

	if u, err := url.Parse(c.FXAPIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid FX API URL '%s': must be an absolute http(s) URL", c.FXAPIURL))
	}
	if !c.FXOffline && c.FXProbeAddr != "" && !strings.Contains(c.FXProbeAddr, ":") {
		errors = append(errors, fmt.Sprintf("invalid FX probe address '%s': must be host:port", c.FXProbeAddr))
	}
	if c.FXHTTPTimeout < 100*time.Millisecond || c.FXHTTPTimeout > 2*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid FX HTTP timeout %v: must be between 100ms and 2m", c.FXHTTPTimeout))
	}
	if c.FXStaleAfter < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid FX stale-after %v: must be at least 1 minute", c.FXStaleAfter))
	}
	if c.FXFallbackMaxAge < 0 {
		errors = append(errors, fmt.Sprintf("invalid FX fallback max age %v: must not be negative", c.FXFallbackMaxAge))
	}
	if c.FXRetryAttempts < 0 || c.FXRetryAttempts > 10 {
		errors = append(errors, fmt.Sprintf("invalid FX retry attempts %d: must be between 0 and 10", c.FXRetryAttempts))
	}
	if c.FXRetryDelay < 0 || c.FXRetryDelay > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid FX retry delay %v: must be between 0 and 1 minute", c.FXRetryDelay))
	}
	if c.FXRefreshInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid FX refresh interval %v: must be at least 1 minute", c.FXRefreshInterval))
	} else if c.FXRefreshInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid FX refresh interval %v: must be at most 24 hours", c.FXRefreshInterval))
	}
	if _, err := fx.ParsePairs(c.FXPairs); err != nil {
		errors = append(errors, fmt.Sprintf("invalid FX pairs: %v", err))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GuidanceConfig != "" {
		if _, err := os.Stat(c.GuidanceConfig); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("guidance config file does not exist: %s", c.GuidanceConfig))
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// CurrencyList returns the enabled currencies. Call after Validate.
func (c *Config) CurrencyList() []core.Currency {
	curs, err := core.ParseCurrencies(c.Currencies)
	if err != nil || len(curs) == 0 {
		return core.SupportedCurrencies
	}
	return curs
}

// PairList returns the pairs the refresh worker keeps warm. Call after Validate.
func (c *Config) PairList() []fx.Pair {
	pairs, _ := fx.ParsePairs(c.FXPairs)
	return pairs
}

// FallbackPolicy maps FX_FALLBACK_MAX_AGE onto a provider policy; zero means
// any cached rate may be served.
func (c *Config) FallbackPolicy() fx.FallbackPolicy {
	if c.FXFallbackMaxAge <= 0 {
		return fx.UnlimitedAgeFallback
	}
	return fx.MaxAgeFallback(c.FXFallbackMaxAge)
}

func (c *Config) RetryPolicy() fx.RetryPolicy {
	return fx.RetryPolicy{Attempts: c.FXRetryAttempts, Delay: c.FXRetryDelay}
}

// Connectivity returns the probe the provider consults before a request.
func (c *Config) Connectivity() fx.Connectivity {
	if c.FXOffline {
		return fx.StaticConnectivity(false)
	}
	if c.FXProbeAddr == "" {
		return fx.StaticConnectivity(true)
	}
	return fx.DialProbe{Addr: c.FXProbeAddr}
}

// guidanceFile is the layout of GUIDANCE_CONFIG.
type guidanceFile struct {
	Thresholds guidance.Thresholds `toml:"thresholds"`
}

// LoadThresholds reads guidance thresholds from a TOML file. Keys missing from
// the file keep their defaults; an empty path returns the defaults.
func LoadThresholds(path string) (guidance.Thresholds, error) {
	file := guidanceFile{Thresholds: guidance.DefaultThresholds()}
	if path == "" {
		return file.Thresholds, nil
	}
	md, err := toml.DecodeFile(path, &file)
	if err != nil {
		return guidance.Thresholds{}, fmt.Errorf("decode guidance config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return guidance.Thresholds{}, fmt.Errorf("guidance config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := file.Thresholds.Validate(); err != nil {
		return guidance.Thresholds{}, fmt.Errorf("guidance config %s: %w", path, err)
	}
	return file.Thresholds, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
