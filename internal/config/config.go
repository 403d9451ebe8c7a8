package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrSnakeDoc/bountyboard/internal/domain"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s
	RequestTimeout  time.Duration // per-request timeout of non-streaming routes

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Upstream API
	APIURL       string        // base URL of the bounty API (ex: https://community.example.com)
	FixtureFile  string        // YAML fixture served instead of APIURL when set
	PageSize     int           // page length requested from the API (default: 20)
	FetchTimeout time.Duration // bound of one page fetch
	RequestRate  float64       // outgoing requests per second, 0 = unlimited
	RequestBurst int           // outgoing burst size

	// Session
	PollInterval time.Duration // challenge polling period (default: 2s)
	LoginTimeout time.Duration // give up on a challenge after this long (default: 5m)
	AliasLength  int           // pubkey prefix length used as display alias (default: 7)
	LoginURLBase string        // LNURL-auth endpoint the challenge is appended to (optional)
	LoginBurst   int           // login attempts allowed at once per client IP
	LoginPerMin  int           // login attempts refilled per minute per client IP

	// Background workers
	RefreshInterval time.Duration  // interval to refresh loaded scopes (default: 1m)
	EvictAfter      time.Duration  // undo window of a deleted bounty (default: 10m)
	EvictInterval   time.Duration  // interval of the eviction sweep (default: 1m)
	WatchScopes     []domain.Scope // scopes loaded on start (default: global)

	// Redis (optional, empty address = no cache, no payment feed)
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts
	CacheTTL            time.Duration // TTL of cached pages (default: 30s)
	PaymentsChannel     string        // pub/sub channel of settlement events

	AllowedOrigins []string // CORS origins of the rendering layer, empty = any
	AllowedCIDRS   []string // optional, restrict readyz/metrics to specific IPs (e.g. "10.0.0.0/8, 127.0.0.1")
	TrustProxy     bool     // true => trust X-Forwarded-For headers
}

// Load reads the configuration from the environment, after merging the
// optional dotenv file named by BOUNTY_ENV_FILE (default ".env"). Variables
// already set in the environment win over the file.
func Load() *Config {
	if err := loadDotEnv(getenv("BOUNTY_ENV_FILE", ".env")); err != nil {
		panic(fmt.Sprintf("❌ FATAL: %v", err))
	}

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("BOUNTY_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("BOUNTY_SHUTDOWN_TIMEOUT", 5*time.Second),
		RequestTimeout:  mustDuration("BOUNTY_REQUEST_TIMEOUT", 20*time.Second),

		// Logging
		LogLevel:  getenv("BOUNTY_LOG_LEVEL", "info"),
		PrettyLog: mustBool("BOUNTY_PRETTY_LOG", true),

		// Upstream
		FixtureFile:  getenv("BOUNTY_FIXTURE_FILE", ""),
		PageSize:     getenvInt("BOUNTY_PAGE_SIZE", 20),
		FetchTimeout: mustDuration("BOUNTY_FETCH_TIMEOUT", 15*time.Second),
		RequestRate:  getenvFloat("BOUNTY_REQUEST_RATE", 10),
		RequestBurst: getenvInt("BOUNTY_REQUEST_BURST", 20),

		// Session
		PollInterval: mustDuration("BOUNTY_POLL_INTERVAL", 2*time.Second),
		LoginTimeout: mustDuration("BOUNTY_LOGIN_TIMEOUT", 5*time.Minute),
		AliasLength:  getenvInt("BOUNTY_ALIAS_LENGTH", 7),
		LoginURLBase: getenv("BOUNTY_LOGIN_URL_BASE", ""),
		LoginBurst:   getenvInt("BOUNTY_LOGIN_BURST", 5),
		LoginPerMin:  getenvInt("BOUNTY_LOGIN_PER_MIN", 10),

		// Workers
		RefreshInterval: mustDuration("BOUNTY_REFRESH_INTERVAL", time.Minute),
		EvictAfter:      mustDuration("BOUNTY_EVICT_AFTER", 10*time.Minute),
		EvictInterval:   mustDuration("BOUNTY_EVICT_INTERVAL", time.Minute),
		WatchScopes:     mustScopes("BOUNTY_WATCH_SCOPES", "global"),

		// Redis settings
		RedisAddr:           getenv("BOUNTY_REDIS_ADDR", ""),
		RedisUser:           getenv("BOUNTY_REDIS_USERNAME", ""),
		RedisPassword:       getenv("BOUNTY_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("BOUNTY_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),
		CacheTTL:            mustDuration("BOUNTY_CACHE_TTL", 30*time.Second),
		PaymentsChannel:     getenv("BOUNTY_PAYMENTS_CHANNEL", "bounty:payments"),

		// Access restrictions
		AllowedOrigins: splitAndTrim(getenv("BOUNTY_ALLOWED_ORIGINS", "")),
		AllowedCIDRS:   splitAndTrim(getenv("BOUNTY_ALLOWED_CIDRS", "")),
		TrustProxy:     mustBool("BOUNTY_TRUST_PROXY", false),
	}

	// The fixture file replaces the upstream API entirely.
	if cfg.FixtureFile == "" {
		cfg.APIURL = strings.TrimRight(requireEnv("BOUNTY_API_URL"), "/")
	} else {
		cfg.APIURL = strings.TrimRight(getenv("BOUNTY_API_URL", ""), "/")
	}

	if cfg.PageSize < 1 {
		panic(fmt.Sprintf("❌ FATAL: BOUNTY_PAGE_SIZE must be positive, got %d", cfg.PageSize))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		if cfg.RedisPassword != "" {
			cfgCopy.RedisPassword = "***REDACTED***"
		}
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// loadDotEnv merges path into the environment without overriding it. A
// missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			return f
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// mustScopes parses a comma separated scope list. A malformed scope is a
// configuration error.
func mustScopes(key, def string) []domain.Scope {
	var scopes []domain.Scope
	for _, raw := range splitAndTrim(getenv(key, def)) {
		s, err := domain.ParseScope(raw)
		if err != nil {
			panic(fmt.Sprintf("❌ FATAL: Invalid scope in %s: %v", key, err))
		}
		scopes = append(scopes, s)
	}
	return scopes
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
