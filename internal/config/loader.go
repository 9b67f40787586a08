package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MINTD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MINTD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setBool(&cfg.Server.Enabled, "MINTD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MINTD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MINTD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MINTD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "MINTD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "MINTD_SERVER_RATE_WINDOW")

	// ── Database ──
	setStr(&cfg.Database.DSN, "MINTD_DATABASE_DSN")
	setStr(&cfg.Database.Host, "MINTD_DATABASE_HOST")
	setInt(&cfg.Database.Port, "MINTD_DATABASE_PORT")
	setStr(&cfg.Database.Database, "MINTD_DATABASE_NAME")
	setStr(&cfg.Database.User, "MINTD_DATABASE_USER")
	setStr(&cfg.Database.Password, "MINTD_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "MINTD_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "MINTD_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "MINTD_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "MINTD_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MINTD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MINTD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MINTD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MINTD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MINTD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MINTD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MINTD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MINTD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MINTD_S3_REGION")
	setStr(&cfg.S3.Bucket, "MINTD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MINTD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MINTD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MINTD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MINTD_S3_FORCE_PATH_STYLE")

	// ── Ledger ──
	setStr(&cfg.Ledger.BaseURL, "MINTD_LEDGER_BASE_URL")
	setStr(&cfg.Ledger.APIKey, "MINTD_LEDGER_API_KEY")
	setStr(&cfg.Ledger.APISecret, "MINTD_LEDGER_API_SECRET")

	// ── Catalog ──
	setStr(&cfg.Catalog.BaseURL, "MINTD_CATALOG_BASE_URL")
	setStr(&cfg.Catalog.APIKey, "MINTD_CATALOG_API_KEY")
	setStr(&cfg.Catalog.APISecret, "MINTD_CATALOG_API_SECRET")

	// ── Marketplace ──
	setFloat64(&cfg.Marketplace.PlatformPercent, "MINTD_MARKETPLACE_PLATFORM_PERCENT")

	// ── Sweep ──
	setDuration(&cfg.Sweep.Interval, "MINTD_SWEEP_INTERVAL")
	setInt(&cfg.Sweep.Batch, "MINTD_SWEEP_BATCH")
	setDuration(&cfg.Sweep.ArchiveInterval, "MINTD_SWEEP_ARCHIVE_INTERVAL")
	setInt(&cfg.Sweep.RetentionDays, "MINTD_SWEEP_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MINTD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MINTD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MINTD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MINTD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MINTD_MODE")
	setStr(&cfg.LogLevel, "MINTD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
