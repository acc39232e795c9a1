package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the auth service.
// It merges file defaults and environment overrides to support both local and
// deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string

	KafkaBrokers []string
	AuditTopic   string

	JWTPrivateKeyPEM  string
	JWTPublicKeyPEM   string
	JWTKeyID          string
	AllowEphemeralJWT bool

	BcryptCost int

	FailedLoginThreshold     int
	RateLimitWindow          time.Duration
	LockoutDuration          time.Duration
	SessionLifetime          time.Duration
	ClientRevalidateInterval time.Duration

	RevokeSessionsOnRoleChange bool

	LoginThrottlePerMinute int
	LoginThrottleBurst     int

	MaxDBConns int32

	AuditPollInterval time.Duration
	AuditBatchSize    int
	AuditClaimTTL     time.Duration
	AuditMaxRetries   int
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
		AuditTopic   string   `yaml:"audit_topic"`
	} `yaml:"dependencies"`
	Auth struct {
		FailedLoginThreshold       int  `yaml:"failed_login_threshold"`
		RateLimitWindowMinutes     int  `yaml:"rate_limit_window_minutes"`
		AccountLockoutMinutes      int  `yaml:"account_lockout_minutes"`
		SessionLifetimeHours       int  `yaml:"session_lifetime_hours"`
		ClientRevalidateSeconds    int  `yaml:"client_revalidate_seconds"`
		RevokeSessionsOnRoleChange bool `yaml:"revoke_sessions_on_role_change"`
	} `yaml:"auth"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific
// overrides.
func LoadConfig(path string) (Config, error) {
	// Optional .env for local runs; deployed environments set real vars.
	_ = godotenv.Load()

	cfg := Config{
		ServiceID:                "control-consumo-agua-auth",
		HTTPPort:                 8080,
		GRPCPort:                 9090,
		AuditTopic:               "agua.auth.security-events",
		JWTKeyID:                 "agua-auth-key-1",
		AllowEphemeralJWT:        true,
		BcryptCost:               12,
		FailedLoginThreshold:     3,
		RateLimitWindow:          5 * time.Minute,
		LockoutDuration:          15 * time.Minute,
		SessionLifetime:          8 * time.Hour,
		ClientRevalidateInterval: 60 * time.Second,
		LoginThrottlePerMinute:   60,
		LoginThrottleBurst:       10,
		MaxDBConns:               20,
		AuditPollInterval:        2 * time.Second,
		AuditBatchSize:           100,
		AuditClaimTTL:            30 * time.Second,
		AuditMaxRetries:          5,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if len(f.Dependencies.KafkaBrokers) > 0 {
			cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
		}
		if f.Dependencies.AuditTopic != "" {
			cfg.AuditTopic = f.Dependencies.AuditTopic
		}
		if f.Auth.FailedLoginThreshold > 0 {
			cfg.FailedLoginThreshold = f.Auth.FailedLoginThreshold
		}
		if f.Auth.RateLimitWindowMinutes > 0 {
			cfg.RateLimitWindow = time.Duration(f.Auth.RateLimitWindowMinutes) * time.Minute
		}
		if f.Auth.AccountLockoutMinutes > 0 {
			cfg.LockoutDuration = time.Duration(f.Auth.AccountLockoutMinutes) * time.Minute
		}
		if f.Auth.SessionLifetimeHours > 0 {
			cfg.SessionLifetime = time.Duration(f.Auth.SessionLifetimeHours) * time.Hour
		}
		if f.Auth.ClientRevalidateSeconds > 0 {
			cfg.ClientRevalidateInterval = time.Duration(f.Auth.ClientRevalidateSeconds) * time.Second
		}
		cfg.RevokeSessionsOnRoleChange = f.Auth.RevokeSessionsOnRoleChange
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.AuditTopic = envOrDefault("AUDIT_TOPIC", cfg.AuditTopic)
	cfg.JWTPrivateKeyPEM = envOrDefault("JWT_PRIVATE_KEY_PEM", cfg.JWTPrivateKeyPEM)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.JWTKeyID = envOrDefault("JWT_KEY_ID", cfg.JWTKeyID)
	cfg.AllowEphemeralJWT = envBool("JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)
	cfg.FailedLoginThreshold = envInt("FAILED_LOGIN_THRESHOLD", cfg.FailedLoginThreshold)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.RateLimitWindow = time.Duration(envInt("RATE_LIMIT_WINDOW_MINUTES", int(cfg.RateLimitWindow.Minutes()))) * time.Minute
	cfg.LockoutDuration = time.Duration(envInt("ACCOUNT_LOCKOUT_MINUTES", int(cfg.LockoutDuration.Minutes()))) * time.Minute
	cfg.SessionLifetime = time.Duration(envInt("SESSION_LIFETIME_HOURS", int(cfg.SessionLifetime.Hours()))) * time.Hour
	cfg.ClientRevalidateInterval = time.Duration(envInt("CLIENT_REVALIDATE_SECONDS", int(cfg.ClientRevalidateInterval.Seconds()))) * time.Second
	cfg.RevokeSessionsOnRoleChange = envBool("REVOKE_SESSIONS_ON_ROLE_CHANGE", cfg.RevokeSessionsOnRoleChange)
	cfg.LoginThrottlePerMinute = envInt("LOGIN_THROTTLE_PER_MINUTE", cfg.LoginThrottlePerMinute)
	cfg.LoginThrottleBurst = envInt("LOGIN_THROTTLE_BURST", cfg.LoginThrottleBurst)

	cfg.AuditPollInterval = time.Duration(envInt("AUDIT_POLL_SECONDS", int(cfg.AuditPollInterval.Seconds()))) * time.Second
	cfg.AuditBatchSize = envInt("AUDIT_BATCH_SIZE", cfg.AuditBatchSize)
	cfg.AuditClaimTTL = time.Duration(envInt("AUDIT_CLAIM_TTL_SECONDS", int(cfg.AuditClaimTTL.Seconds()))) * time.Second
	cfg.AuditMaxRetries = envInt("AUDIT_MAX_RETRIES", cfg.AuditMaxRetries)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if (cfg.JWTPrivateKeyPEM == "" || cfg.JWTPublicKeyPEM == "") && !cfg.AllowEphemeralJWT {
		return Config{}, fmt.Errorf("missing JWT_PRIVATE_KEY_PEM or JWT_PUBLIC_KEY_PEM")
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
