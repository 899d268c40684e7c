// Package config loads and validates UNITARES configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database settings.
	DBBackend     string // "postgres" or "sqlite"
	PostgresURL   string
	SQLitePath    string

	// Audit index settings.
	AuditDBPath        string
	AuditWriteSQLite   bool
	AuditWriteJSONL    bool
	AuditQueryBackend  string // "sqlite" or "jsonl"
	AuditAutoBackfill  bool
	AuditJSONLPath     string

	// Cache / rate limit.
	RedisURL         string
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// LLM (optional, graceful-degrade capability).
	LLMModel string

	// Governance tool mode / operator loop.
	ToolMode               string // "operator_readonly" or "operator_recovery"
	OperatorStuckInterval  time.Duration
	OperatorHealthInterval time.Duration
	OperatorKGInterval     time.Duration
	OperatorEnableRecovery bool
	OperatorForceNew       bool

	// Governance engine thresholds.
	RiskApproveThreshold       float64
	RiskReviseThreshold        float64
	RiskRejectThreshold        float64
	CoherenceWarningThreshold  float64
	CoherenceCriticalThreshold float64
	VoidActiveThreshold        float64
	LoopThreshold              int
	LoopCooldown               time.Duration

	// Session / identity.
	SessionTTL     time.Duration
	OnboardPinTTL  time.Duration

	// Dialectic.
	DialecticStuckThreshold time.Duration
	MaxSynthesisRounds      int

	// Lock / concurrency.
	LockTimeout  time.Duration
	LockMaxRetries int
	LockMaxAge   time.Duration

	// Calibration.
	CalibrationMinSamples     int
	CalibrationMinPerBin      int
	CalibrationErrorThreshold float64
	CalibrationDriftWindow    int
	CalibrationDriftThreshold float64

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// JWT / auth.
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiration     time.Duration

	// Operational.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
// Missing variables use defaults; only malformed values are rejected. A .env
// file in the working directory is loaded first if present (non-fatal: a
// production deployment won't have one and sets real env vars instead).
func Load() (Config, error) {
	_ = godotenv.Load()

	var errs []error
	cfg := Config{
		DBBackend:         envStr("DB_BACKEND", "sqlite"),
		PostgresURL:       envStr("DB_POSTGRES_URL", ""),
		SQLitePath:        envStr("UNITARES_SQLITE_PATH", "unitares.db"),
		AuditDBPath:       envStr("UNITARES_AUDIT_DB_PATH", "unitares_audit.db"),
		AuditQueryBackend: envStr("UNITARES_AUDIT_QUERY_BACKEND", "sqlite"),
		AuditJSONLPath:    envStr("UNITARES_AUDIT_JSONL_PATH", "unitares_audit.jsonl"),
		RedisURL:          envStr("UNITARES_REDIS_URL", ""),
		LLMModel:          envStr("UNITARES_LLM_MODEL", ""),
		ToolMode:          envStr("GOVERNANCE_TOOL_MODE", "operator_readonly"),
		ServiceName:       envStr("OTEL_SERVICE_NAME", "unitares"),
		OTELEndpoint:      envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		LogLevel:          envStr("UNITARES_LOG_LEVEL", "info"),
		JWTPrivateKeyPath: envStr("UNITARES_JWT_PRIVATE_KEY_PATH", ""),
		JWTPublicKeyPath:  envStr("UNITARES_JWT_PUBLIC_KEY_PATH", ""),
	}

	cfg.Port, errs = collectInt(errs, "UNITARES_PORT", 8080)
	cfg.LoopThreshold, errs = collectInt(errs, "UNITARES_LOOP_THRESHOLD", 5)
	cfg.MaxSynthesisRounds, errs = collectInt(errs, "UNITARES_MAX_SYNTHESIS_ROUNDS", 3)
	cfg.LockMaxRetries, errs = collectInt(errs, "UNITARES_LOCK_MAX_RETRIES", 10)
	cfg.CalibrationMinSamples, errs = collectInt(errs, "UNITARES_CALIBRATION_MIN_SAMPLES", 5)
	cfg.CalibrationMinPerBin, errs = collectInt(errs, "UNITARES_CALIBRATION_MIN_PER_BIN", 5)
	cfg.CalibrationDriftWindow, errs = collectInt(errs, "UNITARES_CALIBRATION_DRIFT_WINDOW", 100)
	cfg.RateLimitBurst, errs = collectInt(errs, "UNITARES_RATE_LIMIT_BURST", 20)

	cfg.AuditWriteSQLite, errs = collectBool(errs, "UNITARES_AUDIT_WRITE_SQLITE", true)
	cfg.AuditWriteJSONL, errs = collectBool(errs, "UNITARES_AUDIT_WRITE_JSONL", false)
	cfg.AuditAutoBackfill, errs = collectBool(errs, "UNITARES_AUDIT_AUTO_BACKFILL", false)
	cfg.RateLimitEnabled, errs = collectBool(errs, "UNITARES_RATE_LIMIT_ENABLED", true)
	cfg.OperatorEnableRecovery, errs = collectBool(errs, "OPERATOR_ENABLE_RECOVERY", false)
	cfg.OperatorForceNew, errs = collectBool(errs, "OPERATOR_FORCE_NEW", false)
	cfg.OTELInsecure, errs = collectBool(errs, "OTEL_EXPORTER_OTLP_INSECURE", false)

	cfg.ReadTimeout, errs = collectDuration(errs, "UNITARES_READ_TIMEOUT", 30*time.Second)
	cfg.WriteTimeout, errs = collectDuration(errs, "UNITARES_WRITE_TIMEOUT", 30*time.Second)
	cfg.OperatorStuckInterval, errs = collectDuration(errs, "OPERATOR_STUCK_INTERVAL", 5*time.Minute)
	cfg.OperatorHealthInterval, errs = collectDuration(errs, "OPERATOR_HEALTH_INTERVAL", 1*time.Minute)
	cfg.OperatorKGInterval, errs = collectDuration(errs, "OPERATOR_KG_INTERVAL", 10*time.Minute)
	cfg.LoopCooldown, errs = collectDuration(errs, "UNITARES_LOOP_COOLDOWN", 60*time.Second)
	cfg.SessionTTL, errs = collectDuration(errs, "UNITARES_SESSION_TTL", 24*time.Hour)
	cfg.OnboardPinTTL, errs = collectDuration(errs, "UNITARES_ONBOARD_PIN_TTL", 1800*time.Second)
	cfg.DialecticStuckThreshold, errs = collectDuration(errs, "UNITARES_DIALECTIC_STUCK_THRESHOLD", 2*time.Hour)
	cfg.LockTimeout, errs = collectDuration(errs, "UNITARES_LOCK_TIMEOUT", 5*time.Second)
	cfg.LockMaxAge, errs = collectDuration(errs, "UNITARES_LOCK_MAX_AGE", 300*time.Second)
	cfg.JWTExpiration, errs = collectDuration(errs, "UNITARES_JWT_EXPIRATION", 24*time.Hour)

	cfg.RiskApproveThreshold, errs = collectFloat(errs, "UNITARES_RISK_APPROVE_THRESHOLD", 0.35)
	cfg.RiskReviseThreshold, errs = collectFloat(errs, "UNITARES_RISK_REVISE_THRESHOLD", 0.60)
	cfg.RiskRejectThreshold, errs = collectFloat(errs, "UNITARES_RISK_REJECT_THRESHOLD", 0.85)
	cfg.CoherenceWarningThreshold, errs = collectFloat(errs, "UNITARES_COHERENCE_WARNING_THRESHOLD", 0.45)
	cfg.CoherenceCriticalThreshold, errs = collectFloat(errs, "UNITARES_COHERENCE_CRITICAL_THRESHOLD", 0.25)
	cfg.VoidActiveThreshold, errs = collectFloat(errs, "UNITARES_VOID_ACTIVE_THRESHOLD", 0.15)
	cfg.RateLimitRPS, errs = collectFloat(errs, "UNITARES_RATE_LIMIT_RPS", 5.0)
	cfg.CalibrationErrorThreshold, errs = collectFloat(errs, "UNITARES_CALIBRATION_ERROR_THRESHOLD", 0.15)
	cfg.CalibrationDriftThreshold, errs = collectFloat(errs, "UNITARES_CALIBRATION_DRIFT_THRESHOLD", 0.1)

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and internally consistent.
func (c Config) Validate() error {
	var errs []error

	if c.DBBackend != "postgres" && c.DBBackend != "sqlite" {
		errs = append(errs, fmt.Errorf("config: DB_BACKEND must be \"postgres\" or \"sqlite\", got %q", c.DBBackend))
	}
	if c.DBBackend == "postgres" && c.PostgresURL == "" {
		errs = append(errs, errors.New("config: DB_POSTGRES_URL is required when DB_BACKEND=postgres"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, errors.New("config: UNITARES_PORT must be between 1 and 65535"))
	}
	if !(c.RiskApproveThreshold < c.RiskReviseThreshold && c.RiskReviseThreshold < c.RiskRejectThreshold) {
		errs = append(errs, fmt.Errorf(
			"config: risk thresholds must satisfy approve < revise < reject, got %v < %v < %v",
			c.RiskApproveThreshold, c.RiskReviseThreshold, c.RiskRejectThreshold))
	}
	if c.CoherenceCriticalThreshold > c.CoherenceWarningThreshold {
		errs = append(errs, errors.New("config: coherence critical threshold must be <= warning threshold"))
	}
	if c.LoopThreshold <= 0 {
		errs = append(errs, errors.New("config: UNITARES_LOOP_THRESHOLD must be positive"))
	}
	if c.CalibrationMinSamples <= 0 {
		errs = append(errs, errors.New("config: UNITARES_CALIBRATION_MIN_SAMPLES must be positive"))
	}
	if c.CalibrationDriftWindow <= 0 {
		errs = append(errs, errors.New("config: UNITARES_CALIBRATION_DRIFT_WINDOW must be positive"))
	}
	if c.MaxSynthesisRounds <= 0 {
		errs = append(errs, errors.New("config: UNITARES_MAX_SYNTHESIS_ROUNDS must be positive"))
	}

	return errors.Join(errs...)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func collectInt(errs []error, key string, fallback int) (int, []error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s=%q is not a valid integer", key, v))
	}
	return n, errs
}

func collectBool(errs []error, key string, fallback bool) (bool, []error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, errs
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, append(errs, fmt.Errorf("%s=%q is not a valid boolean", key, v))
	}
	return b, errs
}

func collectDuration(errs []error, key string, fallback time.Duration) (time.Duration, []error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s=%q is not a valid duration", key, v))
	}
	return d, errs
}

func collectFloat(errs []error, key string, fallback float64) (float64, []error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, errs
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s=%q is not a valid float", key, v))
	}
	return f, errs
}
