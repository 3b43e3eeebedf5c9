package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv overrides cfg with WARMSTANDBY_* environment variables
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("WARMSTANDBY_PRIMARY_REGION"); v != "" {
		cfg.Regions.Primary = v
	}
	if v := os.Getenv("WARMSTANDBY_SECONDARY_REGION"); v != "" {
		cfg.Regions.Secondary = v
	}
	if v := os.Getenv("WARMSTANDBY_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("WARMSTANDBY_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("WARMSTANDBY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WARMSTANDBY_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("WARMSTANDBY_SNS_TOPIC_ARN"); v != "" {
		cfg.Notify.TopicARN = v
	}
	if v := os.Getenv("WARMSTANDBY_ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("WARMSTANDBY_AWS_ENDPOINT"); v != "" {
		cfg.AWS.Endpoint = v
	}

	// Monitor settings
	if d, ok := envDuration("WARMSTANDBY_CHECK_INTERVAL"); ok {
		cfg.Monitor.CheckInterval = d
	}
	if n, err := strconv.Atoi(os.Getenv("WARMSTANDBY_FAILURE_THRESHOLD")); err == nil {
		cfg.Monitor.FailureThreshold = n
	}
	if b, err := strconv.ParseBool(os.Getenv("WARMSTANDBY_MONITOR_ENABLED")); err == nil {
		cfg.Monitor.Enabled = b
	}
	if d, ok := envDuration("WARMSTANDBY_RUN_TIMEOUT"); ok {
		cfg.Failover.RunTimeout = d
	}

	// Database
	if v := os.Getenv("WARMSTANDBY_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if p, err := strconv.Atoi(os.Getenv("WARMSTANDBY_DB_PORT")); err == nil {
		cfg.Database.Port = p
	}
	if v := os.Getenv("WARMSTANDBY_DB_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("WARMSTANDBY_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("WARMSTANDBY_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
