package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string
	// Extra proxy CIDRs whose forwarding headers are trusted
	TrustedProxies []string

	// Data tree served under /data/ and scanned by the viewer
	DataDir     string
	DataBaseURL string
	APIBaseURL  string

	// Scanning
	SummaryCandidates []string
	ScanWorkers       int
	FetchTimeout      time.Duration
	FetchRetries      int

	// Rendered summary cache
	RenderCacheSize int
	RenderCacheTTL  time.Duration

	LogLevel string

	// Legal details persistence
	LegalStore         string
	S3Bucket           string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// Submission audit log (disabled when empty)
	SQLiteDBPath string

	// AMQP rescan notifications (disabled when URL is empty)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	// Minimum spacing between rescans triggered by notifications
	RescanMinInterval time.Duration
}

func Load() *Config {
	port := getEnv("PORT", "8080")

	cfg := &Config{
		Port:           port,
		TrustedProxies: getEnvList("TRUSTED_PROXIES", nil),

		DataDir:     getEnv("DATA_DIR", "./data"),
		DataBaseURL: normalizeBaseURL(getEnv("DATA_BASE_URL", "http://localhost:"+port+"/data")),
		APIBaseURL:  normalizeBaseURL(getEnv("API_BASE_URL", "http://localhost:"+port+"/api")),

		SummaryCandidates: getEnvList("SUMMARY_CANDIDATES", []string{"financial_summary.md", "summary.md"}),
		ScanWorkers:       getEnvInt("SCAN_WORKERS", 4),
		FetchTimeout:      getEnvDuration("FETCH_TIMEOUT", 10*time.Second),
		FetchRetries:      getEnvInt("FETCH_RETRIES", 2),

		RenderCacheSize: getEnvInt("RENDER_CACHE_SIZE", 100),
		RenderCacheTTL:  getEnvDuration("RENDER_CACHE_TTL", 10*time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		LegalStore:         getEnv("LEGAL_STORE", "local"),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "report_viewer"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "rescan"),

		RescanMinInterval: getEnvDuration("RESCAN_MIN_INTERVAL", 5*time.Second),
	}

	return cfg
}

// SummariesDir is the on-disk root of the monthly summaries.
func (c *Config) SummariesDir() string {
	return filepath.Join(c.DataDir, "summaries")
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	if c.DataDir == "" {
		errors = append(errors, "data directory cannot be empty")
	}

	for name, raw := range map[string]string{"data base URL": c.DataBaseURL, "API base URL": c.APIBaseURL} {
		if parsedURL, err := url.Parse(raw); err != nil {
			errors = append(errors, fmt.Sprintf("invalid %s '%s': %v", name, raw, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid %s scheme '%s': must be 'http' or 'https'", name, parsedURL.Scheme))
		}
	}

	if len(c.SummaryCandidates) == 0 {
		errors = append(errors, "at least one summary candidate filename is required")
	}

	if c.ScanWorkers < 1 || c.ScanWorkers > 64 {
		errors = append(errors, fmt.Sprintf("invalid scan workers %d: must be between 1 and 64", c.ScanWorkers))
	}
	if c.FetchTimeout < time.Second || c.FetchTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid fetch timeout %v: must be between 1s and 5m", c.FetchTimeout))
	}
	if c.FetchRetries < 0 || c.FetchRetries > 10 {
		errors = append(errors, fmt.Sprintf("invalid fetch retries %d: must be between 0 and 10", c.FetchRetries))
	}
	if c.RenderCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid render cache size %d: must be at least 1", c.RenderCacheSize))
	}
	if c.RenderCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid render cache TTL %v: must be at least 1 second", c.RenderCacheTTL))
	}

	switch c.LegalStore {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			errors = append(errors, "S3 bucket is required when using s3 legal store")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid legal store '%s': must be one of [local s3]", c.LegalStore))
	}

	// Validate SQLite directory if the audit log is enabled
	if c.SQLiteDBPath != "" {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
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
		if c.RescanMinInterval < 0 {
			errors = append(errors, fmt.Sprintf("invalid rescan min interval %v: must not be negative", c.RescanMinInterval))
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// normalizeBaseURL adds a scheme when missing and drops trailing slashes.
func normalizeBaseURL(raw string) string {
	cleaned := strings.TrimRight(strings.TrimSpace(raw), "/")
	if cleaned == "" {
		return cleaned
	}
	if !strings.HasPrefix(cleaned, "http://") && !strings.HasPrefix(cleaned, "https://") {
		return "http://" + cleaned
	}
	return cleaned
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
