package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/agentbook/agentbook/internal/chains"
)

// Config holds all configuration for the server
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
	Proxy     ProxyConfig
	Chains    ChainsConfig
	Explorer  ExplorerConfig
	Audit     AuditConfig
	Worker    WorkerConfig
	Metrics   MetricsConfig
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	IdleTimeout    int // seconds
	RequestTimeout int // seconds
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string // "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
	Sources  SourcesConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// SourcesConfig holds source/ABI blob storage settings
type SourcesConfig struct {
	BasePath string // filesystem root for sources/ and abis/
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	Type string // "none" or "api-key"
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

// SecurityConfig holds security filter settings
type SecurityConfig struct {
	FilterEnabled bool
	MaxBodySizeMB int
}

// ProxyConfig holds trusted proxy settings for X-Forwarded-For handling
type ProxyConfig struct {
	TrustProxy     bool
	TrustedProxies []string // CIDR notation
}

// ChainsConfig holds per-chain RPC URL overrides, keyed by chain key.
type ChainsConfig struct {
	RPCOverrides map[string]string
}

// ExplorerConfig holds block explorer verification API settings
type ExplorerConfig struct {
	APIKey         string
	BaseURL        string
	SubmitAttempts int
	PollAttempts   int
	InitialDelay   int // seconds
	MaxDelay       int // seconds
	RequestsPerSec float64
}

// AuditConfig holds the safety classifier settings. An empty APIKey
// disables the audit pass entirely.
type AuditConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// WorkerConfig holds verification worker settings
type WorkerConfig struct {
	Enabled          bool
	IntervalSeconds  int
	BatchSize        int
	MaxRetries       int
	AttemptTimeout   int // seconds, bounds one verification attempt
	MetadataStripMax int // bytes, declared trailer lengths above this are ignored
	SolcPath         string
	SolcVersion      string
	OptimizerRuns    int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8080),
			Host:           getEnv("HOST", "0.0.0.0"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:    getEnvInt("SERVER_IDLE_TIMEOUT", 120),
			RequestTimeout: getEnvInt("SERVER_REQUEST_TIMEOUT", 30),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/agentbook.db"),
			},
			Sources: SourcesConfig{
				BasePath: getEnv("SOURCE_STORAGE_PATH", "./data/sources"),
			},
		},
		Auth: AuthConfig{
			Type: getEnv("AUTH_TYPE", "api-key"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 300),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 50),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
		Security: SecurityConfig{
			FilterEnabled: getEnvBool("SECURITY_FILTER_ENABLED", true),
			MaxBodySizeMB: getEnvInt("SECURITY_MAX_BODY_SIZE_MB", 10),
		},
		Proxy: ProxyConfig{
			TrustProxy:     getEnvBool("TRUST_PROXY", false),
			TrustedProxies: getEnvStringSlice("TRUSTED_PROXIES", []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}),
		},
		Chains: ChainsConfig{
			RPCOverrides: loadRPCOverrides(),
		},
		Explorer: ExplorerConfig{
			APIKey:         getEnv("EXPLORER_API_KEY", ""),
			BaseURL:        getEnv("EXPLORER_API_URL", "https://api.etherscan.io/v2/api"),
			SubmitAttempts: getEnvInt("EXPLORER_SUBMIT_ATTEMPTS", 5),
			PollAttempts:   getEnvInt("EXPLORER_POLL_ATTEMPTS", 5),
			InitialDelay:   getEnvInt("EXPLORER_INITIAL_DELAY", 5),
			MaxDelay:       getEnvInt("EXPLORER_MAX_DELAY", 30),
			RequestsPerSec: getEnvFloat("EXPLORER_REQUESTS_PER_SEC", 2),
		},
		Audit: AuditConfig{
			APIKey:  getEnv("AUDIT_API_KEY", ""),
			BaseURL: getEnv("AUDIT_API_URL", "https://openrouter.ai/api/v1"),
			Model:   getEnv("AUDIT_MODEL", "anthropic/claude-sonnet-4"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Port:    getEnvInt("METRICS_PORT", 9090),
		},
		Worker: WorkerConfig{
			Enabled:          getEnvBool("WORKER_ENABLED", true),
			IntervalSeconds:  getEnvInt("WORKER_INTERVAL_SECONDS", 60),
			BatchSize:        getEnvInt("WORKER_BATCH_SIZE", 10),
			MaxRetries:       getEnvInt("WORKER_MAX_RETRIES", 3),
			AttemptTimeout:   getEnvInt("WORKER_ATTEMPT_TIMEOUT", 30),
			MetadataStripMax: getEnvInt("WORKER_METADATA_STRIP_MAX", 200),
			SolcPath:         getEnv("SOLC_PATH", "solc"),
			SolcVersion:      getEnv("SOLC_VERSION", "v0.8.20+commit.a1b79de6"),
			OptimizerRuns:    getEnvInt("SOLC_OPTIMIZER_RUNS", 200),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	return cfg, nil
}

// loadRPCOverrides reads CHAIN_RPC_<KEY> variables, e.g.
// CHAIN_RPC_BSC_TESTNET=http://localhost:8545 overrides "bsc-testnet".
func loadRPCOverrides() map[string]string {
	overrides := make(map[string]string)
	for _, key := range chains.Keys() {
		envKey := "CHAIN_RPC_" + strings.ReplaceAll(strings.ToUpper(key), "-", "_")
		if url := os.Getenv(envKey); url != "" {
			overrides[key] = url
		}
	}
	return overrides
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
