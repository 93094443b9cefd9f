package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderIDs is the closed set of offerwall networks this build knows how to
// talk to. The registry instantiates adapters for this set only.
var ProviderIDs = []string{"adgem", "cpx", "offertoro", "bitlabs", "ayet", "wannads"}

// ProviderConfig holds one network's credentials and call policy. Which
// fields are required varies by network; the registry decides enablement.
type ProviderConfig struct {
	Enabled  bool
	APIKey   string
	AppID    string
	AppToken string
	Secret   string
	Timeout  time.Duration
}

// S3Config holds S3-compatible storage configuration for backups.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config is the full process configuration, read from EARNWALL_* environment
// variables. Load is a pure read so the provider registry can re-evaluate
// credentials at runtime without a restart.
type Config struct {
	Port      string
	DBPath    string
	BaseURL   string
	LogLevel  string
	LogFormat string

	AdminKey string

	MaxPayoutUSD    float64
	RateLimitPerMin int

	Providers map[string]ProviderConfig

	VAPIDPublicKey  string
	VAPIDPrivateKey string

	BackupS3         S3Config
	BackupInterval   time.Duration
	BackupPassphrase string
}

// Load reads configuration from the environment.
func Load() *Config {
	cfg := &Config{
		Port:      envOr("EARNWALL_PORT", "8080"),
		DBPath:    envOr("EARNWALL_DB_PATH", "earnwall.db"),
		BaseURL:   envOr("EARNWALL_BASE_URL", "http://localhost:8080"),
		LogLevel:  os.Getenv("EARNWALL_LOG_LEVEL"),
		LogFormat: os.Getenv("EARNWALL_LOG_FORMAT"),

		AdminKey: os.Getenv("EARNWALL_ADMIN_KEY"),

		MaxPayoutUSD:    envFloat("EARNWALL_MAX_PAYOUT_USD", 100),
		RateLimitPerMin: envInt("EARNWALL_POSTBACK_RATE_LIMIT", 100),

		VAPIDPublicKey:  os.Getenv("EARNWALL_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("EARNWALL_VAPID_PRIVATE_KEY"),

		BackupS3: S3Config{
			Endpoint:  os.Getenv("EARNWALL_BACKUP_S3_ENDPOINT"),
			Bucket:    os.Getenv("EARNWALL_BACKUP_S3_BUCKET"),
			Region:    envOr("EARNWALL_BACKUP_S3_REGION", "auto"),
			AccessKey: os.Getenv("EARNWALL_BACKUP_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("EARNWALL_BACKUP_S3_SECRET_KEY"),
		},
		BackupInterval:   envDuration("EARNWALL_BACKUP_INTERVAL", 24*time.Hour),
		BackupPassphrase: os.Getenv("EARNWALL_BACKUP_PASSPHRASE"),
	}

	cfg.Providers = make(map[string]ProviderConfig, len(ProviderIDs))
	for _, id := range ProviderIDs {
		prefix := "EARNWALL_" + strings.ToUpper(id) + "_"
		cfg.Providers[id] = ProviderConfig{
			Enabled:  envBool(prefix+"ENABLED", true),
			APIKey:   os.Getenv(prefix + "API_KEY"),
			AppID:    os.Getenv(prefix + "APP_ID"),
			AppToken: os.Getenv(prefix + "APP_TOKEN"),
			Secret:   os.Getenv(prefix + "SECRET"),
			Timeout:  envDuration(prefix+"TIMEOUT", 10*time.Second),
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
