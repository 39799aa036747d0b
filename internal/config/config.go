package config

import (
	"os"
	"strconv"
	"time"

	cr "github.com/cockroachdb/errors"
	yaml "gopkg.in/yaml.v3"
)

// Credentials signs requests against one of the two platforms.
type Credentials struct {
	AppKey    string `yaml:"appKey"`
	AppSecret string `yaml:"appSecret"`
	BaseURL   string `yaml:"baseURL"`
}

// Retry controls the adapters' shared retry contract. The delay fields are
// parsed from duration strings in Load; yaml cannot decode them directly.
type Retry struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"-"`
	MaxDelay    time.Duration `yaml:"-"`
}

// Config is the full engine configuration surface. Loaded from an optional
// YAML file, then overridden by environment variables.
type Config struct {
	Source   Credentials `yaml:"source"`
	Provider Credentials `yaml:"provider"`

	// SKU mapping table: source SKU -> provider SKU.
	SKUMappings map[string]string `yaml:"skuMappings"`
	// StrictSKUMapping turns an unmapped SKU into a hard transform error
	// instead of a pass-through warning.
	StrictSKUMapping bool `yaml:"strictSkuMapping"`

	DefaultShippingSpeed string   `yaml:"defaultShippingSpeed"`
	FulfillmentPolicy    string   `yaml:"fulfillmentPolicy"`
	NotifyEmails         []string `yaml:"notifyEmails"`

	CacheTTL          time.Duration `yaml:"-"`
	LowStockThreshold int           `yaml:"lowStockThreshold"`
	SafetyStock       int           `yaml:"safetyStock"`
	InventoryChunk    int           `yaml:"inventoryChunk"`

	BatchSize int `yaml:"batchSize"`
	FanOut    int `yaml:"fanOut"`
	PageCap   int `yaml:"pageCap"`

	Retry          Retry         `yaml:"retry"`
	RequestTimeout time.Duration `yaml:"-"`

	SyncInterval     time.Duration `yaml:"-"`
	RatePerMinute    int           `yaml:"ratePerMinute"`
	SmoothingQPS     float64       `yaml:"smoothingQPS"`
	ContinueOnError  *bool         `yaml:"continueOnError"`

	OpsAddr     string `yaml:"opsAddr"`
	DatabaseURL string `yaml:"databaseURL"`
	RedisURL    string `yaml:"redisURL"`
}

// Defaults returns a Config with every tunable at its documented default.
func Defaults() Config {
	t := true
	return Config{
		SKUMappings:          map[string]string{},
		DefaultShippingSpeed: "Standard",
		FulfillmentPolicy:    "FillOrKill",
		CacheTTL:             5 * time.Minute,
		LowStockThreshold:    10,
		SafetyStock:          0,
		InventoryChunk:       50,
		BatchSize:            50,
		FanOut:               5,
		PageCap:              20,
		Retry:                Retry{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second},
		RequestTimeout:       15 * time.Second,
		SyncInterval:         10 * time.Minute,
		RatePerMinute:        60,
		ContinueOnError:      &t,
		OpsAddr:              ":8080",
	}
}

// fileDurations shadows the Config duration fields as strings: yaml.v3 has no
// native time.Duration support, so "90s"-style values are parsed by hand.
type fileDurations struct {
	CacheTTL       string `yaml:"cacheTTL"`
	RequestTimeout string `yaml:"requestTimeout"`
	SyncInterval   string `yaml:"syncInterval"`
	Retry          struct {
		BaseDelay string `yaml:"baseDelay"`
		MaxDelay  string `yaml:"maxDelay"`
	} `yaml:"retry"`
}

// Load reads ENGINE_CONFIG (if set) as YAML over Defaults, then applies env
// overrides. Credentials for both platforms are required.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("ENGINE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, cr.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, cr.Wrap(err, "parse config file")
		}
		var durs fileDurations
		if err := yaml.Unmarshal(data, &durs); err != nil {
			return Config{}, cr.Wrap(err, "parse config file")
		}
		for _, f := range []struct {
			raw string
			dst *time.Duration
		}{
			{durs.CacheTTL, &cfg.CacheTTL},
			{durs.RequestTimeout, &cfg.RequestTimeout},
			{durs.SyncInterval, &cfg.SyncInterval},
			{durs.Retry.BaseDelay, &cfg.Retry.BaseDelay},
			{durs.Retry.MaxDelay, &cfg.Retry.MaxDelay},
		} {
			if f.raw == "" {
				continue
			}
			d, err := time.ParseDuration(f.raw)
			if err != nil {
				return Config{}, cr.Wrapf(err, "parse duration %q", f.raw)
			}
			*f.dst = d
		}
	}
	applyEnv(&cfg)
	if cfg.Source.AppKey == "" || cfg.Source.AppSecret == "" {
		return Config{}, cr.New("source credentials missing (SOURCE_APP_KEY/SOURCE_APP_SECRET)")
	}
	if cfg.Provider.AppKey == "" || cfg.Provider.AppSecret == "" {
		return Config{}, cr.New("provider credentials missing (PROVIDER_APP_KEY/PROVIDER_APP_SECRET)")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Source.AppKey = envOr("SOURCE_APP_KEY", cfg.Source.AppKey)
	cfg.Source.AppSecret = envOr("SOURCE_APP_SECRET", cfg.Source.AppSecret)
	cfg.Source.BaseURL = envOr("SOURCE_BASE_URL", cfg.Source.BaseURL)
	cfg.Provider.AppKey = envOr("PROVIDER_APP_KEY", cfg.Provider.AppKey)
	cfg.Provider.AppSecret = envOr("PROVIDER_APP_SECRET", cfg.Provider.AppSecret)
	cfg.Provider.BaseURL = envOr("PROVIDER_BASE_URL", cfg.Provider.BaseURL)
	cfg.DatabaseURL = envOr("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = envOr("REDIS_URL", cfg.RedisURL)
	cfg.OpsAddr = envOr("OPS_ADDR", cfg.OpsAddr)
	cfg.BatchSize = envInt("BATCH_SIZE", cfg.BatchSize)
	cfg.FanOut = envInt("FAN_OUT", cfg.FanOut)
	cfg.SafetyStock = envInt("SAFETY_STOCK", cfg.SafetyStock)
	cfg.LowStockThreshold = envInt("LOW_STOCK_THRESHOLD", cfg.LowStockThreshold)
	cfg.RatePerMinute = envInt("RATE_PER_MINUTE", cfg.RatePerMinute)
	cfg.Retry.MaxAttempts = envInt("RETRY_MAX_ATTEMPTS", cfg.Retry.MaxAttempts)
	cfg.CacheTTL = envDuration("CACHE_TTL", cfg.CacheTTL)
	cfg.SyncInterval = envDuration("SYNC_INTERVAL", cfg.SyncInterval)
	cfg.RequestTimeout = envDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return d
}

func envDuration(k string, d time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if p, err := time.ParseDuration(v); err == nil && p > 0 {
			return p
		}
	}
	return d
}
