package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"seller-market/internal/types"
)

// Duration accepts either a Go duration string ("1s", "250ms") or a number
// of seconds in yaml.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if parsed, err := time.ParseDuration(s); err == nil {
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := node.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type AccountConfig struct {
	Name         string `yaml:"name"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordEnv  string `yaml:"password_env"`
	Broker       string `yaml:"broker"`
	ISIN         string `yaml:"isin"`
	Side         int    `yaml:"side"`
	SerialNumber int64  `yaml:"serial_number"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type CacheConfig struct {
	Backend    string      `yaml:"backend"`
	Dir        string      `yaml:"dir"`
	SQLitePath string      `yaml:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis"`
}

// Persistent reports whether entries outlive the process. The memory
// backend does not, so warmup and cache inspection refuse it.
func (c CacheConfig) Persistent() bool { return c.Backend != "memory" && c.Backend != "" }

// RequirePersistent fails for backends whose entries vanish with the process.
func (c CacheConfig) RequirePersistent() error {
	if !c.Persistent() {
		return fmt.Errorf("cache.backend %q is not shared between processes; use file, sqlite or redis", c.Backend)
	}
	return nil
}

type Config struct {
	Mode    string `yaml:"mode"`
	Session struct {
		RunDuration     Duration `yaml:"run_duration"`
		AttemptInterval Duration `yaml:"attempt_interval"`
		MaxAttempts     int      `yaml:"max_attempts"`
	} `yaml:"session"`
	HTTP struct {
		Timeout Duration `yaml:"timeout"`
	} `yaml:"http"`
	Auth struct {
		CaptchaRetries int      `yaml:"captcha_retries"`
		CaptchaDelay   Duration `yaml:"captcha_delay"`
		IdentityRPS    float64  `yaml:"identity_rps"`
		CaptchaMarkers []string `yaml:"captcha_error_markers"`
	} `yaml:"auth"`
	OCR struct {
		URL     string   `yaml:"url"`
		Path    string   `yaml:"path"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"ocr"`
	Cache   CacheConfig `yaml:"cache"`
	Results struct {
		Dir      string `yaml:"dir"`
		Timezone string `yaml:"timezone"`
		// CompressAfterDays gzips submission logs older than this many days; 0 keeps them as is.
		CompressAfterDays int `yaml:"compress_after_days"`
	} `yaml:"results"`
	Brokers  map[string]string `yaml:"brokers"`
	Accounts []AccountConfig   `yaml:"accounts"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	switch c.Cache.Backend {
	case "memory", "file", "sqlite", "redis":
	default:
		return fmt.Errorf("cache.backend must be 'memory', 'file', 'sqlite' or 'redis', got '%s'", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return errors.New("cache.redis.addr is required for the redis backend")
	}
	if c.Session.MaxAttempts < 1 {
		return fmt.Errorf("session.max_attempts must be at least 1, got %d", c.Session.MaxAttempts)
	}
	if c.Auth.CaptchaRetries < 1 {
		return fmt.Errorf("auth.captcha_retries must be at least 1, got %d", c.Auth.CaptchaRetries)
	}
	if len(c.Accounts) == 0 {
		return errors.New("accounts cannot be empty")
	}
	for i, a := range c.Accounts {
		if a.Username == "" || types.NormalizeBrokerCode(a.Broker) == "" || a.ISIN == "" {
			return fmt.Errorf("accounts[%d]: username, broker and isin are required", i)
		}
		if !types.Side(a.Side).Valid() {
			return fmt.Errorf("accounts[%d]: side must be 1 (buy) or 2 (sell), got %d", i, a.Side)
		}
		if a.SerialNumber < 0 {
			return fmt.Errorf("accounts[%d]: serial_number cannot be negative", i)
		}
	}
	return nil
}

// DryRun reports whether orders are built but not sent.
func (c *Config) DryRun() bool { return c.Mode == "DRY_RUN" }

// AccountContexts resolves passwords and converts the account list.
func (c *Config) AccountContexts() ([]types.AccountContext, error) {
	out := make([]types.AccountContext, 0, len(c.Accounts))
	for i, a := range c.Accounts {
		pw := a.Password
		if a.PasswordEnv != "" {
			pw = os.Getenv(a.PasswordEnv)
		}
		if pw == "" {
			return nil, fmt.Errorf("accounts[%d] (%s): no password configured", i, a.Username)
		}
		code := types.NormalizeBrokerCode(a.Broker)
		name := a.Name
		if name == "" {
			name = a.Username + "@" + code
		}
		out = append(out, types.AccountContext{
			Name: name,
			Credentials: types.Credentials{
				Username:   a.Username,
				Password:   pw,
				BrokerCode: code,
			},
			ISIN:         a.ISIN,
			Side:         types.Side(a.Side),
			SerialNumber: a.SerialNumber,
		})
	}
	return out, nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// ParseConfig applies defaults and environment overrides to raw yaml.
func ParseConfig(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	applyEnv(&c)
	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("OCR_SERVICE_URL"); v != "" {
		c.OCR.URL = v
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("RESULTS_DIR"); v != "" {
		c.Results.Dir = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		c.Mode = strings.ToUpper(v)
	}
}

func applyDefaults(c *Config) {
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.Session.RunDuration == 0 {
		c.Session.RunDuration = Duration(2 * time.Minute)
	}
	if c.Session.AttemptInterval == 0 {
		c.Session.AttemptInterval = Duration(200 * time.Millisecond)
	}
	if c.Session.MaxAttempts == 0 {
		c.Session.MaxAttempts = 1
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = Duration(30 * time.Second)
	}
	if c.Auth.CaptchaRetries == 0 {
		c.Auth.CaptchaRetries = 5
	}
	if c.Auth.CaptchaDelay == 0 {
		c.Auth.CaptchaDelay = Duration(time.Second)
	}
	if c.Auth.IdentityRPS == 0 {
		c.Auth.IdentityRPS = 2
	}
	if len(c.Auth.CaptchaMarkers) == 0 {
		c.Auth.CaptchaMarkers = []string{"captcha"}
	}
	if c.OCR.URL == "" {
		c.OCR.URL = "http://localhost:8080"
	}
	if c.OCR.Path == "" {
		c.OCR.Path = "/ocr/captcha-easy-base64"
	}
	if c.OCR.Timeout == 0 {
		c.OCR.Timeout = Duration(10 * time.Second)
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "file"
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = ".cache"
	}
	if c.Cache.SQLitePath == "" {
		c.Cache.SQLitePath = ".cache/cache.db"
	}
	if c.Cache.Redis.KeyPrefix == "" {
		c.Cache.Redis.KeyPrefix = "sellermarket"
	}
	if c.Results.Dir == "" {
		c.Results.Dir = "order_results"
	}
	if c.Results.Timezone == "" {
		c.Results.Timezone = "Asia/Tehran"
	}
}
