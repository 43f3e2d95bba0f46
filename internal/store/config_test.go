package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"seller-market/internal/types"
)

const sampleConfig = `
mode: LIVE
session:
  run_duration: 90s
  max_attempts: 3
auth:
  captcha_delay: 2
accounts:
  - username: "4580090306"
    password_env: TEST_ACCOUNT_PW
    broker: " GS "
    isin: IRO1MHRN0001
    side: 1
  - name: seller
    username: "0012345678"
    password: secret
    broker: bbi
    isin: IRO1FOLD0001
    side: 2
    serial_number: 77
`

func TestLoadConfigDefaultsAndDurations(t *testing.T) {
	t.Setenv("TEST_ACCOUNT_PW", "from-env")
	t.Setenv("CACHE_BACKEND", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Session.RunDuration.Std() != 90*time.Second {
		t.Errorf("run_duration = %v", cfg.Session.RunDuration.Std())
	}
	if cfg.Auth.CaptchaDelay.Std() != 2*time.Second {
		t.Errorf("captcha_delay = %v", cfg.Auth.CaptchaDelay.Std())
	}
	if cfg.Cache.Backend != "file" || !cfg.Cache.Persistent() {
		t.Errorf("cache backend default = %q", cfg.Cache.Backend)
	}
	if cfg.HTTP.Timeout.Std() != 30*time.Second {
		t.Errorf("http timeout default = %v", cfg.HTTP.Timeout.Std())
	}
	if cfg.Auth.CaptchaRetries != 5 {
		t.Errorf("captcha retries default = %d", cfg.Auth.CaptchaRetries)
	}

	accts, err := cfg.AccountContexts()
	if err != nil {
		t.Fatalf("AccountContexts: %v", err)
	}
	if len(accts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accts))
	}
	if accts[0].Credentials.Password != "from-env" {
		t.Errorf("password_env not resolved")
	}
	if accts[0].Credentials.BrokerCode != "gs" || accts[0].Name != "4580090306@gs" {
		t.Errorf("broker code not normalised: %q (%s)", accts[0].Credentials.BrokerCode, accts[0].Name)
	}
	if accts[1].Side != types.SideSell || accts[1].SerialNumber != 77 || accts[1].Name != "seller" {
		t.Errorf("unexpected second account %+v", accts[1])
	}
}

func TestValidateRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"mode":    "mode: PAPER\naccounts: [{username: u, password: p, broker: gs, isin: X, side: 1}]",
		"side":    "accounts: [{username: u, password: p, broker: gs, isin: X, side: 3}]",
		"empty":   "mode: LIVE",
		"backend": "cache: {backend: memcached}\naccounts: [{username: u, password: p, broker: gs, isin: X, side: 1}]",
		"redis":   "cache: {backend: redis}\naccounts: [{username: u, password: p, broker: gs, isin: X, side: 1}]",
	}
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("CACHE_BACKEND", "")
	for name, raw := range cases {
		if _, err := ParseConfig([]byte(raw)); err == nil {
			t.Errorf("%s: expected validation error", name)
		} else if !strings.Contains(err.Error(), "config validation failed") {
			t.Errorf("%s: unexpected error %v", name, err)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OCR_SERVICE_URL", "http://ocr:9000")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("RESULTS_DIR", "/tmp/results")
	cfg, err := ParseConfig([]byte("accounts: [{username: u, password: p, broker: gs, isin: X, side: 1}]"))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.OCR.URL != "http://ocr:9000" || cfg.Cache.Backend != "redis" ||
		cfg.Cache.Redis.Addr != "redis:6379" || cfg.Results.Dir != "/tmp/results" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if !cfg.DryRun() {
		t.Errorf("mode should default to DRY_RUN")
	}
}

func TestAccountContextsMissingPassword(t *testing.T) {
	t.Setenv("MISSING_PW", "")
	cfg, err := ParseConfig([]byte("accounts: [{username: u, password_env: MISSING_PW, broker: gs, isin: X, side: 1}]"))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if _, err := cfg.AccountContexts(); err == nil {
		t.Fatal("expected missing password error")
	}
}

func TestRequirePersistentCache(t *testing.T) {
	for backend, ok := range map[string]bool{"file": true, "sqlite": true, "redis": true, "memory": false, "": false} {
		err := CacheConfig{Backend: backend}.RequirePersistent()
		if (err == nil) != ok {
			t.Errorf("backend %q: RequirePersistent = %v", backend, err)
		}
	}
}
