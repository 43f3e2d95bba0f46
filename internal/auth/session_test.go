package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"seller-market/internal/api"
	"seller-market/internal/broker/brokertest"
	"seller-market/internal/cache"
	"seller-market/internal/types"
)

var creds = types.Credentials{Username: "4580090306", Password: "pw", BrokerCode: "gs"}

type recordedSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordedSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func rejection(status int, body string) error {
	return &api.HTTPError{StatusCode: status, Body: []byte(body)}
}

func newSession(fb *brokertest.Fake, dec *brokertest.Decoder, retries int, sl *recordedSleep) (*Session, *cache.MemoryStore) {
	store := cache.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.MaxCaptchaAttempts = retries
	return NewSession(creds, fb, dec, store, cfg, WithSleep(sl.sleep)), store
}

func TestCaptchaRetrySucceedsOnThirdAttempt(t *testing.T) {
	fb := brokertest.New("gs")
	logins := 0
	fb.LoginFn = func(ctx context.Context, req types.LoginRequest) (string, error) {
		logins++
		if logins < 3 {
			return "", rejection(http.StatusBadRequest, `{"message":"Captcha is invalid"}`)
		}
		return "jwt-3", nil
	}
	sl := &recordedSleep{}
	s, store := newSession(fb, &brokertest.Decoder{}, 3, sl)

	tok, err := s.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "jwt-3" {
		t.Errorf("token = %q", tok)
	}
	if s.State() != StateReady {
		t.Errorf("state = %s", s.State())
	}
	if fb.Calls("FetchCaptcha") != 3 || fb.Calls("Login") != 3 {
		t.Errorf("captcha=%d login=%d", fb.Calls("FetchCaptcha"), fb.Calls("Login"))
	}
	if len(sl.waits) != 3 || sl.waits[0] != time.Second {
		t.Errorf("expected a 1s delay before each captcha fetch, got %v", sl.waits)
	}

	cached, ok := cache.GetJSON[types.SessionToken](context.Background(), store, types.CategoryToken, cache.Key("4580090306", "gs"))
	if !ok || cached.Value != "jwt-3" || cached.ValidFor != time.Hour {
		t.Errorf("token not cached: %+v %v", cached, ok)
	}
}

func TestInvalidCredentialsFailWithoutRetry(t *testing.T) {
	fb := brokertest.New("gs")
	fb.LoginFn = func(ctx context.Context, req types.LoginRequest) (string, error) {
		return "", rejection(http.StatusUnauthorized, `{"code":"401","message":"invalid username or password"}`)
	}
	s, _ := newSession(fb, &brokertest.Decoder{}, 5, &recordedSleep{})

	_, err := s.Token(context.Background())
	var ae *types.AuthenticationError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
	if ae.Step != types.StepAuth || ae.Attempts != 1 {
		t.Errorf("unexpected error %+v", ae)
	}
	if fb.Calls("Login") != 1 {
		t.Errorf("credentials rejection must not retry, logins = %d", fb.Calls("Login"))
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s", s.State())
	}
	if !types.IsTerminal(err) {
		t.Error("authentication failure must be terminal")
	}
}

func TestCredentialsRejectionWithCaptchaFieldIsNotRetried(t *testing.T) {
	fb := brokertest.New("gs")
	fb.LoginFn = func(ctx context.Context, req types.LoginRequest) (string, error) {
		return "", rejection(http.StatusBadRequest,
			`{"code":"InvalidCredentials","message":"Username or password is wrong","captchaRequired":true}`)
	}
	s, _ := newSession(fb, &brokertest.Decoder{}, 5, &recordedSleep{})

	_, err := s.Token(context.Background())
	var ae *types.AuthenticationError
	if !errors.As(err, &ae) || ae.Step != types.StepAuth || ae.Attempts != 1 {
		t.Fatalf("expected auth failure on the first attempt, got %v", err)
	}
	if errors.Is(err, types.ErrCaptchaRejected) {
		t.Error("credentials rejection reported as captcha rejection")
	}
	if fb.Calls("Login") != 1 {
		t.Errorf("logins = %d, want 1", fb.Calls("Login"))
	}
}

func TestCaptchaCeilingExhausted(t *testing.T) {
	fb := brokertest.New("gs")
	fb.LoginFn = func(ctx context.Context, req types.LoginRequest) (string, error) {
		return "", rejection(http.StatusBadRequest, `{"message":"wrong captcha"}`)
	}
	s, _ := newSession(fb, &brokertest.Decoder{}, 4, &recordedSleep{})

	_, err := s.Token(context.Background())
	var ae *types.AuthenticationError
	if !errors.As(err, &ae) || ae.Attempts != 4 || ae.Step != types.StepCaptcha {
		t.Fatalf("unexpected error %v", err)
	}
	if !errors.Is(err, types.ErrCaptchaRejected) {
		t.Error("exhausted ceiling should wrap ErrCaptchaRejected")
	}
	if fb.Calls("Login") != 4 {
		t.Errorf("logins = %d", fb.Calls("Login"))
	}
}

func TestEmptyOCRReadIsRetriedWithoutLogin(t *testing.T) {
	fb := brokertest.New("gs")
	dec := &brokertest.Decoder{Answers: []string{"", "  ", "777"}}
	s, _ := newSession(fb, dec, 3, &recordedSleep{})

	if _, err := s.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if fb.Calls("Login") != 1 {
		t.Errorf("empty reads must not reach login, logins = %d", fb.Calls("Login"))
	}
	if got := fb.Logins()[0].CaptchaValue; got != "777" {
		t.Errorf("captcha value = %q", got)
	}
}

func TestCaptchaFetchFailureIsTerminal(t *testing.T) {
	fb := brokertest.New("gs")
	fb.CaptchaFn = func(ctx context.Context) (types.Captcha, error) {
		return types.Captcha{}, errors.New("connection refused")
	}
	s, _ := newSession(fb, &brokertest.Decoder{}, 5, &recordedSleep{})

	_, err := s.Token(context.Background())
	var ae *types.AuthenticationError
	if !errors.As(err, &ae) || ae.Step != types.StepCaptcha {
		t.Fatalf("unexpected error %v", err)
	}
	if fb.Calls("FetchCaptcha") != 1 {
		t.Errorf("fetch failures must not retry")
	}
}

func TestCachedTokenSkipsLogin(t *testing.T) {
	fb := brokertest.New("gs")
	s, store := newSession(fb, &brokertest.Decoder{}, 3, &recordedSleep{})
	cache.PutJSON(context.Background(), store, types.CategoryToken, cache.Key("4580090306", "gs"),
		types.SessionToken{Value: "cached", IssuedAt: time.Now(), ValidFor: time.Hour})

	tok, err := s.Token(context.Background())
	if err != nil || tok != "cached" {
		t.Fatalf("Token = %q, %v", tok, err)
	}
	if fb.Calls("FetchCaptcha") != 0 {
		t.Error("fresh cached token must not trigger captcha")
	}
	if s.State() != StateReady {
		t.Errorf("state = %s", s.State())
	}
}

func TestStaleTokenTriggersLogin(t *testing.T) {
	fb := brokertest.New("gs")
	now := time.Date(2025, 3, 1, 8, 44, 0, 0, time.UTC)
	store := cache.NewMemoryStore()
	s := NewSession(creds, fb, &brokertest.Decoder{}, store, DefaultConfig(),
		WithSleep((&recordedSleep{}).sleep), WithClock(func() time.Time { return now }))
	cache.PutJSON(context.Background(), store, types.CategoryToken, cache.Key("4580090306", "gs"),
		types.SessionToken{Value: "old", IssuedAt: now.Add(-2 * time.Hour), ValidFor: time.Hour})

	tok, err := s.Token(context.Background())
	if err != nil || tok != "token" {
		t.Fatalf("Token = %q, %v", tok, err)
	}
	if fb.Calls("Login") != 1 {
		t.Errorf("stale token must trigger login")
	}
}

func TestInvalidateForcesLogin(t *testing.T) {
	fb := brokertest.New("gs")
	s, _ := newSession(fb, &brokertest.Decoder{}, 3, &recordedSleep{})
	ctx := context.Background()
	if _, err := s.Token(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Token(ctx); err != nil {
		t.Fatal(err)
	}
	if fb.Calls("Login") != 1 {
		t.Fatalf("second call should reuse cached token")
	}
	s.Invalidate(ctx)
	if _, err := s.Token(ctx); err != nil {
		t.Fatal(err)
	}
	if fb.Calls("Login") != 2 {
		t.Errorf("invalidate should force a new login")
	}
}

func TestCancelledContextStopsLogin(t *testing.T) {
	fb := brokertest.New("gs")
	store := cache.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.CaptchaDelay = time.Hour
	s := NewSession(creds, fb, &brokertest.Decoder{}, store, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Token(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if fb.Calls("FetchCaptcha") != 0 {
		t.Error("captcha fetched despite cancelled delay")
	}
}
