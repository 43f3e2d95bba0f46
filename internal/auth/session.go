// Package auth obtains and caches bearer tokens for trading accounts.
//
// A Session walks NEED_TOKEN -> READY when a fresh token is cached, and
// otherwise FETCH_CAPTCHA -> DECODE -> LOGIN_ATTEMPT, looping through
// CAPTCHA_RETRY only while the broker blames the captcha and the attempt
// ceiling is not reached. Every other rejection is terminal.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"seller-market/internal/api"
	"seller-market/internal/cache"
	"seller-market/internal/interfaces"
	"seller-market/internal/logger"
	"seller-market/internal/ratelimit"
	"seller-market/internal/trace"
	"seller-market/internal/types"
)

type State string

const (
	StateNeedToken    State = "NEED_TOKEN"
	StateFetchCaptcha State = "FETCH_CAPTCHA"
	StateDecode       State = "DECODE"
	StateLoginAttempt State = "LOGIN_ATTEMPT"
	StateCaptchaRetry State = "CAPTCHA_RETRY"
	StateReady        State = "READY"
	StateFailed       State = "FAILED"
)

// Config controls the captcha loop.
type Config struct {
	// MaxCaptchaAttempts is the retry ceiling for captcha-attributable rejections.
	MaxCaptchaAttempts int
	// CaptchaDelay is waited before every captcha fetch.
	CaptchaDelay time.Duration
	// CaptchaMarkers are case-insensitive substrings of a rejection that
	// blame the captcha rather than the credentials.
	CaptchaMarkers []string
}

func DefaultConfig() Config {
	return Config{
		MaxCaptchaAttempts: 5,
		CaptchaDelay:       time.Second,
		CaptchaMarkers:     []string{"captcha"},
	}
}

type Option func(*Session)

// WithClock replaces time.Now for token freshness checks.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithSleep replaces the context-aware delay, mostly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Session) { s.sleep = sleep }
}

// WithLimiter throttles identity requests per host.
func WithLimiter(l *ratelimit.MultiLimiter) Option {
	return func(s *Session) { s.limiter = l }
}

// Session owns the token of one account. Token calls are serialized so
// only one login runs per account at a time.
type Session struct {
	creds   types.Credentials
	broker  interfaces.BrokerAPI
	decoder interfaces.CaptchaDecoder
	store   interfaces.CacheStore
	limiter *ratelimit.MultiLimiter
	cfg     Config
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	stateMu  sync.RWMutex
	state    State
	attempts int
}

func NewSession(creds types.Credentials, broker interfaces.BrokerAPI, decoder interfaces.CaptchaDecoder,
	store interfaces.CacheStore, cfg Config, opts ...Option) *Session {
	if cfg.MaxCaptchaAttempts < 1 {
		cfg.MaxCaptchaAttempts = DefaultConfig().MaxCaptchaAttempts
	}
	if len(cfg.CaptchaMarkers) == 0 {
		cfg.CaptchaMarkers = DefaultConfig().CaptchaMarkers
	}
	s := &Session{
		creds:   creds,
		broker:  broker,
		decoder: decoder,
		store:   store,
		cfg:     cfg,
		now:     time.Now,
		sleep:   sleepCtx,
		state:   StateNeedToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// State reports the current position in the login state machine.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Attempts reports how many captcha rounds the last login used.
func (s *Session) Attempts() int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.attempts
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

func (s *Session) cacheKey() string {
	return cache.Key(s.creds.Username, s.creds.BrokerCode)
}

// Cached returns a still-valid cached token without logging in.
func (s *Session) Cached(ctx context.Context) (types.SessionToken, bool) {
	tok, ok := cache.GetJSON[types.SessionToken](ctx, s.store, types.CategoryToken, s.cacheKey())
	if !ok || !tok.ValidAt(s.now()) {
		return types.SessionToken{}, false
	}
	return tok, true
}

// Invalidate drops the cached token so the next Token call logs in again.
func (s *Session) Invalidate(ctx context.Context) error {
	s.setState(StateNeedToken)
	return s.store.Invalidate(ctx, types.CategoryToken, s.cacheKey())
}

// Token returns a valid bearer token, logging in when none is cached.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := trace.StartSpan(ctx, "auth.Token")
	defer span.End()

	s.setState(StateNeedToken)
	if tok, ok := s.Cached(ctx); ok {
		s.setState(StateReady)
		logger.Debug(ctx, "Using cached token", "account", s.creds.Username, "broker", s.creds.BrokerCode)
		return tok.Value, nil
	}
	return s.login(ctx)
}

func (s *Session) login(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxCaptchaAttempts; attempt++ {
		s.stateMu.Lock()
		s.attempts = attempt
		s.stateMu.Unlock()

		logger.Info(ctx, "Login attempt",
			"account", s.creds.Username,
			"broker", s.creds.BrokerCode,
			"attempt", attempt,
			"max_attempts", s.cfg.MaxCaptchaAttempts,
		)

		s.setState(StateFetchCaptcha)
		if err := s.sleep(ctx, s.cfg.CaptchaDelay); err != nil {
			return "", s.fail(types.StepCaptcha, attempt, err)
		}
		if err := s.limiter.Wait(ctx, ratelimit.Host(s.broker.Profile().Endpoints.Captcha)); err != nil {
			return "", s.fail(types.StepCaptcha, attempt, err)
		}
		challenge, err := s.broker.FetchCaptcha(ctx)
		if err != nil {
			return "", s.fail(types.StepCaptcha, attempt, err)
		}

		s.setState(StateDecode)
		answer, err := s.decoder.Decode(ctx, challenge.ImageBase64)
		if err != nil {
			return "", s.fail(types.StepCaptcha, attempt, fmt.Errorf("decoding captcha: %w", err))
		}
		if strings.TrimSpace(answer) == "" {
			lastErr = fmt.Errorf("%w: empty OCR read", types.ErrCaptchaRejected)
			s.retry(ctx, attempt, lastErr)
			continue
		}

		s.setState(StateLoginAttempt)
		if err := s.limiter.Wait(ctx, ratelimit.Host(s.broker.Profile().Endpoints.Login)); err != nil {
			return "", s.fail(types.StepAuth, attempt, err)
		}
		token, err := s.broker.Login(ctx, types.LoginRequest{
			Username:     s.creds.Username,
			Password:     s.creds.Password,
			CaptchaHash:  challenge.Hash,
			CaptchaSalt:  challenge.Salt,
			CaptchaValue: answer,
		})
		if err != nil {
			if reason, ok := s.captchaRejection(err); ok {
				lastErr = fmt.Errorf("%w: %s", types.ErrCaptchaRejected, reason)
				s.retry(ctx, attempt, lastErr)
				continue
			}
			return "", s.fail(types.StepAuth, attempt, err)
		}

		tok := types.SessionToken{Value: token, IssuedAt: s.now(), ValidFor: types.SessionValidity}
		if err := cache.PutJSON(ctx, s.store, types.CategoryToken, s.cacheKey(), tok); err != nil {
			logger.Warn(ctx, "Failed to cache token", "account", s.creds.Username, "broker", s.creds.BrokerCode, "error", err)
		}
		s.setState(StateReady)
		logger.Info(ctx, "Authenticated", "account", s.creds.Username, "broker", s.creds.BrokerCode, "attempts", attempt)
		return token, nil
	}

	return "", s.fail(types.StepCaptcha, s.cfg.MaxCaptchaAttempts, lastErr)
}

func (s *Session) retry(ctx context.Context, attempt int, reason error) {
	s.setState(StateCaptchaRetry)
	logger.Warn(ctx, "Captcha rejected, retrying",
		"account", s.creds.Username,
		"broker", s.creds.BrokerCode,
		"step", types.StepCaptcha,
		"attempt", attempt,
		"error", reason,
	)
}

func (s *Session) fail(step string, attempt int, cause error) error {
	s.setState(StateFailed)
	return &types.AuthenticationError{
		Account:  s.creds.Username,
		Broker:   s.creds.BrokerCode,
		Step:     step,
		Attempts: attempt,
		Cause:    cause,
	}
}

// captchaRejection reports whether a login error blames the captcha. Only
// HTTP rejections qualify and only the broker's code and message are
// matched, so an unrelated body field naming the captcha cannot turn a
// credentials rejection into a retry.
func (s *Session) captchaRejection(err error) (string, bool) {
	var he *api.HTTPError
	if !errors.As(err, &he) {
		return "", false
	}
	code, msg := api.BrokerMessage(he.Body)
	haystack := strings.ToLower(code + " " + msg)
	for _, m := range s.cfg.CaptchaMarkers {
		if m != "" && strings.Contains(haystack, strings.ToLower(m)) {
			return msg, true
		}
	}
	return "", false
}
