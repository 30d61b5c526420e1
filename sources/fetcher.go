package sources

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BaSui01/stategraph/internal/ctxkeys"
	"github.com/BaSui01/stategraph/internal/retry"
	"github.com/BaSui01/stategraph/internal/tlsutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// ErrNoData reports a well-formed response that carries nothing usable.
var ErrNoData = errors.New("no data")

// FetchError describes a failed REST call.
type FetchError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed.
func (e *FetchError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Cache stores raw response bodies. internal/cache.Manager satisfies it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Observer receives one callback per logical fetch.
type Observer interface {
	ObserveFetch(source, outcome string, d time.Duration)
}

// Fetch outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeCached  = "cached"
)

// FetcherConfig tunes the shared HTTP plumbing.
type FetcherConfig struct {
	Timeout       time.Duration      `yaml:"timeout" json:"timeout"`
	RatePerSecond float64            `yaml:"rate_per_second" json:"rate_per_second"`
	Burst         int                `yaml:"burst" json:"burst"`
	CacheTTL      time.Duration      `yaml:"cache_ttl" json:"cache_ttl"`
	Retry         *retry.RetryPolicy `yaml:"-" json:"-"`
}

// DefaultFetcherConfig returns conservative defaults for free-tier APIs.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Timeout:       10 * time.Second,
		RatePerSecond: 5,
		Burst:         5,
		CacheTTL:      10 * time.Minute,
		Retry: &retry.RetryPolicy{
			MaxRetries:   2,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     3 * time.Second,
			Multiplier:   2,
			Jitter:       true,
		},
	}
}

// Fetcher performs rate-limited, deduplicated, optionally cached JSON GETs.
type Fetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	group    singleflight.Group
	retryer  retry.Retryer
	cache    Cache
	cacheTTL time.Duration
	observer Observer
	logger   *zap.Logger
}

// FetcherOption customises a Fetcher.
type FetcherOption func(*Fetcher)

// WithCache enables response caching.
func WithCache(c Cache) FetcherOption {
	return func(f *Fetcher) { f.cache = c }
}

// WithObserver attaches a fetch observer.
func WithObserver(o Observer) FetcherOption {
	return func(f *Fetcher) { f.observer = o }
}

// WithHTTPClient replaces the hardened default client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher builds a Fetcher.
func NewFetcher(cfg FetcherConfig, opts ...FetcherOption) *Fetcher {
	def := DefaultFetcherConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.Retry == nil {
		cfg.Retry = def.Retry
	}

	f := &Fetcher{
		client:   tlsutil.SecureHTTPClient(cfg.Timeout),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		cacheTTL: cfg.CacheTTL,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(zap.String("component", "fetcher"))

	policy := *cfg.Retry
	policy.ShouldRetry = func(err error) bool {
		var fe *FetchError
		return errors.As(err, &fe) && fe.Retryable()
	}
	f.retryer = retry.NewBackoffRetryer(&policy, f.logger)
	return f
}

// GetJSON fetches url and decodes the JSON body into out. Concurrent calls
// for the same url share one request. The url is never logged because it may
// carry an API key.
func (f *Fetcher) GetJSON(ctx context.Context, source, url string, out any) error {
	start := time.Now()
	key := "sources:" + source + ":" + hashURL(url)

	body, cached, err := f.body(ctx, source, key, url)
	if err != nil {
		f.observe(source, OutcomeError, start)
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		f.observe(source, OutcomeError, start)
		return &FetchError{Source: source, Err: fmt.Errorf("decode: %w", err)}
	}
	if cached {
		f.observe(source, OutcomeCached, start)
	} else {
		f.observe(source, OutcomeSuccess, start)
	}
	return nil
}

func (f *Fetcher) body(ctx context.Context, source, key, url string) (json.RawMessage, bool, error) {
	if f.cache != nil {
		var raw json.RawMessage
		if err := f.cache.GetJSON(ctx, key, &raw); err == nil {
			return raw, true, nil
		}
	}

	v, err, shared := f.group.Do(key, func() (any, error) {
		return retry.DoWithResultTyped(f.retryer, ctx, func() (json.RawMessage, error) {
			return f.get(ctx, source, url)
		})
	})
	if err != nil {
		f.logger.Warn("fetch failed", append(ctxkeys.LogFields(ctx), zap.String("source", source), zap.Error(err))...)
		return nil, false, err
	}
	raw := v.(json.RawMessage)

	if f.cache != nil && !shared {
		if err := f.cache.SetJSON(ctx, key, raw, f.cacheTTL); err != nil {
			f.logger.Warn("failed to cache response", zap.String("source", source), zap.Error(err))
		}
	}
	return raw, false, nil
}

func (f *Fetcher) get(ctx context.Context, source, url string) (json.RawMessage, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, retry.Permanent(&FetchError{Source: source, Err: err})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(&FetchError{Source: source, Err: err})
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Permanent(&FetchError{Source: source, Err: ctx.Err()})
		}
		return nil, &FetchError{Source: source, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, &FetchError{Source: source, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	if !json.Valid(data) {
		return nil, retry.Permanent(&FetchError{Source: source, StatusCode: resp.StatusCode, Err: errors.New("response is not valid JSON")})
	}
	return json.RawMessage(data), nil
}

func (f *Fetcher) observe(source, outcome string, start time.Time) {
	if f.observer != nil {
		f.observer.ObserveFetch(source, outcome, time.Since(start))
	}
}

func hashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:12])
}
