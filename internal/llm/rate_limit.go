package llm

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter keeps requests and estimated tokens inside a sliding window.
// A Retry-After response header pauses it until the advertised time.
type RateLimiter struct {
	window time.Duration
	now    func() time.Time

	mu           sync.Mutex
	maxTokens    int
	maxRequests  int
	log          []reservation // oldest first, all inside the window
	blockedUntil time.Time
}

type reservation struct {
	at     time.Time
	tokens int
}

// RateLimitHeaders names the response headers that advertise the backend's limits
type RateLimitHeaders struct {
	Tokens   string
	Requests string
}

// RateLimitReporter is told when a request starts and stops waiting
type RateLimitReporter func(wait time.Duration, waiting bool)

type rateLimitReporterKey struct{}

// WithRateLimitReporter attaches a reporter to ctx
func WithRateLimitReporter(ctx context.Context, reporter RateLimitReporter) context.Context {
	if reporter == nil {
		return ctx
	}
	return context.WithValue(ctx, rateLimitReporterKey{}, reporter)
}

func reportRateLimit(ctx context.Context, wait time.Duration, waiting bool) {
	if reporter, ok := ctx.Value(rateLimitReporterKey{}).(RateLimitReporter); ok && reporter != nil {
		reporter(wait, waiting)
	}
}

// NewRateLimiter creates a limiter. Zero limits are unmetered.
func NewRateLimiter(window time.Duration, maxTokens, maxRequests int) *RateLimiter {
	return &RateLimiter{
		window:      window,
		now:         time.Now,
		maxTokens:   maxTokens,
		maxRequests: maxRequests,
	}
}

// NewDefaultRateLimiter returns a per-minute limiter for a provider family
func NewDefaultRateLimiter(provider string) *RateLimiter {
	tokens, requests := defaultRateLimits(provider)
	return NewRateLimiter(time.Minute, tokens, requests)
}

// Wait blocks until a request of the given size fits or ctx is done
func (l *RateLimiter) Wait(ctx context.Context, tokens int) error {
	if l == nil {
		return nil
	}
	if tokens < 0 {
		tokens = 0
	}
	for {
		wait := l.reserve(tokens)
		if wait == 0 {
			return nil
		}
		reportRateLimit(ctx, wait, true)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			reportRateLimit(ctx, 0, false)
			return ctx.Err()
		case <-timer.C:
		}
		reportRateLimit(ctx, 0, false)
	}
}

// reserve records the request and returns 0, or returns how long to wait
// before trying again
func (l *RateLimiter) reserve(tokens int) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Before(l.blockedUntil) {
		return l.blockedUntil.Sub(now)
	}

	cutoff := now.Add(-l.window)
	drop := 0
	for drop < len(l.log) && !l.log[drop].at.After(cutoff) {
		drop++
	}
	l.log = l.log[drop:]

	used := 0
	for _, r := range l.log {
		used += r.tokens
	}

	// an oversized request still goes through once the window is empty
	tokensOK := l.maxTokens <= 0 || used+tokens <= l.maxTokens || len(l.log) == 0
	requestsOK := l.maxRequests <= 0 || len(l.log) < l.maxRequests
	if tokensOK && requestsOK {
		l.log = append(l.log, reservation{at: now, tokens: tokens})
		return 0
	}

	// find the oldest entry whose expiry frees enough room
	freedTokens := 0
	for i, r := range l.log {
		freedTokens += r.tokens
		roomForRequest := l.maxRequests <= 0 || len(l.log)-(i+1) < l.maxRequests
		roomForTokens := l.maxTokens <= 0 || used-freedTokens+tokens <= l.maxTokens || i == len(l.log)-1
		if roomForRequest && roomForTokens {
			if wait := r.at.Add(l.window).Sub(now); wait > 0 {
				return wait
			}
			break
		}
	}
	return time.Millisecond
}

// UpdateLimits replaces the window limits; non-positive values keep the current limit
func (l *RateLimiter) UpdateLimits(tokensPerWindow, requestsPerWindow int) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if tokensPerWindow > 0 {
		l.maxTokens = tokensPerWindow
	}
	if requestsPerWindow > 0 {
		l.maxRequests = requestsPerWindow
	}
}

// UpdateFromHeaders applies advertised limits and Retry-After from a response
func (l *RateLimiter) UpdateFromHeaders(headers http.Header, keys RateLimitHeaders) {
	if l == nil || headers == nil {
		return
	}
	tokens, requests := 0, 0
	if keys.Tokens != "" {
		tokens = parseRateLimitHeader(headers.Get(keys.Tokens))
	}
	if keys.Requests != "" {
		requests = parseRateLimitHeader(headers.Get(keys.Requests))
	}
	l.UpdateLimits(tokens, requests)

	if until, ok := parseRetryAfter(headers.Get("Retry-After"), l.now()); ok {
		l.mu.Lock()
		if until.After(l.blockedUntil) {
			l.blockedUntil = until
		}
		l.mu.Unlock()
	}
}

func parseRateLimitHeader(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil && f > 0 {
		return int(f)
	}
	return 0
}

// parseRetryAfter accepts delay seconds or an HTTP date
func parseRetryAfter(value string, now time.Time) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return time.Time{}, false
		}
		return now.Add(time.Duration(secs * float64(time.Second))), true
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at, true
	}
	return time.Time{}, false
}

func defaultRateLimits(provider string) (tokensPerMinute, requestsPerMinute int) {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		return 200000, 500
	case ProviderOllama:
		return 0, 0
	default:
		return 50000, 60
	}
}
