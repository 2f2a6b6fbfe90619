package infra

import (
	"context"
	"sync"
	"time"

	"chatguard/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// TokenBucket é a alternativa opt-in à janela fixa, baseada em
// golang.org/x/time/rate: para Allow(key, limit) cada chave recebe um bucket
// com taxa limit/janela e burst=limit. Suaviza a rajada de 2x na virada da
// janela, mas não é o comportamento padrão do gateway.
type TokenBucket struct {
	mu           sync.Mutex
	entries      map[string]*bucketEntry
	window       time.Duration
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          domain.Clock
}

type bucketEntry struct {
	lim      *rate.Limiter
	limit    int
	lastSeen time.Time
}

type TokenBucketOption func(*TokenBucket)

func WithIdleTTL(d time.Duration) TokenBucketOption {
	return func(s *TokenBucket) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) TokenBucketOption {
	return func(s *TokenBucket) { s.cleanupEvery = d }
}

func WithBucketClock(c domain.Clock) TokenBucketOption {
	return func(s *TokenBucket) {
		if c != nil {
			s.now = c
		}
	}
}

func NewTokenBucket(window time.Duration, opts ...TokenBucketOption) *TokenBucket {
	if window <= 0 {
		window = time.Minute
	}
	s := &TokenBucket{
		entries:      make(map[string]*bucketEntry),
		window:       window,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenBucket) Window() time.Duration       { return s.window }
func (s *TokenBucket) CleanupEvery() time.Duration { return s.cleanupEvery }
func (s *TokenBucket) IdleTTL() time.Duration      { return s.idleTTL }

// Allow implementa domain.Limiter.
func (s *TokenBucket) Allow(key domain.Key, limit int) bool {
	if limit <= 0 {
		return false
	}
	now := s.now()
	return s.bucket(string(key), limit, now).AllowN(now, 1)
}

func (s *TokenBucket) bucket(key string, limit int, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok && ent.limit == limit {
		ent.lastSeen = now
		return ent.lim
	}

	// rate.Every(0) vira rate.Inf, que desliga o limite
	interval := max(s.window/time.Duration(limit), time.Nanosecond)
	lim := rate.NewLimiter(rate.Every(interval), limit)
	s.entries[key] = &bucketEntry{lim: lim, limit: limit, lastSeen: now}
	return lim
}

func (s *TokenBucket) Reset() {
	s.mu.Lock()
	s.entries = make(map[string]*bucketEntry)
	s.mu.Unlock()
}

func (s *TokenBucket) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup remove chaves sem uso há mais de idleTTL.
func (s *TokenBucket) Cleanup() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *TokenBucket) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

var _ domain.Limiter = (*TokenBucket)(nil)
