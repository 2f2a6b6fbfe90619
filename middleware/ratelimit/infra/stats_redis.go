package infra

import (
	"context"
	"strconv"
	"strings"
	"time"

	"chatguard/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

const (
	BucketMinute = "minute"
	BucketNone   = "none"
)

// RedisStatsStore agrega decisões em hashes do Redis para que várias réplicas
// do gateway compartilhem as mesmas estatísticas. Os contadores do limiter em
// si continuam em memória local.
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total, route e class são cumulativos e não expiram.
	ttl time.Duration

	bucket string

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "chatguard:ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: BucketMinute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// hashIncr é um HINCRBY pendente; expire=0 significa sem TTL.
type hashIncr struct {
	key    string
	field  string
	expire time.Duration
}

// plan calcula os HINCRBY de um evento sem falar com o Redis.
func (s *RedisStatsStore) plan(ev domain.StatsEvent) []hashIncr {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	ops := []hashIncr{{key: s.prefix + ":total", field: field}}

	if s.bucket == BucketMinute {
		ops = append(ops, hashIncr{
			key:    s.prefix + ":minute:" + at.UTC().Format("200601021504"),
			field:  field,
			expire: s.ttl,
		})
	}

	if ev.Class != "" {
		ops = append(ops, hashIncr{key: s.prefix + ":class", field: string(ev.Class) + ":" + field})
	}

	routeField := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path))
	if routeField != "" {
		ops = append(ops, hashIncr{key: s.prefix + ":route", field: routeField + ":" + field})
	}

	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			ops = append(ops, hashIncr{key: s.prefix + ":key:" + k, field: field, expire: s.ttl})
		}
	}
	return ops
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	pipe := s.rdb.Pipeline()
	for _, op := range s.plan(ev) {
		pipe.HIncrBy(ctx, op.key, op.field, 1)
		if op.expire > 0 {
			pipe.Expire(ctx, op.key, op.expire)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Total lê o hash cumulativo de decisões.
func (s *RedisStatsStore) Total(ctx context.Context) (Counters, error) {
	if s == nil || s.rdb == nil {
		return Counters{}, nil
	}
	vals, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return Counters{}, err
	}
	return Counters{
		Allowed: parseCounter(vals["allowed"]),
		Denied:  parseCounter(vals["denied"]),
	}, nil
}

func parseCounter(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
