// Package store is the authoritative, time-indexed persistence layer:
// one Redis sorted set per processor, members are the encoded Payment
// record bytes, scores are requested_at epoch seconds.
package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"paydispatch/internal/payment"
)

const (
	indexKeyPrefix = "payments_index:"
	healthKey      = "payment_processor_health"
)

// Store is the Redis-backed implementation of the time-indexed
// persistence abstraction.
type Store struct {
	rdb *redis.Client
}

// New connects to Redis at addr and instruments the client with
// redisotel for tracing and metrics.
func New(addr string) (*Store, error) {
	opt, err := redis.ParseURL(addr)
	if err != nil {
		opt = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opt)
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("instrument redis tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		return nil, fmt.Errorf("instrument redis metrics: %w", err)
	}
	return &Store{rdb: client}, nil
}

// NewFromClient wraps an already-constructed client, for tests against a
// local/fake Redis.
func NewFromClient(client *redis.Client) *Store {
	return &Store{rdb: client}
}

func indexKey(p payment.Processor) string {
	return indexKeyPrefix + string(p)
}

// IndexPayment adds recordBytes to processor p's sorted index with the
// given score. Duplicate byte-identical members coalesce under ZADD;
// that is accepted and not guarded against here.
func (s *Store) IndexPayment(ctx context.Context, p payment.Processor, recordBytes []byte, score float64) error {
	return s.rdb.ZAdd(ctx, indexKey(p), redis.Z{Score: score, Member: recordBytes}).Err()
}

// ScoredRecord is one member of a range-by-score result.
type ScoredRecord struct {
	Bytes []byte
	Score float64
}

// RangeByScore returns every member of processor p's index with score in
// [from, to], inclusive on both ends.
func (s *Store) RangeByScore(ctx context.Context, p payment.Processor, from, to float64) ([]ScoredRecord, error) {
	res, err := s.rdb.ZRangeByScoreWithScores(ctx, indexKey(p), &redis.ZRangeBy{
		Min: fmt.Sprintf("%f", from),
		Max: fmt.Sprintf("%f", to),
	}).Result()
	if err != nil {
		return nil, err
	}

	out := make([]ScoredRecord, 0, len(res))
	for _, z := range res {
		var b []byte
		switch v := z.Member.(type) {
		case string:
			b = []byte(v)
		case []byte:
			b = v
		default:
			continue
		}
		out = append(out, ScoredRecord{Bytes: b, Score: z.Score})
	}
	return out, nil
}

// PurgeAll empties the entire store. It does not preserve the health
// slot across purge (DESIGN.md Open Question 2).
func (s *Store) PurgeAll(ctx context.Context) error {
	return s.rdb.FlushDB(ctx).Err()
}

// GetHealth returns the last value written by SetHealth, or nil if none
// has been written yet.
func (s *Store) GetHealth(ctx context.Context) ([]byte, error) {
	val, err := s.rdb.Get(ctx, healthKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

// SetHealth overwrites the single health slot.
func (s *Store) SetHealth(ctx context.Context, data []byte) error {
	return s.rdb.Set(ctx, healthKey, data, 0).Err()
}

// Pipeline groups writes so the caller can issue several and commit them
// in one network round trip, in issue order.
type Pipeline struct {
	pipe redis.Pipeliner
}

// Pipeline opens a new pipeline against this store.
func (s *Store) Pipeline() *Pipeline {
	return &Pipeline{pipe: s.rdb.Pipeline()}
}

// IndexPayment queues a ZADD on the pipeline.
func (p *Pipeline) IndexPayment(ctx context.Context, proc payment.Processor, recordBytes []byte, score float64) {
	p.pipe.ZAdd(ctx, indexKey(proc), redis.Z{Score: score, Member: recordBytes})
}

// Exec commits every queued write in issue order, in a single round trip.
func (p *Pipeline) Exec(ctx context.Context) error {
	_, err := p.pipe.Exec(ctx)
	return err
}

// Close releases the underlying Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}
