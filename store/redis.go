package store

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/flowfence/core"
)

const keyPrefix = "flowfence:"

// Hash field names for one snapshot. Floats are written at full precision
// ('g', -1): the restore path must see exactly the exported values, and
// last_check in particular carries sub-second resolution.
const (
	fieldInfoRate  = "info_rate"
	fieldBurstSize = "burst_size"
	fieldTokens    = "tokens"
	fieldLastCheck = "last_check"
)

// RedisStore keeps snapshots in Redis, one hash per key, so budgets survive
// process restarts and can be handed from one instance to another. It adds
// no cross-writer coordination: concurrent writers to the same key race and
// the last write wins.
type RedisStore struct {
	client *redis.Client
	ctx    context.Context
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// RedisConfig for creating a Redis store
type RedisConfig struct {
	Addr     string        // Redis address (e.g., "localhost:6379")
	Password string        // Redis password (empty for no auth)
	DB       int           // Redis database number
	TTL      time.Duration // How long an untouched snapshot lives (default: 1 hour)
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(config RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ttl := config.TTL
	if ttl == 0 {
		ttl = 1 * time.Hour
	}

	s := &RedisStore{
		client: client,
		ctx:    context.Background(),
		ttl:    ttl,
	}
	if err := s.Ping(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", config.Addr, err)
	}

	return s, nil
}

// Get returns the snapshot for key, or nil if none is stored or the stored
// hash does not parse.
func (s *RedisStore) Get(key string) *core.State {
	fields, err := s.client.HGetAll(s.ctx, keyPrefix+key).Result()
	if err != nil || len(fields) == 0 {
		return nil
	}

	st, err := stateFromFields(fields)
	if err != nil {
		return nil
	}
	return st
}

// Set stores the snapshot for key and refreshes its TTL. Hash write and
// expiry travel in one pipeline round trip.
func (s *RedisStore) Set(key string, st *core.State) {
	redisKey := keyPrefix + key

	pipe := s.client.TxPipeline()
	pipe.HSet(s.ctx, redisKey,
		fieldInfoRate, formatFloat(st.InfoRate),
		fieldBurstSize, formatFloat(st.BurstSize),
		fieldTokens, formatFloat(st.Tokens),
		fieldLastCheck, formatFloat(st.LastCheck),
	)
	pipe.Expire(s.ctx, redisKey, s.ttl)

	if _, err := pipe.Exec(s.ctx); err != nil {
		log.Printf("flowfence: writing snapshot for %q to redis failed: %v", key, err)
	}
}

// Delete removes the snapshot for key.
func (s *RedisStore) Delete(key string) {
	s.client.Del(s.ctx, keyPrefix+key)
}

// Clear removes every flowfence snapshot from Redis.
func (s *RedisStore) Clear() {
	iter := s.client.Scan(s.ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(s.ctx) {
		s.client.Del(s.ctx, iter.Val())
	}
}

// Ping checks that the Redis connection is alive.
func (s *RedisStore) Ping() error {
	return s.client.Ping(s.ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func stateFromFields(fields map[string]string) (*core.State, error) {
	var st core.State
	var err error

	if st.InfoRate, err = strconv.ParseFloat(fields[fieldInfoRate], 64); err != nil {
		return nil, err
	}
	if st.BurstSize, err = strconv.ParseFloat(fields[fieldBurstSize], 64); err != nil {
		return nil, err
	}
	if st.Tokens, err = strconv.ParseFloat(fields[fieldTokens], 64); err != nil {
		return nil, err
	}
	if st.LastCheck, err = strconv.ParseFloat(fields[fieldLastCheck], 64); err != nil {
		return nil, err
	}

	return &st, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
