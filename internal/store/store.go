// Package store persists per-shard resume state (session id, resume
// URL, last-seen sequence) so a restarted process can resume its
// sessions instead of paying a fresh identify against the session
// start budget. The store is optional; the gateway works without it.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/halcyonchat/gateway/internal/session"
)

// Config is the Redis connection configuration.
type Config struct {
	// Enabled turns resume-state persistence on. When false the
	// gateway keeps resume state in memory only.
	Enabled bool `yaml:"enabled"`

	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	KeyPrefix string `yaml:"key_prefix"`

	// TTL bounds how long resume state stays valid. Sessions expire
	// server-side after a short disconnect, so stale snapshots are
	// worse than none.
	TTL time.Duration `yaml:"ttl"`

	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ResumeStore is a Redis-backed snapshot store keyed by shard id.
type ResumeStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewResumeStore creates a store from config.
func NewResumeStore(cfg *Config) *ResumeStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResumeStore{rdb: rdb, prefix: cfg.KeyPrefix, ttl: ttl}
}

// Ping checks the Redis connection.
func (s *ResumeStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *ResumeStore) Close() error {
	return s.rdb.Close()
}

func (s *ResumeStore) key(shardID int) string {
	return fmt.Sprintf("%sresume:%d", s.prefix, shardID)
}

// Save writes the snapshot for a shard.
func (s *ResumeStore) Save(ctx context.Context, shardID int, snap session.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal resume snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(shardID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save resume snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot for a shard. The second return value is
// false when no snapshot exists.
func (s *ResumeStore) Load(ctx context.Context, shardID int) (session.Snapshot, bool, error) {
	data, err := s.rdb.Get(ctx, s.key(shardID)).Result()
	if err == redis.Nil {
		return session.Snapshot{}, false, nil
	}
	if err != nil {
		return session.Snapshot{}, false, fmt.Errorf("load resume snapshot: %w", err)
	}
	var snap session.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return session.Snapshot{}, false, fmt.Errorf("parse resume snapshot: %w", err)
	}
	return snap, true, nil
}

// Clear removes the snapshot for a shard.
func (s *ResumeStore) Clear(ctx context.Context, shardID int) error {
	if err := s.rdb.Del(ctx, s.key(shardID)).Err(); err != nil {
		return fmt.Errorf("clear resume snapshot: %w", err)
	}
	return nil
}
