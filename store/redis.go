package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"content_draft_generator/generator"
)

// Redis implements Store using Redis, so several server replicas can share
// sessions. Keys expire after the configured TTL.
type Redis struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Redis)

// WithTTL sets the expiration for sessions.
func WithTTL(ttl time.Duration) Option {
	return func(s *Redis) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for sessions.
func WithPrefix(prefix string) Option {
	return func(s *Redis) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedis creates a new Redis store with options.
func NewRedis(address, password string, db int, opts ...Option) *Redis {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisFromClient(rdb, opts...)
}

// NewRedisFromClient creates a new Redis store from an existing client.
func NewRedisFromClient(client *backend.Client, opts ...Option) *Redis {
	s := &Redis{
		client: client,
		prefix: "draftgen:session:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Redis) key(id string) string {
	return s.prefix + id
}

// Ping checks connectivity; used at startup.
func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Redis) Close() error {
	return s.client.Close()
}

func (s *Redis) Save(ctx context.Context, sess *generator.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

func (s *Redis) Load(ctx context.Context, id string) (*generator.Session, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if err == backend.Nil {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	var sess generator.Session
	if err := json.Unmarshal(val, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *Redis) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}
