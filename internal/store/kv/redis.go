package kv

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	goredis "github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "ops"

// RedisStore keeps each snapshot as a plain string value under
// "<prefix>:snapshot:<key>".
type RedisStore struct {
	client   *goredis.Client
	prefix   string
	addr     string
	db       int
	password string
}

type RedisOption func(*RedisStore)

func WithRedisPassword(password string) RedisOption {
	return func(s *RedisStore) {
		s.password = password
	}
}

func WithRedisDB(db int) RedisOption {
	return func(s *RedisStore) {
		s.db = db
	}
}

func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
		}
	}
}

// WithRedisClient injects an existing client; addr is then only used for logs.
func WithRedisClient(client *goredis.Client) RedisOption {
	return func(s *RedisStore) {
		if client != nil {
			s.client = client
		}
	}
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, addr string, opts ...RedisOption) (*RedisStore, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis addr is required")
	}

	s := &RedisStore{
		prefix: defaultRedisPrefix,
		addr:   addr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = goredis.NewClient(&goredis.Options{
			Addr:     s.addr,
			Password: s.password,
			DB:       s.db,
		})
	}

	if err := s.client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "redis ping %s", s.addr)
	}
	return s, nil
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis get %s", key)
	}
	return raw, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", key)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":snapshot:" + key
}
