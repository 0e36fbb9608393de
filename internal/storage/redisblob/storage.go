// Package redisblob is an object store on Redis. Each object is one string
// value under a namespaced key.
package redisblob

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ironsheep/creek-ocr/internal/failure"
	"github.com/ironsheep/creek-ocr/internal/storage"
)

// DefaultNamespace prefixes every object key in Redis.
const DefaultNamespace = "creek-ocr:obj:"

const scanBatch = 500

// Storage is an object store on Redis string keys under a namespace.
type Storage struct {
	client    *redis.Client
	namespace string
}

// New connects to the Redis server at url (redis://[user:pass@]host:port/db)
// and verifies it with PING.
func New(ctx context.Context, url, namespace string) (*Storage, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(client, namespace), nil
}

// NewWithClient wraps an existing client. An empty namespace uses
// DefaultNamespace.
func NewWithClient(client *redis.Client, namespace string) *Storage {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Storage{client: client, namespace: namespace}
}

// Close closes the client.
func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) Put(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return failure.NewStorage("put", key, errors.New("empty key"))
	}
	if err := s.client.Set(ctx, s.namespace+key, data, 0).Err(); err != nil {
		return failure.NewStorage("put", key, err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.namespace+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, failure.NewStorage("get", key, storage.ErrNotFound)
		}
		return nil, failure.NewStorage("get", key, err)
	}
	return data, nil
}

func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.namespace+key).Result()
	if err != nil {
		return false, failure.NewStorage("exists", key, err)
	}
	return n > 0, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.namespace+key).Err(); err != nil {
		return failure.NewStorage("delete", key, err)
	}
	return nil
}

// List walks the namespace with SCAN, so it does not block the server on
// large keyspaces.
func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(s.namespace+prefix) + "*"

	var keys []string
	iter := s.client.Scan(ctx, 0, match, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.namespace))
	}
	if err := iter.Err(); err != nil {
		return nil, failure.NewStorage("list", prefix, err)
	}

	// SCAN may return a key more than once.
	sort.Strings(keys)
	out := keys[:0]
	for i, k := range keys {
		if i == 0 || k != keys[i-1] {
			out = append(out, k)
		}
	}
	return out, nil
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ storage.ObjectStore = (*Storage)(nil)
