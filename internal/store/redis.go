package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alexjbarnes/sitegate/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "sitegate:user_token:"
	redisScanCount     = 256
)

// RedisSessions keeps one key per live token, holding the JSON session
// record.
type RedisSessions struct {
	client *redis.Client
	prefix string
}

// NewRedisSessions returns a session store on client. An empty prefix
// uses the default key namespace.
func NewRedisSessions(client *redis.Client, prefix string) *RedisSessions {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	return &RedisSessions{client: client, prefix: prefix}
}

func (r *RedisSessions) key(token string) string {
	return r.prefix + token
}

// Get returns the session for token, or nil if not found.
func (r *RedisSessions) Get(ctx context.Context, token string) (*models.Session, error) {
	data, err := r.client.Get(ctx, r.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}

	return &s, nil
}

// Put stores the session for token without a TTL. Expiry is enforced by
// the token itself and removed by Sweep.
func (r *RedisSessions) Put(ctx context.Context, token string, s models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	if err := r.client.Set(ctx, r.key(token), data, 0).Err(); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}

	return nil
}

// Delete removes the session for token if present.
func (r *RedisSessions) Delete(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, r.key(token)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}

// Tokens lists every live user token.
func (r *RedisSessions) Tokens(ctx context.Context) ([]string, error) {
	var tokens []string

	iter := r.client.Scan(ctx, 0, r.prefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		tokens = append(tokens, strings.TrimPrefix(iter.Val(), r.prefix))
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning sessions: %w", err)
	}

	return tokens, nil
}

// Sweep removes every token expired reports true for in a single DEL.
func (r *RedisSessions) Sweep(ctx context.Context, expired func(token string) bool) (int, error) {
	tokens, err := r.Tokens(ctx)
	if err != nil {
		return 0, err
	}

	var keys []string

	for _, t := range tokens {
		if expired(t) {
			keys = append(keys, r.key(t))
		}
	}

	if len(keys) == 0 {
		return 0, nil
	}

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("sweeping sessions: %w", err)
	}

	return len(keys), nil
}

// Close releases the redis client.
func (r *RedisSessions) Close() error {
	return r.client.Close()
}
