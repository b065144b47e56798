package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/quantumflow/annealflow/internal/models"
)

// RedisStore implements AgentStore on Redis. Each profile is a JSON string
// under <prefix>:agent:<id>; the set <prefix>:agents indexes the ids.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(cfg Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, storeErr(BackendRedis, "open", fmt.Errorf("failed to connect to Redis: %w", err))
	}

	prefix := cfg.RedisPrefix
	if prefix == "" {
		prefix = DefaultConfig().RedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":agents"
}

func (s *RedisStore) profileKey(id string) string {
	return fmt.Sprintf("%s:agent:%s", s.prefix, id)
}

// LoadAll fetches every indexed profile. Ids whose document has expired or
// been removed out of band are skipped.
func (s *RedisStore) LoadAll(ctx context.Context) ([]*models.AgentProfile, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, storeErr(BackendRedis, "load", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.profileKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storeErr(BackendRedis, "load", err)
	}

	profiles := make([]*models.AgentProfile, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		profile, err := decodeProfile([]byte(raw))
		if err != nil {
			return nil, storeErr(BackendRedis, "load", err)
		}
		profiles = append(profiles, profile)
	}

	sortByCreation(profiles)
	return profiles, nil
}

// SaveAll replaces the collection inside a MULTI/EXEC transaction
func (s *RedisStore) SaveAll(ctx context.Context, profiles []*models.AgentProfile) error {
	existing, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return storeErr(BackendRedis, "save all", err)
	}

	pipe := s.client.TxPipeline()
	for _, id := range existing {
		pipe.Del(ctx, s.profileKey(id))
	}
	pipe.Del(ctx, s.indexKey())

	for _, p := range profiles {
		data, err := encodeProfile(p)
		if err != nil {
			return storeErr(BackendRedis, "save all", err)
		}
		pipe.Set(ctx, s.profileKey(p.ID), data, 0)
		pipe.SAdd(ctx, s.indexKey(), p.ID)
	}

	_, err = pipe.Exec(ctx)
	return storeErr(BackendRedis, "save all", err)
}

// Save replaces one profile and indexes it
func (s *RedisStore) Save(ctx context.Context, profile *models.AgentProfile) error {
	data, err := encodeProfile(profile)
	if err != nil {
		return storeErr(BackendRedis, "save", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.profileKey(profile.ID), data, 0)
	pipe.SAdd(ctx, s.indexKey(), profile.ID)
	_, err = pipe.Exec(ctx)
	return storeErr(BackendRedis, "save", err)
}

// Delete removes one profile and its index entry
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.profileKey(id))
	pipe.SRem(ctx, s.indexKey(), id)
	_, err := pipe.Exec(ctx)
	return storeErr(BackendRedis, "delete", err)
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
