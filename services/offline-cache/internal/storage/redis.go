package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	pkgerrors "PaykiPlatform/pkg/errors"
)

// RedisStorage поколения в Redis: sorted set {ns}generations с моментом создания
// и hash {ns}gen:{name} с ответами по ключу запроса
type RedisStorage struct {
	client    *redis.Client
	namespace string
}

// NewRedisStorage создает хранилище в пространстве ключей namespace
func NewRedisStorage(client *redis.Client, namespace string) *RedisStorage {
	return &RedisStorage{client: client, namespace: namespace}
}

func (s *RedisStorage) generationsKey() string {
	return s.namespace + "generations"
}

func (s *RedisStorage) cacheKey(name string) string {
	return s.namespace + "gen:" + name
}

type redisCache struct {
	storage *RedisStorage
	key     string
}

// Open регистрирует поколение, если его еще нет
func (s *RedisStorage) Open(ctx context.Context, name string) (Cache, error) {
	err := s.client.ZAddNX(ctx, s.generationsKey(), &redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: name,
	}).Err()
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "failed to open cache generation")
	}
	return &redisCache{storage: s, key: s.cacheKey(name)}, nil
}

// Keys возвращает имена поколений в порядке создания
func (s *RedisStorage) Keys(ctx context.Context) ([]string, error) {
	names, err := s.client.ZRange(ctx, s.generationsKey(), 0, -1).Result()
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "failed to list cache generations")
	}
	return names, nil
}

// Delete удаляет поколение и все его ответы
func (s *RedisStorage) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, s.generationsKey(), name)
		pipe.Del(ctx, s.cacheKey(name))
		return nil
	})
	if err != nil {
		return false, pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "failed to delete cache generation")
	}
	return removed.Val() > 0, nil
}

// Match ищет ключ во всех поколениях в порядке создания
func (s *RedisStorage) Match(ctx context.Context, key string) (*StoredResponse, error) {
	names, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		c := &redisCache{storage: s, key: s.cacheKey(name)}
		resp, err := c.Match(ctx, key)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return resp, nil
		}
	}
	return nil, nil
}

func (c *redisCache) Match(ctx context.Context, key string) (*StoredResponse, error) {
	data, err := c.storage.client.HGet(ctx, c.key, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "failed to read cached response")
	}

	var resp StoredResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		// Поврежденная запись считается промахом
		return nil, nil
	}
	return &resp, nil
}

func (c *redisCache) Put(ctx context.Context, key string, resp *StoredResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to encode cached response")
	}
	if err := c.storage.client.HSet(ctx, c.key, key, data).Err(); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "failed to store cached response")
	}
	return nil
}

func (c *redisCache) Keys(ctx context.Context) ([]string, error) {
	keys, err := c.storage.client.HKeys(ctx, c.key).Result()
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "failed to list cached requests")
	}
	sort.Strings(keys)
	return keys, nil
}
