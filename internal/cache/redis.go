// Package cache хранит служебное состояние бота вне процесса:
// водяную метку ретранслятора и дневные маркеры отчетов и бэкапов.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "signal_bot:"
	watermarkKey = keyPrefix + "relay:watermark"
	markerPrefix = keyPrefix + "marker:"
	markerTTL    = 7 * 24 * time.Hour
)

type Cache struct {
	Db *redis.Client
}

// InitServer подключается к Redis и проверяет соединение
func InitServer(ctx context.Context, addr, password string, db int) (*Cache, error) {
	const op = "cache.InitServer"
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Cache{Db: client}, nil
}

// LoadWatermark возвращает сохраненную водяную метку; ok=false если ее нет
func (c *Cache) LoadWatermark(ctx context.Context) (int, bool, error) {
	const op = "cache.LoadWatermark"
	val, err := c.Db.Get(ctx, watermarkKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	id, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	return id, true, nil
}

func (c *Cache) SaveWatermark(ctx context.Context, id int) error {
	if err := c.Db.Set(ctx, watermarkKey, id, 0).Err(); err != nil {
		return fmt.Errorf("cache.SaveWatermark: %w", err)
	}
	return nil
}

// Marker возвращает значение маркера или пустую строку
func (c *Cache) Marker(ctx context.Context, name string) (string, error) {
	val, err := c.Db.Get(ctx, markerPrefix+name).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache.Marker: %w", err)
	}
	return val, nil
}

func (c *Cache) SetMarker(ctx context.Context, name, value string) error {
	if err := c.Db.Set(ctx, markerPrefix+name, value, markerTTL).Err(); err != nil {
		return fmt.Errorf("cache.SetMarker: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.Db.Close()
}
