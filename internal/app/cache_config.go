package app

import (
	"strings"

	"github.com/hectorgon/coderwall/internal/cache"
)

// RedisClientConfig converts the cache section into Redis client options.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: c.Redis.Username,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}
