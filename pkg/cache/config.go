package cache

import "time"

// RedisConfig is the connection used for the shared run lock and last run.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration
	Prefix       string
}

// The lock is touched a few times per run, so a small pool is plenty.
func defaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     4,
		MinIdleConns: 1,
		PoolTimeout:  5 * time.Second,
		Prefix:       "pattas",
	}
}

type RedisOption func(*RedisConfig)

func WithRedisAddr(addr string) RedisOption {
	return func(c *RedisConfig) { c.Addr = addr }
}

// WithRedisAuth selects the password and logical database.
func WithRedisAuth(password string, db int) RedisOption {
	return func(c *RedisConfig) {
		c.Password = password
		c.DB = db
	}
}

// WithRedisPrefix namespaces every key, so several dashboards can share one
// Redis without sharing a lock.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}

// MemoryConfig bounds the in-process fallback used without Redis.
type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
}

func defaultMemoryConfig() MemoryConfig {
	return MemoryConfig{MaxSize: 1000, CleanupInterval: 5 * time.Minute}
}

type MemoryOption func(*MemoryConfig)

func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) { c.MaxSize = size }
}

func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) { c.CleanupInterval = interval }
}
