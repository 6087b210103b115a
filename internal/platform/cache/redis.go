package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// New creates a Redis client. It does not dial; use Ping from a readiness
// check.
func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}
