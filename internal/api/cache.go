// internal/api/cache.go
package api

import (
	"context"
	"fmt"
	"time"
)

// Cache is the read-side cache for per-user application lists. Satisfied by
// database.RedisClient; a nil Cache disables caching entirely.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

func userApplicationsKey(userID string) string {
	return fmt.Sprintf("applications:user:%s", userID)
}
