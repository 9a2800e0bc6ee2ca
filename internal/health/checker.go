package health

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deps probes the process dependencies.
type Deps struct {
	Redis  *redis.Client
	Loaded func() bool
}

// PingRedis implements Checker. A process without Redis is always healthy here.
func (d Deps) PingRedis(ctx context.Context, timeout time.Duration) error {
	if d.Redis == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Redis.Ping(ctx).Err()
}

// CatalogLoaded implements Checker.
func (d Deps) CatalogLoaded() bool {
	return d.Loaded != nil && d.Loaded()
}
