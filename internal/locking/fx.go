package locking

import (
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/tribewave/tribewave/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("locking",
	fx.Provide(NewClient),
	fx.Provide(NewLocker),
)

// NewClient returns a redis client, or nil when no address is configured.
// A nil client disables advisory locking; single-instance deployments do
// not need it.
func NewClient(cfg config.Config, log *zap.Logger) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		log.Info("redis not configured, advisory locking disabled")
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
