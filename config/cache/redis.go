package cache

import (
	"context"
	"time"

	"minutepad/config"
	"minutepad/pkg/logger"

	"github.com/redis/go-redis/v9"
)

func Connect(cfg config.RedisConfig) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Sugar.Fatalf("Could not connect to redis at %s: %v", cfg.Addr, err)
	}
	logger.Sugar.Info("Successfully connected to redis")
	return rdb
}
