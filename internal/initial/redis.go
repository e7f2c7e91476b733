package initial

import (
	"context"
	"fmt"
	"time"

	"RoomLink/internal/config"
	"RoomLink/pkg/redis"
	"RoomLink/pkg/zlog"

	goredis "github.com/redis/go-redis/v9"
)

// InitRedis 建立 Redis 连接。未配置主机时返回 (nil, nil)，译文缓存降级为直连翻译器。
func InitRedis(conf *config.Config) (*goredis.Client, error) {
	host := conf.RedisConfig.Host
	if host == "" {
		zlog.Info("Redis 未配置，跳过初始化")
		return nil, nil
	}

	port := conf.RedisConfig.Port
	if port == 0 {
		port = 6379
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	zlog.Info(fmt.Sprintf("Redis connecting: %s", addr))

	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     conf.RedisConfig.Password,
		DB:           conf.RedisConfig.DB,
		PoolSize:     conf.RedisConfig.PoolSize,
		MinIdleConns: conf.RedisConfig.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	redis.SetClient(client)
	zlog.Info("Redis 连接成功")
	return client, nil
}
