// Package redis provides helpers for connecting to a Redis server: a Connect
// that retries with exponential backoff, and a health check suitable for
// liveness and readiness probes.
//
// Configuration is described by the Config struct whose fields are populated
// from environment variables via github.com/caarlos0/env.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	store := redisstore.New(client, redisstore.WithKeyPrefix(cfg.KeyPrefix))
package redis
