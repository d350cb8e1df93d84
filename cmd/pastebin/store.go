package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"pastebin-lite/internal/config"
	"pastebin-lite/internal/storage"
	"pastebin-lite/internal/storage/boltstore"
	"pastebin-lite/internal/storage/memstore"
	"pastebin-lite/internal/storage/redisstore"
	"pastebin-lite/internal/storage/sqlstore"
)

func openStore(cfg config.StoreConfig) (storage.Store, error) {
	switch cfg.Type {
	case config.StoreRedis:
		prefix := redisstore.WithPrefix(cfg.KeyPrefix)
		if cfg.Redis.URL != "" {
			return redisstore.OpenURL(cfg.Redis.URL, prefix)
		}
		return redisstore.Open(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, prefix)
	case config.StoreBolt:
		return boltstore.Open(cfg.Bolt.Path)
	case config.StoreSQLite:
		return sqlstore.OpenSQLite(cfg.SQLite.Path)
	case config.StorePostgres:
		return sqlstore.OpenPostgres(cfg.Postgres.DSN)
	case config.StoreMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
