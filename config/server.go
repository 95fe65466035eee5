package config

import (
	"sync"
)

var (
	serverOnce   sync.Once
	serverConfig *ServerConfig

	redisOnce   sync.Once
	redisConfig *RedisConfig

	storeOnce   sync.Once
	storeConfig *StoreConfig
)

// ServerConfig covers the HTTP shell and process wiring.
type ServerConfig struct {
	Port string
	Mode string // gin mode
	// QueueBackend selects "memory" (in-process ants pool) or "asynq".
	QueueBackend string
	// StorageBackend selects "minio", "s3" or "memory" for raw files.
	StorageBackend string
	LogLevel       string
	LogPath        string
	AllowedOrigins []string
	WorkerID       string
}

func GetServerConfig() *ServerConfig {
	serverOnce.Do(func() {
		loadEnv()
		serverConfig = &ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Mode:           getEnv("GIN_MODE", "release"),
			QueueBackend:   getEnv("QUEUE_BACKEND", "memory"),
			StorageBackend: getEnv("STORAGE_BACKEND", "minio"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogPath:        getEnv("LOG_PATH", "logs/docintel.log"),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			WorkerID:       getEnv("WORKER_ID", ""),
		}
	})
	return serverConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// CacheDB holds query embedding cache entries, 0 disables the cache.
	CacheDB int
}

func GetRedisConfig() *RedisConfig {
	redisOnce.Do(func() {
		loadEnv()
		redisConfig = &RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			CacheDB:  getEnvInt("REDIS_CACHE_DB", 0),
		}
	})
	return redisConfig
}

// StoreConfig selects the record store.
type StoreConfig struct {
	// Driver is "badger" (single process) or "sqlite" (shared by server and workers).
	Driver   string
	Path     string
	InMemory bool
}

func GetStoreConfig() *StoreConfig {
	storeOnce.Do(func() {
		loadEnv()
		storeConfig = &StoreConfig{
			Driver:   getEnv("STORE_DRIVER", "badger"),
			Path:     getEnv("STORE_PATH", "data/docintel"),
			InMemory: getEnvBool("STORE_IN_MEMORY", false),
		}
	})
	return storeConfig
}
