// Package config reads the daemon's settings from the environment.
package config

import "os"

type Config struct {
	APIURL       string // remote gateway base URL
	WSURL        string // realtime channel endpoint
	AuthToken    string // signed access token for the session
	JWTSecret    string
	FeedScope    string // owner/context id for cache keys
	CacheBackend string // "badger" or "redis"
	CacheDir     string
	RedisURL     string
}

func Load() Config {
	return Config{
		APIURL:       getenv("API_URL", "http://localhost:8082/api"),
		WSURL:        getenv("WS_URL", "ws://localhost:8082/ws"),
		AuthToken:    os.Getenv("AUTH_TOKEN"),
		JWTSecret:    getenv("JWT_SECRET", "dev-secret-key-change-in-production"),
		FeedScope:    getenv("FEED_SCOPE", "home"),
		CacheBackend: getenv("CACHE_BACKEND", "badger"),
		CacheDir:     getenv("CACHE_DIR", "./data/cache"),
		RedisURL:     getenv("REDIS_URL", "redis://localhost:6379"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
