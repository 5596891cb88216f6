package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pulse/pkg/cache"
	"pulse/pkg/comments"
	"pulse/pkg/config"
	"pulse/pkg/feed"
	"pulse/pkg/gateway"
	"pulse/pkg/models"
	"pulse/pkg/realtime"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	session := models.Session{}
	if cfg.AuthToken != "" {
		var err error
		session, err = models.SessionFromToken(cfg.AuthToken, cfg.JWTSecret)
		if err != nil {
			log.Fatalf("[feedd] invalid AUTH_TOKEN: %v", err)
		}
		log.Printf("[feedd] session for %s (expires %s)", session.Username, session.ExpiresAt)
	} else {
		log.Printf("[feedd] no AUTH_TOKEN — running anonymous (read-only)")
	}

	store := openStore(cfg)
	defer store.Close()

	gw := gateway.New(cfg.APIURL, session)

	ch := realtime.New(cfg.WSURL, session.Token)
	go ch.Connect()
	defer ch.Close()

	sync := feed.New(session, gw, store, cfg.FeedScope, comments.NewestFirst)
	sync.Bind(ch)
	defer sync.Unbind()

	if err := sync.Load(context.Background()); err != nil {
		log.Printf("[feedd] initial load: %v", err)
	}
	if sync.Degraded() {
		log.Printf("[feedd] running degraded — serving cached feed for scope %q", cfg.FeedScope)
	}
	log.Printf("[feedd] feed ready: %d posts in scope %q", len(sync.Posts()), cfg.FeedScope)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("[feedd] shutting down")
}

func openStore(cfg config.Config) cache.Store {
	switch cfg.CacheBackend {
	case "redis":
		store, err := cache.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("[feedd] redis cache: %v", err)
		}
		log.Printf("[feedd] cache: redis at %s", cfg.RedisURL)
		return store
	default:
		store, err := cache.NewBadger(cfg.CacheDir)
		if err != nil {
			log.Fatalf("[feedd] badger cache: %v", err)
		}
		log.Printf("[feedd] cache: badger at %s", cfg.CacheDir)
		return store
	}
}
