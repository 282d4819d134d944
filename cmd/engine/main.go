package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"posbridge/internal/cache"
	"posbridge/internal/config"
	"posbridge/internal/metrics"
	"posbridge/internal/remote"
	"posbridge/internal/service"
	"posbridge/internal/store"
	"posbridge/internal/store/sqlite"
	"posbridge/internal/worker"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment from .env")
	}
	cfg := config.Load()
	if cfg.ServerURL == "" {
		log.Fatal("POS_SERVER_URL must be set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle := store.NewHandle(func(ctx context.Context) (store.Repository, error) {
		return sqlite.Open(ctx, cfg.DBPath)
	})
	defer handle.Close()

	closers := make([]func() error, 0, 1)
	queryCache := cache.QueryCache(cache.NewMemoryQueryCache(cfg.CacheCapacity, cfg.CacheTTL))
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisQueryCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using in-memory cache", err)
		} else {
			queryCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: in-memory")
	}

	client := remote.NewClient(cfg.ServerURL)
	recorder := metrics.NewRecorder()
	svc := service.New(handle, queryCache, recorder, cfg.DefaultPriceList)
	w := worker.New(svc, client, worker.Options{ProbeInterval: cfg.ProbeInterval})

	go w.Run(ctx)
	log.Printf("engine started (store %s, server %s)", cfg.DBPath, client.BaseURL())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}
	log.Println("engine stopped")
}
