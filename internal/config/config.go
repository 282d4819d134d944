package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DBPath            string
	ServerURL         string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	DefaultPriceList  string
	CacheCapacity     int
	CacheTTL          time.Duration
	ProbeInterval     time.Duration
	StockSyncInterval time.Duration
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	capacity, err := strconv.Atoi(getEnv("CACHE_CAPACITY", "256"))
	if err != nil || capacity < 1 {
		capacity = 256
	}
	cacheTTL, err := strconv.Atoi(getEnv("CACHE_TTL_SECONDS", "300"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 300
	}
	probe, err := strconv.Atoi(getEnv("PROBE_INTERVAL_SECONDS", "30"))
	if err != nil || probe < 1 {
		probe = 30
	}
	stockSync, err := strconv.Atoi(getEnv("STOCK_SYNC_INTERVAL_SECONDS", "60"))
	if err != nil || stockSync < 1 {
		stockSync = 60
	}

	return Config{
		DBPath:            getEnv("POS_DB_PATH", "posbridge.db"),
		ServerURL:         strings.TrimSpace(os.Getenv("POS_SERVER_URL")),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           redisDB,
		DefaultPriceList:  getEnv("DEFAULT_PRICE_LIST", "Standard Selling"),
		CacheCapacity:     capacity,
		CacheTTL:          time.Duration(cacheTTL) * time.Second,
		ProbeInterval:     time.Duration(probe) * time.Second,
		StockSyncInterval: time.Duration(stockSync) * time.Second,
	}
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
