// Package config loads application configuration from environment variables.
package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable; optional groups live in their own structs.
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	DBUser    string // database username
	DBPass    string // database password (optional)
	DBHost    string // database host address
	DBPort    string // database port number
	DBName    string // database name
	JWTSecret string // secret used to verify access tokens
	Migrate   bool   // create tables on startup when missing

	Reservation ReservationConfig
	Events      EventsConfig
	RateLimit   RateLimitConfig
	Cache       CacheConfig
}

// ReservationConfig tunes holds and the expiry sweeper.
type ReservationConfig struct {
	HoldTTL       time.Duration // how long a pending reservation blocks its unit
	SweepInterval time.Duration // period of the background expiry sweep
	SweepBatch    int           // overdue holds fetched per ledger query
	SweepLockTTL  time.Duration // lease held in Redis by the sweeping instance
}

// Load reads a .env file when one exists, then builds the Config from the
// environment.  Required variables are enforced by must() and missing
// values cause the program to exit with a fatal log message.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env not loaded: %v", err)
	}
	return Config{
		Env:       envStr("APP_ENV", "dev"),
		Port:      must("APP_PORT"),
		DBUser:    must("DB_USER"),
		DBPass:    os.Getenv("DB_PASS"),
		DBHost:    must("DB_HOST"),
		DBPort:    must("DB_PORT"),
		DBName:    must("DB_NAME"),
		JWTSecret: must("JWT_SECRET"),
		Migrate:   envBool("DB_MIGRATE", true),

		Reservation: LoadReservationConfig(),
		Events:      LoadEventsConfig(),
		RateLimit:   LoadRateLimitConfig(),
		Cache:       LoadCacheConfig(),
	}
}

// LoadReservationConfig reads HOLD_TTL and the SWEEP_* variables.
func LoadReservationConfig() ReservationConfig {
	cfg := ReservationConfig{
		HoldTTL:       envDur("HOLD_TTL", 15*time.Minute),
		SweepInterval: envDur("SWEEP_INTERVAL", 30*time.Second),
		SweepBatch:    envInt("SWEEP_BATCH", 200),
		SweepLockTTL:  envDur("SWEEP_LOCK_TTL", 20*time.Second),
	}
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = 15 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.SweepBatch < 1 {
		cfg.SweepBatch = 200
	}
	if cfg.SweepLockTTL <= 0 || cfg.SweepLockTTL > cfg.SweepInterval {
		cfg.SweepLockTTL = cfg.SweepInterval
	}
	return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
