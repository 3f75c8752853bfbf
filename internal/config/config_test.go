package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadReservationConfigDefaults(t *testing.T) {
	cfg := LoadReservationConfig()
	assert.Equal(t, 15*time.Minute, cfg.HoldTTL)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 200, cfg.SweepBatch)
	assert.Equal(t, 20*time.Second, cfg.SweepLockTTL)
}

func TestLoadReservationConfigOverrides(t *testing.T) {
	t.Setenv("HOLD_TTL", "5m")
	t.Setenv("SWEEP_INTERVAL", "10s")
	t.Setenv("SWEEP_BATCH", "0")
	t.Setenv("SWEEP_LOCK_TTL", "1m")

	cfg := LoadReservationConfig()
	assert.Equal(t, 5*time.Minute, cfg.HoldTTL)
	assert.Equal(t, 10*time.Second, cfg.SweepInterval)
	assert.Equal(t, 200, cfg.SweepBatch)
	// the lease never outlives one sweep period
	assert.Equal(t, 10*time.Second, cfg.SweepLockTTL)
}

func TestLoadEventsConfig(t *testing.T) {
	t.Setenv("EVENT_BROKER", "Kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	cfg := LoadEventsConfig()
	assert.Equal(t, BrokerKafka, cfg.Broker)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "reservations.events", cfg.KafkaTopic)

	t.Setenv("EVENT_BROKER", "sqs")
	assert.Equal(t, BrokerNone, LoadEventsConfig().Broker)

	t.Setenv("EVENT_BROKER", "rabbitmq")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://u:p@mq:5672/")
	assert.Equal(t, "amqp://u:p@mq:5672/", LoadEventsConfig().RabbitURL)
}

func TestLoadHTTPConfigs(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "-3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	rl := LoadRateLimitConfig()
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 5*time.Minute, rl.TTL)

	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("CACHE_ENABLED", "off")
	c := LoadCacheConfig()
	assert.False(t, c.Enabled)
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, c.Methods)
}
