package di

import (
	"testing"

	internalrepo "Pattas/internal/repository"
	"Pattas/pkg/cache"
	"Pattas/pkg/config"
	applogger "Pattas/pkg/logger"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("config.Default() returned error: %v", err)
	}
	return cfg
}

func TestOptionalBackendsFallBack(t *testing.T) {
	cfg := defaultConfig(t)
	l := applogger.NewNop()

	c, cleanup, err := ProvideCache(cfg, l)
	if err != nil {
		t.Fatalf("ProvideCache() returned error: %v", err)
	}
	defer cleanup()
	if _, ok := c.(*cache.MemoryCache); !ok {
		t.Errorf("ProvideCache() = %T, want *cache.MemoryCache", c)
	}

	ch, chCleanup, err := ProvideClickHouseClient(cfg, l)
	if err != nil || ch != nil {
		t.Fatalf("ProvideClickHouseClient() = %v, %v; want nil, nil", ch, err)
	}
	chCleanup()

	if _, ok := ProvideRunStore(cfg, nil, l).(*internalrepo.MemoryRunStore); !ok {
		t.Error("ProvideRunStore() without ClickHouse should use the memory store")
	}

	producer, pCleanup, err := ProvideKafkaProducer(cfg, ProvideRegistry(), l)
	if err != nil || producer != nil {
		t.Fatalf("ProvideKafkaProducer() = %v, %v; want nil, nil", producer, err)
	}
	pCleanup()

	if _, ok := ProvideRunPublisher(cfg, nil).(internalrepo.NoopRunPublisher); !ok {
		t.Error("ProvideRunPublisher() without Kafka should be a no-op")
	}
	if h := ProvideScanRequestHandler(cfg, nil, l); h != nil {
		t.Error("ProvideScanRequestHandler() should be nil when Kafka is disabled")
	}
	consumer, err := ProvideKafkaConsumer(cfg, nil, ProvideRegistry(), l)
	if err != nil || consumer != nil {
		t.Errorf("ProvideKafkaConsumer() = %v, %v; want nil, nil", consumer, err)
	}
	if ProvideLimiter(cfg) != nil {
		t.Error("ProvideLimiter() should be nil when rate limiting is disabled")
	}
}

func TestProvideLimiterEnabled(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.RateLimit.Enabled = true

	lim := ProvideLimiter(cfg)
	if lim == nil {
		t.Fatal("ProvideLimiter() = nil, want a limiter")
	}
	if !lim.Allow("10.0.0.1") {
		t.Error("first request should be allowed")
	}
}

func TestProvideRunnerUsesConfiguredCommand(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Runner.Command = "sh -c 'echo hi'"
	cfg.Runner.Dir = t.TempDir()

	r, err := ProvideRunner(cfg, applogger.NewNop())
	if err != nil {
		t.Fatalf("ProvideRunner() returned error: %v", err)
	}
	cmd := r.Command()
	if cmd.Path != "sh" || len(cmd.Args) != 2 || cmd.Args[1] != "echo hi" {
		t.Errorf("Command() = %+v", cmd)
	}
}

func TestProvideHealthChecksMemoryCache(t *testing.T) {
	checks := ProvideHealthChecks(nil, cache.NewMemoryCache(), nil)
	if _, ok := checks["sqlite"]; !ok {
		t.Error("sqlite check missing")
	}
	if _, ok := checks["redis"]; ok {
		t.Error("redis check present without Redis")
	}
	if _, ok := checks["clickhouse"]; ok {
		t.Error("clickhouse check present without ClickHouse")
	}
}
