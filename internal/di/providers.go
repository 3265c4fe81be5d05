package di

import (
	"context"
	"fmt"
	"time"

	domrepo "Pattas/internal/domain/repository"
	"Pattas/internal/handler/api"
	"Pattas/internal/handler/consumer"
	internalrepo "Pattas/internal/repository"
	"Pattas/internal/runner"
	"Pattas/internal/service/ratelimit"
	"Pattas/internal/usecase"
	"Pattas/pkg/cache"
	pkgch "Pattas/pkg/clickhouse"
	"Pattas/pkg/config"
	xhttp "Pattas/pkg/http"
	pkgkafka "Pattas/pkg/kafka"
	applogger "Pattas/pkg/logger"
	"Pattas/pkg/metrics"
	"Pattas/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const schemaTimeout = 30 * time.Second

// LogShipping marks that error log aggregation has been attached to the
// logger. Its cleanup flushes the collector before the producer closes.
type LogShipping struct{}

// ProvideLogger builds the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideRegistry creates the Prometheus registry served at /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.NewWithRegistry(reg)
}

// ProvideCache returns Redis when enabled so the run lock is shared across
// replicas, otherwise a process-local cache.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		c := cache.NewMemoryCache(cache.WithMemoryMaxSize(1000), cache.WithMemoryCleanup(time.Minute))
		return c, func() { _ = c.Close() }, nil
	}

	c, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	l.Info("redis: connected", applogger.String("addr", cfg.Redis.Addr))

	return c, func() {
		if err := c.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}, nil
}

// ProvideClickHouseClient creates the ClickHouse client and ensures the run
// history table exists. Returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.RunSchema); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse: connected and schema ready", applogger.String("db", cfg.ClickHouse.Database))

	return client, func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}, nil
}

// ProvideKafkaProducer creates the Kafka producer, or nil when Kafka is
// disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatch(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	l.Info("kafka: producer ready", applogger.Strings("brokers", cfg.Kafka.Brokers))

	return producer, func() {
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}, nil
}

// ProvideLogShipping attaches the error log collector when a logs topic is
// configured.
func ProvideLogShipping(cfg *config.Config, l *applogger.Logger, producer *pkgkafka.Producer) (LogShipping, func()) {
	if producer == nil || cfg.Kafka.LogsTopic == "" {
		return LogShipping{}, func() {}
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          cfg.Kafka.LogsTopic,
		Publisher:      internalrepo.NewKafkaLogPublisher(producer),
	})
	return LogShipping{}, l.RemoveCollector
}

// ProvideRunPublisher publishes run lifecycle events to Kafka when enabled.
func ProvideRunPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.RunEventPublisher {
	if producer == nil {
		return internalrepo.NoopRunPublisher{}
	}
	return internalrepo.NewKafkaRunPublisher(producer, cfg.Kafka.EventsTopic)
}

// ProvideRunStore keeps run history in ClickHouse when available, otherwise
// in a bounded in-memory ring.
func ProvideRunStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) domrepo.RunStore {
	if ch == nil {
		return internalrepo.NewMemoryRunStore(cfg.Runner.HistorySize)
	}
	return internalrepo.NewClickHouseRunStore(ch, l)
}

func ProvideRunLock(cfg *config.Config, c cache.Service) domrepo.RunLock {
	return internalrepo.NewCacheRunLock(c, cfg.Runner.LockTTL)
}

func ProvideLastRunStore(c cache.Service) domrepo.LastRunStore {
	return internalrepo.NewCacheLastRun(c, 0)
}

// ProvideRunner builds the analysis command runner.
func ProvideRunner(cfg *config.Config, l *applogger.Logger) (*runner.Runner, error) {
	args, err := cfg.CommandArgs()
	if err != nil {
		return nil, err
	}
	cmd, err := runner.NewCommand(args, cfg.Runner.Dir, cfg.RunnerEnv())
	if err != nil {
		return nil, err
	}
	return runner.New(cmd, runner.Config{
		ReadBuffer: cfg.Runner.ReadBuffer,
		QueueSize:  cfg.Runner.QueueSize,
		Timeout:    cfg.Runner.Timeout,
		WaitDelay:  cfg.Runner.WaitDelay,
	}, l), nil
}

// ProvideAnalysisService creates the analysis run use case.
func ProvideAnalysisService(
	cfg *config.Config,
	r *runner.Runner,
	lock domrepo.RunLock,
	runs domrepo.RunStore,
	last domrepo.LastRunStore,
	events domrepo.RunEventPublisher,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.AnalysisService {
	return usecase.NewAnalysisService(r, lock, runs, last, events, m, l, usecase.AnalysisConfig{
		Exclusive:    cfg.Runner.Exclusive,
		LockTTL:      cfg.Runner.LockTTL,
		CompleteHold: cfg.Runner.CompleteHold,
	})
}

// ProvideSnapshotStore opens the screening database read-only.
func ProvideSnapshotStore(cfg *config.Config, l *applogger.Logger) (*internalrepo.SQLiteSnapshotStore, func(), error) {
	store, err := internalrepo.NewSQLiteSnapshotStore(cfg.Storage.DatabasePath, cfg.Storage.BusyTimeout, l)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: %w", err)
	}
	return store, func() {
		if err := store.Close(); err != nil {
			l.Warn("sqlite close error", applogger.Error(err))
		}
	}, nil
}

func ProvideNewsFile(cfg *config.Config, l *applogger.Logger) *internalrepo.NewsFile {
	return internalrepo.NewNewsFile(cfg.Storage.NewsPath, l)
}

// ProvideSnapshotService creates the snapshot read use case.
func ProvideSnapshotService(
	store *internalrepo.SQLiteSnapshotStore,
	news *internalrepo.NewsFile,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.SnapshotService {
	return usecase.NewSnapshotService(store, news, m, l)
}

// ProvideLimiter returns nil when rate limiting is disabled.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.Burst, cfg.RateLimit.PerMinute)
}

// ProvideHealthChecks lists the dependencies reported by /health.
func ProvideHealthChecks(store *internalrepo.SQLiteSnapshotStore, c cache.Service, ch *pkgch.Client) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"sqlite": store.Ping,
	}
	if rc, ok := c.(*cache.RedisCache); ok {
		checks["redis"] = func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}
	}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	return checks
}

// ProvideHTTPHandler composes every route group.
func ProvideHTTPHandler(
	l *applogger.Logger,
	analysis *usecase.AnalysisService,
	snapshot *usecase.SnapshotService,
	limiter *ratelimit.Limiter,
	checks map[string]api.HealthCheck,
) xhttp.Handler {
	return xhttp.Handlers{
		api.NewUIEchoHandler(),
		api.NewAnalyzeEchoHandler(l, analysis, limiter),
		api.NewStocksEchoHandler(l, snapshot),
		api.NewRunsEchoHandler(l, analysis),
		api.NewHealthEchoHandler(checks),
	}
}

// ProvideHTTPServer creates the Echo server from the server section.
func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, l *applogger.Logger, reg *prometheus.Registry) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithLogger(l),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest, "/analyze", "/analyze/ws"),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg))
	}
	return xhttp.NewServer(h, opts...)
}

// ProvideScanRequestHandler returns nil unless a scan topic is configured.
func ProvideScanRequestHandler(cfg *config.Config, analysis *usecase.AnalysisService, l *applogger.Logger) *consumer.ScanRequestHandler {
	if !cfg.Kafka.Enabled || cfg.Kafka.ScanTopic == "" {
		return nil
	}
	return consumer.NewScanRequestHandler(cfg.Kafka.ScanTopic, analysis, l)
}

// ProvideKafkaConsumer creates a consumer for scan requests, or nil when
// there is nothing to consume.
func ProvideKafkaConsumer(cfg *config.Config, h *consumer.ScanRequestHandler, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if h == nil {
		return nil, nil
	}
	c, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerLogger(l),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return c, nil
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	c *pkgkafka.Consumer,
	h *consumer.ScanRequestHandler,
	_ LogShipping,
) *server.App {
	var scan pkgkafka.MessageHandler
	if h != nil {
		scan = h
	}
	return server.New(cfg, l, srv, c, scan)
}
