//go:build wireinject
// +build wireinject

package di

import (
	domrepo "Pattas/internal/domain/repository"
	"Pattas/pkg/config"
	"Pattas/pkg/metrics"
	"Pattas/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// The cleanup releases infrastructure clients in reverse order.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Logging and metrics
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,
		wire.Bind(new(domrepo.Metrics), new(*metrics.Recorder)),

		// Infrastructure clients
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideLogShipping,

		// Repositories
		ProvideSnapshotStore,
		ProvideNewsFile,
		ProvideRunStore,
		ProvideRunLock,
		ProvideLastRunStore,
		ProvideRunPublisher,

		// Use cases
		ProvideRunner,
		ProvideAnalysisService,
		ProvideSnapshotService,

		// Transport
		ProvideLimiter,
		ProvideHealthChecks,
		ProvideHTTPHandler,
		ProvideHTTPServer,
		ProvideScanRequestHandler,
		ProvideKafkaConsumer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
