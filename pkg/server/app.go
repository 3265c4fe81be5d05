package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"Pattas/pkg/config"
	xhttp "Pattas/pkg/http"
	pkgkafka "Pattas/pkg/kafka"
	applogger "Pattas/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	scan       pkgkafka.MessageHandler
}

// New creates a new App. consumer and scan may be nil when scan requests
// over Kafka are disabled.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	scan pkgkafka.MessageHandler,
) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	return &App{
		cfg:        cfg,
		log:        l,
		httpServer: httpServer,
		consumer:   consumer,
		scan:       scan,
	}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the application and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	if a.consumer != nil && a.scan != nil {
		a.consumer.RegisterHandler(a.scan)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.scan.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("pattas dashboard started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("addr", a.httpServer.Addr()),
	)

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops the HTTP server first so no new runs are admitted, then
// the consumer. Infrastructure clients are released by the DI cleanup.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.log.Info("shutting down...")

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
