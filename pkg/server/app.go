package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	xhttp "JewelForecast/pkg/http"
	pkgkafka "JewelForecast/pkg/kafka"
	applogger "JewelForecast/pkg/logger"
	"JewelForecast/pkg/queue"
)

// App is the main application container holding all runtime dependencies.
type App struct {
	l               *applogger.Logger
	httpServer      *xhttp.Server
	jobs            queue.Runner
	consumer        *pkgkafka.Consumer
	handlers        []pkgkafka.MessageHandler
	shutdownTimeout time.Duration
}

// New creates a new App instance. consumer and jobs may be nil.
func New(
	l *applogger.Logger,
	httpServer *xhttp.Server,
	jobs queue.Runner,
	consumer *pkgkafka.Consumer,
	handlers []pkgkafka.MessageHandler,
	shutdownTimeout time.Duration,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	return &App{
		l:               l,
		httpServer:      httpServer,
		jobs:            jobs,
		consumer:        consumer,
		handlers:        handlers,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run starts every component and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	if err := a.start(); err != nil {
		a.shutdown()
		return err
	}
	<-ctx.Done()
	a.l.Info("shutdown signal received")
	a.shutdown()
	return nil
}

func (a *App) start() error {
	if a.jobs != nil {
		if err := a.jobs.Start(); err != nil {
			a.l.Error("job queue start error", applogger.Error(err))
			return err
		}
		a.l.Info("job queue started")
	}

	if a.consumer != nil && len(a.handlers) > 0 {
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
		}
		if err := a.consumer.Start(); err != nil {
			a.l.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	return nil
}

// shutdown stops intake first, then drains workers. Clients are closed by
// the injector cleanup once Run returns.
func (a *App) shutdown() {
	a.l.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.jobs != nil {
		if err := a.jobs.Stop(ctx); err != nil {
			a.l.Warn("job queue stop error", applogger.Error(err))
		}
	}
	a.l.Info("shutdown complete")
}
