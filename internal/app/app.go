// Package app wires configuration, storage and the intake pipeline into a
// running link keeper.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"linkkeeper/internal/api"
	"linkkeeper/internal/apperr"
	"linkkeeper/internal/bot"
	"linkkeeper/internal/config"
	"linkkeeper/internal/ingest"
	"linkkeeper/internal/intake"
	"linkkeeper/internal/library"
	"linkkeeper/internal/reconcile"
	"linkkeeper/internal/scraper"
	"linkkeeper/internal/storage"
	"linkkeeper/internal/view"
)

const shutdownTimeout = 10 * time.Second

// App owns the store handle and every component built on it.
type App struct {
	cfg config.Config
	log logrus.FieldLogger

	fallback bool

	Store      *storage.Store
	Queue      *intake.Queue
	View       *view.View
	Library    *library.Service
	Reconciler *reconcile.Reconciler
}

// Option configures an App.
type Option func(*App)

// WithMemoryFallback keeps the app running on an in-memory store when the
// on-disk store cannot be opened.
func WithMemoryFallback() Option {
	return func(a *App) { a.fallback = true }
}

// NewLogger builds the JSON logrus logger at the configured level.
func NewLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(cfg.Level())
	return log
}

// New opens the store and builds the components on the shared handle.
func New(ctx context.Context, cfg config.Config, log logrus.FieldLogger, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, log: log.WithField("component", "app")}
	for _, opt := range opts {
		opt(a)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	builder := ingest.NewService()
	a.Store = store
	a.Queue = intake.NewQueue(store.Intake(), log)
	a.View = view.New(store.Links())
	a.Library = library.NewService(store.Links(), store.Categories(), store.Settings(), builder, log)
	a.Reconciler = reconcile.New(store.Intake(), store.Links(), builder, log)

	if cfg.Scraper.Enabled {
		a.Library.SetScraper(scraper.NewRodScraper(log, cfg.Scraper.Timeout))
		a.log.Info("Page enrichment enabled")
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, error) {
	sc := a.cfg.Storage
	if sc.InMemory {
		a.log.Warn("Running with in-memory storage, nothing will persist")
		return storage.OpenInMemory(ctx, a.log)
	}

	opts := storage.DefaultOptions(sc.Path)
	opts.OpenTimeout = sc.OpenTimeout
	store, err := storage.Open(ctx, opts, a.log)
	if err == nil {
		return store, nil
	}
	if !a.fallback || !errors.Is(err, apperr.ErrStorageUnavailable) {
		return nil, err
	}
	a.log.WithError(err).Warn("Storage unavailable, falling back to in-memory store")
	return storage.OpenInMemory(ctx, a.log)
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// Serve runs the HTTP server, the Telegram intake and the reconcile loop
// until ctx is cancelled or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	router := api.NewRouter(api.Deps{
		Queue:      a.Queue,
		View:       a.View,
		Library:    a.Library,
		Reconciler: a.Reconciler,
		Log:        a.log,
	})
	httpServer := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.WithField("address", a.cfg.HTTP.Addr).Info("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		a.log.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.log.WithError(err).Error("HTTP server shutdown error")
		}
		return nil
	})

	if token := a.cfg.Telegram.Token; token != "" {
		botHandler, err := bot.NewHandler(token, a.Queue, a.View, a.log)
		if err != nil {
			a.log.WithError(err).Warn("Telegram intake disabled")
		} else {
			g.Go(func() error {
				botHandler.Start(gCtx)
				return nil
			})
		}
	}

	g.Go(func() error {
		a.ReconcileLoop(gCtx, a.cfg.Reconcile.Interval)
		return nil
	})

	return g.Wait()
}

// ReconcileLoop drains the intake queue now and then every interval, and
// prunes old processed intake after each pass. It returns when ctx is done.
func (a *App) ReconcileLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		a.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *App) tick(ctx context.Context) {
	if _, err := a.Reconciler.Run(ctx); err != nil && ctx.Err() == nil {
		a.log.WithError(err).Error("Reconcile pass failed")
	}
	if a.cfg.Intake.Retention <= 0 {
		return
	}
	if _, err := a.Queue.Prune(ctx, time.Now().Add(-a.cfg.Intake.Retention)); err != nil && ctx.Err() == nil {
		a.log.WithError(err).Warn("Intake prune failed")
	}
}
