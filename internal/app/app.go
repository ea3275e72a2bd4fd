package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	inboundhttp "github.com/sophialabs/mockexpect/internal/infrastructure/inbound/http"
	"github.com/sophialabs/mockexpect/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/mockexpect/internal/infrastructure/outbound/logging"
	"github.com/sophialabs/mockexpect/internal/infrastructure/wiring"
)

// App is the thin lifecycle manager that delegates dependency construction to wiring.Container.
type App struct {
	cfg        Config
	container  *wiring.Container
	httpServer *http.Server
}

// New validates cfg, loads the expectation files and wires the HTTP server.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.NewText(os.Stdout, cfg.LogLevel)

	container, err := wiring.New(wiring.Params{
		RootDir:             cfg.RootDir,
		TraceSize:           cfg.TraceSize,
		LogBufferSize:       cfg.LogBufferSize,
		LogFile:             cfg.LogFile,
		RedisAddr:           cfg.RedisAddr,
		RedisKeyPrefix:      cfg.RedisKeyPrefix,
		RedisMaxLen:         cfg.RedisMaxLen,
		CapabilityCacheSize: cfg.CapabilityCacheSize,
		DefaultEngine:       cfg.DefaultEngine,
		Server: inboundhttp.Options{
			MaxRawBodyBytes: cfg.MaxRawBodyBytes,
			ActionTimeout:   cfg.ActionTimeout,
			UnmatchedStatus: cfg.UnmatchedStatus,
			DefaultProject:  cfg.DefaultProject,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to wire infrastructure: %w", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      container.Server(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		container:  container,
		httpServer: httpServer,
	}, nil
}

// Run serves HTTP with hot reload until SIGINT/SIGTERM or ctx cancellation,
// then shuts down gracefully and flushes the log sinks.
func (a *App) Run(ctx context.Context) error {
	logger := a.container.Logger()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		a.closeContainer()
		return fmt.Errorf("failed to listen on %s: %w", a.httpServer.Addr, err)
	}

	var wg sync.WaitGroup
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer func() {
		stopWatch()
		wg.Wait()
	}()
	a.startWatcher(watchCtx, &wg)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting mockexpect server", "addr", a.httpServer.Addr, "root", a.cfg.RootDir)
		if err := a.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		a.closeContainer()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.closeContainer()
		return fmt.Errorf("shutdown error: %w", err)
	}
	if err := a.container.Close(shutdownCtx); err != nil {
		return fmt.Errorf("failed to flush log sinks: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func (a *App) startWatcher(ctx context.Context, wg *sync.WaitGroup) {
	logger := a.container.Logger()
	reloadUC := a.container.ReloadUseCase()

	watcher, err := filesystem.NewWatcher(a.container.Store().RootDir(), a.cfg.WatcherDebounce, logger, func() {
		if err := reloadUC.Execute(context.Background()); err != nil {
			logger.Error("hot reload failed", "error", err)
			return
		}
		logger.Info("hot reload complete")
	})
	if err != nil {
		logger.Warn("file watcher not available", "error", err)
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		watcher.Run(ctx)
	}()
	logger.Info("file watcher started", "root", a.cfg.RootDir)
}

func (a *App) closeContainer() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.container.Close(ctx); err != nil {
		a.container.Logger().Warn("failed to flush log sinks", "error", err)
	}
}
