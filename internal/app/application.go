// Package app wires the coordinator's components together and owns their
// start/stop order.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"classboard/internal/api"
	"classboard/internal/config"
	"classboard/internal/gateway"
	"classboard/internal/history"
	"classboard/internal/registry"
	"classboard/internal/transfer"
)

// Application holds every component. Initialization order follows the
// dependency chain: history -> registry -> transfers -> gateway -> API ->
// HTTP server.
type Application struct {
	cfg        *config.Config
	hist       *history.Log
	reg        *registry.Registry
	transfers  *transfer.Coordinator
	gw         *gateway.Gateway
	httpServer *http.Server

	sweepCancel context.CancelFunc
}

// NewApplication constructs all components from configuration. The registry
// is built here and threaded through explicitly; no package holds ambient
// room state.
func NewApplication(cfg *config.Config) (*Application, error) {
	var hist *history.Log
	if cfg.HistoryEnabled {
		var err error
		hist, err = history.Open(cfg.HistoryDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open history log: %w", err)
		}
	}

	reg := registry.New()
	transfers := transfer.New(cfg.TransferTimeout)
	gw := gateway.New(reg, transfers, hist, gateway.Options{
		MaxFrameBytes: cfg.MaxFrameBytes,
		PingInterval:  cfg.PingInterval,
		PongWait:      cfg.PongWait,
		WriteWait:     cfg.WriteWait,
		SweepInterval: cfg.SweepInterval,
	})
	apiServer := api.NewServer(gw, reg, transfers, hist)

	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.HTTPServerPort),
		Handler:     apiServer,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: it would sever long-lived WebSocket connections.
	}

	return &Application{
		cfg:        cfg,
		hist:       hist,
		reg:        reg,
		transfers:  transfers,
		gw:         gw,
		httpServer: httpServer,
	}, nil
}

// Start launches the transfer-deadline sweeper and the HTTP server, and
// verifies the listener came up before returning.
func (app *Application) Start(ctx context.Context) error {
	sweepCtx, cancel := context.WithCancel(ctx)
	app.sweepCancel = cancel
	go app.gw.RunSweeper(sweepCtx)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		cancel()
		return err
	case <-time.After(100 * time.Millisecond):
		zap.L().Info("classboard started", zap.String("addr", app.httpServer.Addr))
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Stop shuts components down in reverse order: HTTP first so no new
// connections arrive, then the sweeper, then the history log.
func (app *Application) Stop(ctx context.Context) error {
	zap.L().Info("shutting down classboard")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		zap.L().Error("HTTP shutdown error", zap.Error(err))
	}
	if app.sweepCancel != nil {
		app.sweepCancel()
	}
	if err := app.hist.Close(); err != nil {
		zap.L().Error("history close error", zap.Error(err))
	}

	zap.L().Info("classboard shutdown complete")
	return nil
}

// Addr returns the HTTP listen address.
func (app *Application) Addr() string { return app.httpServer.Addr }
