package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chathive/internal/account"
	"chathive/internal/api"
	"chathive/internal/config"
	"chathive/internal/membership"
	"chathive/internal/presence"
	"chathive/internal/realtime"
)

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *options) error {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return err
	}
	log := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("Closing store...")
		_ = st.Close()
	}()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	coord := realtime.NewCoordinator(
		realtime.NewHub(), presence.NewRegistry(), membership.NewTable(), st, st,
		realtime.Options{MaxContentLength: cfg.MaxContentLength, SendTimeout: cfg.SendTimeout},
		log,
	)
	ws := realtime.NewHandler(coord, realtime.HandlerConfig{
		AllowedOrigins: cfg.Origins(),
		SendBufferSize: cfg.SendBufferSize,
		MaxMessageSize: cfg.WSMaxMessageSize,
	}, log)
	server := api.New(account.NewService(st, cfg.BcryptCost, log), st, st, coord, ws, api.Config{
		HistoryDefaultLimit: cfg.HistoryDefaultLimit,
		HistoryMaxLimit:     cfg.HistoryMaxLimit,
		StaticDir:           cfg.StaticDir,
	}, log)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting server", "address", cfg.Addr(), "store", cfg.StoreDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := ws.Shutdown(shutdownCtx); err != nil {
		log.Warn("Websocket shutdown incomplete", "error", err)
	}
	log.Info("Server stopped cleanly")
	return nil
}
