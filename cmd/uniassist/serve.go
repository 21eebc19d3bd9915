package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/uniassist/api"
	"github.com/use-agent/uniassist/cleaner"
)

var serveRefreshEvery time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Starts the HTTP API. With --refresh-every, all active sources are
refreshed and the index rebuilt on that interval while the server runs.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&serveRefreshEvery, "refresh-every", 0, "refresh interval for all sources (0 disables)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	slog.Info("uniassist starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"engines", cfg.Browser.Engines,
	)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.llm.Available(ctx) {
		slog.Warn("generation model not available, chat will fail until it is pulled", "model", a.llm.Model())
	}

	startTime := time.Now()
	router := api.NewRouter(api.Deps{
		Store:     a.store,
		Pipeline:  a.pipeline,
		Index:     a.index,
		Assistant: a.assistant,
		Renderer:  cleaner.NewRenderer(),
		ChatModel: a.llm.Model(),
	}, cfg, startTime)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if serveRefreshEvery > 0 {
		go refreshLoop(ctx, a, serveRefreshEvery)
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	// Give in-flight requests 5 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("uniassist stopped")
	return nil
}

// refreshLoop refreshes every active source and rebuilds the index each
// interval until ctx is done.
func refreshLoop(ctx context.Context, a *app, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		stats, err := a.pipeline.RefreshAll(ctx)
		if err != nil {
			slog.Warn("scheduled refresh: some sources failed", "sources", len(stats), "error", err)
		}
		if ctx.Err() != nil {
			return
		}
		n, err := a.pipeline.RebuildIndex(ctx)
		if err != nil {
			slog.Error("scheduled refresh: rebuild index", "error", err)
			continue
		}
		slog.Info("scheduled refresh finished", "sources", len(stats), "indexed", n)
	}
}
