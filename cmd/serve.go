package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/safe-audit/internal/api"
	"github.com/khanhnv2901/safe-audit/internal/application/analysis"
	"github.com/khanhnv2901/safe-audit/internal/domain/chain"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run safe-audit as a REST API service",
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		addr, _ := cmd.Flags().GetString("addr")
		authToken, _ := cmd.Flags().GetString("auth-token")
		shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")
		corsOrigins, _ := cmd.Flags().GetStringSlice("cors-origins")
		rateLimit, _ := cmd.Flags().GetInt("rate-limit")
		rateBurst, _ := cmd.Flags().GetInt("rate-burst")

		logger := appCtx.Logger.Desugar().Named("api")
		services := appCtx.Services

		runner := &analysis.Runner{
			Concurrency: appCtx.Config.Analyze.Concurrency,
			RateLimit:   appCtx.Config.Analyze.RateLimit,
			Timeout:     appCtx.Config.analysisTimeout(),
		}
		jobManager := api.NewJobManager(services.Orchestrator, runner, logger.Named("jobs"))
		defer jobManager.Close()

		server := api.NewServer(api.Config{
			Analyzer:    services.Orchestrator,
			Registry:    services.Registry,
			Health:      registryHealth{registry: services.Registry},
			Jobs:        jobManager,
			AuthToken:   authToken,
			Logger:      logger,
			CORSOrigins: corsOrigins,
			RateLimit:   rateLimit,
			RateBurst:   rateBurst,
		})
		defer server.Close()

		httpServer := &http.Server{
			Addr:              addr,
			Handler:           server,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		serverErrors := make(chan error, 1)

		go func() {
			fmt.Printf("%s API server listening on %s (%d chains)\n", colorInfo("→"), addr, services.Registry.Len())
			fmt.Printf("%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
			serverErrors <- httpServer.ListenAndServe()
		}()

		// The root command context is cancelled on SIGINT/SIGTERM.
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case <-cmd.Context().Done():
			fmt.Printf("\n%s Shutdown requested, draining connections...\n", colorInfo("→"))

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(ctx); err != nil {
				if closeErr := httpServer.Close(); closeErr != nil {
					return fmt.Errorf("failed to gracefully shutdown server: %w (close error: %v)", err, closeErr)
				}
				return fmt.Errorf("failed to gracefully shutdown server: %w", err)
			}

			fmt.Printf("%s Server shutdown complete\n", colorInfo("✓"))
		}

		return nil
	},
}

type registryHealth struct {
	registry *chain.Registry
}

func (h registryHealth) Check(ctx context.Context) error {
	if h.registry == nil || h.registry.Len() == 0 {
		return errors.New("chain registry is empty")
	}
	return nil
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Address for the API server")
	serveCmd.Flags().String("auth-token", "", "Optional shared secret for API requests")
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	serveCmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (empty = allow all)")
	serveCmd.Flags().Int("rate-limit", 10, "Rate limit per IP (requests/second, 0 = disabled)")
	serveCmd.Flags().Int("rate-burst", 20, "Rate limit burst size")
	rootCmd.AddCommand(serveCmd)
}
