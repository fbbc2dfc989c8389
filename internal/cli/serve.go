package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pharmesol/pharmabot/internal/agent"
	"github.com/pharmesol/pharmabot/internal/apiserver"
	"github.com/pharmesol/pharmabot/internal/config"
	"github.com/pharmesol/pharmabot/internal/crm"
	"github.com/pharmesol/pharmabot/internal/gateway"
	"github.com/pharmesol/pharmabot/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port      int
		host      string
		mode      string
		storeType string
		dataDir   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pharmabot API server",
		Long:  "Start the REST API server that hosts conversation sessions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			// 1. Build configuration with CLI overrides.
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("mode") {
				cfg.Agent.Mode = mode
			}
			if cmd.Flags().Changed("store") {
				cfg.Store.Type = storeType
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.Store.DataDir = dataDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			// 2. Create logger.
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			defer logger.Sync()

			// 3. Open the session store.
			sessionStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer sessionStore.Close()

			// 4. Create the gateway and directory clients.
			gw := gateway.NewClient(cfg.Gateway.APIKey, cfg.Gateway.Model, cfg.Gateway.MaxTokens, logger.Named("gateway"))
			directory := crm.NewClient(
				cfg.Directory.BaseURL,
				time.Duration(cfg.Directory.TimeoutSeconds)*time.Second,
				logger.Named("crm"),
			)

			// 5. Create the API server with a per-session engine factory.
			newAgent := func() *agent.Agent {
				return agent.New(gw, directory, cfg.Agent, logger.Named("agent"))
			}
			addr := cfg.ServerAddress()
			apiSrv := apiserver.NewServer(addr, sessionStore, newAgent, cfg.Agent.Mode, logger.Named("apiserver"))

			// 6. Start the session reaper.
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ttl := time.Duration(cfg.Agent.SessionTTLMinutes) * time.Minute
			reaper := apiserver.NewReaper(sessionStore, apiSrv, ttl, logger.Named("reaper"))
			go reaper.Run(ctx)

			// Print startup banner.
			banner := color.New(color.FgCyan, color.Bold)
			banner.Println("Pharmabot")
			fmt.Printf("   API Server:  http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
			fmt.Printf("   Engine Mode: %s\n", cfg.Agent.Mode)
			fmt.Printf("   Store:       %s\n", cfg.Store.Type)
			if cfg.Store.Type == "bolt" {
				fmt.Printf("   DB Path:     %s\n", cfg.DBPath())
			}
			fmt.Println()

			// 7. Start the API server in a goroutine.
			errCh := make(chan error, 1)
			go func() {
				if err := apiSrv.Start(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			// 8. Wait for interrupt signal for graceful shutdown.
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			case err := <-errCh:
				logger.Error("API server error", zap.Error(err))
				return err
			}

			// Graceful shutdown with a 10-second deadline.
			fmt.Println()
			logger.Info("shutting down gracefully...")
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			if err := apiSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("API server shutdown error", zap.Error(err))
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 7272, "port to listen on")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "host to bind to")
	cmd.Flags().StringVar(&mode, "mode", config.ModeLoop, "conversation engine: loop|direct")
	cmd.Flags().StringVar(&storeType, "store", "memory", "session store backend: memory|bolt")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the bolt store")

	return cmd
}

// openStore builds the configured session store backend.
func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Store.Type != "bolt" {
		return store.NewMemoryStore(), nil
	}

	if err := os.MkdirAll(cfg.Store.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", cfg.Store.DataDir, err)
	}
	boltStore, err := store.NewBoltStore(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", cfg.DBPath(), err)
	}
	return boltStore, nil
}
