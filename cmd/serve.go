package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/solfa/internal/config"
	"github.com/BioHazard786/solfa/internal/relay"
	"github.com/BioHazard786/solfa/internal/server"
)

var (
	flagAddr      string
	flagOrigins   string
	flagMaxBytes  int64
	flagSendQueue int
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling relay",
	Long: `Run the relay that admits members to rooms and forwards their
negotiation messages.

Examples:
  solfa serve
  PORT=8080 solfa serve
  solfa serve --origins https://solfa.example`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServer(config.ServerOptions{
			Addr:            flagAddr,
			AllowedOrigins:  flagOrigins,
			MaxMessageBytes: flagMaxBytes,
			SendQueue:       flagSendQueue,
		})
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg, slog.Default())
	},
}

func serve(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger) error {
	hub := relay.NewHub(logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)
	defer func() {
		stopHub()
		<-hub.Done()
	}()

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: server.NewHandler(hub, server.Options{
			AllowedOrigins:  cfg.AllowedOrigins,
			MaxMessageBytes: cfg.MaxMessageBytes,
			SendQueue:       cfg.SendQueue,
			Logger:          logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay listening", "addr", cfg.Addr, "origins", cfg.AllowedOrigins)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve %s: %w", cfg.Addr, err)
	case <-ctx.Done():
	}

	logger.Info("relay shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&flagAddr, "addr", "a", "", "Listen address (default :3001, env PORT)")
	serveCmd.Flags().StringVarP(&flagOrigins, "origins", "o", "", "Comma separated allowed origins (default *)")
	serveCmd.Flags().Int64Var(&flagMaxBytes, "max-message-bytes", 0, "Largest accepted relay message")
	serveCmd.Flags().IntVar(&flagSendQueue, "send-queue", 0, "Messages buffered per member before it is dropped")
}
