package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BioHazard786/solfa/internal/config"
	"github.com/BioHazard786/solfa/internal/logging"
	"github.com/BioHazard786/solfa/internal/peer"
	"github.com/BioHazard786/solfa/internal/signaling"
)

// ConnectionContext is the relay link of one client.
type ConnectionContext struct {
	Client  *signaling.Client
	Handler *signaling.Handler
	Config  *config.Config
}

func NewConnectionContext(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*ConnectionContext, error) {
	client := signaling.NewClient(cfg.Server, cfg.Codec, logger)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to relay: %w", err)
	}

	handler := signaling.NewHandler(client, logger)
	go handler.Start()

	return &ConnectionContext{
		Client:  client,
		Handler: handler,
		Config:  cfg,
	}, nil
}

func (c *ConnectionContext) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, errors.New("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// NewAPI builds the peer connection factory for cfg. Hosts that look to
// be behind a tunnel or CGNAT are forced onto TURN when one is configured.
func NewAPI(cfg *config.Config, level slog.Level) (*peer.API, error) {
	forceRelay := cfg.ForceRelay
	if !forceRelay && cfg.TURNServer != "" && peer.ShouldForceRelay() {
		slog.Info("tunnel or CGNAT detected, forcing TURN relay")
		forceRelay = true
	}
	return peer.NewAPI(peer.APIOptions{
		STUNServers:   cfg.STUNServers,
		TURNServers:   cfg.GetTURNServers(),
		TURNUser:      cfg.TURNUser,
		TURNPass:      cfg.TURNPass,
		ForceRelay:    forceRelay,
		LoggerFactory: logging.PionFactory(level),
	})
}
