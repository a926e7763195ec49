package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/solfa/internal/logging"
	"github.com/BioHazard786/solfa/internal/ui"
	"github.com/BioHazard786/solfa/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "solfa",
	Short:   "Voice rooms named by three notes, peer to peer over WebRTC",
	Long:    `solfa connects everyone in a room, e.g. do-mi-sol, with a direct WebRTC session per pair of members. A small relay introduces members and forwards their negotiation; audio and avatar telemetry flow peer to peer.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelError
		if cmd.Name() == "serve" {
			level = slog.LevelInfo
		}
		return logging.Init(level)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// An interrupt cancels the command's context so rooms are left cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
