package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-ecotrack/internal/log"
	"github.com/teslashibe/go-ecotrack/pkg/ecotrack"
	"github.com/teslashibe/go-ecotrack/pkg/visualizer"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to Green by typing",
	Long: `Start a text-only dialog in the terminal. Each line is sent as a user
message and Green's reply is printed. Speech output is disabled.

Example:
  ecotrack chat --log-level warn`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.TTS = ecotrack.TTSNone

		app, err := ecotrack.New(cfg,
			ecotrack.WithLogger(log.L()),
			ecotrack.WithScheduler(visualizer.NewManualScheduler()),
		)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return app.Chat(ctx, os.Stdin, cmd.OutOrStdout())
	},
}
