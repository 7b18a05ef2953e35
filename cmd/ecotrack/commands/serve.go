package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-ecotrack/internal/log"
	"github.com/teslashibe/go-ecotrack/pkg/ecotrack"
)

var (
	addr      string
	staticDir string
	ttsMode   string
	language  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the call screen",
	Long: `Serve the call screen API and websockets.

  GET  /api/status              session status
  POST /api/listen/toggle       start or stop listening
  POST /api/messages            send a typed message
  WS   /ws/status /ws/notices   live status and notices
  WS   /ws/visualizer           orb frames (PNG)
  WS   /ws/mic /ws/speaker      browser microphone in, speech out`,
	RunE: runServe,
}

func init() {
	addServeFlags(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :8080)")
	cmd.Flags().StringVar(&staticDir, "static", "", "directory with the call screen assets")
	cmd.Flags().StringVar(&ttsMode, "tts", "", "speech backend: auto, elevenlabs, openai, none")
	cmd.Flags().StringVar(&language, "lang", "", "conversation language tag (default th-TH)")
}

// applyServeFlags overrides cfg with flags that were set.
func applyServeFlags(cfg *ecotrack.Config) {
	if addr != "" {
		cfg.Web.Addr = addr
	}
	if staticDir != "" {
		cfg.Web.StaticDir = staticDir
	}
	if ttsMode != "" {
		cfg.TTS = ttsMode
	}
	if language != "" {
		cfg.Voice.Language = language
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(&cfg)

	app, err := ecotrack.New(cfg, ecotrack.WithLogger(log.L()))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Web.StaticDir == "" {
		log.Warn("no --static directory, serving the API only")
	}
	log.Info("green is ready", "addr", cfg.Web.Addr)
	return app.Run(ctx)
}
