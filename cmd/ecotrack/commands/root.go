package commands

import (
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-ecotrack/internal/log"
	"github.com/teslashibe/go-ecotrack/pkg/ecotrack"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
)

// rootCmd serves the call screen when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "ecotrack",
	Short: "EcoTrack Green voice assistant",
	Long: `EcoTrack Green - a voice assistant for waste and resource services.

Green listens through the browser microphone, answers with a chat model
and speaks the reply while an audio-reactive orb follows the call.

Examples:
  # Serve the call screen on :8080
  ecotrack --static ./web

  # Talk to Green from the terminal
  ecotrack chat

  # Render one orb frame
  ecotrack render --mode speaking --out orb.png
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	addServeFlags(rootCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(renderCmd)
}

// loadConfig reads the config file and environment, then initializes
// logging. Flags are applied by the caller.
func loadConfig() (ecotrack.Config, error) {
	cfg, err := ecotrack.Load(cfgFile)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log.Init(cfg.LogLevel)
	return cfg, nil
}
