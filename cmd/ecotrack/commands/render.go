package commands

import (
	"fmt"
	"image/png"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-ecotrack/pkg/visualizer"
)

var (
	renderMode   string
	renderOut    string
	renderWidth  int
	renderHeight int
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render one orb frame to PNG",
	Long: `Render a single visualizer frame. Listening frames have no microphone
here, so they show the base orb.

Example:
  ecotrack render --mode speaking --width 1280 --height 720 --out orb.png`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := visualizer.ParseMode(renderMode)
		if err != nil {
			return err
		}
		if renderWidth <= 0 || renderHeight <= 0 {
			return fmt.Errorf("width and height must be positive")
		}

		v := visualizer.New(
			visualizer.WithScheduler(visualizer.NewManualScheduler()),
			visualizer.WithViewport(renderWidth, renderHeight),
		)
		frame := v.Snapshot(mode)

		f, err := os.Create(renderOut)
		if err != nil {
			return err
		}
		if err := png.Encode(f, frame.Image); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %dpx)\n", renderOut, mode, v.Size())
		return nil
	},
}

func init() {
	renderCmd.Flags().StringVar(&renderMode, "mode", "idle", "orb mode: idle, listening, speaking")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "orb.png", "output PNG file")
	renderCmd.Flags().IntVar(&renderWidth, "width", visualizer.DefaultViewportWidth, "viewport width")
	renderCmd.Flags().IntVar(&renderHeight, "height", visualizer.DefaultViewportHeight, "viewport height")
}
