// Package main runs the EcoTrack Green voice assistant.
//
// Usage:
//
//	ecotrack [serve] [flags]   - serve the call screen (default)
//	ecotrack chat              - typed dialog in the terminal
//	ecotrack render --mode speaking --out orb.png
//
// Configuration comes from .env, an optional YAML file (--config) and
// environment variables such as OPENAI_API_KEY, DEEPGRAM_API_KEY and
// ELEVENLABS_API_KEY.
package main

import (
	"fmt"
	"os"

	"github.com/teslashibe/go-ecotrack/cmd/ecotrack/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
