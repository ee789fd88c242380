// Meshcall: CLI entry point.
//
// meshcall join places this process in a full-mesh video call: every other
// participant in the room gets its own WebRTC connection, negotiated through
// a WebSocket relay. meshcall serve runs that relay.
//
// join can be launched interactively (no --room / --username) or fully from
// flags, environment variables and an optional TOML config file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/meshcall/internal/util"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "meshcall",
	Short: "Multi-peer WebRTC video calls over a WebSocket relay",
	Long: `Meshcall joins a room on a signaling relay and opens one peer connection
per participant. Local media is streamed from IVF (VP8/VP9/AV1) and Ogg/Opus
files; remote media is shown as a live participant grid and can be recorded.`,
	Version: version,
}

// Persistent flags.
var (
	flagConfig string
	flagDebug  bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	pterm.Info.Println(fmt.Sprintf("Meshcall v%s", version))
	pterm.Println()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}
