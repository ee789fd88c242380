package main

import (
	"github.com/spf13/cobra"

	"github.com/1ureka/meshcall/internal/config"
	"github.com/1ureka/meshcall/internal/relay"
	"github.com/1ureka/meshcall/internal/util"
)

var (
	flagListen       string
	flagMaxRoomPeers int
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"relay"},
	Short:   "Run the signaling relay",
	Long: `Run the WebSocket relay that call participants connect to. Clients join a
room with /ws?roomid=<room>&username=<name>; the relay forwards envelopes
between members of the same room.`,
	Example: `  meshcall serve --listen :8080 --max-room-peers 6`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(config.Options{
			ConfigFile:   flagConfig,
			ListenAddr:   flagListen,
			MaxRoomPeers: flagMaxRoomPeers,
			Debug:        flagDebug,
		})
		if err != nil {
			return err
		}
		if cfg.Debug {
			util.EnableDebug()
		}

		srv := relay.NewServer(cfg.ListenAddr, relay.NewHub(cfg.MaxRoomPeers))

		if err := srv.ListenAndServe(cmd.Context()); err != nil {
			return err
		}
		util.LogInfo("relay stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVarP(&flagListen, "listen", "l", "", "Address to listen on (default :8080)")
	serveCmd.Flags().IntVar(&flagMaxRoomPeers, "max-room-peers", 0, "Maximum participants per room (default 8, negative for unlimited)")
}
