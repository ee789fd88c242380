package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/meshcall/internal/call"
	"github.com/1ureka/meshcall/internal/config"
	"github.com/1ureka/meshcall/internal/media"
	"github.com/1ureka/meshcall/internal/protocol"
	"github.com/1ureka/meshcall/internal/signaling"
	"github.com/1ureka/meshcall/internal/transport"
	"github.com/1ureka/meshcall/internal/ui"
	"github.com/1ureka/meshcall/internal/util"
)

var (
	flagServer    string
	flagRoom      string
	flagUsername  string
	flagVideo     string
	flagAudio     string
	flagRecordDir string
	flagSTUN      []string
	flagTURN      string
	flagTURNUser  string
	flagTURNPass  string
	flagTimeout   string
	flagNoLoop    bool
)

var joinCmd = &cobra.Command{
	Use:     "join",
	Aliases: []string{"j", "call"},
	Short:   "Join a room and start a video call",
	Long: `Join a room on the relay and exchange media with every participant in it.
When --room or --username is missing you are prompted for them.`,
	Example: `  meshcall join --room 42 --username alice --video cam.ivf --audio mic.ogg
  meshcall join --server wss://relay.example.com --record-dir ./recordings`,
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().StringVarP(&flagServer, "server", "s", "", "Relay URL (ws://, wss:// or host[:port])")
	joinCmd.Flags().StringVarP(&flagRoom, "room", "r", "", "Room ID")
	joinCmd.Flags().StringVarP(&flagUsername, "username", "u", "", "Display name requested from the relay")
	joinCmd.Flags().StringVar(&flagVideo, "video", "", "IVF file used as the camera")
	joinCmd.Flags().StringVar(&flagAudio, "audio", "", "Ogg/Opus file used as the microphone")
	joinCmd.Flags().StringVar(&flagRecordDir, "record-dir", "", "Record remote tracks into this directory")
	joinCmd.Flags().StringArrayVar(&flagSTUN, "stun", nil, "STUN server (repeatable)")
	joinCmd.Flags().StringVar(&flagTURN, "turn", "", "TURN server, turn:host[:port] or turns:host[:port] (ports default to 3478 / 5349)")
	joinCmd.Flags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	joinCmd.Flags().StringVar(&flagTimeout, "negotiation-timeout", "", "Drop peers not connected within this duration (e.g. 30s, -1s to disable)")
	joinCmd.Flags().BoolVar(&flagNoLoop, "no-loop", false, "Stop sending when the media files end")
}

func runJoin(cmd *cobra.Command, _ []string) error {
	opts := config.Options{
		ConfigFile:  flagConfig,
		ServerURL:   flagServer,
		RoomID:      flagRoom,
		Username:    flagUsername,
		VideoFile:   flagVideo,
		AudioFile:   flagAudio,
		RecordDir:   flagRecordDir,
		STUNServers: flagSTUN,
		TURNServer:  flagTURN,
		TURNUser:    flagTURNUser,
		TURNPass:    flagTURNPass,
		Debug:       flagDebug,
	}
	if flagTimeout != "" {
		d, err := time.ParseDuration(flagTimeout)
		if err != nil {
			return fmt.Errorf("invalid --negotiation-timeout %q: %w", flagTimeout, err)
		}
		opts.NegotiationTimeout = d
	}

	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}
	if cfg.Debug {
		util.EnableDebug()
	}

	if cfg.RoomID == "" {
		cfg.RoomID = askRoom()
	}
	if cfg.Username == "" {
		cfg.Username = askUsername()
	}

	return runCall(cmd.Context(), cfg)
}

// ---------------------------------------------------------------------------
// Call
// ---------------------------------------------------------------------------

// runCall wires the session to real media, signaling and transports and
// blocks until the call ends.
func runCall(ctx context.Context, cfg *config.Config) error {
	api, err := transport.NewAPI(cfg)
	if err != nil {
		return err
	}

	grid := ui.NewGrid(cfg.RecordDir)
	room := protocol.RoomID(cfg.RoomID)

	session := call.New(call.Options{
		Self:               protocol.ParticipantID(cfg.Username),
		Room:               room,
		NegotiationTimeout: cfg.NegotiationTimeout,
	}, call.Deps{
		Acquire: func(ctx context.Context) (call.LocalMedia, error) {
			stream, err := media.Acquire(ctx, media.Constraints{
				VideoFile: cfg.VideoFile,
				AudioFile: cfg.AudioFile,
				Loop:      !flagNoLoop,
			})
			if err != nil {
				return nil, err
			}
			return stream, nil
		},
		Connect: func(ctx context.Context, h signaling.Handlers) (call.Signaler, error) {
			ch, err := signaling.Open(ctx, signaling.Options{
				ServerURL: cfg.ServerURL,
				RoomID:    room,
				Username:  cfg.Username,
			}, h)
			if err != nil {
				return nil, err
			}
			return ch, nil
		},
		Dial: func(ctx context.Context, id protocol.ParticipantID, tracks []webrtc.TrackLocal, h transport.Handlers) (call.PeerConn, error) {
			t, err := api.NewTransport(ctx, id, tracks, h)
			if err != nil {
				return nil, err
			}
			return t, nil
		},
		View: grid,
	})

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("cannot access local media: %w", err)
	}
	if err := session.Call(ctx); err != nil {
		return fmt.Errorf("failed to join room %s: %w", cfg.RoomID, err)
	}

	util.LogSuccess("Joined room %s as %s, press Ctrl+C to hang up", cfg.RoomID, cfg.Username)
	util.StartStatsReporter(ctx)

	gridCtx, stopGrid := context.WithCancel(ctx)
	defer stopGrid()
	go grid.Run(gridCtx)

	// An interrupt cancels ctx, which the session treats as a local hangup.
	<-session.Done()
	stopGrid()

	util.LogInfo("successfully left the call")
	return nil
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// askRoom prompts for a room ID, offering a random one between 1 and 100.
func askRoom() string {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Enter a room ID", "Random room (1 ~ 100)"}).
		WithDefaultText("Which room do you want to join?").
		Show()

	pterm.Println()

	if strings.HasPrefix(choice, "Random") {
		room := strconv.Itoa(rand.IntN(100) + 1)
		util.LogInfo("Joining random room %s", room)
		return room
	}

	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Room ID").
			Show()

		if room := strings.TrimSpace(raw); room != "" {
			pterm.Println()
			return room
		}

		util.LogWarning("room ID cannot be empty")
		pterm.Println()
	}
}

// askUsername prompts for a display name until a non-empty one is entered.
func askUsername() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Username").
			Show()

		if name := strings.TrimSpace(raw); name != "" {
			pterm.Println()
			return name
		}

		util.LogWarning("username cannot be empty")
		pterm.Println()
	}
}
