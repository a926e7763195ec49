package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/solfa/internal/avatar"
	"github.com/BioHazard786/solfa/internal/config"
	"github.com/BioHazard786/solfa/internal/logging"
	"github.com/BioHazard786/solfa/internal/media"
	"github.com/BioHazard786/solfa/internal/mesh"
	"github.com/BioHazard786/solfa/internal/room"
	"github.com/BioHazard786/solfa/internal/telemetry"
	"github.com/BioHazard786/solfa/internal/ui"
)

var (
	flagServer   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagCodec    string
	flagAudio    string
	flagTone     float64
	flagPlain    bool
)

// poseInterval paces the local orbit; the telemetry sender throttles on
// top of it.
const poseInterval = 50 * time.Millisecond

var joinCmd = &cobra.Command{
	Use:     "join [room]",
	Aliases: []string{"j"},
	Short:   "Join a room, or open a new one",
	Long: `Join a voice room named by three solfège notes. Without a room a
random one is opened and its name printed for others to join.

Examples:
  solfa join
  solfa join do-mi-sol
  solfa join "Re Fa La" --audio voice.pcm
  solfa join do-re-mi --server wss://relay.example/ws --codec msgpack`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := room.RandomToken()
		if len(args) == 1 {
			token = room.Normalize(args[0])
			if !room.Valid(token) {
				return fmt.Errorf("%q is not a room: use three of %v, e.g. do-mi-sol", args[0], room.Notes)
			}
		}

		cfg, err := LoadConfig(config.Options{
			Server:      flagServer,
			STUNServers: flagSTUN,
			TURNServer:  flagTURN,
			TURNUser:    flagTURNUser,
			TURNPass:    flagTURNPass,
			ForceRelay:  flagRelay,
			Codec:       flagCodec,
			Audio:       flagAudio,
			Tone:        flagTone,
		})
		if err != nil {
			return err
		}
		return joinRoom(cmd.Context(), token, cfg)
	},
}

func joinRoom(ctx context.Context, token string, cfg *config.Config) error {
	logger := slog.Default()
	level := logging.ParseLevel(os.Getenv("LOG_LEVEL"), slog.LevelError)

	// The room is never entered without local audio.
	stream, err := mesh.Capture(ctx, media.SourceCapturer{Path: cfg.Audio, ToneHz: cfg.Tone, Logger: logger})
	if err != nil {
		return roomError(token, err)
	}
	defer stream.Close()

	var tracker avatar.LocalTracker
	local := avatar.NewConsole("local", nil, logger)
	if err := tracker.Track(local); err != nil {
		return err
	}
	defer tracker.Release()

	sp := ui.NewConnectionSpinner("Connecting to relay...")
	sp.Start()
	conn, err := NewConnectionContext(ctx, cfg, logger)
	if err != nil {
		sp.Error("Relay unreachable")
		return err
	}
	defer conn.Close()
	sp.Stop()

	api, err := NewAPI(cfg, level)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var coord *mesh.Coordinator
	observe, stopView := newObserver(token, ui.RoomActions{
		Ping: func() { coord.Emit("ping") },
		Quit: cancel,
	})

	coord = mesh.New(mesh.Options{
		Room:       token,
		Relay:      conn.Client,
		Events:     conn.Handler.Events,
		Transport:  api,
		LocalTrack: stream.Track,
		Avatars:    &avatar.ConsoleFactory{Logger: logger},
		Observer:   observe,
		Logger:     logger,
	})

	go func() {
		if err := stream.Run(ctx); err != nil {
			logger.Error("local audio stopped", "err", err)
			cancel()
		}
	}()
	go orbit(ctx, coord, tracker.Local())

	err = coord.Run(ctx)
	stopView()

	ui.RenderSessionSummary(token, coord.History())
	if err == nil || errors.Is(err, mesh.ErrRelayClosed) && ctx.Err() != nil {
		ui.PrintInfof("Left room %s", token)
		return nil
	}
	return roomError(token, err)
}

// roomError prefixes internal failures with the room. Errors meant for
// the user are shown as they are.
func roomError(token string, err error) error {
	if err == nil || mesh.IsUserFacing(err) {
		return err
	}
	return fmt.Errorf("room %s: %w", token, err)
}

// newObserver returns the coordinator observer and a function that tears
// the view down. Plain mode prints the peer table whenever it changes.
func newObserver(token string, actions ui.RoomActions) (func(mesh.Status), func()) {
	if flagPlain {
		var last string
		shown := false
		return func(st mesh.Status) {
			if st.Joined && !shown {
				shown = true
				fmt.Println(ui.RoomInfoView(st.Room, st.Self))
			}
			if view := ui.PeerTableView(st); st.Joined && view != last {
				last = view
				fmt.Println(view)
			}
		}, func() {}
	}

	view := ui.NewRoomView(token, actions)
	view.Start()
	return view.Update, view.Stop
}

// orbit circles the local avatar around the origin and shares its pose.
func orbit(ctx context.Context, coord *mesh.Coordinator, local avatar.Avatar) {
	ticker := time.NewTicker(poseInterval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			angle := math.Mod(now.Sub(start).Seconds()*0.5, 2*math.Pi)
			pose := telemetry.Pose{
				Position: avatar.Vec3{X: 2 * math.Cos(angle), Z: 2 * math.Sin(angle)},
				Rotation: avatar.Vec3{Y: -angle},
			}
			if local != nil {
				local.SetPose(pose.Position, pose.Rotation)
			}
			coord.UpdatePose(pose)
		}
	}
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVar(&flagServer, "server", "", "Relay WebSocket URL (env SOLFA_SERVER)")
	joinCmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Comma separated STUN servers")
	joinCmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	joinCmd.Flags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	joinCmd.Flags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	joinCmd.Flags().BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	joinCmd.Flags().StringVarP(&flagCodec, "codec", "c", "", "Relay codec: json or msgpack")
	joinCmd.Flags().StringVar(&flagAudio, "audio", "", "Raw 16-bit little-endian mono 8 kHz PCM file to send")
	joinCmd.Flags().Float64Var(&flagTone, "tone", 0, "Send a test tone at this frequency when no audio file is given")
	joinCmd.Flags().BoolVar(&flagPlain, "plain", false, "Print plain status lines instead of the live view")
}
