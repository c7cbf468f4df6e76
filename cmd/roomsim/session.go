package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"paintroom-be/pkg/roomclient"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	humanToken string
	userName   string
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List rooms with their session state",
	RunE: func(cmd *cobra.Command, args []string) error {
		rooms, err := apiClient().ListRooms(cmd.Context())
		if err != nil {
			return err
		}

		for _, r := range rooms {
			state := color.New(color.FgHiBlack).Sprint("CLOSE")
			if r.IsActive {
				state = color.GreenString("OPEN ")
			}
			fmt.Printf("#%-4d %s  %-20s strokes=%-5d people=%d\n", r.Id, state, r.Name, r.StrokeCount, r.Participants)
			if r.LastSessionImageUrl != nil {
				color.Cyan("      last archive: %s", *r.LastSessionImageUrl)
			}
		}
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start [room]",
	Short: "Start a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomID(args[0])
		if err != nil {
			return err
		}

		room, err := apiClient().StartSession(cmd.Context(), roomID, humanToken)
		if err != nil {
			return err
		}
		color.Green("Room %d started at %s", room.Id, room.SessionStartAt.Format(time.RFC3339))
		return nil
	},
}

var finishCmd = &cobra.Command{
	Use:   "finish [room]",
	Short: "Archive the canvas and finish the session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomID(args[0])
		if err != nil {
			return err
		}

		s, err := roomclient.Connect(cmd.Context(), apiClient(), roomID, identity(), roomclient.Config{})
		if err != nil {
			return err
		}
		defer s.Close()

		room, err := s.Finish(cmd.Context(), humanToken)
		if err != nil {
			return err
		}
		color.Green("Room %d archived to %s", room.Id, *room.LastSessionImageUrl)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [room]",
	Short: "Follow a room live until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomID(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, err := roomclient.Connect(ctx, apiClient(), roomID, identity(), roomclient.Config{})
		if err != nil {
			return err
		}
		defer s.Close()

		s.OnError(func(err error) { color.Red("! %v", err) })

		var last roomclient.Snapshot
		printSnapshot(s.Snapshot(), roomclient.Snapshot{})
		s.Observe(func(snap roomclient.Snapshot) {
			printSnapshot(snap, last)
			last = snap
		})

		<-ctx.Done()
		return nil
	},
}

// printSnapshot prints what changed between two snapshots.
func printSnapshot(cur, prev roomclient.Snapshot) {
	if cur.Connected != prev.Connected {
		if cur.Connected {
			color.Green("connected")
		} else {
			color.Yellow("disconnected, retrying")
		}
	}
	if cur.Room.IsActive != prev.Room.IsActive {
		if cur.Room.IsActive {
			color.Green("session running since %s", cur.Room.SessionStartAt.Format(time.Kitchen))
		} else {
			color.Yellow("room is idle")
		}
	}
	if len(cur.Strokes) != len(prev.Strokes) {
		fmt.Printf("strokes: %d\n", len(cur.Strokes))
	}
	if len(cur.Roster) != len(prev.Roster) || cur.Leader != prev.Leader {
		fmt.Printf("people: %d (thumbnail leader %s)\n", len(cur.Roster), cur.Leader)
	}
	for i := len(prev.Chat); i < len(cur.Chat); i++ {
		m := cur.Chat[i]
		color.Cyan("[%s] %s: %s", m.Timestamp.Format("15:04:05"), m.UserName, m.Text)
	}
}

func identity() roomclient.Identity {
	id := uuid.NewString()
	name := userName
	if name == "" {
		name = "roomsim-" + id[:8]
	}
	return roomclient.Identity{ID: id, Name: name}
}

func init() {
	for _, c := range []*cobra.Command{startCmd, finishCmd} {
		c.Flags().StringVar(&humanToken, "token", "", "human check token (the static token in development)")
	}
	for _, c := range []*cobra.Command{watchCmd, finishCmd} {
		c.Flags().StringVar(&userName, "name", "", "display name")
	}
}
