package main

import (
	"context"
	"fmt"
	"math/rand"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"paintroom-be/pkg/canvas"
	"paintroom-be/pkg/roomclient"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	drawUsers    int
	drawStrokes  int
	drawInterval time.Duration
	drawChat     bool
)

var drawCmd = &cobra.Command{
	Use:   "draw [room]",
	Short: "Let simulated users draw into a running session",
	Args:  cobra.ExactArgs(1),
	RunE:  runDraw,
}

func init() {
	drawCmd.Flags().IntVar(&drawUsers, "users", 3, "number of simulated users")
	drawCmd.Flags().IntVar(&drawStrokes, "strokes", 20, "strokes per user")
	drawCmd.Flags().DurationVar(&drawInterval, "interval", 200*time.Millisecond, "pause between strokes")
	drawCmd.Flags().BoolVar(&drawChat, "chat", true, "send a chat line every few strokes")
}

func runDraw(cmd *cobra.Command, args []string) error {
	roomID, err := parseRoomID(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := apiClient()
	sessions := make([]*roomclient.Session, 0, drawUsers)
	defer func() {
		for _, s := range sessions {
			s.Close()
		}
	}()

	var failures atomic.Int64
	for i := 0; i < drawUsers; i++ {
		me := roomclient.Identity{ID: uuid.NewString(), Name: fmt.Sprintf("bot-%d", i+1)}
		s, err := roomclient.Connect(ctx, client, roomID, me, roomclient.Config{})
		if err != nil {
			return fmt.Errorf("connect %s: %w", me.Name, err)
		}
		s.OnError(func(err error) {
			failures.Add(1)
			color.Red("%s: %v", me.Name, err)
		})
		sessions = append(sessions, s)
	}

	if !sessions[0].Snapshot().Room.IsActive {
		return fmt.Errorf("room %d has no running session, run `roomsim start %d` first", roomID, roomID)
	}
	color.Cyan("%d users drawing %d strokes each into room %d", drawUsers, drawStrokes, roomID)

	started := time.Now()
	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func(n int, s *roomclient.Session) {
			defer wg.Done()
			scribble(ctx, s, rand.New(rand.NewSource(time.Now().UnixNano()+int64(n))))
		}(i, s)
	}
	wg.Wait()

	// give the last echoes time to arrive before comparing views
	time.Sleep(time.Second)

	want := len(sessions[0].Snapshot().Strokes)
	for _, s := range sessions {
		got := len(s.Snapshot().Strokes)
		line := fmt.Sprintf("%-8s sees %d strokes", s.Me().Name, got)
		if got == want {
			color.Green("%s", line)
		} else {
			color.Yellow("%s (views differ)", line)
		}
	}
	fmt.Printf("done in %s, %d errors\n", time.Since(started).Round(time.Millisecond), failures.Load())
	return nil
}

func scribble(ctx context.Context, s *roomclient.Session, rnd *rand.Rand) {
	ticker := time.NewTicker(drawInterval)
	defer ticker.Stop()

	for i := 0; i < drawStrokes; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := s.BeginStroke(ctx); err != nil {
			return
		}
		if err := s.DrawStroke(ctx, randomStroke(rnd)); err != nil {
			continue
		}
		if drawChat && i%5 == 4 {
			_ = s.SendChat(ctx, fmt.Sprintf("%s finished stroke %d", s.Me().Name, i+1))
		}
	}
}

func randomStroke(rnd *rand.Rand) canvas.Stroke {
	n := 2 + rnd.Intn(30)
	points := make([]float64, 0, n*2)
	x, y := rnd.Float64()*canvas.Width, rnd.Float64()*canvas.Height
	for i := 0; i < n; i++ {
		x = clamp(x+rnd.Float64()*80-40, 0, canvas.Width)
		y = clamp(y+rnd.Float64()*80-40, 0, canvas.Height)
		points = append(points, x, y)
	}

	tool := canvas.ToolPen
	if rnd.Intn(8) == 0 {
		tool = canvas.ToolEraser
	}
	return canvas.Stroke{
		ID:      uuid.NewString(),
		Points:  points,
		Color:   fmt.Sprintf("#%06x", rnd.Intn(0xffffff)),
		Width:   float64(2 + rnd.Intn(20)),
		Tool:    tool,
		LayerID: canvas.LayerRenderOrder[rnd.Intn(len(canvas.LayerRenderOrder))],
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
