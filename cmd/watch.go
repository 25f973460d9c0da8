package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"kalam-backend/internal/client"
	"kalam-backend/internal/engine"
	"kalam-backend/internal/render"
)

var (
	flagRelayURL string
	flagToken    string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Join a room and keep a PNG of its canvas up to date",
	RunE:  runWatch,
}

func init() {
	addCanvasFlags(watchCmd)
	watchCmd.Flags().StringVar(&flagRelayURL, "relay", "", "relay URL (default: <api>/ws)")
	watchCmd.Flags().StringVar(&flagToken, "token", os.Getenv("KALAM_TOKEN"), "relay token (env KALAM_TOKEN)")
}

// fileRenderer rewrites the output PNG after every frame.
type fileRenderer struct {
	canvas *render.Canvas
	path   string
}

func (r fileRenderer) Render(f engine.Frame) error {
	if err := r.canvas.Render(f); err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := r.canvas.WritePNG(out); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

func runWatch(cmd *cobra.Command, args []string) error {
	relayURL := flagRelayURL
	if relayURL == "" {
		relayURL = strings.TrimRight(flagAPI, "/") + "/ws"
	}

	seed, err := client.LoadCanvas(flagAPI, flagRoom, 10*time.Second)
	if err != nil {
		return err
	}

	// The first fetch only paints the file before the socket is up; every
	// (re)connect fetches again after joining and reconciles with live edits.
	c, err := client.New(client.Options{
		URL:    relayURL,
		Token:  flagToken,
		RoomID: flagRoom,
		OnStatus: func(s client.Status) {
			log.Info().Str("room", flagRoom).Stringer("status", s).Msg("relay")
		},
		History: func() ([]string, error) {
			return client.FetchHistory(flagAPI, flagRoom, 10*time.Second)
		},
	})
	if err != nil {
		return err
	}
	out := fileRenderer{canvas: render.NewCanvas(flagWidth, flagHeight), path: flagOut}
	e, err := engine.New(flagRoom, seed, engine.WithSender(c), engine.WithRenderer(out))
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer e.Close()
	c.Bind(e)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()
	log.Info().Str("room", flagRoom).Int("shapes", len(seed)).Str("out", flagOut).Msg("watching")
	return c.Run(ctx)
}
