package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"kalam-backend/internal/client"
	"kalam-backend/internal/render"
)

var (
	flagAPI    string
	flagRoom   string
	flagOut    string
	flagWidth  int
	flagHeight int
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Replay a room's history and write it as PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		shapes, err := client.LoadCanvas(flagAPI, flagRoom, 10*time.Second)
		if err != nil {
			return err
		}
		png, err := render.PNG(flagWidth, flagHeight, shapes)
		if err != nil {
			return err
		}
		if err := os.WriteFile(flagOut, png, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", flagOut, err)
		}
		log.Info().Str("room", flagRoom).Int("shapes", len(shapes)).Str("out", flagOut).Msg("rendered")
		return nil
	},
}

func addCanvasFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&flagAPI, "api", "http://localhost:3000/api/v1", "HTTP API base URL")
	flags.StringVar(&flagRoom, "room", "", "room id")
	flags.StringVar(&flagOut, "out", "canvas.png", "output PNG path")
	flags.IntVar(&flagWidth, "width", render.DefaultWidth, "image width")
	flags.IntVar(&flagHeight, "height", render.DefaultHeight, "image height")
	_ = cmd.MarkFlagRequired("room")
}

func init() {
	addCanvasFlags(renderCmd)
}
