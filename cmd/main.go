package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kalam",
	Short: "Collaborative whiteboard relay and tools",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zerolog.ParseLevel(flagLogLevel)
		if err != nil {
			return err
		}
		zerolog.SetGlobalLevel(level)
		if flagPretty {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		}
		return nil
	},
	RunE: runServe,
}

var (
	flagLogLevel string
	flagPretty   bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.BoolVar(&flagPretty, "pretty", false, "human readable console logs")

	rootCmd.AddCommand(serveCmd, tokenCmd, renderCmd, watchCmd)
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found")
	}

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute kalam command")
	}
}
