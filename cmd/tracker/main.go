package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "tracker"
	version = "v1.4.0"
)

var (
	flagConfig   string
	flagPort     int
	flagSecret   string
	flagUpstream string
	flagLearning bool
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Real-time competition tracker for scoreboard displays",
		Version: version,
		Long: `tracker sits between the competition controller and a fleet of
browser scoreboards: it ingests the controller's state stream over a
single websocket channel, caches and normalizes it, and fans it out to
displays over server-sent events and a JSON query API.`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tracker server",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to YAML config file")
	serveCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "HTTP listen port (overrides config)")
	serveCmd.Flags().StringVar(&flagSecret, "secret", "", "shared secret required from the source")
	serveCmd.Flags().StringVar(&flagUpstream, "upstream", "", "controller URL for the reverse proxy")
	serveCmd.Flags().BoolVar(&flagLearning, "learning", false, "capture every textual frame under samples/")

	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
