package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/caseops/intake-console/internal/bus"
)

var (
	listenGroup    string
	listenConsumer string
)

// listenCmd tails the cases stream published by a running console, so a
// second terminal (or a downstream tool) can follow live-feed promotions.
var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Tail the cases stream published on the event bus",
	Long: `Listen consumes the Redis Streams cases stream through a consumer group
and prints each promoted case as it arrives. Messages are acknowledged after
they are printed, so multiple consumers in the same group share the stream.

Examples:
  # Follow promotions from a console publishing to the default Redis
  intake-console listen

  # Join a named group with a stable consumer name
  intake-console listen --group intake --consumer desk-2`,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().StringVar(&listenGroup, "group", "intake-console", "Consumer group name")
	listenCmd.Flags().StringVar(&listenConsumer, "consumer", "", "Consumer name within the group (default: pid-derived)")
}

func runListen(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()
	logger := log.New(os.Stderr, "[listen] ", log.LstdFlags)

	if config.Redis.URL == "" {
		return errors.New("listen requires a Redis URL (--redis)")
	}
	redisBus, err := bus.NewRedisBus(config.Redis.URL, logger)
	if err != nil {
		return fmt.Errorf("connect to event bus: %w", err)
	}
	defer redisBus.Close()

	consumer := listenConsumer
	if consumer == "" {
		consumer = fmt.Sprintf("consumer-%d", os.Getpid())
	}

	fmt.Printf("Listening on cases stream (group %s, consumer %s). Ctrl+C to stop.\n", listenGroup, consumer)

	err = redisBus.ReadCasesStream(ctx, listenGroup, consumer, func(_ context.Context, msg bus.CaseMessage) error {
		fmt.Printf("%s  %-14s  %-24s  %s  (%s)\n",
			time.Unix(msg.Timestamp, 0).Format("15:04:05"),
			msg.IncidentID, msg.Category, msg.Location, msg.Source)
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
