package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/taskflow/internal/bus"
)

func dlqNATSURL() (string, error) {
	if u := os.Getenv("TASKFLOW_NATS_URL"); u != "" {
		return u, nil
	}
	if u := activeRemoteNATSURL(); u != "" {
		return u, nil
	}
	return "", fmt.Errorf("no NATS URL configured: set TASKFLOW_NATS_URL or add one to the active remote (taskflow remote add --nats)")
}

// dlqBus connects directly to the broker; dead letters are an operator
// surface, not part of the HTTP API.
func dlqBus() (*bus.NATSBus, error) {
	url, err := dlqNATSURL()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return bus.NewNATSBus(url, bus.DefaultPolicy(), 1, logger)
}

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and replay dead-lettered events",
	// dlq talks to NATS, not the HTTP API; skip client setup.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var dlqShowCmd = &cobra.Command{
	Use:   "show <group>",
	Short: "Show dead letters for a consumer group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := dlqBus()
		if err != nil {
			return err
		}
		defer b.Close()

		letters, err := b.DeadLetters(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(letters)
			return nil
		}
		if len(letters) == 0 {
			fmt.Printf("no dead letters for group %q\n", args[0])
			return nil
		}
		printDeadLetterTable(letters)
		return nil
	},
}

var dlqReplayCmd = &cobra.Command{
	Use:   "replay <group>",
	Short: "Republish a group's dead letters to their original topics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := dlqBus()
		if err != nil {
			return err
		}
		defer b.Close()

		n, err := b.Replay(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]int{"replayed": n})
			return nil
		}
		fmt.Printf("replayed %d dead letters for group %q\n", n, args[0])
		return nil
	},
}

func init() {
	dlqCmd.AddCommand(dlqShowCmd)
	dlqCmd.AddCommand(dlqReplayCmd)
}
