// Command researchd is the batch-cron daemon: on a fixed interval per
// frequency bucket it lists every Subscription via internal/batch.Runner
// and delivers each result. Wiring style follows cmd/demo's main.go;
// flag/subcommand layout follows
// theRebelliousNerd-codenerd/cmd/nerd's root-plus-subcommand cobra
// structure (spec §6).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mberto10/researchctl/internal/subscription"
	"github.com/mberto10/researchctl/internal/wiring"
)

var (
	frequency     string
	topic         string
	strategyHint  string
	depthOverride string
	interval      time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "researchd",
	Short: "Run the subscription batch daemon",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the batch loop, dispatching one RunBatch per tick",
	RunE:  runDaemon,
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Register a subscription in the configured store (for smoke-testing the daemon loop)",
	RunE:  subscribe,
}

func init() {
	runCmd.Flags().StringVar(&frequency, "frequency", "daily", "frequency bucket this process dispatches")
	runCmd.Flags().DurationVar(&interval, "interval", time.Hour, "tick interval between RunBatch calls")

	subscribeCmd.Flags().StringVar(&topic, "topic", "", "research topic (required)")
	subscribeCmd.Flags().StringVar(&frequency, "frequency", "daily", "frequency bucket")
	subscribeCmd.Flags().StringVar(&strategyHint, "strategy", "", "strategy slug to force")
	subscribeCmd.Flags().StringVar(&depthOverride, "depth", "", "depth override")
	_ = subscribeCmd.MarkFlagRequired("topic")

	rootCmd.AddCommand(runCmd, subscribeCmd)
}

// runDaemon ticks every interval, calling ListAndRunBatch for frequency and
// logging a one-line summary per tick. Runs until SIGINT/SIGTERM.
func runDaemon(cmd *cobra.Command, _ []string) error {
	app, err := wiring.Build(wiring.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("researchd: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fmt.Fprintf(os.Stdout, "researchd: dispatching frequency=%s every %s\n", frequency, interval)
	for {
		results, err := app.Batch.ListAndRunBatch(ctx, frequency)
		if err != nil {
			fmt.Fprintf(os.Stderr, "researchd: batch run failed: %v\n", err)
		} else {
			fmt.Fprintf(os.Stdout, "researchd: dispatched %d subscription(s)\n", len(results))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// subscribe registers one Subscription against the configured store, for
// smoke-testing runDaemon without a separate control-plane API.
func subscribe(cmd *cobra.Command, _ []string) error {
	app, err := wiring.Build(wiring.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("researchd: %w", err)
	}

	sub := subscription.Subscription{
		ID:            wiring.NewSubscriptionID(),
		Topic:         topic,
		StrategyHint:  strategyHint,
		DepthOverride: depthOverride,
		Frequency:     frequency,
		CreatedAt:     time.Now().UTC(),
	}
	if err := app.Subscriptions.Save(cmd.Context(), sub); err != nil {
		return fmt.Errorf("researchd: save subscription: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(sub)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
