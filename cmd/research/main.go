// Command research runs a single ad-hoc RunResearch call against a
// strategy registry loaded from disk, printing the resulting briefing as
// JSON. Wiring style follows cmd/demo's main.go (construct collaborators,
// call into the core, print the result); flag parsing uses spf13/cobra,
// grounded on theRebelliousNerd-codenerd/cmd/nerd's root-command layout
// (spec §6).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mberto10/researchctl/internal/orchestrator"
	"github.com/mberto10/researchctl/internal/wiring"
)

var (
	topic         string
	strategyHint  string
	depthOverride string
	userID        string
)

var rootCmd = &cobra.Command{
	Use:   "research",
	Short: "Run one ad-hoc research request and print the resulting briefing",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&topic, "topic", "", "research topic (required)")
	rootCmd.Flags().StringVar(&strategyHint, "strategy", "", "strategy slug to force, bypassing Scope's classifier")
	rootCmd.Flags().StringVar(&depthOverride, "depth", "", "depth override (brief|deep|comprehensive)")
	rootCmd.Flags().StringVar(&userID, "user", "", "identity tag recorded on the request (default \"cli\")")
	_ = rootCmd.MarkFlagRequired("topic")
}

func run(cmd *cobra.Command, _ []string) error {
	app, err := wiring.Build(wiring.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("research: %w", err)
	}

	req := orchestrator.ResearchRequest{
		Topic:         topic,
		Identity:      wiring.NewIdentity(userID),
		StrategyHint:  strategyHint,
		DepthOverride: depthOverride,
	}

	res, err := app.Orchestrator.RunResearch(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("research: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("research: encode result: %w", err)
	}
	if res.Status == orchestrator.StatusFailed {
		os.Exit(1)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
