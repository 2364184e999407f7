package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/scholar/config"
	"github.com/mohammad-safakhou/scholar/internal/llm"
	"github.com/mohammad-safakhou/scholar/internal/research"
	"github.com/mohammad-safakhou/scholar/internal/sources"
	"github.com/mohammad-safakhou/scholar/internal/store"
	"github.com/mohammad-safakhou/scholar/internal/telemetry"
)

// researchCMD runs a single research task end to end and prints the report.
func researchCMD() *cobra.Command {
	var cfgPath string
	var depth int
	var subtopics []string
	var requirements string

	var cmd = &cobra.Command{
		Use:   "research [topic]",
		Short: "Run one research task and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			provider, err := llm.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}
			tele := telemetry.NewTelemetry(cfg.Telemetry)
			gatherer := research.NewAggregator(sources.FromConfig(cfg.Sources), cfg.Research.ResultsPerSource, cfg.Research.GatherTimeout, tele)
			coordinator := research.NewCoordinator(cfg.Research, cfg.LLM.Routing, provider, gatherer, store.NewMemoryStore(), nil, tele)

			task, err := coordinator.Run(context.Background(), research.ResearchQuery{
				Topic:        args[0],
				Subtopics:    subtopics,
				Depth:        depth,
				Requirements: requirements,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(task.CurrentReport); err != nil {
				return err
			}
			if cost, tokens := tele.Totals(); tokens > 0 {
				fmt.Fprintf(os.Stderr, "tokens: %d, estimated cost: $%.4f\n", tokens, cost)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 3, "research depth (1-5)")
	cmd.Flags().StringSliceVar(&subtopics, "subtopic", nil, "subtopic to explore (repeatable)")
	cmd.Flags().StringVar(&requirements, "requirements", "", "special requirements")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/scholar.yaml)")

	return cmd
}
