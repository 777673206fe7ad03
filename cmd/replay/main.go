package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/canopy-network/payoutx/pkg/config"
	"github.com/canopy-network/payoutx/pkg/logging"
	"github.com/canopy-network/payoutx/pkg/rpc"
)

var rootCmd = &cobra.Command{
	Use:   "payoutx-replay [block files...]",
	Short: "Replay blocks through the payout handlers",
	Long: "Replays decoded block fixtures (or a block range fetched from the sidecar) through the indexing " +
		"handlers against an in-memory store and prints every resulting entity as JSON. State queries go to " +
		"the sidecar endpoints.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(cmd, args)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringP("config", "c", "", "Path to a payoutx config file")
	rootCmd.Flags().StringP("chain", "n", "", "Chain name (overrides config)")
	rootCmd.Flags().StringSliceP("endpoint", "e", []string{}, "Sidecar endpoints (overrides config)")
	rootCmd.Flags().Uint64("from", 0, "First block to fetch from the sidecar when no files are given")
	rootCmd.Flags().Uint64("to", 0, "Last block to fetch from the sidecar (inclusive)")
	rootCmd.Flags().StringP("out", "o", "", "Write the JSON report to this file instead of stdout")
	rootCmd.Flags().Bool("pretty", false, "Indent the JSON report")
}

func runReplay(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	chain, _ := cmd.Flags().GetString("chain")
	endpoints, _ := cmd.Flags().GetStringSlice("endpoint")
	from, _ := cmd.Flags().GetUint64("from")
	to, _ := cmd.Flags().GetUint64("to")
	outPath, _ := cmd.Flags().GetString("out")
	pretty, _ := cmd.Flags().GetBool("pretty")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if chain != "" {
		cfg.Chain.Name = chain
	}
	if len(endpoints) > 0 {
		cfg.Chain.Endpoints = endpoints
	}

	logger, err := logging.New()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	client := rpc.NewCachedClient(rpc.NewHTTPWithOpts(rpc.Opts{
		Endpoints:       cfg.Chain.Endpoints,
		Timeout:         cfg.RPC.Timeout,
		RPS:             cfg.RPC.RPS,
		Burst:           cfg.RPC.Burst,
		BreakerFailures: cfg.RPC.BreakerFailures,
		BreakerCooldown: cfg.RPC.BreakerCooldown,
	}), cfg.RPC.CacheSizeMB, logger)

	out := cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return run(ctx, options{
		Chain:   cfg.Chain.Name,
		Rewards: cfg.Rewards,
		Files:   args,
		From:    from,
		To:      to,
		Pretty:  pretty,
	}, client, logger, out)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
