package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"impulsewars/internal/config"
	"impulsewars/internal/logging"
	"impulsewars/internal/policy"
	"impulsewars/internal/rollout"
)

var saveCheckpoint string

var rootCmd = &cobra.Command{
	Use:   "bench",
	Short: "Roll the drone policy against the synthetic environment",
	Long: `Bench builds the policy from a config, steps it against a batch of
synthetic pursuit environments and reports per-iteration statistics.

Summaries go to CSV and JSONL. With --trace-dir every forward pass is also
written to a zstd parquet file named after the run id.`,
	SilenceUsage: true,
	RunE:         runBench,
}

func init() {
	config.AddFlags(rootCmd.Flags())
	rootCmd.Flags().StringVar(&saveCheckpoint, "save-checkpoint", "", "Write the policy parameters here when the run ends")

	if err := config.BindFlags(viper.GetViper(), rootCmd.Flags()); err != nil {
		panic(err)
	}
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, os.Stderr, cfg.Logging.Pretty)
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	logger = logger.With().Str("run_id", runID).Logger()

	p, err := buildPolicy(cfg, logger)
	if err != nil {
		return err
	}
	logger.Info().
		Int("drones", cfg.Env.NumDrones).
		Str("ruleset", cfg.Env.Ruleset).
		Stringer("actions", p.Config().Actions).
		Int("params", p.NumParams()).
		Int("obs_bytes", p.Codec().Layout().ObsBytes).
		Msg("policy ready")

	env, err := rollout.NewSyntheticEnv(p.Codec(), cfg.SyntheticConfig())
	if err != nil {
		return err
	}
	defer env.Close()

	runner, err := rollout.NewRunner(p, env, logger, cfg.Env.Seed)
	if err != nil {
		return err
	}

	var trace *logging.TraceWriter
	if cfg.Logging.TraceDir != "" {
		trace, err = logging.NewTraceWriter(cfg.Logging.TraceDir, runID+".parquet")
		if err != nil {
			return fmt.Errorf("open trace: %w", err)
		}
		runner.WithTrace(trace, runID, cfg.Logging.RecordObs)
	}

	summaries, err := logging.NewSummaryLogger(cfg.Logging.CSVPath, cfg.Logging.JSONPath)
	if err != nil {
		return err
	}
	if err := summaries.Init(); err != nil {
		return err
	}
	defer summaries.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	iterations := 0
	for it := 1; it <= cfg.Rollout.Iterations; it++ {
		sum, err := runner.Run(ctx, cfg.Rollout.Steps)
		if err != nil {
			if ctx.Err() != nil {
				logger.Warn().Int("iteration", it).Msg("interrupted")
				break
			}
			return fmt.Errorf("iteration %d: %w", it, err)
		}
		iterations = it
		if err := summaries.LogSummary(sum.Row(runID, it)); err != nil {
			return err
		}
		fmt.Printf("iter %4d | episodes %5d | return %8.3f ± %6.3f | len %6.1f | value %7.3f | %8.0f steps/s\n",
			it, sum.NumEpisodes, sum.ReturnMean, sum.ReturnStd, sum.LengthMean, sum.ValueMean, sum.StepsPerSec)
	}

	if trace != nil {
		path, err := trace.Finalize()
		if err != nil {
			return fmt.Errorf("finalize trace: %w", err)
		}
		logger.Info().Str("path", path).Int("rows", trace.Rows()).Msg("trace written")
	}

	if saveCheckpoint != "" {
		if err := os.MkdirAll(filepath.Dir(saveCheckpoint), 0755); err != nil {
			return err
		}
		if err := logging.SaveCheckpoint(saveCheckpoint, logging.NewCheckpoint(p, runID, iterations)); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
		logger.Info().Str("path", saveCheckpoint).Msg("checkpoint saved")
	}
	return nil
}

func buildPolicy(cfg *config.Config, logger zerolog.Logger) (*policy.Policy, error) {
	pc, err := cfg.PolicyConfig()
	if err != nil {
		return nil, err
	}
	p, err := policy.New(pc)
	if err != nil {
		return nil, fmt.Errorf("build policy: %w", err)
	}
	if cfg.Policy.Checkpoint == "" {
		return p, nil
	}

	ck, err := logging.LoadCheckpoint(cfg.Policy.Checkpoint)
	if err != nil {
		return nil, err
	}
	if err := logging.ApplyCheckpoint(p, ck); err != nil {
		return nil, err
	}
	logger.Info().
		Str("path", cfg.Policy.Checkpoint).
		Str("from_run", ck.RunID).
		Int("iteration", ck.Iteration).
		Msg("checkpoint loaded")
	return p, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
