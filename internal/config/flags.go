package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides
const EnvPrefix = "IMPULSE"

// AddFlags registers the override flags shared by the command-line tools
func AddFlags(f *pflag.FlagSet) {
	f.String("config", "", "YAML config file (defaults apply when empty)")

	f.Int("num-drones", 0, "Drones per match (2-4)")
	f.String("ruleset", "", "Map ruleset (classic, arena)")
	f.Bool("teams", false, "2v2 teams, needs 4 drones")
	f.Bool("sitting-duck", false, "Enemies never move")
	f.Bool("discrete", false, "Discrete action space")
	f.Int("num-envs", 0, "Parallel environments")
	f.Int("episode-steps", 0, "Step cap per episode")
	f.Int("workers", 0, "Env stepping workers (0 = NumCPU)")
	f.Uint64("seed", 0, "Environment seed")

	f.Bool("training", false, "Sample actions and jitter the continuous mean")
	f.Int("lstm-hidden", 0, "LSTM hidden width")
	f.Float64("jitter-bound", 0, "Training jitter bound (0 disables)")
	f.Uint64("policy-seed", 0, "Parameter init seed")
	f.String("checkpoint", "", "Checkpoint to load into the policy")

	f.Int("steps", 0, "Steps per rollout iteration")
	f.Int("iterations", 0, "Rollout iterations")

	f.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	f.Bool("pretty", false, "Console log output")
	f.String("csv-path", "", "Summary CSV path")
	f.String("json-path", "", "Summary JSONL path")
	f.String("trace-dir", "", "Parquet trace directory (empty disables)")
	f.Bool("record-obs", false, "Store raw observations in the trace")
}

// BindFlags binds f into v and enables IMPULSE_ environment overrides
func BindFlags(v *viper.Viper, f *pflag.FlagSet) error {
	if err := v.BindPFlags(f); err != nil {
		return err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return nil
}

// FromViper loads the file named by the "config" key, or the defaults, then
// applies every key set by a flag or an environment variable.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if path := v.GetString("config"); path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}

	setInt(v, "num-drones", &cfg.Env.NumDrones)
	setString(v, "ruleset", &cfg.Env.Ruleset)
	setBool(v, "teams", &cfg.Env.EnableTeams)
	setBool(v, "sitting-duck", &cfg.Env.SittingDuck)
	setBool(v, "discrete", &cfg.Env.DiscretizeActions)
	setInt(v, "num-envs", &cfg.Env.NumEnvs)
	setInt(v, "episode-steps", &cfg.Env.EpisodeSteps)
	setInt(v, "workers", &cfg.Env.Workers)
	setUint64(v, "seed", &cfg.Env.Seed)

	setBool(v, "training", &cfg.Policy.Training)
	setInt(v, "lstm-hidden", &cfg.Policy.LSTMHidden)
	if v.IsSet("jitter-bound") {
		j := v.GetFloat64("jitter-bound")
		cfg.Policy.JitterBound = &j
	}
	setUint64(v, "policy-seed", &cfg.Policy.Seed)
	setString(v, "checkpoint", &cfg.Policy.Checkpoint)

	setInt(v, "steps", &cfg.Rollout.Steps)
	setInt(v, "iterations", &cfg.Rollout.Iterations)

	setString(v, "log-level", &cfg.Logging.Level)
	setBool(v, "pretty", &cfg.Logging.Pretty)
	setString(v, "csv-path", &cfg.Logging.CSVPath)
	setString(v, "json-path", &cfg.Logging.JSONPath)
	setString(v, "trace-dir", &cfg.Logging.TraceDir)
	setBool(v, "record-obs", &cfg.Logging.RecordObs)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func setUint64(v *viper.Viper, key string, dst *uint64) {
	if v.IsSet(key) {
		*dst = v.GetUint64(key)
	}
}

func setBool(v *viper.Viper, key string, dst *bool) {
	if v.IsSet(key) {
		*dst = v.GetBool(key)
	}
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}
