package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"impulsewars/internal/encoder"
	"impulsewars/internal/obs"
	"impulsewars/internal/policy"
	"impulsewars/internal/rollout"
)

// Config is the root configuration structure
type Config struct {
	Env     EnvConfig     `yaml:"env"`
	Policy  PolicyConfig  `yaml:"policy"`
	Rollout RolloutConfig `yaml:"rollout"`
	Logging LogConfig     `yaml:"logging"`
}

// EnvConfig fixes the observation layout and the synthetic env
type EnvConfig struct {
	NumDrones         int    `yaml:"num_drones"`
	Ruleset           string `yaml:"ruleset"` // classic|arena
	EnableTeams       bool   `yaml:"enable_teams"`
	SittingDuck       bool   `yaml:"sitting_duck"`
	DiscretizeActions bool   `yaml:"discretize_actions"`
	NumEnvs           int    `yaml:"num_envs"`
	EpisodeSteps      int    `yaml:"episode_steps"`
	Workers           int    `yaml:"workers"`
	Seed              uint64 `yaml:"seed"`
}

// PolicyConfig defines network widths and action heads
type PolicyConfig struct {
	Encoder     encoder.Config `yaml:"encoder"`
	LSTMHidden  int            `yaml:"lstm_hidden"`
	ActionDims  int            `yaml:"action_dims"`
	ActionNvec  []int          `yaml:"action_nvec"`
	Training    bool           `yaml:"training"`
	JitterBound *float64       `yaml:"jitter_bound"` // nil means the default, 0 disables
	Seed        uint64         `yaml:"seed"`
	Checkpoint  string         `yaml:"checkpoint"`
}

// RolloutConfig defines how long a run lasts
type RolloutConfig struct {
	Steps      int `yaml:"steps"` // per iteration
	Iterations int `yaml:"iterations"`
}

// LogConfig defines logging parameters
type LogConfig struct {
	Level     string `yaml:"level"`
	Pretty    bool   `yaml:"pretty"`
	CSVPath   string `yaml:"csv_path"`
	JSONPath  string `yaml:"json_path"`
	TraceDir  string `yaml:"trace_dir"` // empty disables the parquet trace
	RecordObs bool   `yaml:"record_obs"`
}

// Default returns a config with every default applied
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a YAML config file and returns a Config
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Env.NumDrones == 0 {
		cfg.Env.NumDrones = 2
	}
	if cfg.Env.Ruleset == "" {
		cfg.Env.Ruleset = "arena"
	}
	if cfg.Env.NumEnvs == 0 {
		cfg.Env.NumEnvs = 8
	}
	if cfg.Env.EpisodeSteps == 0 {
		cfg.Env.EpisodeSteps = 200
	}
	if cfg.Env.Seed == 0 {
		cfg.Env.Seed = 1337
	}

	enc := encoder.DefaultConfig()
	if cfg.Policy.Encoder.CNNChannels == 0 {
		cfg.Policy.Encoder.CNNChannels = enc.CNNChannels
	}
	if cfg.Policy.Encoder.EmbedDims == 0 {
		cfg.Policy.Encoder.EmbedDims = enc.EmbedDims
	}
	if cfg.Policy.Encoder.FloatingWallHidden == 0 {
		cfg.Policy.Encoder.FloatingWallHidden = enc.FloatingWallHidden
	}
	if cfg.Policy.Encoder.EnemyHidden == 0 {
		cfg.Policy.Encoder.EnemyHidden = enc.EnemyHidden
	}
	if cfg.Policy.Encoder.OwnHidden == 0 {
		cfg.Policy.Encoder.OwnHidden = enc.OwnHidden
	}
	if cfg.Policy.Encoder.Latent == 0 {
		cfg.Policy.Encoder.Latent = enc.Latent
	}
	if cfg.Policy.LSTMHidden == 0 {
		cfg.Policy.LSTMHidden = 128
	}
	if cfg.Policy.ActionDims == 0 {
		cfg.Policy.ActionDims = policy.DefaultActionDims
	}
	if len(cfg.Policy.ActionNvec) == 0 {
		cfg.Policy.ActionNvec = append([]int(nil), policy.DefaultActionNvec...)
	}
	if cfg.Policy.JitterBound == nil {
		j := policy.DefaultJitterBound
		cfg.Policy.JitterBound = &j
	}
	if cfg.Policy.Seed == 0 {
		cfg.Policy.Seed = 1
	}

	if cfg.Rollout.Steps == 0 {
		cfg.Rollout.Steps = 128
	}
	if cfg.Rollout.Iterations == 0 {
		cfg.Rollout.Iterations = 10
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.CSVPath == "" {
		cfg.Logging.CSVPath = "runs/run.csv"
	}
	if cfg.Logging.JSONPath == "" {
		cfg.Logging.JSONPath = "runs/run.jsonl"
	}
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var errs []error
	if c.Env.NumDrones < obs.MinDrones || c.Env.NumDrones > obs.MaxDrones {
		errs = append(errs, fmt.Errorf("env.num_drones must be in [%d, %d], got %d",
			obs.MinDrones, obs.MaxDrones, c.Env.NumDrones))
	}
	if _, err := obs.ParseRuleset(c.Env.Ruleset); err != nil {
		errs = append(errs, fmt.Errorf("env.ruleset: %w", err))
	}
	if c.Env.EnableTeams && c.Env.NumDrones != 4 {
		errs = append(errs, fmt.Errorf("env.enable_teams needs 4 drones, got %d", c.Env.NumDrones))
	}
	if c.Env.NumEnvs <= 0 {
		errs = append(errs, fmt.Errorf("env.num_envs must be positive, got %d", c.Env.NumEnvs))
	}
	if c.Env.EpisodeSteps <= 0 {
		errs = append(errs, fmt.Errorf("env.episode_steps must be positive, got %d", c.Env.EpisodeSteps))
	}
	if c.Env.Workers < 0 {
		errs = append(errs, fmt.Errorf("env.workers must not be negative, got %d", c.Env.Workers))
	}

	if err := c.Policy.Encoder.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("policy.encoder: %w", err))
	}
	if c.Policy.LSTMHidden <= 0 {
		errs = append(errs, fmt.Errorf("policy.lstm_hidden must be positive, got %d", c.Policy.LSTMHidden))
	}
	if c.Policy.ActionDims <= 0 {
		errs = append(errs, fmt.Errorf("policy.action_dims must be positive, got %d", c.Policy.ActionDims))
	}
	for i, n := range c.Policy.ActionNvec {
		if n < 2 {
			errs = append(errs, fmt.Errorf("policy.action_nvec[%d] must be at least 2, got %d", i, n))
		}
	}
	if c.Policy.JitterBound != nil && *c.Policy.JitterBound < 0 {
		errs = append(errs, fmt.Errorf("policy.jitter_bound must not be negative, got %g", *c.Policy.JitterBound))
	}

	if c.Rollout.Steps <= 0 {
		errs = append(errs, fmt.Errorf("rollout.steps must be positive, got %d", c.Rollout.Steps))
	}
	if c.Rollout.Iterations <= 0 {
		errs = append(errs, fmt.Errorf("rollout.iterations must be positive, got %d", c.Rollout.Iterations))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not a zerolog level", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// Ruleset returns the parsed ruleset
func (c *Config) Ruleset() (obs.Ruleset, error) {
	return obs.ParseRuleset(c.Env.Ruleset)
}

// PolicyConfig builds the policy construction config
func (c *Config) PolicyConfig() (policy.Config, error) {
	ruleset, err := c.Ruleset()
	if err != nil {
		return policy.Config{}, err
	}
	pc := policy.DefaultConfig(c.Env.NumDrones, ruleset)
	pc.Encoder = c.Policy.Encoder
	pc.LSTMHidden = c.Policy.LSTMHidden
	pc.ActionDims = c.Policy.ActionDims
	pc.ActionNvec = append([]int(nil), c.Policy.ActionNvec...)
	pc.Training = c.Policy.Training
	pc.Seed = c.Policy.Seed
	if c.Env.DiscretizeActions {
		pc.Actions = policy.Discrete
	}
	if c.Policy.JitterBound != nil {
		pc.JitterBound = *c.Policy.JitterBound
	}
	return pc, nil
}

// SyntheticConfig builds the synthetic env config
func (c *Config) SyntheticConfig() rollout.SyntheticConfig {
	return rollout.SyntheticConfig{
		NumEnvs:      c.Env.NumEnvs,
		EpisodeSteps: c.Env.EpisodeSteps,
		Teams:        c.Env.EnableTeams,
		SittingDuck:  c.Env.SittingDuck,
		Workers:      c.Env.Workers,
	}
}
