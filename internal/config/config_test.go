package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impulsewars/internal/obs"
	"impulsewars/internal/policy"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.Env.NumDrones)
	assert.Equal(t, "arena", cfg.Env.Ruleset)
	require.NotNil(t, cfg.Policy.JitterBound)
	assert.Equal(t, policy.DefaultJitterBound, *cfg.Policy.JitterBound)
	assert.Equal(t, policy.DefaultActionNvec, cfg.Policy.ActionNvec)
}

func TestLoad_AppliesDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
env:
  num_drones: 3
  ruleset: classic
  discretize_actions: true
policy:
  encoder:
    latent: 64
  lstm_hidden: 32
  jitter_bound: 0
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Env.NumDrones)
	assert.Equal(t, 8, cfg.Env.NumEnvs)
	assert.Equal(t, 64, cfg.Policy.Encoder.Latent)
	assert.Equal(t, 32, cfg.Policy.Encoder.CNNChannels)
	require.NotNil(t, cfg.Policy.JitterBound)
	assert.Zero(t, *cfg.Policy.JitterBound, "explicit zero survives defaults")

	pc, err := cfg.PolicyConfig()
	require.NoError(t, err)
	assert.Equal(t, obs.RulesetClassic, pc.Ruleset)
	assert.Equal(t, policy.Discrete, pc.Actions)
	assert.Equal(t, 32, pc.LSTMHidden)
	assert.Zero(t, pc.JitterBound)

	_, err = policy.New(pc)
	require.NoError(t, err)

	sc := cfg.SyntheticConfig()
	assert.Equal(t, 8, sc.NumEnvs)
	assert.Equal(t, 200, sc.EpisodeSteps)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "env: [1, 2"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "env:\n  num_drones: 5\n"))
	assert.ErrorContains(t, err, "env.num_drones")
}

func TestValidate_CollectsEveryError(t *testing.T) {
	cfg := Default()
	cfg.Env.Ruleset = "maze"
	cfg.Env.EnableTeams = true
	cfg.Policy.ActionNvec = []int{9, 1}
	neg := -0.5
	cfg.Policy.JitterBound = &neg
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, obs.ErrConfig)
	for _, want := range []string{"env.ruleset", "enable_teams", "action_nvec[1]", "jitter_bound", "logging.level"} {
		assert.ErrorContains(t, err, want)
	}

	_, err = cfg.PolicyConfig()
	assert.ErrorIs(t, err, obs.ErrConfig)
}

func TestFromViper_Overrides(t *testing.T) {
	path := writeConfig(t, "env:\n  num_drones: 3\n  num_envs: 4\n")

	v := viper.New()
	v.Set("config", path)
	v.Set("num-envs", 16)
	v.Set("discrete", true)
	v.Set("jitter-bound", 0.0)
	v.Set("trace-dir", "traces")

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Env.NumDrones, "file value kept")
	assert.Equal(t, 16, cfg.Env.NumEnvs, "override wins")
	assert.True(t, cfg.Env.DiscretizeActions)
	require.NotNil(t, cfg.Policy.JitterBound)
	assert.Zero(t, *cfg.Policy.JitterBound)
	assert.Equal(t, "traces", cfg.Logging.TraceDir)
	assert.Equal(t, 200, cfg.Env.EpisodeSteps, "default kept")
}

func TestFromViper_FlagsAndEnv(t *testing.T) {
	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(f)
	require.NoError(t, f.Parse([]string{"--ruleset", "classic", "--steps", "7"}))
	t.Setenv("IMPULSE_NUM_DRONES", "3")

	v := viper.New()
	require.NoError(t, BindFlags(v, f))
	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "classic", cfg.Env.Ruleset)
	assert.Equal(t, 7, cfg.Rollout.Steps)
	assert.Equal(t, 3, cfg.Env.NumDrones)
	assert.Equal(t, 8, cfg.Env.NumEnvs, "unset flag leaves the default")
}

func TestFromViper_Invalid(t *testing.T) {
	v := viper.New()
	v.Set("num-drones", 9)
	_, err := FromViper(v)
	assert.ErrorContains(t, err, "env.num_drones")
}
