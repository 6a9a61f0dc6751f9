package rollout

import "impulsewars/internal/policy"

// StepResult is what a vectorized environment returns after one step.
// Obs already holds the first observation of a new episode for every env
// that finished on this step.
type StepResult struct {
	Obs         []byte
	Rewards     []float32
	Terminals   []bool
	Truncations []bool
}

// VecEnv is a batch of simulator instances stepped together
type VecEnv interface {
	NumEnvs() int
	Reset(seed uint64) ([]byte, error)
	Step(actions policy.Actions) (*StepResult, error)
	Close() error
}
