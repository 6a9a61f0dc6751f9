package logging

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"impulsewars/internal/encoder"
	"impulsewars/internal/obs"
	"impulsewars/internal/policy"
)

// ErrCheckpoint marks a checkpoint that does not match the policy it is loaded into
var ErrCheckpoint = errors.New("checkpoint mismatch")

// Checkpoint is a saved policy: the construction integers plus the flat parameters
type Checkpoint struct {
	RunID      string         `json:"run_id"`
	Iteration  int            `json:"iteration"`
	NumDrones  int            `json:"num_drones"`
	Ruleset    string         `json:"ruleset"`
	Actions    string         `json:"actions"`
	ActionDims int            `json:"action_dims,omitempty"`
	ActionNvec []int          `json:"action_nvec,omitempty"`
	LSTMHidden int            `json:"lstm_hidden"`
	Encoder    encoder.Config `json:"encoder"`
	NumParams  int            `json:"num_params"`
	Params     []float32      `json:"params"`
}

// NewCheckpoint snapshots p
func NewCheckpoint(p *policy.Policy, runID string, iteration int) *Checkpoint {
	cfg := p.Config()
	ck := &Checkpoint{
		RunID:      runID,
		Iteration:  iteration,
		NumDrones:  cfg.NumDrones,
		Ruleset:    cfg.Ruleset.String(),
		Actions:    cfg.Actions.String(),
		LSTMHidden: cfg.LSTMHidden,
		Encoder:    cfg.Encoder,
		NumParams:  p.NumParams(),
		Params:     p.Params(),
	}
	if cfg.Actions == policy.Discrete {
		ck.ActionNvec = cfg.ActionNvec
	} else {
		ck.ActionDims = cfg.ActionDims
	}
	return ck
}

// PolicyConfig rebuilds the construction config recorded in the checkpoint
func (c *Checkpoint) PolicyConfig() (policy.Config, error) {
	ruleset, err := obs.ParseRuleset(c.Ruleset)
	if err != nil {
		return policy.Config{}, err
	}
	kind, err := policy.ParseActionKind(c.Actions)
	if err != nil {
		return policy.Config{}, err
	}
	cfg := policy.DefaultConfig(c.NumDrones, ruleset)
	cfg.Encoder = c.Encoder
	cfg.LSTMHidden = c.LSTMHidden
	cfg.Actions = kind
	if kind == policy.Discrete {
		cfg.ActionNvec = c.ActionNvec
	} else {
		cfg.ActionDims = c.ActionDims
	}
	return cfg, nil
}

// SaveCheckpoint writes ck as indented JSON
func SaveCheckpoint(path string, ck *Checkpoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	jsonData, err := json.MarshalIndent(ck, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, jsonData, 0644)
}

// LoadCheckpoint reads a checkpoint written by SaveCheckpoint
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ck Checkpoint
	if err := json.Unmarshal(data, &ck); err != nil {
		return nil, err
	}
	if len(ck.Params) != ck.NumParams {
		return nil, fmt.Errorf("%w: %s holds %d params, header says %d", ErrCheckpoint, path, len(ck.Params), ck.NumParams)
	}
	return &ck, nil
}

// ApplyCheckpoint loads ck's parameters into p. The construction integers
// must match the ones p was built with.
func ApplyCheckpoint(p *policy.Policy, ck *Checkpoint) error {
	want := NewCheckpoint(p, "", 0)
	switch {
	case want.NumDrones != ck.NumDrones:
		return fmt.Errorf("%w: num drones %d, policy has %d", ErrCheckpoint, ck.NumDrones, want.NumDrones)
	case want.Ruleset != ck.Ruleset:
		return fmt.Errorf("%w: ruleset %s, policy has %s", ErrCheckpoint, ck.Ruleset, want.Ruleset)
	case want.Actions != ck.Actions:
		return fmt.Errorf("%w: %s actions, policy has %s", ErrCheckpoint, ck.Actions, want.Actions)
	case want.ActionDims != ck.ActionDims || !slices.Equal(want.ActionNvec, ck.ActionNvec):
		return fmt.Errorf("%w: action space differs", ErrCheckpoint)
	case want.LSTMHidden != ck.LSTMHidden || want.Encoder != ck.Encoder:
		return fmt.Errorf("%w: network widths differ", ErrCheckpoint)
	}
	if err := p.SetParams(ck.Params); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	return nil
}
