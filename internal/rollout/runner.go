package rollout

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"impulsewars/internal/logging"
	"impulsewars/internal/policy"
)

// Summary holds the statistics of one Run call
type Summary struct {
	AggregatedStats
	Steps       int
	ValueMean   float64
	EntropyMean float64
	Elapsed     time.Duration
	StepsPerSec float64
}

// Row converts s into a summary logger row
func (s Summary) Row(runID string, iteration int) logging.SummaryRow {
	return logging.SummaryRow{
		RunID:       runID,
		Iteration:   iteration,
		Steps:       s.Steps,
		Episodes:    s.NumEpisodes,
		ReturnMean:  s.ReturnMean,
		ReturnStd:   s.ReturnStd,
		LengthMean:  s.LengthMean,
		ValueMean:   s.ValueMean,
		EntropyMean: s.EntropyMean,
		StepsPerSec: s.StepsPerSec,
	}
}

// Runner steps a policy against a VecEnv. The recurrent state and the
// current observations carry over between Run calls.
type Runner struct {
	policy *policy.Policy
	env    VecEnv
	logger zerolog.Logger
	seed   uint64
	src    rand.Source

	trace     *logging.TraceWriter
	runID     string
	recordObs bool

	started bool
	obs     []byte
	state   policy.State
	step    int
	returns []float64
	lengths []int
}

// NewRunner checks that the env batch fits the policy's codec
func NewRunner(p *policy.Policy, env VecEnv, logger zerolog.Logger, seed uint64) (*Runner, error) {
	if env.NumEnvs() <= 0 {
		return nil, fmt.Errorf("rollout: env has %d instances", env.NumEnvs())
	}
	n := env.NumEnvs()
	return &Runner{
		policy:  p,
		env:     env,
		logger:  logger.With().Str("component", "rollout").Logger(),
		seed:    seed,
		src:     rand.NewPCG(seed, seed^0xDA3E39CB94B95BDB),
		state:   p.InitialState(n),
		returns: make([]float64, n),
		lengths: make([]int, n),
	}, nil
}

// WithTrace records every (step, env) pair to w
func (r *Runner) WithTrace(w *logging.TraceWriter, runID string, recordObs bool) *Runner {
	r.trace = w
	r.runID = runID
	r.recordObs = recordObs
	return r
}

// State returns a copy of the current recurrent state
func (r *Runner) State() policy.State {
	return r.state.Clone()
}

// Run advances every env by steps steps. Training policies sample their
// actions, evaluation policies take the mode.
func (r *Runner) Run(ctx context.Context, steps int) (Summary, error) {
	if steps <= 0 {
		return Summary{}, fmt.Errorf("rollout: steps must be positive, got %d", steps)
	}
	if !r.started {
		buf, err := r.env.Reset(r.seed)
		if err != nil {
			return Summary{}, fmt.Errorf("reset env: %w", err)
		}
		r.obs = buf
		r.started = true
	}

	n := r.env.NumEnvs()
	sample := r.policy.Config().Training
	codec := r.policy.Codec()
	obsBytes := codec.Layout().ObsBytes

	var (
		episodes   []EpisodeStats
		valueSum   float64
		entropySum float64
	)
	start := time.Now()

	for s := 0; s < steps; s++ {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}

		out, next, err := r.policy.Forward(r.obs, n, r.state, r.src)
		if err != nil {
			return Summary{}, fmt.Errorf("step %d: forward: %w", r.step, err)
		}

		var actions policy.Actions
		if sample {
			actions = out.Dist.Sample(r.src)
		} else {
			actions = out.Dist.Mode()
		}
		logProbs := out.Dist.LogProb(actions)
		for i, e := range out.Dist.Entropy() {
			entropySum += float64(e)
			valueSum += float64(out.Values[i])
		}

		res, err := r.env.Step(actions)
		if err != nil {
			return Summary{}, fmt.Errorf("step %d: env: %w", r.step, err)
		}

		if r.trace != nil {
			rows := make([]logging.TraceRow, n)
			for i := range rows {
				rows[i] = logging.TraceRow{
					RunID:      r.runID,
					Step:       int32(r.step),
					Env:        int32(i),
					Continuous: rowOf(actions.Continuous, i, n),
					Discrete:   rowOf(actions.Discrete, i, n),
					LogProb:    logProbs[i],
					Value:      out.Values[i],
					Reward:     res.Rewards[i],
					Terminal:   res.Terminals[i],
					Truncated:  res.Truncations[i],
				}
				if r.recordObs {
					rows[i].Obs = append([]byte(nil), r.obs[i*obsBytes:(i+1)*obsBytes]...)
				}
			}
			if err := r.trace.WriteRows(rows); err != nil {
				return Summary{}, fmt.Errorf("step %d: trace: %w", r.step, err)
			}
		}

		done := make([]bool, n)
		for i := 0; i < n; i++ {
			r.returns[i] += float64(res.Rewards[i])
			r.lengths[i]++
			if !res.Terminals[i] && !res.Truncations[i] {
				continue
			}
			done[i] = true
			outcome := OutcomeTruncated
			if res.Terminals[i] {
				outcome = OutcomeTerminated
			}
			episodes = append(episodes, EpisodeStats{
				Env:     i,
				Return:  r.returns[i],
				Length:  r.lengths[i],
				Outcome: outcome,
			})
			r.logger.Debug().
				Int("env", i).
				Int("step", r.step).
				Float64("return", r.returns[i]).
				Int("length", r.lengths[i]).
				Stringer("outcome", outcome).
				Msg("episode finished")
			r.returns[i], r.lengths[i] = 0, 0
		}
		if err := next.Reset(done); err != nil {
			return Summary{}, err
		}

		r.state = next
		r.obs = res.Obs
		r.step++
	}

	elapsed := time.Since(start)
	samples := float64(steps * n)
	sum := Summary{
		AggregatedStats: Aggregate(episodes),
		Steps:           steps * n,
		ValueMean:       valueSum / samples,
		EntropyMean:     entropySum / samples,
		Elapsed:         elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		sum.StepsPerSec = samples / secs
	}

	r.logger.Info().
		Int("steps", sum.Steps).
		Int("episodes", sum.NumEpisodes).
		Float64("return_mean", sum.ReturnMean).
		Float64("value_mean", sum.ValueMean).
		Float64("steps_per_sec", sum.StepsPerSec).
		Msg("rollout finished")
	return sum, nil
}

// rowOf returns row i of a (n, dims) batch, nil when the batch is empty
func rowOf[T any](data []T, i, n int) []T {
	if len(data) == 0 {
		return nil
	}
	dims := len(data) / n
	return append([]T(nil), data[i*dims:(i+1)*dims]...)
}
