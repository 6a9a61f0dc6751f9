package policy

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	"impulsewars/internal/nn"
)

// ActionKind selects the action head; it is fixed for the life of a policy
type ActionKind int

const (
	Continuous ActionKind = iota
	Discrete
)

func (k ActionKind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Discrete:
		return "discrete"
	default:
		return "unknown"
	}
}

// ParseActionKind maps a config name to an ActionKind
func ParseActionKind(s string) (ActionKind, error) {
	switch strings.ToLower(s) {
	case "continuous":
		return Continuous, nil
	case "discrete":
		return Discrete, nil
	default:
		return 0, fmt.Errorf("%w: unknown action kind %q", ErrActionSpace, s)
	}
}

// ErrNoSource is returned when a head needs randomness and none was given
var ErrNoSource = errors.New("random source required")

// ActionHead maps recurrent hidden outputs to an action distribution
type ActionHead interface {
	Kind() ActionKind
	Decode(hidden []float32, batch int, src rand.Source) (Distribution, error)
}

// ContinuousHead emits a Gaussian around a projected mean in training mode
// and the mean itself in eval mode.
type ContinuousHead struct {
	mean     *nn.Linear
	LogStd   []float32
	training bool
	jitter   float64
}

// NewContinuousHead registers the mean projection and the log std vector.
// In training mode the mean is shifted by uniform noise in [-jitter, jitter]
// before the Gaussian is built; the Gaussian's parameters do not account for it.
func NewContinuousHead(p *nn.Params, hidden, dims int, training bool, jitter float64) *ContinuousHead {
	return &ContinuousHead{
		mean:     nn.NewLinear(p, "actor_mean", hidden, dims, nn.GainActor),
		LogStd:   p.Register("actor_log_std", dims, 0, 0),
		training: training,
		jitter:   jitter,
	}
}

func (h *ContinuousHead) Kind() ActionKind { return Continuous }

// Dims returns the action width
func (h *ContinuousHead) Dims() int { return h.mean.Out }

func (h *ContinuousHead) Decode(hidden []float32, batch int, src rand.Source) (Distribution, error) {
	mean := h.mean.Forward(hidden, batch)
	if !h.training {
		return &PointMass{Batch: batch, Dims: h.mean.Out, Value: mean}, nil
	}
	if h.jitter > 0 {
		if src == nil {
			return nil, fmt.Errorf("%w: training jitter", ErrNoSource)
		}
		u := distuv.Uniform{Min: -h.jitter, Max: h.jitter, Src: src}
		for i := range mean {
			mean[i] += float32(u.Rand())
		}
	}
	return &Gaussian{Batch: batch, Dims: h.mean.Out, Mean: mean, LogStd: h.LogStd}, nil
}

// DiscreteHead projects to concatenated logits split per action dimension
type DiscreteHead struct {
	logits *nn.Linear
	nvec   []int
}

// NewDiscreteHead registers the logit projection for sum(nvec) outputs
func NewDiscreteHead(p *nn.Params, hidden int, nvec []int) (*DiscreteHead, error) {
	width := 0
	for _, n := range nvec {
		if n <= 0 {
			return nil, fmt.Errorf("%w: nvec %v", ErrActionSpace, nvec)
		}
		width += n
	}
	if width == 0 {
		return nil, fmt.Errorf("%w: empty nvec", ErrActionSpace)
	}
	return &DiscreteHead{
		logits: nn.NewLinear(p, "actor", hidden, width, nn.GainActor),
		nvec:   append([]int(nil), nvec...),
	}, nil
}

func (h *DiscreteHead) Kind() ActionKind { return Discrete }

// Nvec returns the per-dimension cardinalities
func (h *DiscreteHead) Nvec() []int { return h.nvec }

func (h *DiscreteHead) Decode(hidden []float32, batch int, _ rand.Source) (Distribution, error) {
	return NewMultiCategorical(h.logits.Forward(hidden, batch), batch, h.nvec)
}

// Critic is the value head
type Critic struct {
	value *nn.Linear
}

// NewCritic registers the value projection
func NewCritic(p *nn.Params, hidden int) *Critic {
	return &Critic{value: nn.NewLinear(p, "critic", hidden, 1, nn.GainCritic)}
}

// Value returns one estimate per batch row
func (c *Critic) Value(hidden []float32, batch int) []float32 {
	return c.value.Forward(hidden, batch)
}
