package policy

import (
	"fmt"
	"math/rand/v2"

	"impulsewars/internal/encoder"
	"impulsewars/internal/nn"
	"impulsewars/internal/obs"
)

// Config fixes everything a policy is built from
type Config struct {
	NumDrones   int
	Ruleset     obs.Ruleset
	Encoder     encoder.Config
	LSTMHidden  int
	Actions     ActionKind
	ActionDims  int   // continuous
	ActionNvec  []int // discrete
	Training    bool
	JitterBound float64
	Seed        uint64
}

// DefaultActionDims is the continuous action width: move x/y, aim x/y, shoot, brake, burst
const DefaultActionDims = 7

// DefaultActionNvec is the discrete action space: move, aim, shoot, brake, burst
var DefaultActionNvec = []int{9, 17, 2, 2, 2}

// DefaultJitterBound is the training-mode perturbation of the continuous mean
const DefaultJitterBound = 0.01

// DefaultConfig returns an eval-mode continuous policy config
func DefaultConfig(numDrones int, ruleset obs.Ruleset) Config {
	return Config{
		NumDrones:   numDrones,
		Ruleset:     ruleset,
		Encoder:     encoder.DefaultConfig(),
		LSTMHidden:  128,
		Actions:     Continuous,
		ActionDims:  DefaultActionDims,
		ActionNvec:  append([]int(nil), DefaultActionNvec...),
		JitterBound: DefaultJitterBound,
		Seed:        1,
	}
}

// Output is the result of one forward pass
type Output struct {
	Dist   Distribution
	Values []float32 // batch
	Hidden []float32 // (batch, LSTMHidden)
}

// Policy is the full actor-critic: codec, encoder, LSTM and heads
type Policy struct {
	cfg    Config
	params *nn.Params
	codec  *obs.Codec
	enc    *encoder.Encoder
	rnn    *Recurrent
	actor  ActionHead
	critic *Critic
}

// New builds and initializes a policy from cfg
func New(cfg Config) (*Policy, error) {
	layout, err := obs.NewLayout(cfg.NumDrones, cfg.Ruleset)
	if err != nil {
		return nil, err
	}
	codec, err := obs.NewCodec(layout)
	if err != nil {
		return nil, err
	}
	if cfg.LSTMHidden <= 0 {
		return nil, fmt.Errorf("%w: lstm hidden %d", obs.ErrConfig, cfg.LSTMHidden)
	}
	if cfg.JitterBound < 0 {
		return nil, fmt.Errorf("%w: jitter bound %v", obs.ErrConfig, cfg.JitterBound)
	}

	p := &Policy{cfg: cfg, params: nn.NewParams(), codec: codec}
	p.enc, err = encoder.New(p.params, layout, cfg.Encoder)
	if err != nil {
		return nil, err
	}
	p.rnn = NewRecurrent(p.params, cfg.Encoder.Latent, cfg.LSTMHidden)

	switch cfg.Actions {
	case Continuous:
		if cfg.ActionDims <= 0 {
			return nil, fmt.Errorf("%w: %d continuous action dims", ErrActionSpace, cfg.ActionDims)
		}
		p.actor = NewContinuousHead(p.params, cfg.LSTMHidden, cfg.ActionDims, cfg.Training, cfg.JitterBound)
	case Discrete:
		p.actor, err = NewDiscreteHead(p.params, cfg.LSTMHidden, cfg.ActionNvec)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: action kind %d", ErrActionSpace, int(cfg.Actions))
	}
	p.critic = NewCritic(p.params, cfg.LSTMHidden)

	p.params.Init(cfg.Seed)
	return p, nil
}

// Forward decodes buf, encodes it, steps the LSTM from state and decodes
// the heads. src is only drawn from by the training-mode continuous head.
func (p *Policy) Forward(buf []byte, batch int, state State, src rand.Source) (*Output, State, error) {
	o, err := p.codec.Decode(buf, batch)
	if err != nil {
		return nil, State{}, err
	}
	if state.Batch != batch {
		return nil, State{}, fmt.Errorf("%w: state batch %d, observation batch %d", ErrState, state.Batch, batch)
	}
	latent, err := p.enc.Encode(o)
	if err != nil {
		return nil, State{}, err
	}
	hidden, next, err := p.rnn.Step(latent, state)
	if err != nil {
		return nil, State{}, err
	}
	dist, err := p.actor.Decode(hidden, batch, src)
	if err != nil {
		return nil, State{}, err
	}
	return &Output{
		Dist:   dist,
		Values: p.critic.Value(hidden, batch),
		Hidden: hidden,
	}, next, nil
}

// InitialState returns the zero recurrent state for batch environments
func (p *Policy) InitialState(batch int) State { return p.rnn.InitialState(batch) }

// NumParams returns the number of learnable parameters
func (p *Policy) NumParams() int { return p.params.Count() }

// Params returns a flat copy of every parameter
func (p *Policy) Params() []float32 { return p.params.Flatten() }

// SetParams loads a flat vector produced by Params
func (p *Policy) SetParams(flat []float32) error { return p.params.Load(flat) }

// ParamNames returns the tensor names in flat order
func (p *Policy) ParamNames() []string { return p.params.Names() }

// Codec returns the observation codec
func (p *Policy) Codec() *obs.Codec { return p.codec }

// Encoder returns the feature encoder
func (p *Policy) Encoder() *encoder.Encoder { return p.enc }

// Actor returns the action head
func (p *Policy) Actor() ActionHead { return p.actor }

// Config returns the construction config
func (p *Policy) Config() Config { return p.cfg }
