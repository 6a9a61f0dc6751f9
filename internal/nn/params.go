package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrShape marks a parameter vector or tensor whose size does not match
var ErrShape = errors.New("shape mismatch")

// Gains used when initializing layers
var (
	GainHidden = math.Sqrt2
	GainActor  = 0.01
	GainCritic = 1.0
)

// Tensor is one named parameter block
type Tensor struct {
	Name  string
	Data  []float32
	FanIn int     // 0 means the tensor is zero initialized
	Gain  float64 // std = Gain / sqrt(FanIn)
}

// Params owns every learnable tensor of a network. The tensors in
// registration order form one flat genome-style vector.
type Params struct {
	tensors []*Tensor
	byName  map[string]*Tensor
}

// NewParams creates an empty registry
func NewParams() *Params {
	return &Params{byName: make(map[string]*Tensor)}
}

// Register allocates a tensor of size floats and returns its backing slice.
// Registering the same name twice is a programming error and panics.
func (p *Params) Register(name string, size, fanIn int, gain float64) []float32 {
	if _, ok := p.byName[name]; ok {
		panic(fmt.Sprintf("nn: parameter %q registered twice", name))
	}
	t := &Tensor{Name: name, Data: make([]float32, size), FanIn: fanIn, Gain: gain}
	p.tensors = append(p.tensors, t)
	p.byName[name] = t
	return t.Data
}

// Count returns the total number of parameters
func (p *Params) Count() int {
	n := 0
	for _, t := range p.tensors {
		n += len(t.Data)
	}
	return n
}

// Names returns the tensor names in registration order
func (p *Params) Names() []string {
	names := make([]string, len(p.tensors))
	for i, t := range p.tensors {
		names[i] = t.Name
	}
	return names
}

// Get returns the tensor with the given name, or nil
func (p *Params) Get(name string) []float32 {
	if t, ok := p.byName[name]; ok {
		return t.Data
	}
	return nil
}

// Flatten copies all parameters into one vector
func (p *Params) Flatten() []float32 {
	flat := make([]float32, 0, p.Count())
	for _, t := range p.tensors {
		flat = append(flat, t.Data...)
	}
	return flat
}

// Load copies a flat vector produced by Flatten back into the tensors
func (p *Params) Load(flat []float32) error {
	if len(flat) != p.Count() {
		return fmt.Errorf("%w: got %d parameters, network has %d", ErrShape, len(flat), p.Count())
	}
	off := 0
	for _, t := range p.tensors {
		off += copy(t.Data, flat[off:])
	}
	return nil
}

// Init fills every tensor from a scaled normal distribution seeded by seed.
// Tensors with FanIn 0 are zeroed.
func (p *Params) Init(seed uint64) {
	src := rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)
	for _, t := range p.tensors {
		if t.FanIn <= 0 || t.Gain == 0 {
			clear(t.Data)
			continue
		}
		normal := distuv.Normal{
			Mu:    0,
			Sigma: t.Gain / math.Sqrt(float64(t.FanIn)),
			Src:   src,
		}
		for i := range t.Data {
			t.Data[i] = float32(normal.Rand())
		}
	}
}
