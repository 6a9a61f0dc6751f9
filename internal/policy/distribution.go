package policy

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"impulsewars/internal/nn"
)

// Actions is a batch of actions, continuous (batch, dims) or discrete
// (batch, len(nvec)).
type Actions struct {
	Batch      int
	Continuous []float32
	Discrete   []int32
}

// Distribution is a batch of action distributions
type Distribution interface {
	// Sample draws one action per batch row from src
	Sample(src rand.Source) Actions
	// Mode returns the most likely action per row
	Mode() Actions
	// LogProb returns the log density of a per row
	LogProb(a Actions) []float32
	// Entropy returns the entropy per row
	Entropy() []float32
}

// Gaussian is a diagonal normal with a state-independent log std
type Gaussian struct {
	Batch  int
	Dims   int
	Mean   []float32 // (batch, dims)
	LogStd []float32 // dims
}

func (g *Gaussian) normal(b, d int, src rand.Source) distuv.Normal {
	return distuv.Normal{
		Mu:    float64(g.Mean[b*g.Dims+d]),
		Sigma: math.Exp(float64(g.LogStd[d])),
		Src:   src,
	}
}

func (g *Gaussian) Sample(src rand.Source) Actions {
	a := Actions{Batch: g.Batch, Continuous: make([]float32, g.Batch*g.Dims)}
	for b := 0; b < g.Batch; b++ {
		for d := 0; d < g.Dims; d++ {
			a.Continuous[b*g.Dims+d] = float32(g.normal(b, d, src).Rand())
		}
	}
	return a
}

func (g *Gaussian) Mode() Actions {
	return Actions{Batch: g.Batch, Continuous: append([]float32(nil), g.Mean...)}
}

func (g *Gaussian) LogProb(a Actions) []float32 {
	out := make([]float32, g.Batch)
	for b := 0; b < g.Batch; b++ {
		var sum float64
		for d := 0; d < g.Dims; d++ {
			sum += g.normal(b, d, nil).LogProb(float64(a.Continuous[b*g.Dims+d]))
		}
		out[b] = float32(sum)
	}
	return out
}

func (g *Gaussian) Entropy() []float32 {
	out := make([]float32, g.Batch)
	for b := 0; b < g.Batch; b++ {
		var sum float64
		for d := 0; d < g.Dims; d++ {
			sum += g.normal(b, d, nil).Entropy()
		}
		out[b] = float32(sum)
	}
	return out
}

// PointMass always yields Value; it is the eval-mode continuous output
type PointMass struct {
	Batch int
	Dims  int
	Value []float32
}

func (p *PointMass) Sample(rand.Source) Actions { return p.Mode() }

func (p *PointMass) Mode() Actions {
	return Actions{Batch: p.Batch, Continuous: append([]float32(nil), p.Value...)}
}

func (p *PointMass) LogProb(a Actions) []float32 {
	out := make([]float32, p.Batch)
	for b := range out {
		for d := 0; d < p.Dims; d++ {
			if a.Continuous[b*p.Dims+d] != p.Value[b*p.Dims+d] {
				out[b] = float32(math.Inf(-1))
				break
			}
		}
	}
	return out
}

func (p *PointMass) Entropy() []float32 { return make([]float32, p.Batch) }

// MultiCategorical is one independent categorical per action dimension
type MultiCategorical struct {
	Batch  int
	Nvec   []int
	Logits []float32 // (batch, sum(nvec))
	width  int
}

// NewMultiCategorical checks that logits split exactly by nvec
func NewMultiCategorical(logits []float32, batch int, nvec []int) (*MultiCategorical, error) {
	width := 0
	for _, n := range nvec {
		width += n
	}
	if batch <= 0 || len(logits) != batch*width {
		return nil, fmt.Errorf("%w: %d logits for batch %d and nvec %v", ErrActionSpace, len(logits), batch, nvec)
	}
	if _, err := SplitLogits(logits[:width], nvec); err != nil {
		return nil, err
	}
	return &MultiCategorical{Batch: batch, Nvec: append([]int(nil), nvec...), Logits: logits, width: width}, nil
}

// groups returns row b split per action dimension as float64
func (m *MultiCategorical) groups(b int) [][]float64 {
	row := m.Logits[b*m.width : (b+1)*m.width]
	out := make([][]float64, len(m.Nvec))
	off := 0
	for i, n := range m.Nvec {
		g := make([]float64, n)
		for j := range g {
			g[j] = float64(row[off+j])
		}
		out[i] = g
		off += n
	}
	return out
}

func probs(logits []float64) []float64 {
	lse := floats.LogSumExp(logits)
	p := make([]float64, len(logits))
	for i, l := range logits {
		p[i] = math.Exp(l - lse)
	}
	return p
}

func (m *MultiCategorical) Sample(src rand.Source) Actions {
	a := Actions{Batch: m.Batch, Discrete: make([]int32, m.Batch*len(m.Nvec))}
	for b := 0; b < m.Batch; b++ {
		for i, g := range m.groups(b) {
			c := distuv.NewCategorical(probs(g), src)
			a.Discrete[b*len(m.Nvec)+i] = int32(c.Rand())
		}
	}
	return a
}

func (m *MultiCategorical) Mode() Actions {
	a := Actions{Batch: m.Batch, Discrete: make([]int32, m.Batch*len(m.Nvec))}
	for b := 0; b < m.Batch; b++ {
		row := m.Logits[b*m.width : (b+1)*m.width]
		groups, _ := SplitLogits(row, m.Nvec)
		for i, g := range groups {
			a.Discrete[b*len(m.Nvec)+i] = int32(nn.Argmax(g))
		}
	}
	return a
}

func (m *MultiCategorical) LogProb(a Actions) []float32 {
	out := make([]float32, m.Batch)
	for b := 0; b < m.Batch; b++ {
		var sum float64
		for i, g := range m.groups(b) {
			sum += g[a.Discrete[b*len(m.Nvec)+i]] - floats.LogSumExp(g)
		}
		out[b] = float32(sum)
	}
	return out
}

func (m *MultiCategorical) Entropy() []float32 {
	out := make([]float32, m.Batch)
	for b := 0; b < m.Batch; b++ {
		var sum float64
		for _, g := range m.groups(b) {
			for _, p := range probs(g) {
				if p > 0 {
					sum -= p * math.Log(p)
				}
			}
		}
		out[b] = float32(sum)
	}
	return out
}

// SplitLogits splits one row of concatenated logits into one group per
// action dimension. The groups alias row.
func SplitLogits(row []float32, nvec []int) ([][]float32, error) {
	groups := make([][]float32, len(nvec))
	off := 0
	for i, n := range nvec {
		if n <= 0 || off+n > len(row) {
			return nil, fmt.Errorf("%w: nvec %v does not fit %d logits", ErrActionSpace, nvec, len(row))
		}
		groups[i] = row[off : off+n : off+n]
		off += n
	}
	if off != len(row) {
		return nil, fmt.Errorf("%w: nvec %v sums to %d, got %d logits", ErrActionSpace, nvec, off, len(row))
	}
	return groups, nil
}
