package nn

import "fmt"

// Linear is a fully connected layer, Weight stored row-major as (Out, In)
type Linear struct {
	In     int
	Out    int
	Weight []float32
	Bias   []float32
}

// NewLinear registers weight and bias tensors under name
func NewLinear(p *Params, name string, in, out int, gain float64) *Linear {
	return &Linear{
		In:     in,
		Out:    out,
		Weight: p.Register(name+".weight", in*out, in, gain),
		Bias:   p.Register(name+".bias", out, 0, 0),
	}
}

// Forward maps x shaped (batch, In) to (batch, Out)
func (l *Linear) Forward(x []float32, batch int) []float32 {
	if len(x) != batch*l.In {
		panic(fmt.Sprintf("nn: linear expects %d inputs per row, got %d values for batch %d", l.In, len(x), batch))
	}
	out := make([]float32, batch*l.Out)
	for b := 0; b < batch; b++ {
		row := x[b*l.In : (b+1)*l.In]
		dst := out[b*l.Out : (b+1)*l.Out]
		for j := 0; j < l.Out; j++ {
			sum := l.Bias[j]
			w := l.Weight[j*l.In : (j+1)*l.In]
			for i, v := range row {
				sum += v * w[i]
			}
			dst[j] = sum
		}
	}
	return out
}
