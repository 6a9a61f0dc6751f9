package nn

import "fmt"

// LSTMCell is a single LSTM step with gates stacked as (input, forget, cell, output)
type LSTMCell struct {
	In       int
	Hidden   int
	WeightIH []float32 // (4*Hidden, In)
	WeightHH []float32 // (4*Hidden, Hidden)
	Bias     []float32 // 4*Hidden
}

// NewLSTMCell registers the cell's tensors under name
func NewLSTMCell(p *Params, name string, in, hidden int) *LSTMCell {
	return &LSTMCell{
		In:       in,
		Hidden:   hidden,
		WeightIH: p.Register(name+".weight_ih", 4*hidden*in, in, 1),
		WeightHH: p.Register(name+".weight_hh", 4*hidden*hidden, hidden, 1),
		Bias:     p.Register(name+".bias", 4*hidden, 0, 0),
	}
}

// Step advances (h, c) by one input x, all batch-major. The inputs are not
// modified; the new hidden and cell states are returned.
func (l *LSTMCell) Step(x, h, c []float32, batch int) ([]float32, []float32) {
	H := l.Hidden
	if len(x) != batch*l.In || len(h) != batch*H || len(c) != batch*H {
		panic(fmt.Sprintf("nn: lstm step with %d inputs and %d/%d state values for batch %d", len(x), len(h), len(c), batch))
	}

	newH := make([]float32, batch*H)
	newC := make([]float32, batch*H)
	gates := make([]float32, 4*H)
	for b := 0; b < batch; b++ {
		xb := x[b*l.In : (b+1)*l.In]
		hb := h[b*H : (b+1)*H]
		for g := 0; g < 4*H; g++ {
			sum := l.Bias[g]
			wi := l.WeightIH[g*l.In : (g+1)*l.In]
			for i, v := range xb {
				sum += v * wi[i]
			}
			wh := l.WeightHH[g*H : (g+1)*H]
			for i, v := range hb {
				sum += v * wh[i]
			}
			gates[g] = sum
		}
		for j := 0; j < H; j++ {
			i := sigmoid(gates[j])
			f := sigmoid(gates[H+j])
			g := tanh(gates[2*H+j])
			o := sigmoid(gates[3*H+j])
			cj := f*c[b*H+j] + i*g
			newC[b*H+j] = cj
			newH[b*H+j] = o * tanh(cj)
		}
	}
	return newH, newC
}
