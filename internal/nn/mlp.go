package nn

import "fmt"

// MLP is a feedforward stack where every layer is followed by LeakyReLU
type MLP struct {
	InputSize  int
	OutputSize int
	Layers     []*Linear
}

// NewMLP creates an MLP with the given layer widths, input first
func NewMLP(p *Params, name string, sizes ...int) *MLP {
	if len(sizes) < 2 {
		panic("nn: MLP needs an input and an output width")
	}
	m := &MLP{
		InputSize:  sizes[0],
		OutputSize: sizes[len(sizes)-1],
	}
	for i := 1; i < len(sizes); i++ {
		layerName := name
		if len(sizes) > 2 {
			layerName = fmt.Sprintf("%s.%d", name, i-1)
		}
		m.Layers = append(m.Layers, NewLinear(p, layerName, sizes[i-1], sizes[i], GainHidden))
	}
	return m
}

// Forward maps x shaped (batch, InputSize) to (batch, OutputSize)
func (m *MLP) Forward(x []float32, batch int) []float32 {
	for _, l := range m.Layers {
		x = l.Forward(x, batch)
		LeakyReLU(x)
	}
	return x
}
