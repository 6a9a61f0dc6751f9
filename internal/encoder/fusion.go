package encoder

import (
	"fmt"

	"impulsewars/internal/nn"
	"impulsewars/internal/obs"
)

// Branch is one declared input of the fusion layer
type Branch struct {
	Name  string
	Width int
}

// Fusion concatenates branch outputs in declared order and projects them
// to the latent width.
type Fusion struct {
	branches []Branch
	width    int
	proj     *nn.Linear
}

// NewFusion registers the projection for the sum of the branch widths
func NewFusion(p *nn.Params, branches []Branch, latent int) *Fusion {
	f := &Fusion{branches: append([]Branch(nil), branches...)}
	for _, b := range branches {
		f.width += b.Width
	}
	f.proj = nn.NewLinear(p, "encoder", f.width, latent, nn.GainHidden)
	return f
}

// Width returns the concatenated feature width
func (f *Fusion) Width() int { return f.width }

// Branches returns the declared branches in order
func (f *Fusion) Branches() []Branch { return f.branches }

// Forward checks every branch output against its declared width, then
// concatenates and projects. A width disagreement is a configuration error.
func (f *Fusion) Forward(outputs [][]float32, batch int) ([]float32, error) {
	if len(outputs) != len(f.branches) {
		return nil, fmt.Errorf("%w: fusion got %d branch outputs, declared %d", obs.ErrConfig, len(outputs), len(f.branches))
	}
	for i, br := range f.branches {
		if len(outputs[i]) != batch*br.Width {
			return nil, fmt.Errorf("%w: branch %s produced %d values, declared width %d for batch %d",
				obs.ErrConfig, br.Name, len(outputs[i]), br.Width, batch)
		}
	}

	features := make([]float32, 0, batch*f.width)
	for b := 0; b < batch; b++ {
		for i, br := range f.branches {
			features = append(features, outputs[i][b*br.Width:(b+1)*br.Width]...)
		}
	}
	latent := f.proj.Forward(features, batch)
	nn.LeakyReLU(latent)
	return latent, nil
}
