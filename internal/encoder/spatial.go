package encoder

import (
	"fmt"

	"impulsewars/internal/nn"
	"impulsewars/internal/obs"
)

// Spatial expands the unpacked map channels into planes and runs them
// through two strided convolutions.
type Spatial struct {
	layout  *obs.Layout
	weapons *nn.Embedding
	conv1   *nn.Conv2D
	conv2   *nn.Conv2D
	planes  int
	width   int
}

// NewSpatial builds the convolution stack and measures its output width
// with a dry run over a zero map.
func NewSpatial(p *nn.Params, l *obs.Layout, weapons *nn.Embedding, channels int) (*Spatial, error) {
	s := &Spatial{layout: l, weapons: weapons}
	for _, f := range l.MapFields {
		s.planes += s.fieldPlanes(f)
	}

	s.conv1 = nn.NewConv2D(p, "map_cnn.0", s.planes, channels, 5, 2, nn.GainHidden)
	s.conv2 = nn.NewConv2D(p, "map_cnn.1", channels, channels, 3, 2, nn.GainHidden)

	out := s.convolve(make([]float32, s.planes*l.Columns*l.Rows), 1)
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %dx%d map is too small for the convolution stack", obs.ErrConfig, l.Columns, l.Rows)
	}
	s.width = len(out)
	return s, nil
}

func (s *Spatial) fieldPlanes(f obs.MapField) int {
	switch f.Kind {
	case obs.FieldOneHot:
		return s.layout.Cardinality(f.Domain)
	case obs.FieldEmbed:
		return s.weapons.Dim
	default:
		return 1
	}
}

// Planes returns the number of input planes after expansion
func (s *Spatial) Planes() int { return s.planes }

// Width returns the flattened output width measured at construction
func (s *Spatial) Width() int { return s.width }

// Expand turns raw ids into float planes shaped (batch, planes, cols, rows):
// one-hot fields get one plane per id, flags stay a single plane, and
// embedded fields get one plane per embedding dimension.
func (s *Spatial) Expand(ch *obs.Channels) []float32 {
	cells := ch.Columns * ch.Rows
	out := make([]float32, ch.Batch*s.planes*cells)
	for b := 0; b < ch.Batch; b++ {
		plane := b * s.planes
		for fi, f := range s.layout.MapFields {
			ids := ch.Plane(b, fi)
			switch f.Kind {
			case obs.FieldOneHot:
				for i, id := range ids {
					out[(plane+int(id))*cells+i] = 1
				}
			case obs.FieldFlag:
				for i, id := range ids {
					out[plane*cells+i] = float32(id)
				}
			case obs.FieldEmbed:
				for i, id := range ids {
					for d, v := range s.weapons.Lookup(id) {
						out[(plane+d)*cells+i] = v
					}
				}
			}
			plane += s.fieldPlanes(f)
		}
	}
	return out
}

// Forward returns the spatial features shaped (batch, Width)
func (s *Spatial) Forward(ch *obs.Channels) []float32 {
	return s.convolve(s.Expand(ch), ch.Batch)
}

func (s *Spatial) convolve(x []float32, batch int) []float32 {
	l := s.layout
	x, h, w := s.conv1.Forward(x, batch, l.Columns, l.Rows)
	if h <= 0 || w <= 0 {
		return nil
	}
	nn.LeakyReLU(x)
	x, h, w = s.conv2.Forward(x, batch, h, w)
	if h <= 0 || w <= 0 {
		return nil
	}
	nn.LeakyReLU(x)
	return x
}
