package obs

import "fmt"

// Observation is one decoded batch: unpacked map channels plus scalar fields
type Observation struct {
	Batch   int
	Map     *Channels
	Scalars *Scalars
}

// Codec decodes observation buffers for one layout
type Codec struct {
	layout   *Layout
	unpacker *Unpacker
	scalars  *ScalarView
}

// NewCodec builds the unpacker and scalar view for a layout
func NewCodec(layout *Layout) (*Codec, error) {
	unpacker, err := NewLayoutUnpacker(layout)
	if err != nil {
		return nil, err
	}
	scalars, err := NewScalarView(layout.Scalar, layout.ScalarBytes())
	if err != nil {
		return nil, err
	}
	return &Codec{
		layout:   layout,
		unpacker: unpacker,
		scalars:  scalars,
	}, nil
}

// Layout returns the layout the codec decodes
func (c *Codec) Layout() *Layout {
	return c.layout
}

// Decode splits buf into batch observations and decodes each one.
// The buffer must be exactly batch*ObsBytes long and every category id
// must lie inside its domain.
func (c *Codec) Decode(buf []byte, batch int) (*Observation, error) {
	if batch <= 0 {
		return nil, fmt.Errorf("%w: batch size %d", ErrMalformedBuffer, batch)
	}
	if want := batch * c.layout.ObsBytes; len(buf) != want {
		return nil, fmt.Errorf("%w: got %d bytes, want %d (%d x %d)",
			ErrMalformedBuffer, len(buf), want, batch, c.layout.ObsBytes)
	}

	stride := c.layout.ObsBytes
	ch, err := c.unpacker.Unpack(buf, batch, stride)
	if err != nil {
		return nil, err
	}
	sc, err := c.scalars.Decode(buf, batch, stride, c.layout.ScalarOffset)
	if err != nil {
		return nil, err
	}

	o := &Observation{Batch: batch, Map: ch, Scalars: sc}
	if err := c.validate(o); err != nil {
		return nil, err
	}
	return o, nil
}

func (c *Codec) validate(o *Observation) error {
	for b := 0; b < o.Batch; b++ {
		for f, field := range c.layout.MapFields {
			card := c.layout.Cardinality(field.Domain)
			for i, id := range o.Map.Plane(b, f) {
				if int(id) >= card {
					return fmt.Errorf("%w: batch %d cell %d field %s id %d, cardinality %d",
						ErrInvalidCategory, b, i, field.Name, id, card)
				}
			}
		}

		for _, field := range c.layout.Scalar {
			if field.Type != Uint8 || field.Domain == DomainNone {
				continue
			}
			card := c.layout.Cardinality(field.Domain)
			for i, id := range o.Scalars.Codes(b, field.ID) {
				if int(id) >= card {
					return fmt.Errorf("%w: batch %d %s[%d] id %d, cardinality %d",
						ErrInvalidCategory, b, field.ID, i, id, card)
				}
			}
		}
	}
	return nil
}
