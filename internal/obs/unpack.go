package obs

import "fmt"

// Channels holds unpacked map fields as raw ids, shaped
// (batch, fields, columns, rows) with fields as the channel axis.
// Cell k of the packed grid lands at (k / rows, k % rows).
type Channels struct {
	Batch   int
	Fields  int
	Columns int
	Rows    int
	Data    []uint8
}

// At returns the id of field f at (col, row) for batch element b
func (c *Channels) At(b, f, col, row int) uint8 {
	return c.Data[((b*c.Fields+f)*c.Columns+col)*c.Rows+row]
}

// Plane returns the cells of field f for batch element b
func (c *Channels) Plane(b, f int) []uint8 {
	cells := c.Columns * c.Rows
	start := (b*c.Fields + f) * cells
	return c.Data[start : start+cells]
}

// Unpacker splits packed map cells into one channel per (mask, shift) pair
type Unpacker struct {
	masks   []uint8
	shifts  []uint8
	columns int
	rows    int
}

// NewUnpacker checks that the mask and shift tables both describe exactly
// fields entries.
func NewUnpacker(masks, shifts []uint8, fields, columns, rows int) (*Unpacker, error) {
	if len(masks) != fields || len(shifts) != fields {
		return nil, fmt.Errorf("%w: %d masks and %d shifts for %d map fields",
			ErrConfig, len(masks), len(shifts), fields)
	}
	if columns <= 0 || rows <= 0 {
		return nil, fmt.Errorf("%w: map grid %dx%d", ErrConfig, columns, rows)
	}
	return &Unpacker{
		masks:   append([]uint8(nil), masks...),
		shifts:  append([]uint8(nil), shifts...),
		columns: columns,
		rows:    rows,
	}, nil
}

// NewLayoutUnpacker builds the unpacker for a layout's cell table
func NewLayoutUnpacker(l *Layout) (*Unpacker, error) {
	masks := make([]uint8, len(l.MapFields))
	shifts := make([]uint8, len(l.MapFields))
	for i, f := range l.MapFields {
		masks[i] = f.Mask
		shifts[i] = f.Shift
	}
	return NewUnpacker(masks, shifts, len(l.MapFields), l.Columns, l.Rows)
}

// Fields returns the number of channels produced per cell
func (u *Unpacker) Fields() int {
	return len(u.masks)
}

// Unpack expands batch packed grids. Grid b starts at byte b*stride of buf.
func (u *Unpacker) Unpack(buf []byte, batch, stride int) (*Channels, error) {
	cells := u.columns * u.rows
	if batch <= 0 {
		return nil, fmt.Errorf("%w: batch size %d", ErrMalformedBuffer, batch)
	}
	if stride < cells || len(buf) < (batch-1)*stride+cells {
		return nil, fmt.Errorf("%w: %d bytes cannot hold %d grids of %d cells at stride %d",
			ErrMalformedBuffer, len(buf), batch, cells, stride)
	}

	fields := len(u.masks)
	ch := &Channels{
		Batch:   batch,
		Fields:  fields,
		Columns: u.columns,
		Rows:    u.rows,
		Data:    make([]uint8, batch*fields*cells),
	}

	for b := 0; b < batch; b++ {
		packed := buf[b*stride : b*stride+cells]
		for f := 0; f < fields; f++ {
			mask, shift := u.masks[f], u.shifts[f]
			plane := ch.Data[(b*fields+f)*cells : (b*fields+f+1)*cells]
			for i, v := range packed {
				plane[i] = (v & mask) >> shift
			}
		}
	}
	return ch, nil
}
