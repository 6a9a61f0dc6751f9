package obs

import (
	"encoding/binary"
	"fmt"
	"math"
)

type fieldSlot struct {
	present bool
	typ     FieldType
	byteOff int
	index   int // into codes or values, depending on type
	count   int
}

// ScalarView reinterprets the scalar region through a declared schema.
// Float fields are rebuilt from their raw bits, so decoded values are
// bit-identical to what the producer wrote.
type ScalarView struct {
	schema    ScalarSchema
	slots     [numFieldIDs]fieldSlot
	numCodes  int
	numFloats int
	width     int
}

// NewScalarView fails when the schema width differs from regionBytes
func NewScalarView(schema ScalarSchema, regionBytes int) (*ScalarView, error) {
	width := schema.ByteWidth()
	if width != regionBytes {
		return nil, fmt.Errorf("%w: scalar schema is %d bytes, region is %d", ErrConfig, width, regionBytes)
	}

	v := &ScalarView{schema: schema, width: width}
	off := 0
	for _, f := range schema {
		if f.ID < 0 || f.ID >= numFieldIDs {
			return nil, fmt.Errorf("%w: unknown scalar field id %d", ErrConfig, int(f.ID))
		}
		if f.Count < 0 {
			return nil, fmt.Errorf("%w: scalar field %s has negative count", ErrConfig, f.ID)
		}
		if v.slots[f.ID].present {
			return nil, fmt.Errorf("%w: scalar field %s declared twice", ErrConfig, f.ID)
		}
		slot := fieldSlot{present: true, typ: f.Type, byteOff: off, count: f.Count}
		switch f.Type {
		case Uint8:
			slot.index = v.numCodes
			v.numCodes += f.Count
		case Float32:
			slot.index = v.numFloats
			v.numFloats += f.Count
		}
		v.slots[f.ID] = slot
		off += f.Width()
	}
	return v, nil
}

// Schema returns the schema the view was built from
func (v *ScalarView) Schema() ScalarSchema {
	return v.schema
}

// Width returns the region width in bytes
func (v *ScalarView) Width() int {
	return v.width
}

// NumCodes returns the number of category codes in one region
func (v *ScalarView) NumCodes() int { return v.numCodes }

// NumFloats returns the number of float values in one region
func (v *ScalarView) NumFloats() int { return v.numFloats }

// codesOf slices field id out of one region's codes, nil for non-code fields
func (v *ScalarView) codesOf(codes []uint8, id FieldID) []uint8 {
	slot := v.slots[id]
	if !slot.present || slot.typ != Uint8 {
		return nil
	}
	return codes[slot.index : slot.index+slot.count]
}

func (v *ScalarView) floatsOf(values []float32, id FieldID) []float32 {
	slot := v.slots[id]
	if !slot.present || slot.typ != Float32 {
		return nil
	}
	return values[slot.index : slot.index+slot.count]
}

// Decode reads batch scalar regions; region b starts at offset + b*stride
func (v *ScalarView) Decode(buf []byte, batch, stride, offset int) (*Scalars, error) {
	if batch <= 0 {
		return nil, fmt.Errorf("%w: batch size %d", ErrMalformedBuffer, batch)
	}
	if stride < v.width || len(buf) < offset+(batch-1)*stride+v.width {
		return nil, fmt.Errorf("%w: %d bytes cannot hold %d scalar regions of %d bytes at stride %d",
			ErrMalformedBuffer, len(buf), batch, v.width, stride)
	}

	s := &Scalars{
		view:   v,
		Batch:  batch,
		codes:  make([]uint8, batch*v.numCodes),
		values: make([]float32, batch*v.numFloats),
	}
	for b := 0; b < batch; b++ {
		region := buf[offset+b*stride : offset+b*stride+v.width]
		codes := s.codes[b*v.numCodes : (b+1)*v.numCodes]
		values := s.values[b*v.numFloats : (b+1)*v.numFloats]
		for _, f := range v.schema {
			slot := v.slots[f.ID]
			switch f.Type {
			case Uint8:
				copy(codes[slot.index:slot.index+f.Count], region[slot.byteOff:])
			case Float32:
				raw := region[slot.byteOff:]
				for i := 0; i < f.Count; i++ {
					values[slot.index+i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
				}
			}
		}
	}
	return s, nil
}

// Encode writes codes and values for one region into dst, the inverse of Decode
func (v *ScalarView) Encode(dst []byte, codes []uint8, values []float32) error {
	if len(dst) < v.width {
		return fmt.Errorf("%w: %d bytes for a %d byte scalar region", ErrMalformedBuffer, len(dst), v.width)
	}
	if len(codes) != v.numCodes || len(values) != v.numFloats {
		return fmt.Errorf("%w: got %d codes and %d values, schema has %d and %d",
			ErrConfig, len(codes), len(values), v.numCodes, v.numFloats)
	}
	for _, f := range v.schema {
		slot := v.slots[f.ID]
		switch f.Type {
		case Uint8:
			copy(dst[slot.byteOff:slot.byteOff+f.Count], codes[slot.index:])
		case Float32:
			for i := 0; i < f.Count; i++ {
				binary.LittleEndian.PutUint32(dst[slot.byteOff+i*4:], math.Float32bits(values[slot.index+i]))
			}
		case Pad:
			clear(dst[slot.byteOff : slot.byteOff+f.Count])
		}
	}
	return nil
}

// Scalars is a decoded batch of scalar regions. Codes and float values are
// stored per batch element in schema order.
type Scalars struct {
	view   *ScalarView
	Batch  int
	codes  []uint8
	values []float32
}

// Codes returns the category codes of field id for batch element b
func (s *Scalars) Codes(b int, id FieldID) []uint8 {
	n := s.view.numCodes
	return s.view.codesOf(s.codes[b*n:(b+1)*n], id)
}

// Floats returns the float values of field id for batch element b
func (s *Scalars) Floats(b int, id FieldID) []float32 {
	n := s.view.numFloats
	return s.view.floatsOf(s.values[b*n:(b+1)*n], id)
}

// NumCodes returns the number of category codes per batch element
func (s *Scalars) NumCodes() int { return s.view.numCodes }

// NumFloats returns the number of float values per batch element
func (s *Scalars) NumFloats() int { return s.view.numFloats }
