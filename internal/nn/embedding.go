package nn

import "fmt"

// Embedding is a lookup table of Num vectors of width Dim
type Embedding struct {
	Num   int
	Dim   int
	Table []float32
}

// NewEmbedding registers the table under name, initialized N(0, 1)
func NewEmbedding(p *Params, name string, num, dim int) *Embedding {
	return &Embedding{
		Num:   num,
		Dim:   dim,
		Table: p.Register(name+".weight", num*dim, 1, 1),
	}
}

// Lookup returns the vector for id. The slice aliases the table.
func (e *Embedding) Lookup(id uint8) []float32 {
	if int(id) >= e.Num {
		panic(fmt.Sprintf("nn: embedding id %d outside table of %d", id, e.Num))
	}
	return e.Table[int(id)*e.Dim : (int(id)+1)*e.Dim]
}

// Gather looks up every id and returns the vectors shaped (len(ids), Dim)
func (e *Embedding) Gather(ids []uint8) []float32 {
	out := make([]float32, 0, len(ids)*e.Dim)
	for _, id := range ids {
		out = append(out, e.Lookup(id)...)
	}
	return out
}
