package policy

import (
	"fmt"

	"impulsewars/internal/nn"
)

// State is the LSTM memory for a batch of independent environments.
// Callers own it and pass it back on every step.
type State struct {
	Batch  int
	Hidden int
	H      []float32
	C      []float32
}

// Clone returns a deep copy
func (s State) Clone() State {
	return State{
		Batch:  s.Batch,
		Hidden: s.Hidden,
		H:      append([]float32(nil), s.H...),
		C:      append([]float32(nil), s.C...),
	}
}

// Reset zeroes the rows whose episode has ended
func (s State) Reset(done []bool) error {
	if len(done) != s.Batch {
		return fmt.Errorf("%w: %d done flags for batch %d", ErrState, len(done), s.Batch)
	}
	for b, d := range done {
		if d {
			clear(s.H[b*s.Hidden : (b+1)*s.Hidden])
			clear(s.C[b*s.Hidden : (b+1)*s.Hidden])
		}
	}
	return nil
}

// Recurrent carries encoder latents through an LSTM cell
type Recurrent struct {
	cell *nn.LSTMCell
}

// NewRecurrent registers the LSTM cell
func NewRecurrent(p *nn.Params, in, hidden int) *Recurrent {
	return &Recurrent{cell: nn.NewLSTMCell(p, "lstm", in, hidden)}
}

// Hidden returns the state width
func (r *Recurrent) Hidden() int { return r.cell.Hidden }

// InitialState returns the zero state for batch environments
func (r *Recurrent) InitialState(batch int) State {
	return State{
		Batch:  batch,
		Hidden: r.cell.Hidden,
		H:      make([]float32, batch*r.cell.Hidden),
		C:      make([]float32, batch*r.cell.Hidden),
	}
}

// Step advances the state by one latent batch and returns the new hidden
// output with the new state. The input state is left untouched.
func (r *Recurrent) Step(x []float32, s State) ([]float32, State, error) {
	if err := r.check(s); err != nil {
		return nil, State{}, err
	}
	if len(x) != s.Batch*r.cell.In {
		return nil, State{}, fmt.Errorf("%w: %d latent values for batch %d of width %d",
			ErrState, len(x), s.Batch, r.cell.In)
	}
	h, c := r.cell.Step(x, s.H, s.C, s.Batch)
	return h, State{Batch: s.Batch, Hidden: s.Hidden, H: h, C: c}, nil
}

// Unroll runs Step over xs in time order and returns every hidden output
func (r *Recurrent) Unroll(xs [][]float32, s State) ([][]float32, State, error) {
	out := make([][]float32, 0, len(xs))
	for t, x := range xs {
		h, next, err := r.Step(x, s)
		if err != nil {
			return nil, State{}, fmt.Errorf("step %d: %w", t, err)
		}
		out = append(out, h)
		s = next
	}
	return out, s, nil
}

func (r *Recurrent) check(s State) error {
	H := r.cell.Hidden
	if s.Batch <= 0 || s.Hidden != H || len(s.H) != s.Batch*H || len(s.C) != s.Batch*H {
		return fmt.Errorf("%w: state batch %d width %d (%d/%d values), cell width %d",
			ErrState, s.Batch, s.Hidden, len(s.H), len(s.C), H)
	}
	return nil
}
