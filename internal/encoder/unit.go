package encoder

import (
	"fmt"

	"impulsewars/internal/nn"
	"impulsewars/internal/obs"
)

// Reduction says how per-slot features become one branch vector
type Reduction int

const (
	// ReduceFlatten concatenates slots in order; slot order carries meaning
	ReduceFlatten Reduction = iota
	// ReduceMaxPool takes the elementwise max over slots. A single slot is
	// passed through unchanged.
	ReduceMaxPool
)

// CodeKind says how a category code is turned into floats
type CodeKind int

const (
	CodeEmbed  CodeKind = iota // shared weapon embedding
	CodeOneHot                 // indicator vector sized to the domain
)

// CodeSpec is one category field read per slot
type CodeSpec struct {
	Field  obs.FieldID
	Kind   CodeKind
	Domain obs.Domain
}

// UnitSpec declares one entity class branch
type UnitSpec struct {
	Name          string
	Slots         int
	Codes         []CodeSpec
	Floats        obs.FieldID
	FloatsPerSlot int
	Reduction     Reduction
	Hidden        int // width of the per-slot FFN, 0 for none
}

// Unit encodes one entity class from the scalar region
type Unit struct {
	spec      UnitSpec
	layout    *obs.Layout
	weapons   *nn.Embedding
	ffn       *nn.MLP
	slotWidth int
}

// NewUnit validates spec against the layout and registers its FFN
func NewUnit(p *nn.Params, l *obs.Layout, weapons *nn.Embedding, spec UnitSpec) (*Unit, error) {
	if spec.Slots <= 0 {
		return nil, fmt.Errorf("%w: unit %s has %d slots", obs.ErrConfig, spec.Name, spec.Slots)
	}
	u := &Unit{spec: spec, layout: l, weapons: weapons}

	field, ok := l.Scalar.Field(spec.Floats)
	if !ok || field.Type != obs.Float32 || field.Count != spec.Slots*spec.FloatsPerSlot {
		return nil, fmt.Errorf("%w: unit %s expects %d floats in %s", obs.ErrConfig, spec.Name, spec.Slots*spec.FloatsPerSlot, spec.Floats)
	}
	u.slotWidth = spec.FloatsPerSlot

	for _, c := range spec.Codes {
		field, ok := l.Scalar.Field(c.Field)
		if !ok || field.Type != obs.Uint8 || field.Count != spec.Slots {
			return nil, fmt.Errorf("%w: unit %s expects %d codes in %s", obs.ErrConfig, spec.Name, spec.Slots, c.Field)
		}
		u.slotWidth += u.codeWidth(c)
	}

	if spec.Hidden > 0 {
		u.ffn = nn.NewMLP(p, spec.Name, u.slotWidth, spec.Hidden)
	}
	return u, nil
}

func (u *Unit) codeWidth(c CodeSpec) int {
	if c.Kind == CodeEmbed {
		return u.weapons.Dim
	}
	return u.layout.Cardinality(c.Domain)
}

// Name returns the branch name
func (u *Unit) Name() string { return u.spec.Name }

// SlotWidth returns the feature width of one slot before the FFN
func (u *Unit) SlotWidth() int { return u.slotWidth }

// Width returns the declared output width of the branch
func (u *Unit) Width() int {
	w := u.slotWidth
	if u.ffn != nil {
		w = u.ffn.OutputSize
	}
	if u.spec.Reduction == ReduceFlatten {
		return u.spec.Slots * w
	}
	return w
}

// Forward returns the branch output shaped (batch, Width)
func (u *Unit) Forward(s *obs.Scalars) []float32 {
	slots := u.spec.Slots
	rows := u.gather(s)
	w := u.slotWidth
	if u.ffn != nil {
		rows = u.ffn.Forward(rows, s.Batch*slots)
		w = u.ffn.OutputSize
	}
	if u.spec.Reduction == ReduceMaxPool && slots > 1 {
		return nn.MaxPool(rows, s.Batch, slots, w)
	}
	// (batch*slots, w) is already (batch, slots*w) in memory
	return rows
}

// gather builds per-slot features shaped (batch*slots, slotWidth): codes
// first in declared order, then the slot's floats.
func (u *Unit) gather(s *obs.Scalars) []float32 {
	slots, per := u.spec.Slots, u.spec.FloatsPerSlot
	out := make([]float32, 0, s.Batch*slots*u.slotWidth)
	for b := 0; b < s.Batch; b++ {
		floats := s.Floats(b, u.spec.Floats)
		for slot := 0; slot < slots; slot++ {
			for _, c := range u.spec.Codes {
				id := s.Codes(b, c.Field)[slot]
				if c.Kind == CodeEmbed {
					out = append(out, u.weapons.Lookup(id)...)
					continue
				}
				hot := make([]float32, u.layout.Cardinality(c.Domain))
				hot[id] = 1
				out = append(out, hot...)
			}
			out = append(out, floats[slot*per:(slot+1)*per]...)
		}
	}
	return out
}

// unitSpecs is the entity branch table in fusion order
func unitSpecs(l *obs.Layout, cfg Config) []UnitSpec {
	weapon := func(id obs.FieldID) CodeSpec {
		return CodeSpec{Field: id, Kind: CodeEmbed, Domain: obs.DomainWeapon}
	}
	return []UnitSpec{
		{
			Name:          "near_walls",
			Slots:         obs.NumNearWallSlots,
			Codes:         []CodeSpec{{Field: obs.NearWallTypes, Kind: CodeOneHot, Domain: obs.DomainWallType}},
			Floats:        obs.NearWallPos,
			FloatsPerSlot: obs.NearWallFloats,
			Reduction:     ReduceFlatten,
		},
		{
			Name:          "floating_walls",
			Slots:         obs.NumFloatingWallSlots,
			Codes:         []CodeSpec{{Field: obs.FloatingWallTypes, Kind: CodeOneHot, Domain: obs.DomainWallSlot}},
			Floats:        obs.FloatingWallInfo,
			FloatsPerSlot: obs.FloatingWallFloats,
			Reduction:     ReduceMaxPool,
			Hidden:        cfg.FloatingWallHidden,
		},
		{
			Name:          "pickups",
			Slots:         obs.NumPickupSlots,
			Codes:         []CodeSpec{weapon(obs.PickupWeapons)},
			Floats:        obs.PickupPos,
			FloatsPerSlot: obs.PickupFloats,
			Reduction:     ReduceFlatten,
		},
		{
			Name:  "projectiles",
			Slots: obs.NumProjectileSlots,
			Codes: []CodeSpec{
				weapon(obs.ProjectileWeapons),
				{Field: obs.ProjectileOwners, Kind: CodeOneHot, Domain: obs.DomainDrone},
			},
			Floats:        obs.ProjectileInfo,
			FloatsPerSlot: obs.ProjectileFloats,
			Reduction:     ReduceFlatten,
		},
		{
			Name:          "enemy_drones",
			Slots:         l.NumEnemies(),
			Codes:         []CodeSpec{weapon(obs.EnemyWeapons)},
			Floats:        obs.EnemyInfo,
			FloatsPerSlot: obs.EnemyDroneFloats,
			Reduction:     ReduceMaxPool,
			Hidden:        cfg.EnemyHidden,
		},
		{
			Name:          "drone",
			Slots:         1,
			Codes:         []CodeSpec{weapon(obs.OwnWeapon)},
			Floats:        obs.OwnInfo,
			FloatsPerSlot: obs.OwnDroneFloats,
			Reduction:     ReduceFlatten,
			Hidden:        cfg.OwnHidden,
		},
		{
			Name:          "misc",
			Slots:         1,
			Floats:        obs.Misc,
			FloatsPerSlot: obs.MiscFloats,
			Reduction:     ReduceFlatten,
		},
	}
}
