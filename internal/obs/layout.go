package obs

import (
	"fmt"
	"strings"
)

// Ruleset selects the packed map cell table and the map grid size
type Ruleset int

const (
	RulesetClassic Ruleset = iota // full 21x21 map, pickup weapon type packed into the cell
	RulesetArena                  // 11x11 window around the drone, floating walls flagged
)

func (r Ruleset) String() string {
	switch r {
	case RulesetClassic:
		return "classic"
	case RulesetArena:
		return "arena"
	default:
		return "unknown"
	}
}

// ParseRuleset maps a config name to a Ruleset
func ParseRuleset(s string) (Ruleset, error) {
	switch strings.ToLower(s) {
	case "classic":
		return RulesetClassic, nil
	case "arena":
		return RulesetArena, nil
	default:
		return 0, fmt.Errorf("%w: unknown ruleset %q", ErrConfig, s)
	}
}

const (
	MinDrones = 2
	MaxDrones = 4

	NumWallTypes   = 3
	NumWeaponTypes = 8

	NumNearWallSlots     = 4
	NumFloatingWallSlots = 12
	NumPickupSlots       = 8
	NumProjectileSlots   = 20

	NearWallFloats     = 2 // x, y
	FloatingWallFloats = 5 // x, y, angle, vx, vy
	PickupFloats       = 2 // x, y
	ProjectileFloats   = 4 // x, y, vx, vy
	MiscFloats         = 1 // steps left fraction
)

// Enemy drone attribute order inside EnemyDrone.Info
const (
	EnemyTeammate = iota
	EnemyPosX
	EnemyPosY
	EnemyDistance
	EnemyVelX
	EnemyVelY
	EnemyAccelX
	EnemyAccelY
	EnemyDirX
	EnemyDirY
	EnemyAimX
	EnemyAimY
	EnemyAimAngle
	EnemyAmmo
	EnemyWeaponCooldown
	EnemyWeaponCharge
	EnemyEnergy
	EnemyEnergyDepleted
	EnemyBraking
	EnemyBurstCooldown
	EnemyChargingBurst
	EnemyBurstCharge
	EnemyAlive

	EnemyDroneFloats
)

// Own drone attribute order inside OwnDrone.Info
const (
	OwnPosX = iota
	OwnPosY
	OwnVelX
	OwnVelY
	OwnAccelX
	OwnAccelY
	OwnAimX
	OwnAimY
	OwnAmmo
	OwnWeaponCooldown
	OwnWeaponCharge
	OwnEnergy
	OwnEnergyDepleted
	OwnBraking
	OwnBurstCooldown
	OwnChargingBurst
	OwnBurstCharge
	OwnHitShot
	OwnTookShot
	OwnShotTaken

	OwnDroneFloats
)

// Domain identifies the category space a code is drawn from
type Domain int

const (
	DomainNone     Domain = iota
	DomainWallType        // raw wall type, always present
	DomainWallSlot        // 0 = empty, otherwise wall type + 1
	DomainWeapon          // 0 = none, otherwise weapon type + 1
	DomainDrone           // 0 = none, otherwise drone index + 1
	DomainFlag            // 0 or 1
)

func (d Domain) String() string {
	switch d {
	case DomainNone:
		return "none"
	case DomainWallType:
		return "wall_type"
	case DomainWallSlot:
		return "wall_slot"
	case DomainWeapon:
		return "weapon"
	case DomainDrone:
		return "drone"
	case DomainFlag:
		return "flag"
	default:
		return "unknown"
	}
}

// Layout is the fixed byte layout of one observation for a configuration.
// Every size in it is derived from the number of drones and the ruleset.
type Layout struct {
	NumDrones int
	Ruleset   Ruleset

	Columns int
	Rows    int

	MapFields []MapField
	Scalar    ScalarSchema

	// MapBytes is the packed grid size; ScalarOffset is where the scalar
	// region starts after padding the grid to a float boundary.
	MapBytes     int
	ScalarOffset int
	ObsBytes     int
}

// NewLayout builds and validates the layout for numDrones and ruleset
func NewLayout(numDrones int, ruleset Ruleset) (*Layout, error) {
	if numDrones < MinDrones || numDrones > MaxDrones {
		return nil, fmt.Errorf("%w: num drones %d outside [%d, %d]", ErrConfig, numDrones, MinDrones, MaxDrones)
	}

	l := &Layout{
		NumDrones: numDrones,
		Ruleset:   ruleset,
	}

	switch ruleset {
	case RulesetClassic:
		l.Columns, l.Rows = 21, 21
	case RulesetArena:
		l.Columns, l.Rows = 11, 11
	default:
		return nil, fmt.Errorf("%w: unknown ruleset %d", ErrConfig, int(ruleset))
	}

	l.MapFields = mapFields(ruleset)
	if err := l.validateMapFields(); err != nil {
		return nil, err
	}

	l.Scalar = scalarSchema(numDrones)
	l.MapBytes = l.Columns * l.Rows
	l.ScalarOffset = alignedSize(l.MapBytes, 4)
	l.ObsBytes = l.ScalarOffset + l.Scalar.ByteWidth()
	return l, nil
}

// Cells returns the number of map cells
func (l *Layout) Cells() int {
	return l.Columns * l.Rows
}

// NumEnemies returns the number of enemy drone slots
func (l *Layout) NumEnemies() int {
	return l.NumDrones - 1
}

// ScalarBytes returns the size of the scalar region
func (l *Layout) ScalarBytes() int {
	return l.ObsBytes - l.ScalarOffset
}

// Cardinality returns how many distinct ids a domain admits
func (l *Layout) Cardinality(d Domain) int {
	switch d {
	case DomainWallType:
		return NumWallTypes
	case DomainWallSlot:
		return NumWallTypes + 1
	case DomainWeapon:
		return NumWeaponTypes + 1
	case DomainDrone:
		return l.NumDrones + 1
	case DomainFlag:
		return 2
	default:
		return 0
	}
}

func (l *Layout) validateMapFields() error {
	var seen uint8
	for _, f := range l.MapFields {
		if f.Mask == 0 {
			return fmt.Errorf("%w: map field %s has an empty mask", ErrConfig, f.Name)
		}
		if f.Mask&(1<<f.Shift-1) != 0 {
			return fmt.Errorf("%w: map field %s mask %#02x has bits below shift %d", ErrConfig, f.Name, f.Mask, f.Shift)
		}
		if seen&f.Mask != 0 {
			return fmt.Errorf("%w: map field %s mask %#02x overlaps another field", ErrConfig, f.Name, f.Mask)
		}
		seen |= f.Mask

		maxID := int(f.Mask >> f.Shift)
		if card := l.Cardinality(f.Domain); card-1 > maxID {
			return fmt.Errorf("%w: map field %s needs %d ids but mask %#02x holds %d",
				ErrConfig, f.Name, card, f.Mask, maxID+1)
		}
	}
	return nil
}

func alignedSize(size, align int) int {
	return (size + align - 1) / align * align
}
