package obs

// FieldKind says how a packed map field is expanded into planes
type FieldKind int

const (
	FieldOneHot FieldKind = iota // one plane per id
	FieldFlag                    // single 0/1 plane
	FieldEmbed                   // looked up in the shared weapon table
)

// CellRole names what a packed map field means
type CellRole int

const (
	RoleWallType CellRole = iota
	RoleFloatingWall
	RolePickup
	RoleDrone
)

// MapField is one (mask, shift) entry of the packed cell table
type MapField struct {
	Name   string
	Role   CellRole
	Mask   uint8
	Shift  uint8
	Kind   FieldKind
	Domain Domain
}

func mapFields(ruleset Ruleset) []MapField {
	if ruleset == RulesetClassic {
		return []MapField{
			{Name: "wall_type", Role: RoleWallType, Mask: 0xC0, Shift: 6, Kind: FieldOneHot, Domain: DomainWallSlot},
			{Name: "pickup_weapon", Role: RolePickup, Mask: 0x3C, Shift: 2, Kind: FieldEmbed, Domain: DomainWeapon},
			{Name: "drone_index", Role: RoleDrone, Mask: 0x03, Shift: 0, Kind: FieldOneHot, Domain: DomainDrone},
		}
	}
	return []MapField{
		{Name: "wall_type", Role: RoleWallType, Mask: 0x60, Shift: 5, Kind: FieldOneHot, Domain: DomainWallSlot},
		{Name: "floating_wall", Role: RoleFloatingWall, Mask: 0x10, Shift: 4, Kind: FieldFlag, Domain: DomainFlag},
		{Name: "pickup", Role: RolePickup, Mask: 0x08, Shift: 3, Kind: FieldFlag, Domain: DomainFlag},
		{Name: "drone_index", Role: RoleDrone, Mask: 0x07, Shift: 0, Kind: FieldOneHot, Domain: DomainDrone},
	}
}

// FieldType is the wire type of a scalar field
type FieldType int

const (
	Uint8 FieldType = iota
	Float32
	Pad
)

// Size returns the byte width of one element
func (t FieldType) Size() int {
	if t == Float32 {
		return 4
	}
	return 1
}

// FieldID names a scalar field
type FieldID int

const (
	NearWallTypes FieldID = iota
	NearWallPos
	FloatingWallTypes
	FloatingWallInfo
	PickupWeapons
	PickupPos
	ProjectileWeapons
	ProjectileOwners
	ProjectileInfo
	EnemyWeapons
	EnemyInfo
	OwnWeapon
	OwnInfo
	Misc
	Padding

	numFieldIDs
)

var fieldNames = [numFieldIDs]string{
	"near_wall_types",
	"near_wall_pos",
	"floating_wall_types",
	"floating_wall_info",
	"pickup_weapons",
	"pickup_pos",
	"projectile_weapons",
	"projectile_owners",
	"projectile_info",
	"enemy_weapons",
	"enemy_info",
	"own_weapon",
	"own_info",
	"misc",
	"padding",
}

func (id FieldID) String() string {
	if id < 0 || id >= numFieldIDs {
		return "unknown"
	}
	return fieldNames[id]
}

// ScalarField is one run of same-typed elements in the scalar region
type ScalarField struct {
	ID     FieldID
	Type   FieldType
	Count  int
	Domain Domain
}

// Width returns the byte width of the whole field
func (f ScalarField) Width() int {
	return f.Count * f.Type.Size()
}

// ScalarSchema is the ordered field list of the scalar region
type ScalarSchema []ScalarField

// ByteWidth returns the total width the schema declares
func (s ScalarSchema) ByteWidth() int {
	total := 0
	for _, f := range s {
		total += f.Width()
	}
	return total
}

// Field returns the field with the given id
func (s ScalarSchema) Field(id FieldID) (ScalarField, bool) {
	for _, f := range s {
		if f.ID == id {
			return f, true
		}
	}
	return ScalarField{}, false
}

func scalarSchema(numDrones int) ScalarSchema {
	enemies := numDrones - 1
	s := ScalarSchema{
		{ID: NearWallTypes, Type: Uint8, Count: NumNearWallSlots, Domain: DomainWallType},
		{ID: NearWallPos, Type: Float32, Count: NumNearWallSlots * NearWallFloats},
		{ID: FloatingWallTypes, Type: Uint8, Count: NumFloatingWallSlots, Domain: DomainWallSlot},
		{ID: FloatingWallInfo, Type: Float32, Count: NumFloatingWallSlots * FloatingWallFloats},
		{ID: PickupWeapons, Type: Uint8, Count: NumPickupSlots, Domain: DomainWeapon},
		{ID: PickupPos, Type: Float32, Count: NumPickupSlots * PickupFloats},
		{ID: ProjectileWeapons, Type: Uint8, Count: NumProjectileSlots, Domain: DomainWeapon},
		{ID: ProjectileOwners, Type: Uint8, Count: NumProjectileSlots, Domain: DomainDrone},
		{ID: ProjectileInfo, Type: Float32, Count: NumProjectileSlots * ProjectileFloats},
		{ID: EnemyWeapons, Type: Uint8, Count: enemies, Domain: DomainWeapon},
		{ID: EnemyInfo, Type: Float32, Count: enemies * EnemyDroneFloats},
		{ID: OwnWeapon, Type: Uint8, Count: 1, Domain: DomainWeapon},
		{ID: OwnInfo, Type: Float32, Count: OwnDroneFloats},
		{ID: Misc, Type: Float32, Count: MiscFloats},
	}
	if rem := s.ByteWidth() % 4; rem != 0 {
		s = append(s, ScalarField{ID: Padding, Type: Pad, Count: 4 - rem})
	}
	return s
}
