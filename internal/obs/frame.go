package obs

import "fmt"

// MapCell is one decoded map cell.
// WallType is 0 for an open cell, otherwise wall type + 1.
// PickupWeapon is only packed by the classic ruleset (weapon type + 1).
// DroneIndex is 0 for no drone, otherwise drone index + 1.
type MapCell struct {
	WallType     uint8
	FloatingWall bool
	Pickup       bool
	PickupWeapon uint8
	DroneIndex   uint8
}

// NearWall is one of the walls closest to the drone
type NearWall struct {
	Type uint8
	X, Y float32
}

// FloatingWall is a movable wall; Type 0 marks an empty slot
type FloatingWall struct {
	Type       uint8
	X, Y       float32
	Angle      float32
	VelX, VelY float32
}

// WeaponPickup is a weapon lying on the map; Weapon 0 marks an empty slot
type WeaponPickup struct {
	Weapon uint8
	X, Y   float32
}

// Projectile is an in-flight shot; Owner is drone index + 1
type Projectile struct {
	Weapon     uint8
	Owner      uint8
	X, Y       float32
	VelX, VelY float32
}

// EnemyDrone is another drone as seen by the observer, Info indexed by Enemy* constants
type EnemyDrone struct {
	Weapon uint8
	Info   [EnemyDroneFloats]float32
}

// OwnDrone is the observing drone, Info indexed by Own* constants
type OwnDrone struct {
	Weapon uint8
	Info   [OwnDroneFloats]float32
}

// Frame is one observation decoded into typed records
type Frame struct {
	// Cells are stored column-major, cell k is at (k / Rows, k % Rows)
	Cells []MapCell

	NearWalls     [NumNearWallSlots]NearWall
	FloatingWalls [NumFloatingWallSlots]FloatingWall
	Pickups       [NumPickupSlots]WeaponPickup
	Projectiles   [NumProjectileSlots]Projectile
	Enemies       []EnemyDrone
	Drone         OwnDrone

	StepsLeft float32
}

// NewFrame returns an empty frame sized for the layout
func (l *Layout) NewFrame() *Frame {
	return &Frame{
		Cells:   make([]MapCell, l.Cells()),
		Enemies: make([]EnemyDrone, l.NumEnemies()),
	}
}

// PackCell packs a cell into one byte using the layout's field table
func (l *Layout) PackCell(c MapCell) (byte, error) {
	var packed byte
	for _, f := range l.MapFields {
		v := cellValue(c, f)
		if int(v) >= l.Cardinality(f.Domain) {
			return 0, fmt.Errorf("%w: %s id %d, cardinality %d",
				ErrInvalidCategory, f.Name, v, l.Cardinality(f.Domain))
		}
		packed |= (v << f.Shift) & f.Mask
	}
	return packed, nil
}

// UnpackCell is the inverse of PackCell
func (l *Layout) UnpackCell(b byte) MapCell {
	var c MapCell
	for _, f := range l.MapFields {
		setCellValue(&c, f, (b&f.Mask)>>f.Shift)
	}
	return c
}

func cellValue(c MapCell, f MapField) uint8 {
	switch f.Role {
	case RoleWallType:
		return c.WallType
	case RoleFloatingWall:
		return boolToCode(c.FloatingWall)
	case RolePickup:
		if f.Kind == FieldEmbed {
			return c.PickupWeapon
		}
		return boolToCode(c.Pickup)
	case RoleDrone:
		return c.DroneIndex
	}
	return 0
}

func setCellValue(c *MapCell, f MapField, v uint8) {
	switch f.Role {
	case RoleWallType:
		c.WallType = v
	case RoleFloatingWall:
		c.FloatingWall = v != 0
	case RolePickup:
		if f.Kind == FieldEmbed {
			c.PickupWeapon = v
		}
		c.Pickup = v != 0
	case RoleDrone:
		c.DroneIndex = v
	}
}

func boolToCode(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// EncodeFrame writes f into dst in the producer's wire format.
// dst must hold exactly one observation.
func (c *Codec) EncodeFrame(f *Frame, dst []byte) error {
	l := c.layout
	if len(dst) != l.ObsBytes {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedBuffer, len(dst), l.ObsBytes)
	}
	if len(f.Cells) != l.Cells() || len(f.Enemies) != l.NumEnemies() {
		return fmt.Errorf("%w: frame has %d cells and %d enemies, layout wants %d and %d",
			ErrConfig, len(f.Cells), len(f.Enemies), l.Cells(), l.NumEnemies())
	}

	for i, cell := range f.Cells {
		b, err := l.PackCell(cell)
		if err != nil {
			return fmt.Errorf("cell %d: %w", i, err)
		}
		dst[i] = b
	}
	clear(dst[l.MapBytes:l.ScalarOffset])

	v := c.scalars
	codes := make([]uint8, v.NumCodes())
	values := make([]float32, v.NumFloats())

	nearTypes, nearPos := v.codesOf(codes, NearWallTypes), v.floatsOf(values, NearWallPos)
	for i, w := range f.NearWalls {
		nearTypes[i] = w.Type
		nearPos[i*NearWallFloats], nearPos[i*NearWallFloats+1] = w.X, w.Y
	}

	floatTypes, floatInfo := v.codesOf(codes, FloatingWallTypes), v.floatsOf(values, FloatingWallInfo)
	for i, w := range f.FloatingWalls {
		floatTypes[i] = w.Type
		copy(floatInfo[i*FloatingWallFloats:], []float32{w.X, w.Y, w.Angle, w.VelX, w.VelY})
	}

	pickupWeapons, pickupPos := v.codesOf(codes, PickupWeapons), v.floatsOf(values, PickupPos)
	for i, p := range f.Pickups {
		pickupWeapons[i] = p.Weapon
		pickupPos[i*PickupFloats], pickupPos[i*PickupFloats+1] = p.X, p.Y
	}

	projWeapons, projOwners := v.codesOf(codes, ProjectileWeapons), v.codesOf(codes, ProjectileOwners)
	projInfo := v.floatsOf(values, ProjectileInfo)
	for i, p := range f.Projectiles {
		projWeapons[i] = p.Weapon
		projOwners[i] = p.Owner
		copy(projInfo[i*ProjectileFloats:], []float32{p.X, p.Y, p.VelX, p.VelY})
	}

	enemyWeapons, enemyInfo := v.codesOf(codes, EnemyWeapons), v.floatsOf(values, EnemyInfo)
	for i, e := range f.Enemies {
		enemyWeapons[i] = e.Weapon
		copy(enemyInfo[i*EnemyDroneFloats:], e.Info[:])
	}

	v.codesOf(codes, OwnWeapon)[0] = f.Drone.Weapon
	copy(v.floatsOf(values, OwnInfo), f.Drone.Info[:])
	v.floatsOf(values, Misc)[0] = f.StepsLeft

	return v.Encode(dst[l.ScalarOffset:], codes, values)
}

// DecodeFrame decodes a single observation into typed records
func (c *Codec) DecodeFrame(buf []byte) (*Frame, error) {
	o, err := c.Decode(buf, 1)
	if err != nil {
		return nil, err
	}
	return c.Frame(o, 0), nil
}

// Frame extracts batch element b of a decoded observation as typed records
func (c *Codec) Frame(o *Observation, b int) *Frame {
	l := c.layout
	f := l.NewFrame()

	for i := range f.Cells {
		col, row := i/l.Rows, i%l.Rows
		var packed byte
		for fi, field := range l.MapFields {
			packed |= o.Map.At(b, fi, col, row) << field.Shift
		}
		f.Cells[i] = l.UnpackCell(packed)
	}

	s := o.Scalars
	nearTypes, nearPos := s.Codes(b, NearWallTypes), s.Floats(b, NearWallPos)
	for i := range f.NearWalls {
		f.NearWalls[i] = NearWall{
			Type: nearTypes[i],
			X:    nearPos[i*NearWallFloats],
			Y:    nearPos[i*NearWallFloats+1],
		}
	}

	floatTypes, floatInfo := s.Codes(b, FloatingWallTypes), s.Floats(b, FloatingWallInfo)
	for i := range f.FloatingWalls {
		info := floatInfo[i*FloatingWallFloats:]
		f.FloatingWalls[i] = FloatingWall{
			Type:  floatTypes[i],
			X:     info[0],
			Y:     info[1],
			Angle: info[2],
			VelX:  info[3],
			VelY:  info[4],
		}
	}

	pickupWeapons, pickupPos := s.Codes(b, PickupWeapons), s.Floats(b, PickupPos)
	for i := range f.Pickups {
		f.Pickups[i] = WeaponPickup{
			Weapon: pickupWeapons[i],
			X:      pickupPos[i*PickupFloats],
			Y:      pickupPos[i*PickupFloats+1],
		}
	}

	projWeapons, projOwners := s.Codes(b, ProjectileWeapons), s.Codes(b, ProjectileOwners)
	projInfo := s.Floats(b, ProjectileInfo)
	for i := range f.Projectiles {
		info := projInfo[i*ProjectileFloats:]
		f.Projectiles[i] = Projectile{
			Weapon: projWeapons[i],
			Owner:  projOwners[i],
			X:      info[0],
			Y:      info[1],
			VelX:   info[2],
			VelY:   info[3],
		}
	}

	enemyWeapons, enemyInfo := s.Codes(b, EnemyWeapons), s.Floats(b, EnemyInfo)
	for i := range f.Enemies {
		f.Enemies[i].Weapon = enemyWeapons[i]
		copy(f.Enemies[i].Info[:], enemyInfo[i*EnemyDroneFloats:])
	}

	f.Drone.Weapon = s.Codes(b, OwnWeapon)[0]
	copy(f.Drone.Info[:], s.Floats(b, OwnInfo))
	f.StepsLeft = s.Floats(b, Misc)[0]
	return f
}
