package obs

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type config struct {
	numDrones int
	ruleset   Ruleset
}

var validConfigs = []config{
	{2, RulesetArena}, {3, RulesetArena}, {4, RulesetArena},
	{2, RulesetClassic}, {3, RulesetClassic},
}

func mustCodec(t *testing.T, numDrones int, ruleset Ruleset) *Codec {
	t.Helper()
	l, err := NewLayout(numDrones, ruleset)
	require.NoError(t, err)
	c, err := NewCodec(l)
	require.NoError(t, err)
	return c
}

func TestNewLayout_Sizes(t *testing.T) {
	tests := []struct {
		numDrones int
		ruleset   Ruleset
		fields    int
		scalar    int
		obs       int
	}{
		{2, RulesetArena, 4, 900, 1024},
		{3, RulesetArena, 4, 992, 1116},
		{4, RulesetArena, 4, 1084, 1208},
		{2, RulesetClassic, 3, 900, 1344},
		{3, RulesetClassic, 3, 992, 1436},
	}

	for _, tt := range tests {
		t.Run(tt.ruleset.String(), func(t *testing.T) {
			l, err := NewLayout(tt.numDrones, tt.ruleset)
			require.NoError(t, err)
			assert.Len(t, l.MapFields, tt.fields)
			assert.Equal(t, tt.scalar, l.ScalarBytes())
			assert.Equal(t, tt.obs, l.ObsBytes)
			assert.Zero(t, l.ScalarOffset%4)
			assert.Equal(t, tt.numDrones-1, l.NumEnemies())
		})
	}
}

func TestNewLayout_Rejects(t *testing.T) {
	_, err := NewLayout(1, RulesetArena)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = NewLayout(5, RulesetArena)
	assert.ErrorIs(t, err, ErrConfig)

	// drone index needs 5 ids, the classic mask holds 4
	_, err = NewLayout(4, RulesetClassic)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = NewLayout(2, Ruleset(7))
	assert.ErrorIs(t, err, ErrConfig)
}

func TestParseRuleset(t *testing.T) {
	r, err := ParseRuleset("Arena")
	require.NoError(t, err)
	assert.Equal(t, RulesetArena, r)

	_, err = ParseRuleset("snake")
	assert.ErrorIs(t, err, ErrConfig)
}

func TestPackCell_RoundTrip(t *testing.T) {
	l, err := NewLayout(3, RulesetArena)
	require.NoError(t, err)

	for wall := uint8(0); wall <= NumWallTypes; wall++ {
		for drone := uint8(0); drone <= 3; drone++ {
			for _, floating := range []bool{false, true} {
				for _, pickup := range []bool{false, true} {
					cell := MapCell{WallType: wall, FloatingWall: floating, Pickup: pickup, DroneIndex: drone}
					b, err := l.PackCell(cell)
					require.NoError(t, err)
					assert.Equal(t, cell, l.UnpackCell(b))
				}
			}
		}
	}

	_, err = l.PackCell(MapCell{DroneIndex: 4})
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestPackCell_ClassicWeapon(t *testing.T) {
	l, err := NewLayout(2, RulesetClassic)
	require.NoError(t, err)

	for weapon := uint8(0); weapon <= NumWeaponTypes; weapon++ {
		cell := MapCell{WallType: 2, PickupWeapon: weapon, Pickup: weapon != 0, DroneIndex: 1}
		b, err := l.PackCell(cell)
		require.NoError(t, err)
		assert.Equal(t, cell, l.UnpackCell(b))
	}
}

func TestUnpack_Channels(t *testing.T) {
	l, err := NewLayout(2, RulesetArena)
	require.NoError(t, err)
	u, err := NewLayoutUnpacker(l)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(1, 2))
	batch := 2
	buf := make([]byte, batch*l.ObsBytes)
	cells := make([]MapCell, batch*l.Cells())
	for i := range cells {
		cells[i] = MapCell{
			WallType:     uint8(rng.IntN(NumWallTypes + 1)),
			FloatingWall: rng.IntN(2) == 1,
			Pickup:       rng.IntN(2) == 1,
			DroneIndex:   uint8(rng.IntN(l.NumDrones + 1)),
		}
		b, err := l.PackCell(cells[i])
		require.NoError(t, err)
		buf[(i/l.Cells())*l.ObsBytes+i%l.Cells()] = b
	}

	ch, err := u.Unpack(buf, batch, l.ObsBytes)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 11, 11}, []int{ch.Batch, ch.Fields, ch.Columns, ch.Rows})

	for i, cell := range cells {
		b, k := i/l.Cells(), i%l.Cells()
		for f, field := range l.MapFields {
			assert.Equal(t, cellValue(cell, field), ch.At(b, f, k/l.Rows, k%l.Rows))
		}
	}
}

func TestNewUnpacker_TableMismatch(t *testing.T) {
	_, err := NewUnpacker([]uint8{0x60, 0x10, 0x08}, []uint8{5, 4, 3, 0}, 4, 11, 11)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = NewUnpacker([]uint8{0x60}, []uint8{5}, 1, 0, 11)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestUnpack_ShortBuffer(t *testing.T) {
	u, err := NewUnpacker([]uint8{0xFF}, []uint8{0}, 1, 4, 4)
	require.NoError(t, err)

	_, err = u.Unpack(make([]byte, 20), 2, 16)
	assert.ErrorIs(t, err, ErrMalformedBuffer)
}

func TestScalarView_FloatBitFidelity(t *testing.T) {
	l, err := NewLayout(2, RulesetArena)
	require.NoError(t, err)
	v, err := NewScalarView(l.Scalar, l.ScalarBytes())
	require.NoError(t, err)

	specials := []float32{
		math.Float32frombits(0x7FC00001), // NaN with payload
		math.Float32frombits(0x80000000), // -0
		math.Float32frombits(0x00000001), // smallest denormal
		float32(math.Inf(-1)),
		0.1,
		-123.456,
	}
	codes := make([]uint8, v.NumCodes())
	values := make([]float32, v.NumFloats())
	for i := range values {
		values[i] = specials[i%len(specials)]
	}

	region := make([]byte, v.Width())
	require.NoError(t, v.Encode(region, codes, values))

	s, err := v.Decode(region, 1, v.Width(), 0)
	require.NoError(t, err)

	var got []float32
	for _, f := range l.Scalar {
		got = append(got, s.Floats(0, f.ID)...)
	}
	require.Len(t, got, len(values))
	for i := range values {
		assert.Equal(t, math.Float32bits(values[i]), math.Float32bits(got[i]), "value %d", i)
	}
}

func TestScalarView_TypedAccess(t *testing.T) {
	l, err := NewLayout(2, RulesetArena)
	require.NoError(t, err)
	v, err := NewScalarView(l.Scalar, l.ScalarBytes())
	require.NoError(t, err)

	s, err := v.Decode(make([]byte, v.Width()), 1, v.Width(), 0)
	require.NoError(t, err)

	assert.Len(t, s.Codes(0, ProjectileOwners), NumProjectileSlots)
	assert.Nil(t, s.Floats(0, ProjectileOwners))
	assert.Len(t, s.Floats(0, EnemyInfo), EnemyDroneFloats)
	assert.Nil(t, s.Codes(0, EnemyInfo))
	assert.Nil(t, s.Codes(0, Padding))
}

func TestNewScalarView_WidthMismatch(t *testing.T) {
	l, err := NewLayout(2, RulesetArena)
	require.NoError(t, err)

	_, err = NewScalarView(l.Scalar, l.ScalarBytes()+4)
	assert.ErrorIs(t, err, ErrConfig)

	dup := append(ScalarSchema{}, l.Scalar...)
	dup = append(dup, ScalarField{ID: Misc, Type: Float32, Count: 1})
	_, err = NewScalarView(dup, dup.ByteWidth())
	assert.ErrorIs(t, err, ErrConfig)
}

func TestCodec_DecodeZeroBuffer(t *testing.T) {
	for _, cfg := range validConfigs {
		c := mustCodec(t, cfg.numDrones, cfg.ruleset)
		l := c.Layout()

		o, err := c.Decode(make([]byte, 3*l.ObsBytes), 3)
		require.NoError(t, err)
		assert.Equal(t, 3, o.Batch)
		assert.Len(t, o.Map.Data, 3*len(l.MapFields)*l.Cells())
		assert.Len(t, o.Scalars.Floats(2, EnemyInfo), l.NumEnemies()*EnemyDroneFloats)
	}
}

func TestCodec_MalformedBuffer(t *testing.T) {
	c := mustCodec(t, 2, RulesetArena)

	_, err := c.Decode(make([]byte, c.Layout().ObsBytes-1), 1)
	assert.ErrorIs(t, err, ErrMalformedBuffer)

	_, err = c.Decode(make([]byte, 2*c.Layout().ObsBytes), 1)
	assert.ErrorIs(t, err, ErrMalformedBuffer)

	_, err = c.Decode(nil, 0)
	assert.ErrorIs(t, err, ErrMalformedBuffer)
}

func TestCodec_InvalidCategory(t *testing.T) {
	c := mustCodec(t, 2, RulesetArena)
	l := c.Layout()

	// drone index 7 with only two drones
	buf := make([]byte, l.ObsBytes)
	buf[17] = 0x07
	_, err := c.Decode(buf, 1)
	assert.ErrorIs(t, err, ErrInvalidCategory)

	buf = make([]byte, l.ObsBytes)
	buf[l.ScalarOffset+scalarOffset(l, OwnWeapon)] = NumWeaponTypes + 1
	_, err = c.Decode(buf, 1)
	assert.ErrorIs(t, err, ErrInvalidCategory)

	buf = make([]byte, l.ObsBytes)
	buf[l.ScalarOffset+scalarOffset(l, NearWallTypes)+3] = NumWallTypes
	_, err = c.Decode(buf, 1)
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func scalarOffset(l *Layout, id FieldID) int {
	off := 0
	for _, f := range l.Scalar {
		if f.ID == id {
			return off
		}
		off += f.Width()
	}
	return -1
}

func randomFrame(l *Layout, rng *rand.Rand) *Frame {
	f := l.NewFrame()
	weapon := func() uint8 { return uint8(rng.IntN(NumWeaponTypes + 1)) }
	for i := range f.Cells {
		c := MapCell{
			WallType:   uint8(rng.IntN(NumWallTypes + 1)),
			DroneIndex: uint8(rng.IntN(l.NumDrones + 1)),
		}
		if l.Ruleset == RulesetClassic {
			c.PickupWeapon = weapon()
			c.Pickup = c.PickupWeapon != 0
		} else {
			c.FloatingWall = rng.IntN(2) == 1
			c.Pickup = rng.IntN(2) == 1
		}
		f.Cells[i] = c
	}
	for i := range f.NearWalls {
		f.NearWalls[i] = NearWall{Type: uint8(rng.IntN(NumWallTypes)), X: rng.Float32(), Y: rng.Float32()}
	}
	for i := range f.FloatingWalls {
		f.FloatingWalls[i] = FloatingWall{
			Type: uint8(rng.IntN(NumWallTypes + 1)),
			X:    rng.Float32(), Y: rng.Float32(), Angle: rng.Float32(),
			VelX: -rng.Float32(), VelY: rng.Float32(),
		}
	}
	for i := range f.Pickups {
		f.Pickups[i] = WeaponPickup{Weapon: weapon(), X: rng.Float32(), Y: -rng.Float32()}
	}
	for i := range f.Projectiles {
		f.Projectiles[i] = Projectile{
			Weapon: weapon(),
			Owner:  uint8(rng.IntN(l.NumDrones + 1)),
			X:      rng.Float32(), Y: rng.Float32(),
			VelX: rng.Float32(), VelY: rng.Float32(),
		}
	}
	for i := range f.Enemies {
		f.Enemies[i].Weapon = weapon()
		for j := range f.Enemies[i].Info {
			f.Enemies[i].Info[j] = rng.Float32()
		}
	}
	f.Drone.Weapon = weapon()
	for j := range f.Drone.Info {
		f.Drone.Info[j] = rng.Float32()
	}
	f.StepsLeft = rng.Float32()
	return f
}

func TestCodec_FrameRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for _, cfg := range validConfigs {
		c := mustCodec(t, cfg.numDrones, cfg.ruleset)
		l := c.Layout()

		want := randomFrame(l, rng)
		buf := make([]byte, l.ObsBytes)
		require.NoError(t, c.EncodeFrame(want, buf))

		got, err := c.DecodeFrame(buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestCodec_BatchFrames(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	c := mustCodec(t, 3, RulesetArena)
	l := c.Layout()

	frames := []*Frame{randomFrame(l, rng), randomFrame(l, rng)}
	buf := make([]byte, len(frames)*l.ObsBytes)
	for i, f := range frames {
		require.NoError(t, c.EncodeFrame(f, buf[i*l.ObsBytes:(i+1)*l.ObsBytes]))
	}

	o, err := c.Decode(buf, len(frames))
	require.NoError(t, err)
	for i, f := range frames {
		assert.Equal(t, f, c.Frame(o, i))
	}
}

func TestCodec_EncodeFrameErrors(t *testing.T) {
	c := mustCodec(t, 2, RulesetArena)
	l := c.Layout()

	f := l.NewFrame()
	assert.ErrorIs(t, c.EncodeFrame(f, make([]byte, 10)), ErrMalformedBuffer)

	f.Enemies = append(f.Enemies, EnemyDrone{})
	assert.ErrorIs(t, c.EncodeFrame(f, make([]byte, l.ObsBytes)), ErrConfig)

	f = l.NewFrame()
	f.Cells[0].WallType = 9
	assert.ErrorIs(t, c.EncodeFrame(f, make([]byte, l.ObsBytes)), ErrInvalidCategory)
}
