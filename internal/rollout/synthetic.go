package rollout

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sync"

	"impulsewars/internal/obs"
	"impulsewars/internal/policy"
)

// SyntheticConfig configures SyntheticEnv
type SyntheticConfig struct {
	NumEnvs      int
	EpisodeSteps int
	Teams        bool // 2v2: the first enemy slot is a teammate
	SittingDuck  bool // enemies never move
	Workers      int  // 0 means runtime.NumCPU()
}

const (
	moveSpeed  = 0.05
	enemySpeed = 0.03
	hitRadius  = 0.1
)

type drone struct {
	x, y     float32
	vx, vy   float32
	weapon   uint8
	teammate bool
}

// duel is the state of one synthetic environment
type duel struct {
	rng     *rand.Rand
	self    drone
	enemies []drone
	tick    int
	target  float32 // distance to the nearest opponent after the last step
}

// SyntheticEnv is a small pursuit game that produces valid observation
// buffers: the agent is rewarded for closing on the nearest opponent and the
// episode terminates when it gets within hitRadius. It exists to drive the
// policy end to end without the real simulator.
type SyntheticEnv struct {
	cfg     SyntheticConfig
	codec   *obs.Codec
	duels   []*duel
	buf     []byte
	workers int
}

// NewSyntheticEnv checks cfg against the codec's layout
func NewSyntheticEnv(codec *obs.Codec, cfg SyntheticConfig) (*SyntheticEnv, error) {
	l := codec.Layout()
	if cfg.NumEnvs <= 0 {
		return nil, fmt.Errorf("synthetic env: num envs must be positive, got %d", cfg.NumEnvs)
	}
	if cfg.EpisodeSteps <= 0 {
		return nil, fmt.Errorf("synthetic env: episode steps must be positive, got %d", cfg.EpisodeSteps)
	}
	if cfg.Teams && l.NumDrones != 4 {
		return nil, fmt.Errorf("synthetic env: teams need 4 drones, layout has %d", l.NumDrones)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &SyntheticEnv{
		cfg:     cfg,
		codec:   codec,
		duels:   make([]*duel, cfg.NumEnvs),
		buf:     make([]byte, cfg.NumEnvs*l.ObsBytes),
		workers: workers,
	}, nil
}

func (e *SyntheticEnv) NumEnvs() int { return e.cfg.NumEnvs }

func (e *SyntheticEnv) Close() error { return nil }

// Reset starts a fresh episode in every env; env i is seeded from seed and i
func (e *SyntheticEnv) Reset(seed uint64) ([]byte, error) {
	for i := range e.duels {
		d := &duel{rng: rand.New(rand.NewPCG(seed, uint64(i)))}
		e.spawn(d)
		e.duels[i] = d
	}
	if err := e.each(func(i int, d *duel) error { return e.encode(i, d) }); err != nil {
		return nil, err
	}
	return e.observations(), nil
}

// Step applies one action per env. Envs whose episode ends are respawned
// and their new first observation is returned.
func (e *SyntheticEnv) Step(actions policy.Actions) (*StepResult, error) {
	if e.duels[0] == nil {
		return nil, fmt.Errorf("synthetic env: step before reset")
	}
	if actions.Batch != e.cfg.NumEnvs {
		return nil, fmt.Errorf("synthetic env: %d actions for %d envs", actions.Batch, e.cfg.NumEnvs)
	}

	n := e.cfg.NumEnvs
	res := &StepResult{
		Rewards:     make([]float32, n),
		Terminals:   make([]bool, n),
		Truncations: make([]bool, n),
	}
	err := e.each(func(i int, d *duel) error {
		mx, my := moveFor(actions, i)
		reward, terminal := e.advance(d, mx, my)
		res.Rewards[i] = reward
		res.Terminals[i] = terminal
		res.Truncations[i] = !terminal && d.tick >= e.cfg.EpisodeSteps
		if res.Terminals[i] || res.Truncations[i] {
			e.spawn(d)
		}
		return e.encode(i, d)
	})
	if err != nil {
		return nil, err
	}
	res.Obs = e.observations()
	return res, nil
}

// each runs fn for every env on the worker pool and returns the first error
func (e *SyntheticEnv) each(fn func(i int, d *duel) error) error {
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.workers)
	errs := make([]error, len(e.duels))

	for i, d := range e.duels {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, d *duel) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = fn(i, d)
		}(i, d)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("env %d: %w", i, err)
		}
	}
	return nil
}

func (e *SyntheticEnv) observations() []byte {
	return append([]byte(nil), e.buf...)
}

func (e *SyntheticEnv) spawn(d *duel) {
	l := e.codec.Layout()
	d.tick = 0
	d.self = drone{x: uniform(d.rng), y: uniform(d.rng), weapon: uint8(1 + d.rng.IntN(obs.NumWeaponTypes))}
	d.enemies = make([]drone, l.NumEnemies())
	for i := range d.enemies {
		d.enemies[i] = drone{
			x:        uniform(d.rng),
			y:        uniform(d.rng),
			weapon:   uint8(1 + d.rng.IntN(obs.NumWeaponTypes)),
			teammate: e.cfg.Teams && i == 0,
		}
	}
	d.target = d.nearest()
}

func (e *SyntheticEnv) advance(d *duel, mx, my float32) (float32, bool) {
	d.tick++
	d.self.vx, d.self.vy = mx*moveSpeed, my*moveSpeed
	d.self.x = clamp(d.self.x + d.self.vx)
	d.self.y = clamp(d.self.y + d.self.vy)

	if !e.cfg.SittingDuck {
		for i := range d.enemies {
			en := &d.enemies[i]
			en.vx, en.vy = uniform(d.rng)*enemySpeed, uniform(d.rng)*enemySpeed
			en.x = clamp(en.x + en.vx)
			en.y = clamp(en.y + en.vy)
		}
	}

	prev := d.target
	d.target = d.nearest()
	if d.target < hitRadius {
		return 1, true
	}
	return prev - d.target, false
}

// nearest returns the distance to the closest opponent
func (d *duel) nearest() float32 {
	best := float32(math.Inf(1))
	for _, en := range d.enemies {
		if en.teammate {
			continue
		}
		if dist := distance(d.self, en); dist < best {
			best = dist
		}
	}
	return best
}

// encode writes env i's observation into the shared buffer
func (e *SyntheticEnv) encode(i int, d *duel) error {
	l := e.codec.Layout()
	f := l.NewFrame()

	for c := range f.Cells {
		col, row := c/l.Rows, c%l.Rows
		if col == 0 || row == 0 || col == l.Columns-1 || row == l.Rows-1 {
			f.Cells[c].WallType = 1
		}
	}
	f.Cells[e.cellOf(d.self)].DroneIndex = 1
	for j, en := range d.enemies {
		f.Cells[e.cellOf(en)].DroneIndex = uint8(j + 2)
	}

	for j := range f.NearWalls {
		f.NearWalls[j] = nearWall(j, d.self)
	}

	for j, en := range d.enemies {
		info := &f.Enemies[j].Info
		f.Enemies[j].Weapon = en.weapon
		if en.teammate {
			info[obs.EnemyTeammate] = 1
		}
		info[obs.EnemyPosX] = en.x - d.self.x
		info[obs.EnemyPosY] = en.y - d.self.y
		info[obs.EnemyDistance] = distance(d.self, en)
		info[obs.EnemyVelX] = en.vx
		info[obs.EnemyVelY] = en.vy
		info[obs.EnemyEnergy] = 1
		info[obs.EnemyAlive] = 1
	}

	f.Drone.Weapon = d.self.weapon
	f.Drone.Info[obs.OwnPosX] = d.self.x
	f.Drone.Info[obs.OwnPosY] = d.self.y
	f.Drone.Info[obs.OwnVelX] = d.self.vx
	f.Drone.Info[obs.OwnVelY] = d.self.vy
	f.Drone.Info[obs.OwnEnergy] = 1
	f.StepsLeft = 1 - float32(d.tick)/float32(e.cfg.EpisodeSteps)

	n := l.ObsBytes
	return e.codec.EncodeFrame(f, e.buf[i*n:(i+1)*n])
}

// cellOf maps a position in [-1, 1] to a map cell index
func (e *SyntheticEnv) cellOf(p drone) int {
	l := e.codec.Layout()
	col := int((p.x + 1) / 2 * float32(l.Columns-1))
	row := int((p.y + 1) / 2 * float32(l.Rows-1))
	return col*l.Rows + row
}

// nearWall returns the border wall on side j (left, right, bottom, top)
// relative to p.
func nearWall(j int, p drone) obs.NearWall {
	switch j {
	case 0:
		return obs.NearWall{X: -1 - p.x}
	case 1:
		return obs.NearWall{X: 1 - p.x}
	case 2:
		return obs.NearWall{Y: -1 - p.y}
	default:
		return obs.NearWall{Y: 1 - p.y}
	}
}

// moveFor decodes env i's movement from either action space. Discrete move
// 0 is no-op, 1..8 are the compass directions counter-clockwise from east.
func moveFor(a policy.Actions, i int) (float32, float32) {
	if len(a.Continuous) > 0 {
		dims := len(a.Continuous) / a.Batch
		row := a.Continuous[i*dims:]
		if dims < 2 {
			return clamp(row[0]), 0
		}
		return clamp(row[0]), clamp(row[1])
	}
	if len(a.Discrete) == 0 {
		return 0, 0
	}
	dims := len(a.Discrete) / a.Batch
	move := a.Discrete[i*dims]
	if move <= 0 {
		return 0, 0
	}
	angle := float64(move-1) * math.Pi / 4
	return float32(math.Cos(angle)), float32(math.Sin(angle))
}

func distance(a, b drone) float32 {
	dx, dy := float64(a.x-b.x), float64(a.y-b.y)
	return float32(math.Sqrt(dx*dx + dy*dy))
}

func uniform(rng *rand.Rand) float32 { return rng.Float32()*2 - 1 }

func clamp(v float32) float32 {
	return max(-1, min(1, v))
}

