package policy

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impulsewars/internal/nn"
	"impulsewars/internal/obs"
)

var allConfigs = []struct {
	numDrones int
	ruleset   obs.Ruleset
}{
	{2, obs.RulesetArena}, {3, obs.RulesetArena}, {4, obs.RulesetArena},
	{2, obs.RulesetClassic}, {3, obs.RulesetClassic},
}

func sampleFrames(t *testing.T, p *Policy, n int, seed uint64) []byte {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed+1))
	l := p.Codec().Layout()
	buf := make([]byte, n*l.ObsBytes)
	for i := 0; i < n; i++ {
		f := l.NewFrame()
		for c := range f.Cells {
			f.Cells[c].WallType = uint8(rng.IntN(obs.NumWallTypes + 1))
		}
		f.Cells[rng.IntN(len(f.Cells))].DroneIndex = 1
		for j := range f.Projectiles {
			f.Projectiles[j] = obs.Projectile{Weapon: uint8(rng.IntN(9)), Owner: 2, X: rng.Float32(), VelY: rng.Float32()}
		}
		for j := range f.Enemies {
			f.Enemies[j].Weapon = uint8(rng.IntN(9))
			f.Enemies[j].Info[obs.EnemyPosX] = rng.Float32()
			f.Enemies[j].Info[obs.EnemyAlive] = 1
		}
		f.Drone.Weapon = 1
		f.Drone.Info[obs.OwnEnergy] = rng.Float32()
		f.StepsLeft = rng.Float32()
		require.NoError(t, p.Codec().EncodeFrame(f, buf[i*l.ObsBytes:(i+1)*l.ObsBytes]))
	}
	return buf
}

func TestPolicy_ZeroBufferAllConfigs(t *testing.T) {
	for _, c := range allConfigs {
		for _, kind := range []ActionKind{Continuous, Discrete} {
			cfg := DefaultConfig(c.numDrones, c.ruleset)
			cfg.Actions = kind
			p, err := New(cfg)
			require.NoError(t, err)

			batch := 3
			out, next, err := p.Forward(make([]byte, batch*p.Codec().Layout().ObsBytes), batch, p.InitialState(batch), nil)
			require.NoError(t, err)
			assert.Len(t, out.Values, batch)
			assert.Len(t, out.Hidden, batch*cfg.LSTMHidden)
			assert.Len(t, next.H, batch*cfg.LSTMHidden)

			mode := out.Dist.Mode()
			if kind == Continuous {
				assert.Len(t, mode.Continuous, batch*DefaultActionDims)
			} else {
				assert.Len(t, mode.Discrete, batch*len(DefaultActionNvec))
			}
		}
	}
}

func TestPolicy_MalformedInputs(t *testing.T) {
	p, err := New(DefaultConfig(2, obs.RulesetArena))
	require.NoError(t, err)
	n := p.Codec().Layout().ObsBytes

	_, _, err = p.Forward(make([]byte, n+1), 1, p.InitialState(1), nil)
	assert.ErrorIs(t, err, obs.ErrMalformedBuffer)

	_, _, err = p.Forward(make([]byte, 2*n), 2, p.InitialState(1), nil)
	assert.ErrorIs(t, err, ErrState)

	_, err = New(DefaultConfig(4, obs.RulesetClassic))
	assert.ErrorIs(t, err, obs.ErrConfig)
}

func TestPolicy_TrainEvalDivergence(t *testing.T) {
	evalCfg := DefaultConfig(2, obs.RulesetArena)
	trainCfg := evalCfg
	trainCfg.Training = true
	trainCfg.JitterBound = 0

	evalP, err := New(evalCfg)
	require.NoError(t, err)
	trainP, err := New(trainCfg)
	require.NoError(t, err)
	require.Equal(t, evalP.Params(), trainP.Params())

	buf := sampleFrames(t, evalP, 2, 3)
	evalOut, _, err := evalP.Forward(buf, 2, evalP.InitialState(2), nil)
	require.NoError(t, err)
	trainOut, _, err := trainP.Forward(buf, 2, trainP.InitialState(2), rand.NewPCG(1, 1))
	require.NoError(t, err)

	point, ok := evalOut.Dist.(*PointMass)
	require.True(t, ok)
	gauss, ok := trainOut.Dist.(*Gaussian)
	require.True(t, ok)
	assert.Equal(t, gauss.Mean, point.Value)
	assert.Equal(t, trainOut.Values, evalOut.Values)

	// eval output never carries sampling noise
	assert.Equal(t, point.Value, point.Sample(rand.NewPCG(9, 9)).Continuous)
	assert.NotEqual(t, gauss.Mean, gauss.Sample(rand.NewPCG(9, 9)).Continuous)
}

func TestPolicy_TrainingJitter(t *testing.T) {
	evalCfg := DefaultConfig(2, obs.RulesetArena)
	trainCfg := evalCfg
	trainCfg.Training = true
	trainCfg.JitterBound = 0.05

	evalP, err := New(evalCfg)
	require.NoError(t, err)
	trainP, err := New(trainCfg)
	require.NoError(t, err)

	buf := sampleFrames(t, evalP, 1, 4)
	evalOut, _, err := evalP.Forward(buf, 1, evalP.InitialState(1), nil)
	require.NoError(t, err)
	trainOut, _, err := trainP.Forward(buf, 1, trainP.InitialState(1), rand.NewPCG(2, 3))
	require.NoError(t, err)

	mean := evalOut.Dist.Mode().Continuous
	jittered := trainOut.Dist.Mode().Continuous
	assert.NotEqual(t, mean, jittered)
	for i := range mean {
		assert.InDelta(t, mean[i], jittered[i], trainCfg.JitterBound+1e-6)
	}

	_, _, err = trainP.Forward(buf, 1, trainP.InitialState(1), nil)
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestPolicy_BatchRowsIndependent(t *testing.T) {
	cfg := DefaultConfig(3, obs.RulesetArena)
	cfg.Actions = Discrete
	p, err := New(cfg)
	require.NoError(t, err)
	n := p.Codec().Layout().ObsBytes

	buf := sampleFrames(t, p, 2, 11)
	both, _, err := p.Forward(buf, 2, p.InitialState(2), nil)
	require.NoError(t, err)

	second, _, err := p.Forward(buf[n:], 1, p.InitialState(1), nil)
	require.NoError(t, err)

	assert.InDelta(t, second.Values[0], both.Values[1], 1e-6)
	assert.InDeltaSlice(t, second.Hidden, both.Hidden[cfg.LSTMHidden:], 1e-6)
	assert.NotEqual(t, both.Hidden[:cfg.LSTMHidden], both.Hidden[cfg.LSTMHidden:])
}

func TestPolicy_StateThreading(t *testing.T) {
	p, err := New(DefaultConfig(2, obs.RulesetArena))
	require.NoError(t, err)
	buf := sampleFrames(t, p, 2, 5)

	s0 := p.InitialState(2)
	out1, s1, err := p.Forward(buf, 2, s0, nil)
	require.NoError(t, err)
	assert.Equal(t, make([]float32, len(s0.H)), s0.H, "input state must not be mutated")

	out2, s2, err := p.Forward(buf, 2, s1, nil)
	require.NoError(t, err)
	assert.NotEqual(t, out1.Hidden, out2.Hidden)

	// resetting a row restores the first-step output for that row
	reset := s2.Clone()
	require.NoError(t, reset.Reset([]bool{true, false}))
	out3, _, err := p.Forward(buf, 2, reset, nil)
	require.NoError(t, err)
	h := p.Config().LSTMHidden
	assert.Equal(t, out1.Hidden[:h], out3.Hidden[:h])
	assert.NotEqual(t, s2.H[:h], reset.H[:h])

	assert.ErrorIs(t, reset.Reset([]bool{true}), ErrState)
}

func TestPolicy_SetParams(t *testing.T) {
	p, err := New(DefaultConfig(2, obs.RulesetArena))
	require.NoError(t, err)
	q, err := New(func() Config { c := DefaultConfig(2, obs.RulesetArena); c.Seed = 99; return c }())
	require.NoError(t, err)
	require.NotEqual(t, p.Params(), q.Params())

	require.NoError(t, q.SetParams(p.Params()))
	assert.Equal(t, p.Params(), q.Params())
	assert.Equal(t, len(p.ParamNames()), len(q.ParamNames()))

	assert.ErrorIs(t, q.SetParams(make([]float32, 3)), nn.ErrShape)
}

func TestRecurrent_UnrollMatchesSteps(t *testing.T) {
	params := nn.NewParams()
	r := NewRecurrent(params, 4, 3)
	params.Init(21)

	rng := rand.New(rand.NewPCG(1, 2))
	xs := make([][]float32, 5)
	for i := range xs {
		xs[i] = make([]float32, 2*4)
		for j := range xs[i] {
			xs[i][j] = rng.Float32()
		}
	}

	outs, final, err := r.Unroll(xs, r.InitialState(2))
	require.NoError(t, err)
	require.Len(t, outs, len(xs))

	s := r.InitialState(2)
	for i, x := range xs {
		var h []float32
		h, s, err = r.Step(x, s)
		require.NoError(t, err)
		assert.Equal(t, outs[i], h)
	}
	assert.Equal(t, final, s)

	_, _, err = r.Unroll([][]float32{make([]float32, 3)}, r.InitialState(2))
	assert.ErrorIs(t, err, ErrState)
}

func TestSplitLogits(t *testing.T) {
	row := []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	groups, err := SplitLogits(row, []int{3, 3, 4})
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, []float32{0, 1, 2}, groups[0])
	assert.Equal(t, []float32{3, 4, 5}, groups[1])
	assert.Equal(t, []float32{6, 7, 8, 9}, groups[2])

	var joined []float32
	for _, g := range groups {
		joined = append(joined, g...)
	}
	assert.Equal(t, row, joined)

	_, err = SplitLogits(row, []int{3, 3, 3})
	assert.ErrorIs(t, err, ErrActionSpace)
	_, err = SplitLogits(row, []int{3, 3, 5})
	assert.ErrorIs(t, err, ErrActionSpace)
	_, err = SplitLogits(row, []int{10, 0})
	assert.ErrorIs(t, err, ErrActionSpace)
}

func TestMultiCategorical(t *testing.T) {
	logits := []float32{
		0, 0, 0, 5, 0,
		1, 9, 1, 0, 0,
	}
	m, err := NewMultiCategorical(logits, 2, []int{3, 2})
	require.NoError(t, err)

	assert.Equal(t, []int32{0, 0, 1, 0}, m.Mode().Discrete)

	ent := m.Entropy()
	assert.Less(t, ent[1], ent[0])
	uniform, err := NewMultiCategorical(make([]float32, 5), 1, []int{3, 2})
	require.NoError(t, err)
	assert.InDelta(t, math.Log(3)+math.Log(2), uniform.Entropy()[0], 1e-5)
	assert.InDelta(t, -math.Log(3)-math.Log(2), uniform.LogProb(Actions{Batch: 1, Discrete: []int32{2, 1}})[0], 1e-5)

	a := m.Sample(rand.NewPCG(4, 4))
	require.Len(t, a.Discrete, 4)
	for b := 0; b < 2; b++ {
		assert.Less(t, a.Discrete[b*2], int32(3))
		assert.Less(t, a.Discrete[b*2+1], int32(2))
	}

	_, err = NewMultiCategorical(logits[:9], 2, []int{3, 2})
	assert.ErrorIs(t, err, ErrActionSpace)
}

func TestGaussian(t *testing.T) {
	g := &Gaussian{Batch: 1, Dims: 2, Mean: []float32{0.5, -1}, LogStd: []float32{0, 0}}

	lp := g.LogProb(Actions{Batch: 1, Continuous: []float32{0.5, -1}})
	assert.InDelta(t, -math.Log(2*math.Pi), lp[0], 1e-5)
	assert.InDelta(t, 1+math.Log(2*math.Pi), g.Entropy()[0], 1e-5)

	a := g.Sample(rand.NewPCG(1, 2))
	b := g.Sample(rand.NewPCG(1, 2))
	assert.Equal(t, a, b)
}

func TestParseActionKind(t *testing.T) {
	k, err := ParseActionKind("Discrete")
	require.NoError(t, err)
	assert.Equal(t, Discrete, k)
	_, err = ParseActionKind("hybrid")
	assert.ErrorIs(t, err, ErrActionSpace)
}
