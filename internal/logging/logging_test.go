package logging

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impulsewars/internal/obs"
	"impulsewars/internal/policy"
)

func TestNew_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", &buf, false)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Int("step", 3).Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["message"])
	assert.Equal(t, float64(3), line["step"])

	_, err = New("loud", &buf, false)
	assert.Error(t, err)
}

func TestSummaryLogger(t *testing.T) {
	dir := t.TempDir()
	l, err := NewSummaryLogger(filepath.Join(dir, "a", "run.csv"), filepath.Join(dir, "b", "run.jsonl"))
	require.NoError(t, err)
	require.Error(t, l.LogSummary(SummaryRow{}))
	require.NoError(t, l.Init())

	require.NoError(t, l.LogSummary(SummaryRow{RunID: "r1", Iteration: 1, Steps: 64, Episodes: 2, ReturnMean: 1.5}))
	require.NoError(t, l.LogSummary(SummaryRow{RunID: "r1", Iteration: 2, Steps: 128}))
	require.NoError(t, l.Close())

	f, err := os.Open(filepath.Join(dir, "a", "run.csv"))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, summaryHeader, records[0])
	assert.Equal(t, []string{"r1", "1", "64", "2", "1.5000"}, records[1][:5])

	data, err := os.ReadFile(filepath.Join(dir, "b", "run.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	var row SummaryRow
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &row))
	assert.Equal(t, 128, row.Steps)
}

func TestTraceWriter_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewTraceWriter(dir, "trace.parquet")
	require.NoError(t, err)

	rows := []TraceRow{
		{RunID: "r", Step: 0, Env: 0, Continuous: []float32{0.1, -0.2}, LogProb: -1.5, Value: 0.3, Reward: 1},
		{RunID: "r", Step: 0, Env: 1, Continuous: []float32{0.4, 0.5}, Terminal: true, Obs: []byte{1, 2, 3}},
		{RunID: "r", Step: 1, Env: 0, Discrete: []int32{3, 1}, Truncated: true},
	}
	require.NoError(t, w.WriteRows(rows[:2]))
	require.NoError(t, w.WriteRows(rows[2:]))
	require.NoError(t, w.WriteRows(nil))
	assert.Equal(t, 3, w.Rows())

	_, err = os.Stat(w.OutPath())
	assert.True(t, os.IsNotExist(err), "trace must stay in tmp until finalized")

	path, err := w.Finalize()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "trace.parquet"), path)
	assert.Error(t, w.WriteRows(rows))

	got, err := ReadTrace(path)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float32{0.4, 0.5}, got[1].Continuous)
	assert.Equal(t, []byte{1, 2, 3}, got[1].Obs)
	assert.True(t, got[1].Terminal)
	assert.Equal(t, []int32{3, 1}, got[2].Discrete)
	assert.True(t, got[2].Truncated)
	assert.Equal(t, float32(-1.5), got[0].LogProb)
}

func TestTraceWriter_EmptyIsRemoved(t *testing.T) {
	dir := t.TempDir()
	w, err := NewTraceWriter(dir, "empty.parquet")
	require.NoError(t, err)

	path, err := w.Finalize()
	require.NoError(t, err)
	assert.Empty(t, path)

	entries, err := os.ReadDir(filepath.Join(dir, "tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCheckpoint_SaveLoadApply(t *testing.T) {
	cfg := policy.DefaultConfig(3, obs.RulesetArena)
	cfg.Actions = policy.Discrete
	src, err := policy.New(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ckpt", "policy.json")
	require.NoError(t, SaveCheckpoint(path, NewCheckpoint(src, "run-1", 7)))

	ck, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", ck.RunID)
	assert.Equal(t, 7, ck.Iteration)
	assert.Equal(t, "discrete", ck.Actions)
	assert.Equal(t, policy.DefaultActionNvec, ck.ActionNvec)

	rebuilt, err := ck.PolicyConfig()
	require.NoError(t, err)
	rebuilt.Seed = 1234
	dst, err := policy.New(rebuilt)
	require.NoError(t, err)
	require.NotEqual(t, src.Params(), dst.Params())

	require.NoError(t, ApplyCheckpoint(dst, ck))
	assert.Equal(t, src.Params(), dst.Params())
}

func TestCheckpoint_Mismatch(t *testing.T) {
	src, err := policy.New(policy.DefaultConfig(2, obs.RulesetArena))
	require.NoError(t, err)
	ck := NewCheckpoint(src, "run", 0)

	other, err := policy.New(policy.DefaultConfig(3, obs.RulesetArena))
	require.NoError(t, err)
	assert.ErrorIs(t, ApplyCheckpoint(other, ck), ErrCheckpoint)

	classic, err := policy.New(policy.DefaultConfig(2, obs.RulesetClassic))
	require.NoError(t, err)
	assert.ErrorIs(t, ApplyCheckpoint(classic, ck), ErrCheckpoint)

	path := filepath.Join(t.TempDir(), "bad.json")
	ck.NumParams++
	require.NoError(t, SaveCheckpoint(path, ck))
	_, err = LoadCheckpoint(path)
	assert.ErrorIs(t, err, ErrCheckpoint)
}
