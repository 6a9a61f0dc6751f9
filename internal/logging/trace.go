package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// TraceRow is one (step, env) forward pass of a rollout
type TraceRow struct {
	RunID      string    `parquet:"run_id,dict"`
	Step       int32     `parquet:"step"`
	Env        int32     `parquet:"env"`
	Continuous []float32 `parquet:"continuous"`
	Discrete   []int32   `parquet:"discrete"`
	LogProb    float32   `parquet:"log_prob"`
	Value      float32   `parquet:"value"`
	Reward     float32   `parquet:"reward"`
	Terminal   bool      `parquet:"terminal"`
	Truncated  bool      `parquet:"truncated"`
	Obs        []byte    `parquet:"obs,optional"`
}

// TraceWriter streams trace rows to a parquet file. Rows go to a file under
// tmp/ which is moved into place by Finalize.
type TraceWriter struct {
	tmpPath string
	outPath string

	file   *os.File
	writer *parquet.GenericWriter[TraceRow]
	rows   int
}

// NewTraceWriter opens outDir/tmp/name for writing
func NewTraceWriter(outDir, name string) (*TraceWriter, error) {
	if outDir == "" {
		return nil, fmt.Errorf("trace dir is required")
	}
	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}

	tmpPath := filepath.Join(tmpDir, name)
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tmp parquet: %w", err)
	}

	w := parquet.NewGenericWriter[TraceRow](
		f,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
	)
	w.SetKeyValueMetadata("schema", "trace_row_v1")

	return &TraceWriter{
		tmpPath: tmpPath,
		outPath: filepath.Join(outDir, name),
		file:    f,
		writer:  w,
	}, nil
}

// Rows returns the number of rows written so far
func (t *TraceWriter) Rows() int { return t.rows }

// OutPath returns where the trace lands after Finalize
func (t *TraceWriter) OutPath() string { return t.outPath }

// WriteRows appends rows to the trace
func (t *TraceWriter) WriteRows(rows []TraceRow) error {
	if t.writer == nil {
		return fmt.Errorf("trace writer is closed")
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := t.writer.Write(rows); err != nil {
		return err
	}
	t.rows += len(rows)
	return nil
}

// Finalize closes the writer and moves the file out of tmp/.
// An empty trace is removed and an empty path is returned.
func (t *TraceWriter) Finalize() (string, error) {
	if t.writer == nil {
		return "", nil
	}

	closeErr := t.writer.Close()
	t.writer = nil
	_ = t.file.Sync()
	fileErr := t.file.Close()
	t.file = nil
	if closeErr != nil {
		return "", fmt.Errorf("close parquet writer: %w", closeErr)
	}
	if fileErr != nil {
		return "", fmt.Errorf("close parquet file: %w", fileErr)
	}

	if t.rows == 0 {
		_ = os.Remove(t.tmpPath)
		return "", nil
	}
	if err := os.Rename(t.tmpPath, t.outPath); err != nil {
		return "", fmt.Errorf("rename parquet: %w", err)
	}
	return t.outPath, nil
}

// ReadTrace loads every row of a finalized trace
func ReadTrace(path string) ([]TraceRow, error) {
	rows, err := parquet.ReadFile[TraceRow](path)
	if err != nil {
		return nil, fmt.Errorf("read trace %s: %w", path, err)
	}
	return rows, nil
}
