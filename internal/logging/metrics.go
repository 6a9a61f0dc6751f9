package logging

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// SummaryLogger writes one CSV row and one JSON line per rollout summary
type SummaryLogger struct {
	csvPath     string
	jsonPath    string
	csvFile     *os.File
	csvWriter   *csv.Writer
	jsonFile    *os.File
	initialized bool
}

// NewSummaryLogger creates a summary logger, making the output directories
func NewSummaryLogger(csvPath, jsonPath string) (*SummaryLogger, error) {
	l := &SummaryLogger{
		csvPath:  csvPath,
		jsonPath: jsonPath,
	}

	if err := os.MkdirAll(filepath.Dir(csvPath), 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(jsonPath), 0755); err != nil {
		return nil, err
	}

	return l, nil
}

var summaryHeader = []string{
	"run_id", "iteration", "steps", "episodes", "return_mean", "return_std",
	"length_mean", "value_mean", "entropy_mean", "steps_per_sec",
}

// Init creates the log files and writes the CSV header
func (l *SummaryLogger) Init() error {
	var err error

	l.csvFile, err = os.Create(l.csvPath)
	if err != nil {
		return err
	}
	l.csvWriter = csv.NewWriter(l.csvFile)
	if err := l.csvWriter.Write(summaryHeader); err != nil {
		return err
	}
	l.csvWriter.Flush()

	l.jsonFile, err = os.OpenFile(l.jsonPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	l.initialized = true
	return nil
}

// Close flushes and closes all log files
func (l *SummaryLogger) Close() error {
	var errs []error
	if l.csvWriter != nil {
		l.csvWriter.Flush()
		errs = append(errs, l.csvWriter.Error())
	}
	if l.csvFile != nil {
		errs = append(errs, l.csvFile.Close())
	}
	if l.jsonFile != nil {
		errs = append(errs, l.jsonFile.Close())
	}
	l.initialized = false
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// SummaryRow holds one rollout iteration's statistics
type SummaryRow struct {
	RunID       string  `json:"run_id"`
	Iteration   int     `json:"iteration"`
	Steps       int     `json:"steps"`
	Episodes    int     `json:"episodes"`
	ReturnMean  float64 `json:"return_mean"`
	ReturnStd   float64 `json:"return_std"`
	LengthMean  float64 `json:"length_mean"`
	ValueMean   float64 `json:"value_mean"`
	EntropyMean float64 `json:"entropy_mean"`
	StepsPerSec float64 `json:"steps_per_sec"`
}

// LogSummary appends a row to both files
func (l *SummaryLogger) LogSummary(s SummaryRow) error {
	if !l.initialized {
		return fmt.Errorf("summary logger not initialized")
	}

	row := []string{
		s.RunID,
		strconv.Itoa(s.Iteration),
		strconv.Itoa(s.Steps),
		strconv.Itoa(s.Episodes),
		fmt.Sprintf("%.4f", s.ReturnMean),
		fmt.Sprintf("%.4f", s.ReturnStd),
		fmt.Sprintf("%.2f", s.LengthMean),
		fmt.Sprintf("%.4f", s.ValueMean),
		fmt.Sprintf("%.4f", s.EntropyMean),
		fmt.Sprintf("%.1f", s.StepsPerSec),
	}
	if err := l.csvWriter.Write(row); err != nil {
		return err
	}
	l.csvWriter.Flush()
	if err := l.csvWriter.Error(); err != nil {
		return err
	}

	jsonLine, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = l.jsonFile.WriteString(string(jsonLine) + "\n")
	return err
}
