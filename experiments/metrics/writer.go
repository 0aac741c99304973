package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type PlannerConfig struct {
	ID          int
	Goroutines  int
	Duration    time.Duration
	Episodes    int
	Discount    float64
	Exploration float64
	Horizon     int
}

type EpisodeRecord struct {
	ID     int
	Config int // PlannerConfig.ID
	EpisodeMetric
}

type StepRecord struct {
	Episode int // EpisodeRecord.ID
	StepMetric
}

type Writer struct {
	baseDir string
}

// NewWriter creates a subfolder of root named by the current timestamp.
func NewWriter(root string) (*Writer, error) {
	timestamp := time.Now().UTC().Format("20060102T150405.000000000")
	baseDir := filepath.Join(root, timestamp)
	err := os.MkdirAll(baseDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &Writer{
		baseDir: baseDir,
	}, nil
}

func (w *Writer) BaseDir() string { return w.baseDir }

func (w *Writer) WritePlannerConfigs(configs []PlannerConfig) error {
	header := []string{"id", "goroutines", "duration", "episodes", "discount", "exploration", "horizon"}
	rows := make([][]string, 0, len(configs))
	for _, config := range configs {
		rows = append(rows, []string{
			strconv.Itoa(config.ID),
			strconv.Itoa(config.Goroutines),
			config.Duration.String(),
			strconv.Itoa(config.Episodes),
			formatFloat(config.Discount),
			formatFloat(config.Exploration),
			strconv.Itoa(config.Horizon),
		})
	}
	return w.write("planner_configs.csv", header, rows)
}

func (w *Writer) WriteEpisodeRecords(records []EpisodeRecord) error {
	header := []string{"id", "config", "steps", "reached", "return", "resets", "simulations", "start_time", "end_time", "duration"}
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			strconv.Itoa(record.ID),
			strconv.Itoa(record.Config),
			strconv.Itoa(record.Steps),
			strconv.FormatBool(record.Reached),
			formatFloat(record.Return),
			strconv.Itoa(record.Resets),
			strconv.Itoa(record.Simulations),
			record.StartTime.Format(time.RFC3339),
			record.EndTime.Format(time.RFC3339),
			record.Duration.String(),
		})
	}
	return w.write("episode_records.csv", header, rows)
}

func (w *Writer) WriteStepRecords(records []StepRecord) error {
	header := []string{"episode", "step", "action", "observation", "reward", "confidence",
		"goroutines", "duration", "simulations", "full_playouts", "is_tree_reset", "tree_size"}
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			strconv.Itoa(record.Episode),
			strconv.Itoa(record.Step),
			strconv.Itoa(record.Action),
			strconv.Itoa(record.Observation),
			formatFloat(record.Reward),
			formatFloat(record.Confidence),
			strconv.Itoa(record.Goroutines),
			record.Duration.String(),
			strconv.Itoa(record.Episodes),
			strconv.Itoa(record.FullPlayouts),
			strconv.FormatBool(record.IsTreeReset),
			strconv.Itoa(record.TreeSize),
		})
	}
	return w.write("step_records.csv", header, rows)
}

func (w *Writer) write(name string, header []string, rows [][]string) error {
	path := filepath.Join(w.baseDir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	err = writer.Write(header)
	if err != nil {
		return fmt.Errorf("failed to write %s header: %w", name, err)
	}
	err = writer.WriteAll(rows) // Flushes
	if err != nil {
		return fmt.Errorf("failed to write %s rows: %w", name, err)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
