// Package csvlog appends telemetry samples to a CSV file in the layout
// consumed by existing spreadsheet dashboards: one row per sample covering
// the first two zones, whole-degree temperatures, no header.
package csvlog

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/hvactools/infinityctl/pkg/model"
	"github.com/hvactools/infinityctl/pkg/temperature"
)

const rowTimeLayout = "01-02-2006 15:04"

// Sink implements the CSV data sink.
type Sink struct {
	path string
	file *os.File
}

// NewSink creates a CSV sink that appends to the given file path.
func NewSink(path string) *Sink {
	return &Sink{path: path}
}

// Info returns metadata about the sink.
func (s *Sink) Info() model.SinkInfo {
	return model.SinkInfo{
		Name:        "csv",
		Description: "Append-only CSV log in the legacy two-zone row layout",
	}
}

// Open opens the log file for appending, creating it if needed.
func (s *Sink) Open(ctx context.Context) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening csv log: %w", err)
	}
	s.file = f
	return nil
}

// Write appends one row for the sample. The row layout is fixed at two
// zones; samples with fewer are rejected rather than padded.
func (s *Sink) Write(ctx context.Context, sample model.Sample) error {
	if s.file == nil {
		return fmt.Errorf("csv sink not open")
	}
	if len(sample.Zones) < 2 {
		return fmt.Errorf("csv row layout needs 2 zones, sample has %d", len(sample.Zones))
	}

	outdoor := ""
	if sample.OutdoorTemp != nil {
		outdoor = strconv.Itoa(temperature.WholeDegrees(*sample.OutdoorTemp))
	}

	row := []string{sample.Timestamp.Format(rowTimeLayout), outdoor}
	for _, z := range sample.Zones[:2] {
		row = append(row,
			z.Name,
			strconv.Itoa(temperature.WholeDegrees(z.Temp)),
			z.Conditioning,
			z.Activity,
			strconv.Itoa(temperature.WholeDegrees(z.HeatSetpoint)),
			strconv.Itoa(temperature.WholeDegrees(z.CoolSetpoint)),
		)
	}

	w := csv.NewWriter(s.file)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("writing csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing csv row: %w", err)
	}
	return nil
}

// Close closes the log file.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
