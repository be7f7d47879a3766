// Package sqlitelog stores telemetry samples in a local SQLite database,
// one row per zone per sample.
package sqlitelog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/hvactools/infinityctl/pkg/model"
)

// Sink implements the SQLite data sink.
type Sink struct {
	path string
	db   *sql.DB
}

// NewSink creates a SQLite sink backed by the database file at path.
func NewSink(path string) *Sink {
	return &Sink{path: path}
}

// Info returns metadata about the sink.
func (s *Sink) Info() model.SinkInfo {
	return model.SinkInfo{
		Name:        "sqlite",
		Description: "SQLite telemetry log, one row per zone per sample",
	}
}

// Open opens the database and creates the schema if it doesn't exist.
func (s *Sink) Open(ctx context.Context) error {
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return fmt.Errorf("opening sqlite database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS telemetry (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at TEXT NOT NULL,
			system_serial TEXT NOT NULL,
			outdoor_temp_f REAL,
			mode TEXT NOT NULL,
			zone_id TEXT NOT NULL,
			zone_name TEXT NOT NULL,
			temp_f REAL NOT NULL,
			humidity_pct REAL NOT NULL,
			activity TEXT NOT NULL,
			heat_setpoint_f REAL NOT NULL,
			cool_setpoint_f REAL NOT NULL,
			fan TEXT NOT NULL,
			conditioning TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_telemetry_recorded_at ON telemetry(recorded_at);
		CREATE INDEX IF NOT EXISTS idx_telemetry_system ON telemetry(system_serial, zone_id);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return fmt.Errorf("initializing schema: %w", err)
	}

	s.db = db
	return nil
}

// Write inserts one row per zone, all in a single transaction so a sample
// is never half-recorded.
func (s *Sink) Write(ctx context.Context, sample model.Sample) error {
	if s.db == nil {
		return fmt.Errorf("sqlite sink not open")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var outdoor sql.NullFloat64
	if sample.OutdoorTemp != nil {
		outdoor = sql.NullFloat64{Float64: *sample.OutdoorTemp, Valid: true}
	}
	recordedAt := sample.Timestamp.UTC().Format(time.RFC3339)

	query := `
		INSERT INTO telemetry (
			recorded_at, system_serial, outdoor_temp_f, mode,
			zone_id, zone_name, temp_f, humidity_pct, activity,
			heat_setpoint_f, cool_setpoint_f, fan, conditioning
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, z := range sample.Zones {
		_, err := tx.ExecContext(ctx, query,
			recordedAt, sample.System, outdoor, sample.Mode,
			z.ID, z.Name, z.Temp, z.Humidity, z.Activity,
			z.HeatSetpoint, z.CoolSetpoint, z.Fan, z.Conditioning)
		if err != nil {
			return fmt.Errorf("inserting zone %s: %w", z.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing sample: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Sink) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
