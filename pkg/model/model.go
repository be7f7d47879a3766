// Package model defines the shared data types exchanged between the
// Carrier Infinity provider, the telemetry sinks, and the monitor loop.
package model

import (
	"context"
	"fmt"
	"time"
)

// Zone is the merged view of one thermostat zone, joined from the remote
// status and config documents and filtered by the profile document's
// present-zone set.
type Zone struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Temp         float64 `json:"temp_f"`
	Humidity     float64 `json:"humidity_pct"`
	Activity     string  `json:"activity"`
	HeatSetpoint float64 `json:"heat_setpoint_f"`
	CoolSetpoint float64 `json:"cool_setpoint_f"`
	Fan          string  `json:"fan"`
	Conditioning string  `json:"conditioning"`
}

// String renders the zone the way the status command prints it.
func (z Zone) String() string {
	return fmt.Sprintf("%s: %.1f°F / %.1f%% RH | Activity: %s | Heat: %.1f°F Cool: %.1f°F | Fan: %s | Status: %s",
		z.Name, z.Temp, z.Humidity, z.Activity, z.HeatSetpoint, z.CoolSetpoint, z.Fan, z.Conditioning)
}

// Sample is one point-in-time telemetry reading for a system.
type Sample struct {
	System      string    `json:"system"`
	Timestamp   time.Time `json:"timestamp"`
	OutdoorTemp *float64  `json:"outdoor_temp_f,omitempty"`
	Mode        string    `json:"mode"`
	Zones       []Zone    `json:"zones"`
}

// SinkInfo contains metadata about a sink implementation.
type SinkInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Sink defines the interface for telemetry log destinations.
type Sink interface {
	// Info returns metadata about the sink
	Info() SinkInfo

	// Open initializes the sink
	Open(ctx context.Context) error

	// Write appends one telemetry sample
	Write(ctx context.Context, sample Sample) error

	// Close releases any resources held by the sink
	Close() error
}

// Reader is the read side of a thermostat cloud client, as consumed by the
// monitor loop.
type Reader interface {
	// Systems returns the serial numbers of the controllers on the account
	Systems(ctx context.Context) ([]string, error)

	// ReadTelemetry collects a fresh telemetry sample for one system
	ReadTelemetry(ctx context.Context, serial string) (Sample, error)
}
