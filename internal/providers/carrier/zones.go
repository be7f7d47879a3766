package carrier

import (
	"context"
	"fmt"
	"time"

	"github.com/hvactools/infinityctl/pkg/model"
)

// Compile-time check that Client satisfies the monitor's read interface.
var _ model.Reader = (*Client)(nil)

// ReadTelemetry collects a fresh telemetry sample for one system: outdoor
// temperature, normalized mode, and the merged zone list. Nothing is cached
// between calls; the remote state changes asynchronously.
func (c *Client) ReadTelemetry(ctx context.Context, serial string) (model.Sample, error) {
	status, err := c.Status(ctx, serial)
	if err != nil {
		return model.Sample{}, fmt.Errorf("reading telemetry for %s: %w", serial, err)
	}

	// Config supplies zone names and profile supplies the present-zone
	// filter; losing either degrades the sample without invalidating it.
	var names map[string]string
	if cfg, err := c.Config(ctx, serial); err != nil {
		c.logger.Warn("config fetch failed, using default zone names", "system", serial, "error", err)
	} else {
		names = cfg.ZoneNames()
	}

	var present map[string]bool
	if profile, err := c.Profile(ctx, serial); err != nil {
		c.logger.Warn("profile fetch failed, skipping present-zone filter", "system", serial, "error", err)
	} else {
		present = profile.PresentZones()
	}

	sample := model.Sample{
		System:    serial,
		Timestamp: time.Now(),
		Mode:      status.Mode(),
		Zones:     joinZones(status, names, present),
	}
	if oat, ok := status.OutdoorTemp(); ok {
		sample.OutdoorTemp = &oat
	}
	return sample, nil
}

// joinZones merges status zones with config names, excluding zones the
// profile does not flag as present. An empty present set disables the
// filter rather than excluding everything.
func joinZones(status *StatusDoc, names map[string]string, present map[string]bool) []model.Zone {
	var zones []model.Zone
	for _, sz := range status.Zones() {
		id := sz.ID()
		if len(present) > 0 && !present[id] {
			continue
		}

		name, ok := names[id]
		if !ok {
			name = "Zone " + id
		}

		zones = append(zones, model.Zone{
			ID:           id,
			Name:         name,
			Temp:         sz.Temp(),
			Humidity:     sz.Humidity(),
			Activity:     sz.Activity(),
			HeatSetpoint: sz.HeatSetpoint(),
			CoolSetpoint: sz.CoolSetpoint(),
			Fan:          sz.Fan(),
			Conditioning: sz.Conditioning(),
		})
	}
	return zones
}
