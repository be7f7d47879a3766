package carrier

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// SetSetpoints changes a zone's manual activity setpoints and engages a
// hold on it. Nil setpoints are left untouched; an empty holdUntil means an
// indefinite hold.
//
// The thermostat only re-reads the hold activity on an off-to-on edge of
// the hold flag. When hold is already on, the update therefore runs in two
// phases: push hold off with the activity reference cleared, pause for the
// device to process it, re-fetch the config (the push advanced its
// revision server-side), and only then apply the new values and push hold
// back on.
func (c *Client) SetSetpoints(ctx context.Context, serial, zoneID string, heat, cool *float64, holdUntil string) error {
	cfg, err := c.Config(ctx, serial)
	if err != nil {
		return fmt.Errorf("fetching config: %w", err)
	}

	zone, err := cfg.Zone(zoneID)
	if err != nil {
		return err
	}
	manual, err := zone.ManualActivity()
	if err != nil {
		return err
	}

	if zone.HoldOn() {
		zone.SetHold(false)
		zone.SetHoldActivity("")
		if err := c.pushConfig(ctx, serial, cfg); err != nil {
			return fmt.Errorf("clearing hold: %w", err)
		}

		// The hold-off push has committed. Abandoning now would leave the
		// zone with hold disabled, so the rest of the sequence must run to
		// completion regardless of cancellation.
		ctx = context.WithoutCancel(ctx)

		c.logger.Debug("hold cleared, waiting for thermostat to settle",
			"system", serial, "zone", zoneID, "delay", c.settleDelay)
		time.Sleep(c.settleDelay)

		cfg, err = c.Config(ctx, serial)
		if err != nil {
			return fmt.Errorf("re-fetching config after clearing hold: %w", err)
		}
		zone, err = cfg.Zone(zoneID)
		if err != nil {
			return err
		}
		manual, err = zone.ManualActivity()
		if err != nil {
			return err
		}
	}

	zone.SetHoldActivity("manual")
	if heat != nil {
		manual.SetHeatSetpoint(*heat)
	}
	if cool != nil {
		manual.SetCoolSetpoint(*cool)
	}
	zone.SetHoldUntil(holdUntil)
	zone.SetHold(true)
	cfg.StampTimestamp(time.Now())

	if err := c.pushConfig(ctx, serial, cfg); err != nil {
		return fmt.Errorf("pushing setpoints: %w", err)
	}

	// Prompt the thermostat to sync the new config.
	c.activateQuietly(ctx)

	c.logger.Info("setpoints updated", "system", serial, "zone", zoneID)
	return nil
}

// SetMode changes the document-level system mode. No hold-edge logic or
// trailing keepalive applies here.
func (c *Client) SetMode(ctx context.Context, serial, mode string) error {
	cfg, err := c.Config(ctx, serial)
	if err != nil {
		return fmt.Errorf("fetching config: %w", err)
	}

	cfg.SetMode(mode)
	cfg.StampTimestamp(time.Now())

	if err := c.pushConfig(ctx, serial, cfg); err != nil {
		return fmt.Errorf("pushing mode: %w", err)
	}

	c.logger.Info("mode updated", "system", serial, "mode", mode)
	return nil
}

// pushConfig serializes and posts an edited config document.
func (c *Client) pushConfig(ctx context.Context, serial string, cfg *ConfigDoc) error {
	data, err := cfg.Serialize()
	if err != nil {
		return err
	}
	body := "data=" + url.QueryEscape(data)
	if _, err := c.request(ctx, "POST", "/systems/"+serial+"/config", body, nil); err != nil {
		return err
	}
	return nil
}
