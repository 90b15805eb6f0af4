package domain

import (
	"fmt"
	"time"
)

// Config holds the two lifetimes that govern every session.
type Config struct {
	// SlideWindow is added to expires_at on each issuance and rotation.
	SlideWindow time.Duration
	// MaxLifetime caps absolute_expiry, counted from the first issuance of a lineage.
	MaxLifetime time.Duration
}

// Validate fails unless MaxLifetime >= SlideWindow > 0.
func (c Config) Validate() error {
	if c.SlideWindow <= 0 {
		return fmt.Errorf("session: slide window must be positive, got %s", c.SlideWindow)
	}
	if c.MaxLifetime < c.SlideWindow {
		return fmt.Errorf("session: max lifetime (%s) must be >= slide window (%s)", c.MaxLifetime, c.SlideWindow)
	}
	return nil
}
