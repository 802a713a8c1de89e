package models

import (
	"time"

	"github.com/google/uuid"
)

// Endpoint is a metered operation registered by path. Cost is a static
// positive integer charged per call, admin-editable. A request for a path
// with no endpoint row is a configuration error: metering must never be
// skipped because registration was forgotten.
type Endpoint struct {
	ID        uuid.UUID `db:"id"`
	Path      string    `db:"path"`
	Cost      int64     `db:"cost"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
