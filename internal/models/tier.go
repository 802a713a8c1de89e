package models

import "time"

// Tier maps an integer scope to its monthly quota allotment. The table is
// small, admin-editable configuration; a caller whose scope has no tier row
// is a server misconfiguration, not a client error.
type Tier struct {
	Scope            int       `db:"scope"`
	Name             string    `db:"name"`
	MonthlyAllotment int64     `db:"monthly_allotment"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}
