package store

import "time"

// EnvironmentSummary is one row of ListEnvironments.
type EnvironmentSummary struct {
	ID        string
	Name      string
	Entries   int
	CreatedAt time.Time
	UpdatedAt time.Time
}
