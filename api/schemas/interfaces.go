package schemas

import "context"

// -- Store Interface --

// Store defines a generic interface for a persistent storage system for scan
// data. This abstraction allows the application to be independent of the
// specific database implementation (e.g., PostgreSQL, in-memory).
type Store interface {
	// PersistData saves all findings from a completed scan to the data store.
	PersistData(ctx context.Context, data *ResultEnvelope) error
	// GetFindingsByScanID retrieves all findings associated with a specific scan ID.
	GetFindingsByScanID(ctx context.Context, scanID string) ([]Finding, error)
}
