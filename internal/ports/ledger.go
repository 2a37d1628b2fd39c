package ports

import (
	"context"

	"krakenTrailBot/internal/domain"
)

// LedgerStore defines the interface for the persisted per-asset position ledger.
//
// Rows are keyed by asset symbol and carry a stable row index assigned by the
// store at first insertion; updates preserve row identity. The design assumes
// exactly one reconciliation process writes to a given ledger at a time —
// there is no locking or versioning, so concurrent instances can lose updates.
type LedgerStore interface {
	// ReadAll retrieves every record in insertion order.
	ReadAll(ctx context.Context) ([]*domain.PositionRecord, error)
	// Upsert creates a new row if the record's asset is unseen, otherwise
	// updates the existing row in place. On create, the store assigns the
	// record's RowID.
	Upsert(ctx context.Context, rec *domain.PositionRecord) error
}
