package domain

import "time"

// PositionRecord is the persisted unit of state, one per asset ever seen.
// Records are never deleted; a closed record stays in the ledger as history
// and as the anchor for a future reactivation.
type PositionRecord struct {
	RowID            int64          // store-owned stable row index, assigned at first insert
	Asset            string         // canonical symbol, sole identity key, immutable once created
	AssetCode        string         // exchange-internal asset code
	Pair             string         // trading pair used for pricing/selling (e.g. "XBTUSD")
	PositionSize     float64        // quantity currently held; 0 when closed
	CostBasis        *float64       // reference price for % calculations; nil when closed
	CurrentPrice     float64        // last observed price
	UnrealizedPct    float64        // gain/loss vs CostBasis; meaningful only while ACTIVE
	ATHUnrealizedPct float64        // running maximum of UnrealizedPct within the campaign
	Armed            bool           // once true, exit logic switches to trailing-drop
	Status           PositionStatus // ACTIVE / CLOSED / CLOSED_EXTERNAL
	RealizedPct      *float64       // gain/loss booked at close; nil while ACTIVE
	LastUpdated      time.Time      // timestamp of last write
}

// IsActive reports whether the record is in an open campaign.
func (r *PositionRecord) IsActive() bool {
	return r.Status == StatusActive
}

// StartCampaign (re)activates the record at the given price, resetting all
// campaign-scoped fields. Identity fields and the row index are untouched.
func (r *PositionRecord) StartCampaign(price float64) {
	r.Status = StatusActive
	r.CostBasis = Float(price)
	r.ATHUnrealizedPct = 0
	r.Armed = false
	r.RealizedPct = nil
}

// Float returns a pointer to v, for the record's optional numeric fields.
func Float(v float64) *float64 {
	return &v
}
