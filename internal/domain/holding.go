package domain

// Holding is one non-zero exchange balance. Holdings are ephemeral: the set
// is rebuilt from the exchange every cycle and never persisted directly.
type Holding struct {
	Asset     string  // canonical symbol (Kraken altname, e.g. "XBT")
	AssetCode string  // exchange-internal code (e.g. "XXBT")
	Quantity  float64 // held amount in asset units, always > 0
}
