package domain

// PositionStatus represents the lifecycle state of a tracked position.
type PositionStatus string

const (
	// StatusActive means the asset is currently held and under exit management.
	StatusActive PositionStatus = "ACTIVE"
	// StatusClosed means the bot's own sell decision liquidated the position.
	StatusClosed PositionStatus = "CLOSED"
	// StatusClosedExternal means the asset vanished from exchange holdings
	// through an out-of-band action (manual sell, transfer, etc.).
	StatusClosedExternal PositionStatus = "CLOSED_EXTERNAL"
)

// CloseReason indicates why the exit strategy wants a position closed.
type CloseReason string

const (
	CloseReasonNone               CloseReason = ""
	CloseReasonStopLoss           CloseReason = "STOP_LOSS"
	CloseReasonTrailingTakeProfit CloseReason = "TRAILING_TAKE_PROFIT"
)
