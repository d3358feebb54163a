package events

// Topics emitted by the POS session engine.
const (
	// TopicSaleCommitted fires after a sale is durably persisted and recorded
	// against the active shift.
	TopicSaleCommitted = "pos.sale.committed"
	// TopicShiftOpened fires when a cash-drawer session starts.
	TopicShiftOpened = "pos.shift.opened"
	// TopicShiftClosed fires when a shift reaches its terminal state.
	TopicShiftClosed = "pos.shift.closed"
)
