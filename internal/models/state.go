package models

// OrderState is the lifecycle position of a cart and its purchase.
// Transitions run strictly OPEN -> PURCHASED -> IN_TRANSIT -> DELIVERED;
// no state is ever skipped.
type OrderState string

const (
	OrderStateOpen      OrderState = "OPEN"
	OrderStatePurchased OrderState = "PURCHASED"
	OrderStateInTransit OrderState = "IN_TRANSIT"
	OrderStateDelivered OrderState = "DELIVERED"
)

// DeriveOrderState maps persisted rows onto the state machine. transport
// is nil until the purchase has been dispatched; its RecDate is nil until
// delivery is confirmed.
func DeriveOrderState(purchased bool, transport *TransportStatus) OrderState {
	switch {
	case !purchased:
		return OrderStateOpen
	case transport == nil:
		return OrderStatePurchased
	case transport.RecDate == nil:
		return OrderStateInTransit
	default:
		return OrderStateDelivered
	}
}
