package contracts

import "time"

type Event struct {
	EventID   string         `json:"event_id"`
	OrderID   string         `json:"order_id"`
	CreatedAt time.Time      `json:"created_at"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
}

const EventOrderPaid = "order.paid"

// FunctionNotifyOrder is the side-channel function invoked after a confirmed payment.
const FunctionNotifyOrder = "notify-order"

// NotifyOrderPayload is the body sent to FunctionNotifyOrder.
type NotifyOrderPayload struct {
	OrderID    string `json:"orderId"`
	PaymentRef string `json:"paymentRef"`
	Status     string `json:"status"`
	Amount     string `json:"amount"`
}

// NotifyOrderReply is what the notification function answers.
type NotifyOrderReply struct {
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// EventTypeForFunction maps a side-channel function name to the event type published on the bus.
func EventTypeForFunction(name string) string {
	switch name {
	case FunctionNotifyOrder:
		return EventOrderPaid
	default:
		return name
	}
}
