package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/skinversity/storefront-go/pkg/contracts"
	"github.com/skinversity/storefront-go/pkg/kafka"
)

// eventID is derived from the function, order and payment reference, so every
// path that reports the same payment yields the same id.
func eventID(name string, p contracts.NotifyOrderPayload) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name+"/"+p.OrderID+"/"+p.PaymentRef)).String()
}

func newEvent(name string, p contracts.NotifyOrderPayload, at time.Time) contracts.Event {
	return contracts.Event{
		EventID:   eventID(name, p),
		OrderID:   p.OrderID,
		CreatedAt: at,
		Type:      contracts.EventTypeForFunction(name),
		Payload: map[string]any{
			"orderId":    p.OrderID,
			"paymentRef": p.PaymentRef,
			"status":     p.Status,
			"amount":     p.Amount,
		},
	}
}

// KafkaSender publishes each notification as a contracts.Event keyed by order id.
type KafkaSender struct {
	Writer kafka.MessageWriter
	Now    func() time.Time
}

func (s *KafkaSender) Send(ctx context.Context, name string, n Notification) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return kafka.PublishJSON(ctx, s.Writer, n.OrderID, newEvent(name, n.Payload(), now().UTC()))
}
