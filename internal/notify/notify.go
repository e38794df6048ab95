// Package notify is the fire-and-forget side-channel that tells downstream
// consumers an order was paid. Delivery is at most once: no acknowledgement,
// no retry, and a failure never reaches the caller.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/skinversity/storefront-go/pkg/contracts"
	"github.com/skinversity/storefront-go/pkg/logging"
)

type Notification struct {
	OrderID    string
	PaymentRef string
	Status     string
	Amount     string
}

func (n Notification) Payload() contracts.NotifyOrderPayload {
	return contracts.NotifyOrderPayload{
		OrderID:    n.OrderID,
		PaymentRef: n.PaymentRef,
		Status:     n.Status,
		Amount:     n.Amount,
	}
}

type Sender interface {
	Send(ctx context.Context, name string, n Notification) error
}

// Notifier is what the checkout workflow depends on.
type Notifier interface {
	Notify(n Notification)
}

var ErrClosed = errors.New("dispatcher closed")

type Options struct {
	Service   string
	Function  string
	QueueSize int
	Timeout   time.Duration
}

type job struct {
	n Notification
}

// Dispatcher hands notifications to a single worker goroutine. Notify never
// blocks: when the queue is full the notification is dropped and logged.
type Dispatcher struct {
	sender Sender
	opts   Options
	queue  chan job

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(sender Sender, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Function == "" {
		opts.Function = contracts.FunctionNotifyOrder
	}
	d := &Dispatcher{
		sender: sender,
		opts:   opts,
		queue:  make(chan job, opts.QueueSize),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Notify(n Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log(n, "dropped", ErrClosed)
		return
	}
	select {
	case d.queue <- job{n: n}:
	default:
		d.log(n, "dropped", errors.New("notification queue full"))
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for j := range d.queue {
		d.send(j.n)
	}
}

func (d *Dispatcher) send(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
	defer cancel()
	start := time.Now()
	err := d.sender.Send(ctx, d.opts.Function, n)
	fields := logging.Fields{
		Service:    d.opts.Service,
		OrderID:    n.OrderID,
		Reference:  n.PaymentRef,
		Step:       "notify",
		Status:     "sent",
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields.Status = "failed"
		logging.Err(fields, err)
		return
	}
	logging.Log(fields)
}

func (d *Dispatcher) log(n Notification, status string, err error) {
	logging.Err(logging.Fields{
		Service:   d.opts.Service,
		OrderID:   n.OrderID,
		Reference: n.PaymentRef,
		Step:      "notify",
		Status:    status,
	}, err)
}

// Close stops accepting notifications and waits for queued ones to be sent
// or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(Notification) {}
