package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skinversity/storefront-go/pkg/contracts"
)

type recordingSender struct {
	mu      sync.Mutex
	sent    []Notification
	names   []string
	err     error
	release chan struct{}
}

func (s *recordingSender) Send(ctx context.Context, name string, n Notification) error {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	s.names = append(s.names, name)
	return s.err
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestDispatcherDeliversOnce(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, Options{Service: "test"})

	d.Notify(Notification{OrderID: "o1", PaymentRef: "r1", Status: "success", Amount: "50.00"})
	require.NoError(t, d.Close(context.Background()))

	require.Equal(t, 1, sender.count())
	assert.Equal(t, "o1", sender.sent[0].OrderID)
	assert.Equal(t, contracts.FunctionNotifyOrder, sender.names[0])
}

func TestDispatcherSwallowsSendErrors(t *testing.T) {
	sender := &recordingSender{err: errors.New("boom")}
	d := NewDispatcher(sender, Options{})

	d.Notify(Notification{OrderID: "o1"})
	d.Notify(Notification{OrderID: "o2"})
	require.NoError(t, d.Close(context.Background()))

	// one attempt each, no retry
	assert.Equal(t, 2, sender.count())
}

func TestDispatcherNeverBlocks(t *testing.T) {
	sender := &recordingSender{release: make(chan struct{})}
	d := NewDispatcher(sender, Options{QueueSize: 1, Timeout: time.Second})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Notify(Notification{OrderID: "o"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a slow sender")
	}

	close(sender.release)
	require.NoError(t, d.Close(context.Background()))
	// at most the in-flight send plus one queued
	assert.LessOrEqual(t, sender.count(), 2)
}

func TestDispatcherSendTimeout(t *testing.T) {
	sender := &recordingSender{release: make(chan struct{})}
	d := NewDispatcher(sender, Options{Timeout: 20 * time.Millisecond})

	d.Notify(Notification{OrderID: "o1"})
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 0, sender.count())
}

func TestDispatcherNotifyAfterClose(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, Options{})
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	d.Notify(Notification{OrderID: "late"})
	assert.Equal(t, 0, sender.count())
}

func TestDispatcherCloseHonoursContext(t *testing.T) {
	sender := &recordingSender{release: make(chan struct{})}
	d := NewDispatcher(sender, Options{Timeout: time.Minute})
	d.Notify(Notification{OrderID: "o1"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	close(sender.release)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func TestKafkaSender(t *testing.T) {
	w := &fakeWriter{}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := &KafkaSender{Writer: w, Now: func() time.Time { return now }}

	err := s.Send(context.Background(), contracts.FunctionNotifyOrder, Notification{OrderID: "o1", PaymentRef: "r1", Status: "success", Amount: "50.00"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "o1", string(w.msgs[0].Key))

	var ev contracts.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, contracts.EventOrderPaid, ev.Type)
	assert.Equal(t, "o1", ev.OrderID)
	assert.Equal(t, now, ev.CreatedAt)
	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, "50.00", ev.Payload["amount"])
}

func TestHTTPSender(t *testing.T) {
	var got contracts.NotifyOrderPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/functions/notify-order", r.URL.Path)
		assert.Equal(t, "Bearer anon", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(contracts.NotifyOrderReply{Status: "received", ReceivedAt: time.Now().UTC()})
	}))
	defer srv.Close()

	s := &HTTPSender{BaseURL: srv.URL, APIKey: "anon"}
	err := s.Send(context.Background(), contracts.FunctionNotifyOrder, Notification{OrderID: "o1", PaymentRef: "r1", Status: "success", Amount: "50.00"})
	require.NoError(t, err)
	assert.Equal(t, "o1", got.OrderID)
	assert.Equal(t, "r1", got.PaymentRef)
}

func TestHTTPSenderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := &HTTPSender{BaseURL: srv.URL}
	err := s.Send(context.Background(), contracts.FunctionNotifyOrder, Notification{OrderID: "o1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
