package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"

	"github.com/skinversity/storefront-go/pkg/contracts"
	"github.com/skinversity/storefront-go/pkg/logging"
)

// Receiver is the consuming end of the side-channel: it accepts function
// invocations over HTTP and events from Kafka, and stores each one once.
type Receiver struct {
	Service string
	Inbox   Inbox
	Now     func() time.Time
}

func (rc *Receiver) now() time.Time {
	if rc.Now != nil {
		return rc.Now()
	}
	return time.Now()
}

// ServeFunction handles POST /functions/{name}.
func (rc *Receiver) ServeFunction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name != contracts.FunctionNotifyOrder {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown function " + name})
		return
	}
	var p contracts.NotifyOrderPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&p); err != nil || p.OrderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "orderId is required"})
		return
	}

	now := rc.now().UTC()
	if _, err := rc.store(r.Context(), newEvent(name, p, now)); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "could not record notification"})
		return
	}
	writeJSON(w, http.StatusOK, contracts.NotifyOrderReply{Status: "received", ReceivedAt: now})
}

func (rc *Receiver) store(ctx context.Context, evt contracts.Event) (bool, error) {
	fresh, err := rc.Inbox.Record(ctx, evt)
	fields := logging.Fields{Service: rc.Service, OrderID: evt.OrderID, EventID: evt.EventID, Step: evt.Type, Status: "received"}
	if err != nil {
		fields.Status = "store_error"
		logging.Err(fields, err)
		return false, err
	}
	if !fresh {
		fields.Status = "duplicate"
	}
	logging.Log(fields)
	return fresh, nil
}

// MessageReader is the part of *kafka.Reader Consume needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Consume reads events until ctx is cancelled or the reader is exhausted.
// A message is committed only once its event is in the inbox; a failing inbox
// is retried with bo, and when bo gives up Consume returns without committing
// so the message is redelivered. Undecodable messages are committed and skipped.
func (rc *Receiver) Consume(ctx context.Context, reader MessageReader, bo backoff.BackOff) error {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Err(logging.Fields{Service: rc.Service, Step: "kafka_read", Status: "error"}, err)
			if err := pause(ctx, bo); err != nil {
				return err
			}
			continue
		}
		bo.Reset()

		var evt contracts.Event
		if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.EventID == "" {
			logging.Err(logging.Fields{Service: rc.Service, Step: "kafka_decode", Status: "skipped"}, err)
		} else {
			_, err := backoff.Retry(ctx, func() (bool, error) {
				return rc.store(ctx, evt)
			}, backoff.WithBackOff(bo))
			if err != nil {
				return fmt.Errorf("store event %s: %w", evt.EventID, err)
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Err(logging.Fields{Service: rc.Service, EventID: evt.EventID, Step: "kafka_commit", Status: "error"}, err)
		}
	}
}

func pause(ctx context.Context, bo backoff.BackOff) error {
	d := bo.NextBackOff()
	if d == backoff.Stop {
		return errors.New("kafka read: backoff exhausted")
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
