package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/skinversity/storefront-go/internal/auth"
	"github.com/skinversity/storefront-go/internal/order/checkout"
	"github.com/skinversity/storefront-go/internal/order/domain"
	"github.com/skinversity/storefront-go/internal/payment"
	"github.com/skinversity/storefront-go/pkg/idempotency"
	"github.com/skinversity/storefront-go/pkg/logging"
)

type checkoutResponse struct {
	checkout.Placement
	Status string `json:"status"`
}

// placeOrder creates an order from the caller's cart and starts its payment.
// With an Idempotency-Key a repeated request returns the order created first.
func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	if !sess.Authenticated() {
		s.writeError(w, r, checkout.ErrAuthRequired, nil)
		return
	}
	id := strings.TrimSpace(r.Header.Get(CartHeader))
	if id == "" {
		s.writeError(w, r, fmt.Errorf("%w: %s header is required", errBadRequest, CartHeader), nil)
		return
	}

	key := idempotency.Key(r)
	if key != "" && s.Idempotency != nil {
		if s.replay(w, r, sess, key) {
			return
		}
	}

	pl, err := s.Checkout.PlaceOrder(r.Context(), sess, id)
	if pl.Order.ID != "" && key != "" && s.Idempotency != nil {
		if rerr := s.Idempotency.Remember(r.Context(), key, pl.Order.ID); rerr != nil {
			if errors.Is(rerr, idempotency.ErrConflict) && s.replay(w, r, sess, key) {
				return
			}
			logging.Err(logging.Fields{Service: s.Service, OrderID: pl.Order.ID, Step: "idempotency"}, rerr)
		}
	}
	if err != nil {
		var extra map[string]any
		if pl.Order.ID != "" {
			extra = map[string]any{"order_id": pl.Order.ID, "order_status": pl.Order.Status}
		}
		s.writeError(w, r, err, extra)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponse{Placement: pl, Status: "CREATED"})
}

// replay answers with the order already bound to key, if any.
func (s *Server) replay(w http.ResponseWriter, r *http.Request, sess auth.Session, key string) bool {
	orderID, ok, err := s.Idempotency.Lookup(r.Context(), key)
	if err != nil || !ok {
		return false
	}
	o, err := s.Orders.FetchOrder(r.Context(), orderID)
	if err != nil || o.UserID != sess.UserID {
		s.writeError(w, r, idempotency.ErrConflict, nil)
		return true
	}
	writeJSON(w, http.StatusOK, checkoutResponse{Placement: checkout.Placement{Order: o}, Status: "IDEMPOTENT_REPLAY"})
	return true
}

func (s *Server) retryPayment(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	pl, err := s.Checkout.RetryPayment(r.Context(), sess, r.PathValue("id"), strings.TrimSpace(r.Header.Get(CartHeader)))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, pl)
}

type callbackRequest struct {
	OrderID   string `json:"order_id"`
	Reference string `json:"reference"`
	CartID    string `json:"cart_id"`
	Outcome   string `json:"outcome"`
}

// paymentCallback receives the outcome the gateway UI reported to the shopper's browser.
func (s *Server) paymentCallback(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	if !sess.Authenticated() {
		s.writeError(w, r, checkout.ErrAuthRequired, nil)
		return
	}
	var req callbackRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	outcome, err := payment.ParseOutcome(req.Outcome)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if req.OrderID == "" {
		s.writeError(w, r, fmt.Errorf("%w: order_id is required", errBadRequest), nil)
		return
	}
	if req.CartID == "" {
		req.CartID = strings.TrimSpace(r.Header.Get(CartHeader))
	}

	res, err := s.Checkout.HandleOutcome(r.Context(), sess, outcome, checkout.Confirmation{
		OrderID:   req.OrderID,
		Reference: req.Reference,
		CartID:    req.CartID,
	})
	if err != nil {
		s.writeError(w, r, err, map[string]any{"order_id": req.OrderID})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// paymentWebhook receives signed server-to-server events from the gateway.
func (s *Server) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err), nil)
		return
	}
	if err := payment.VerifySignature(s.WebhookSecret, body, r.Header.Get(payment.SignatureHeader)); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}
	ev, err := payment.ParseEvent(body)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err), nil)
		return
	}
	if ev.Event != payment.EventChargeSuccess {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored", "event": ev.Event})
		return
	}

	res, err := s.Checkout.ConfirmPayment(r.Context(), checkout.Confirmation{
		OrderID:   ev.Data.Metadata[payment.MetaOrderID],
		Reference: ev.Data.Reference,
		CartID:    ev.Data.Metadata[payment.MetaCartID],
		UserID:    ev.Data.Metadata[payment.MetaUserID],
	})
	if err != nil {
		s.writeError(w, r, err, map[string]any{"reference": ev.Data.Reference})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	if !sess.Authenticated() {
		s.writeError(w, r, checkout.ErrAuthRequired, nil)
		return
	}
	orders, err := s.Orders.FetchOrdersForUser(r.Context(), sess.UserID)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if orders == nil {
		orders = []domain.OrderWithItems{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	if !sess.Authenticated() {
		s.writeError(w, r, checkout.ErrAuthRequired, nil)
		return
	}
	o, err := s.Orders.FetchOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if o.UserID != sess.UserID && !sess.IsAdmin() {
		s.writeError(w, r, domain.ErrNotFound, nil)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
