// Package sandbox is a stand-in hosted payment gateway for local runs. It speaks
// the same initialize/verify API as the real gateway and lets a tester settle a
// transaction by hand, which fires the signed charge.success webhook.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/skinversity/storefront-go/internal/payment"
	"github.com/skinversity/storefront-go/pkg/logging"
	"github.com/skinversity/storefront-go/pkg/metrics"
)

const service = "payment-service"

type Server struct {
	Store         Store
	SecretKey     string
	WebhookURL    string
	WebhookSecret string

	// PublicURL is where shoppers are sent to pay, e.g. http://localhost:8081.
	PublicURL string
	Client    *http.Client
	Metrics   *metrics.ServerMetrics
	Now       func() time.Time
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "POST /transaction/initialize", "initialize", s.requireSecret(s.initialize))
	s.handle(mux, "GET /transaction/verify/{reference}", "verify", s.requireSecret(s.verify))
	s.handle(mux, "GET /pay/{reference}", "pay_page", s.payPage)
	s.handle(mux, "POST /sandbox/{reference}/complete", "sandbox_complete", s.settle(StatusSuccess))
	s.handle(mux, "POST /sandbox/{reference}/close", "sandbox_close", s.settle(StatusAbandoned))
	return mux
}

func (s *Server) handle(mux *http.ServeMux, pattern, name string, h http.HandlerFunc) {
	if s.Metrics == nil {
		mux.Handle(pattern, h)
		return
	}
	mux.Handle(pattern, s.Metrics.Instrument(name, h))
}

func (s *Server) requireSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.SecretKey {
			writeEnvelope(w, http.StatusUnauthorized, false, "Invalid key", nil)
			return
		}
		next(w, r)
	}
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func writeEnvelope(w http.ResponseWriter, code int, ok bool, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": ok, "message": msg, "data": data})
}

func (s *Server) initialize(w http.ResponseWriter, r *http.Request) {
	var req payment.InitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, "invalid json", nil)
		return
	}
	if req.AmountMinor <= 0 || req.Reference == "" || req.Email == "" {
		writeEnvelope(w, http.StatusBadRequest, false, "amount, reference and email are required", nil)
		return
	}
	rec := Record{
		Transaction: payment.Transaction{
			Reference:   req.Reference,
			Status:      StatusPending,
			AmountMinor: req.AmountMinor,
			Currency:    req.Currency,
			Metadata:    req.Metadata,
		},
		Email:     req.Email,
		CreatedAt: s.now().UTC(),
	}
	if err := s.Store.Create(r.Context(), rec); err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			writeEnvelope(w, http.StatusBadRequest, false, "Duplicate Transaction Reference", nil)
			return
		}
		logging.Err(logging.Fields{Service: service, Reference: req.Reference, Step: "initialize"}, err)
		writeEnvelope(w, http.StatusInternalServerError, false, "internal error", nil)
		return
	}
	logging.Log(logging.Fields{Service: service, OrderID: req.Metadata[payment.MetaOrderID], Reference: req.Reference, Step: "initialize", Status: StatusPending})
	writeEnvelope(w, http.StatusOK, true, "Authorization URL created", payment.Session{
		Reference:        req.Reference,
		AuthorizationURL: strings.TrimRight(s.PublicURL, "/") + "/pay/" + req.Reference,
		AccessCode:       accessCode(req.Reference),
	})
}

func accessCode(reference string) string {
	return payment.Sign("access", []byte(reference))[:12]
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Store.Get(r.Context(), r.PathValue("reference"))
	if errors.Is(err, ErrUnknownReference) {
		writeEnvelope(w, http.StatusNotFound, false, "Transaction reference not found", nil)
		return
	}
	if err != nil {
		writeEnvelope(w, http.StatusInternalServerError, false, "internal error", nil)
		return
	}
	writeEnvelope(w, http.StatusOK, true, "Verification successful", rec.Transaction)
}

// payPage stands in for the hosted checkout UI.
func (s *Server) payPage(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Store.Get(r.Context(), r.PathValue("reference"))
	if err != nil {
		http.Error(w, "unknown transaction", http.StatusNotFound)
		return
	}
	base := strings.TrimRight(s.PublicURL, "/") + "/sandbox/" + rec.Reference
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"transaction": rec,
		"complete":    base + "/complete",
		"close":       base + "/close",
	})
}

func (s *Server) settle(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := r.PathValue("reference")
		rec, err := s.Store.Settle(r.Context(), ref, status)
		switch {
		case errors.Is(err, ErrUnknownReference):
			writeEnvelope(w, http.StatusNotFound, false, "Transaction reference not found", nil)
			return
		case errors.Is(err, ErrAlreadySettled):
			writeEnvelope(w, http.StatusConflict, false, "Transaction already "+rec.Status, rec.Transaction)
			return
		case err != nil:
			writeEnvelope(w, http.StatusInternalServerError, false, "internal error", nil)
			return
		}
		logging.Log(logging.Fields{Service: service, OrderID: rec.Metadata[payment.MetaOrderID], Reference: ref, Step: "settle", Status: status})

		webhook := "skipped"
		if status == StatusSuccess && s.WebhookURL != "" {
			webhook = "delivered"
			if err := s.fireWebhook(r.Context(), rec); err != nil {
				webhook = "failed"
				logging.Err(logging.Fields{Service: service, Reference: ref, Step: "webhook", Status: webhook}, err)
			}
		}
		writeEnvelope(w, http.StatusOK, true, "Transaction "+status, map[string]any{
			"transaction": rec.Transaction,
			"webhook":     webhook,
		})
	}
}

func (s *Server) fireWebhook(ctx context.Context, rec Record) error {
	body, err := json.Marshal(payment.Event{Event: payment.EventChargeSuccess, Data: rec.Transaction})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(payment.SignatureHeader, payment.Sign(s.WebhookSecret, body))

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
