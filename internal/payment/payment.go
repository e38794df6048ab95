// Package payment wraps the hosted payment gateway: transaction initialization,
// verification and its signed webhook events.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var (
	ErrGateway        = errors.New("payment gateway error")
	ErrInvalidRequest = errors.New("invalid payment request")
	ErrUnknownOutcome = errors.New("unknown payment outcome")
	ErrNotSuccessful  = errors.New("payment not successful")
)

// Outcome is what the gateway UI reports back: exactly one per initialization.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeClosed  Outcome = "closed"
)

func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToLower(strings.TrimSpace(s))); o {
	case OutcomeSuccess, OutcomeClosed:
		return o, nil
	case "close", "cancel", "cancelled":
		return OutcomeClosed, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOutcome, s)
}

// Metadata keys embedded in every transaction.
const (
	MetaOrderID = "order_id"
	MetaUserID  = "user_id"
	MetaCartID  = "cart_id"
	MetaEmail   = "email"
)

type InitRequest struct {
	AmountMinor int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Reference   string            `json:"reference"`
	Email       string            `json:"email"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (r InitRequest) validate() error {
	switch {
	case r.AmountMinor <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	case r.Reference == "":
		return fmt.Errorf("%w: reference is required", ErrInvalidRequest)
	case r.Email == "":
		return fmt.Errorf("%w: email is required", ErrInvalidRequest)
	case r.Currency == "":
		return fmt.Errorf("%w: currency is required", ErrInvalidRequest)
	}
	return nil
}

// Session is a started payment the shopper completes in the gateway UI.
type Session struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
}

type Transaction struct {
	Reference   string            `json:"reference"`
	Status      string            `json:"status"`
	AmountMinor int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
}

func (t Transaction) Succeeded() bool { return t.Status == "success" }

type Gateway interface {
	Initialize(ctx context.Context, req InitRequest) (Session, error)
	Verify(ctx context.Context, reference string) (Transaction, error)
}

// HTTPGateway talks to a gateway exposing /transaction/initialize and
// /transaction/verify/{reference} with a {status, message, data} envelope.
type HTTPGateway struct {
	BaseURL   string
	SecretKey string
	Client    *http.Client
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (g *HTTPGateway) Initialize(ctx context.Context, req InitRequest) (Session, error) {
	if err := req.validate(); err != nil {
		return Session{}, err
	}
	var s Session
	if err := g.do(ctx, http.MethodPost, "/transaction/initialize", req, &s); err != nil {
		return Session{}, err
	}
	if s.Reference == "" {
		s.Reference = req.Reference
	}
	return s, nil
}

func (g *HTTPGateway) Verify(ctx context.Context, reference string) (Transaction, error) {
	if reference == "" {
		return Transaction{}, fmt.Errorf("%w: reference is required", ErrInvalidRequest)
	}
	var t Transaction
	err := g.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &t)
	return t, err
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(g.BaseURL, "/")+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.SecretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGateway, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return fmt.Errorf("%w: status %d: undecodable body: %w", ErrGateway, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Status {
		return fmt.Errorf("%w: status %d: %s", ErrGateway, resp.StatusCode, env.Message)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode data: %w", ErrGateway, err)
	}
	return nil
}
