package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutcome(t *testing.T) {
	for in, want := range map[string]Outcome{
		"success":   OutcomeSuccess,
		" SUCCESS ": OutcomeSuccess,
		"closed":    OutcomeClosed,
		"cancel":    OutcomeClosed,
	} {
		got, err := ParseOutcome(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseOutcome("refunded")
	assert.ErrorIs(t, err, ErrUnknownOutcome)
}

func TestHTTPGatewayInitialize(t *testing.T) {
	var got InitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"reference":"ref-1","authorization_url":"https://pay.example/ref-1","access_code":"ac"}}`))
	}))
	defer srv.Close()

	g := &HTTPGateway{BaseURL: srv.URL + "/", SecretKey: "sk_test", Client: srv.Client()}
	s, err := g.Initialize(context.Background(), InitRequest{
		AmountMinor: 5000,
		Currency:    "NGN",
		Reference:   "ref-1",
		Email:       "a@example.com",
		Metadata:    map[string]string{MetaOrderID: "o1", MetaUserID: "u1", MetaCartID: "c1", MetaEmail: "a@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/ref-1", s.AuthorizationURL)
	assert.Equal(t, "ref-1", s.Reference)
	assert.Equal(t, int64(5000), got.AmountMinor)
	assert.Equal(t, "o1", got.Metadata[MetaOrderID])
}

func TestHTTPGatewayInitializeValidates(t *testing.T) {
	g := &HTTPGateway{BaseURL: "http://127.0.0.1:0"}
	_, err := g.Initialize(context.Background(), InitRequest{AmountMinor: 0, Currency: "NGN", Reference: "r", Email: "e"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = g.Initialize(context.Background(), InitRequest{AmountMinor: 1, Currency: "NGN", Reference: "r"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestHTTPGatewayRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":false,"message":"Invalid key"}`))
	}))
	defer srv.Close()

	g := &HTTPGateway{BaseURL: srv.URL, SecretKey: "bad"}
	_, err := g.Initialize(context.Background(), InitRequest{AmountMinor: 1, Currency: "NGN", Reference: "r", Email: "e"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGateway)
	assert.Contains(t, err.Error(), "Invalid key")
}

func TestHTTPGatewayUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := &HTTPGateway{BaseURL: url}
	_, err := g.Verify(context.Background(), "ref")
	assert.ErrorIs(t, err, ErrGateway)
}

func TestHTTPGatewayVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/transaction/verify/ref-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":true,"data":{"reference":"ref-9","status":"success","amount":2200,"currency":"NGN","metadata":{"order_id":"o9"}}}`))
	}))
	defer srv.Close()

	g := &HTTPGateway{BaseURL: srv.URL}
	tx, err := g.Verify(context.Background(), "ref-9")
	require.NoError(t, err)
	assert.True(t, tx.Succeeded())
	assert.Equal(t, int64(2200), tx.AmountMinor)
	assert.Equal(t, "o9", tx.Metadata[MetaOrderID])

	_, err = g.Verify(context.Background(), "")
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}
