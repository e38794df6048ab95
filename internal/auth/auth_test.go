package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerify(t *testing.T) {
	v := NewVerifier("secret")
	tok, err := v.Issue(Session{UserID: "u1", Email: "a@example.com", Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)

	s, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, Session{UserID: "u1", Email: "a@example.com", Role: RoleAdmin}, s)
	assert.True(t, s.IsAdmin())
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier("secret")

	expired, err := v.Issue(Session{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewVerifier("other").Issue(Session{UserID: "u1"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noSub, err := v.Issue(Session{Email: "a@example.com"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(noSub)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify("")
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	v := NewVerifier("secret")
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier("secret")
	var seen Session
	h := v.Optional(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	})))

	do := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do(""))
	assert.Equal(t, http.StatusUnauthorized, do("garbage"))

	shopper, _ := v.Issue(Session{UserID: "u1"}, time.Hour)
	assert.Equal(t, http.StatusForbidden, do(shopper))

	admin, _ := v.Issue(Session{UserID: "u2", Role: RoleAdmin}, time.Hour)
	assert.Equal(t, http.StatusOK, do(admin))
	assert.Equal(t, "u2", seen.UserID)
}

func TestOptionalAnonymous(t *testing.T) {
	v := NewVerifier("secret")
	called := false
	h := v.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.False(t, FromContext(r.Context()).Authenticated())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/products", nil))
	assert.True(t, called)
}
