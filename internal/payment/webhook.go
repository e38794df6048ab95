package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	SignatureHeader    = "X-Payment-Signature"
	EventChargeSuccess = "charge.success"
)

var ErrBadSignature = errors.New("invalid webhook signature")

// Sign returns the hex HMAC-SHA512 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifySignature(secret string, body []byte, signature string) error {
	got, err := hex.DecodeString(signature)
	if err != nil || secret == "" {
		return ErrBadSignature
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), got) {
		return ErrBadSignature
	}
	return nil
}

type Event struct {
	Event string      `json:"event"`
	Data  Transaction `json:"data"`
}

func ParseEvent(body []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return Event{}, fmt.Errorf("decode webhook: %w", err)
	}
	if e.Event == "" || e.Data.Reference == "" {
		return Event{}, fmt.Errorf("decode webhook: missing event or reference")
	}
	return e, nil
}
