// Package payment verifies and decodes payment gateway webhooks.
//
// The gateway signs each delivery with a header of the form
//
//	t=<unix seconds>,v1=<hex HMAC-SHA256 of "<t>.<raw body>">
//
// and may include several v1 entries while secrets are being rotated.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidSignature covers missing, malformed, stale or mismatching
	// signatures.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMalformedEvent is returned when a verified body is not a valid event.
	ErrMalformedEvent = errors.New("malformed webhook event")
)

// EventCheckoutCompleted is the only event type that grants credits.
const EventCheckoutCompleted = "checkout.session.completed"

// Event is the subset of a gateway event the reconciler needs.
type Event struct {
	ID          string
	Type        string
	AmountCents int64
	Currency    string
	Email       string
	UserID      string
	SessionID   string
	Paid        bool
}

// Sign computes the signature header for body at ts. Used by tests and by
// operators replaying events.
func Sign(secret string, body []byte, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + t + ",v1=" + hex.EncodeToString(mac(secret, t, body))
}

// Verify checks header against body with a constant-time comparison and
// rejects timestamps outside tolerance (0 disables the age check).
func Verify(secret string, body []byte, header string, tolerance time.Duration, now time.Time) error {
	if secret == "" || header == "" {
		return ErrInvalidSignature
	}
	var (
		ts   string
		sigs [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			if b, err := hex.DecodeString(v); err == nil {
				sigs = append(sigs, b)
			}
		}
	}
	if ts == "" || len(sigs) == 0 {
		return ErrInvalidSignature
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(sec, 0))
		if age > tolerance || age < -tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
		}
	}

	want := mac(secret, ts, body)
	for _, s := range sigs {
		if hmac.Equal(s, want) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func mac(secret, ts string, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(ts))
	h.Write([]byte("."))
	h.Write(body)
	return h.Sum(nil)
}

type rawEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			AmountTotal       int64             `json:"amount_total"`
			Currency          string            `json:"currency"`
			CustomerEmail     string            `json:"customer_email"`
			ClientReferenceID string            `json:"client_reference_id"`
			PaymentStatus     string            `json:"payment_status"`
			Metadata          map[string]string `json:"metadata"`
			CustomerDetails   *struct {
				Email string `json:"email"`
			} `json:"customer_details"`
		} `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a verified webhook body.
func ParseEvent(body []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if raw.ID == "" || raw.Type == "" {
		return nil, fmt.Errorf("%w: id and type are required", ErrMalformedEvent)
	}
	obj := raw.Data.Object
	ev := &Event{
		ID:          raw.ID,
		Type:        raw.Type,
		AmountCents: obj.AmountTotal,
		Currency:    strings.ToLower(obj.Currency),
		Email:       obj.CustomerEmail,
		UserID:      obj.Metadata["user_id"],
		SessionID:   obj.Metadata["session_id"],
		Paid:        obj.PaymentStatus == "" || obj.PaymentStatus == "paid",
	}
	if ev.Email == "" && obj.CustomerDetails != nil {
		ev.Email = obj.CustomerDetails.Email
	}
	if ev.UserID == "" {
		ev.UserID = obj.ClientReferenceID
	}
	return ev, nil
}
