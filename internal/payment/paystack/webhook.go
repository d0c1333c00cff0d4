package paystack

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"strings"
)

const (
	SignatureHeader    = "x-paystack-signature"
	EventChargeSuccess = "charge.success"
)

// Signature computes the hex HMAC-SHA512 of payload keyed with secret
func Signature(payload []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares header against the signature of the raw payload in constant time
func VerifySignature(payload []byte, header, secret string) bool {
	if header == "" || secret == "" {
		return false
	}
	expected := Signature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(header))))
}

// Event is a webhook delivery
type Event struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

type EventData struct {
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Status    string          `json:"status"`
	Metadata  json.RawMessage `json:"metadata"`
}

type eventMetadata struct {
	OrderID       string `json:"order_id"`
	LegacyOrderID string `json:"orderId"`
}

// OrderID returns the order id carried in metadata, or "" when absent.
// The gateway sends metadata as an empty string when none was attached.
func (d EventData) OrderID() string {
	raw := bytes.TrimSpace(d.Metadata)
	if len(raw) == 0 || raw[0] != '{' {
		return ""
	}
	var m eventMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	if m.OrderID != "" {
		return m.OrderID
	}
	return m.LegacyOrderID
}

// ParseEvent decodes a webhook payload
func ParseEvent(raw []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
