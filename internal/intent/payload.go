package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ProtocolVersion is stamped into every payload.
const ProtocolVersion = "1.0.0"

// InteractionType is a closed set; it marshals as its name.
type InteractionType uint8

const (
	InteractionPayment InteractionType = iota + 1
	InteractionIdentityVerification
)

func (t InteractionType) String() string {
	switch t {
	case InteractionPayment:
		return "PaymentIntent"
	case InteractionIdentityVerification:
		return "IdentityVerification"
	default:
		return fmt.Sprintf("InteractionType(%d)", uint8(t))
	}
}

func (t InteractionType) MarshalText() ([]byte, error) {
	switch t {
	case InteractionPayment, InteractionIdentityVerification:
		return []byte(t.String()), nil
	default:
		return nil, fmt.Errorf("unknown interaction type %d", uint8(t))
	}
}

func (t *InteractionType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "PaymentIntent":
		*t = InteractionPayment
	case "IdentityVerification":
		*t = InteractionIdentityVerification
	default:
		return fmt.Errorf("unknown interaction type %q", string(b))
	}
	return nil
}

// Payload is the signed unit. Field order is the canonical serialization
// order and must not change.
type Payload struct {
	Version         string          `json:"version"`
	InteractionType InteractionType `json:"interaction_type"`
	Timestamp       uint64          `json:"timestamp"`
	UPI             ParsedIntent    `json:"upi_data"`
}

func NewPaymentPayload(parsed ParsedIntent, now time.Time) Payload {
	ts := now.Unix()
	if ts < 0 {
		ts = 0
	}
	return Payload{
		Version:         ProtocolVersion,
		InteractionType: InteractionPayment,
		Timestamp:       uint64(ts),
		UPI:             parsed,
	}
}

// CanonicalBytes is the exact byte string that is signed and hashed: compact
// JSON in field order, with &, < and > left unescaped.
func (p Payload) CanonicalBytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (p Payload) Time() time.Time {
	return time.Unix(int64(p.Timestamp), 0).UTC()
}
