package models

import (
	"encoding/json"
)

// Kind is the closed set of message types agents can exchange.
type Kind string

const (
	KindText      Kind = "text"
	KindPing      Kind = "ping"
	KindPong      Kind = "pong"
	KindRequest   Kind = "request"
	KindResponse  Kind = "response"
	KindProposal  Kind = "proposal"
	KindSignature Kind = "signature"
	KindCustom    Kind = "custom"
)

// ParseKind validates a wire "type" value against the known kinds.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindText, KindPing, KindPong, KindRequest, KindResponse,
		KindProposal, KindSignature, KindCustom:
		return Kind(s), true
	}
	return "", false
}

// Message is one signed, directed communication between two agents.
// After creation only the Delivered and Acknowledged flags change,
// and both are monotonic (false to true only).
type Message struct {
	ID           string          `json:"id"` // ULID, encodes persist order
	Kind         Kind            `json:"type"`
	From         string          `json:"from"`
	To           string          `json:"to"`
	Payload      json.RawMessage `json:"payload"`
	ReplyTo      string          `json:"replyTo,omitempty"`
	Timestamp    int64           `json:"timestamp"` // Unix ms, sender-chosen, covered by the signature
	Signature    string          `json:"signature"`
	Delivered    bool            `json:"delivered"`
	Acknowledged bool            `json:"acknowledged"`
}
