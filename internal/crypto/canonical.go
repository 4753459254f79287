package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CanonicalMessage builds the deterministic byte form a message signature
// covers: compact JSON of {from, payload, replyTo, timestamp, to, type} with
// object keys sorted at every nesting level and replyTo omitted when empty.
// The server-assigned id and the delivery flags do not exist at signing time
// and are deliberately not covered.
func CanonicalMessage(kind, from, to string, payload json.RawMessage, replyTo string, timestamp int64) ([]byte, error) {
	var decoded any
	if len(payload) > 0 {
		// UseNumber keeps integer literals intact through the re-encode.
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err != nil {
			return nil, fmt.Errorf("payload is not valid JSON: %w", err)
		}
	}

	canonical := map[string]any{
		"type":      kind,
		"from":      from,
		"to":        to,
		"payload":   decoded,
		"timestamp": timestamp,
	}
	if replyTo != "" {
		canonical["replyTo"] = replyTo
	}

	// encoding/json sorts map keys recursively, which makes this a stable
	// canonical encoding for any payload shape.
	return json.Marshal(canonical)
}
