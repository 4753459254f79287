// Command sign builds and signs a message body for manual testing against a
// running relay. It prints a ready-to-POST /messages request body.
package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/aetos53t/ping/internal/crypto"
)

func main() {
	privKeyHex := flag.String("key", "", "Hex-encoded Ed25519 private key")
	from := flag.String("from", "", "Sender agent id")
	to := flag.String("to", "", "Recipient agent id")
	kind := flag.String("type", "text", "Message type")
	payload := flag.String("payload", "{}", "Payload JSON")
	replyTo := flag.String("reply-to", "", "Message id being replied to")
	flag.Parse()

	if *privKeyHex == "" || *from == "" || *to == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -key <private-key-hex> -from <agent-id> -to <agent-id> [-type text] [-payload '{}'] [-reply-to <message-id>]")
		os.Exit(1)
	}

	privKeyBytes, err := hex.DecodeString(*privKeyHex)
	if err != nil || len(privKeyBytes) != ed25519.PrivateKeySize {
		fmt.Fprintln(os.Stderr, "Invalid private key")
		os.Exit(1)
	}
	privKey := ed25519.PrivateKey(privKeyBytes)

	timestamp := time.Now().UnixMilli()

	canonical, err := crypto.CanonicalMessage(*kind, *from, *to, json.RawMessage(*payload), *replyTo, timestamp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build canonical message: %v\n", err)
		os.Exit(1)
	}

	signature := hex.EncodeToString(ed25519.Sign(privKey, canonical))

	body := map[string]any{
		"type":      *kind,
		"from":      *from,
		"to":        *to,
		"payload":   json.RawMessage(*payload),
		"timestamp": timestamp,
		"signature": signature,
	}
	if *replyTo != "" {
		body["replyTo"] = *replyTo
	}

	out, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode body: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
