package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
)

func generateTestKeypair(t *testing.T) (ed25519.PrivateKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return priv, hex.EncodeToString(pub)
}

func TestNormalizePublicKey(t *testing.T) {
	_, pubHex := generateTestKeypair(t)

	normalized, err := NormalizePublicKey(strings.ToUpper(pubHex))
	if err != nil {
		t.Fatal(err)
	}
	if normalized != pubHex {
		t.Fatalf("expected %q, got %q", pubHex, normalized)
	}
}

func TestNormalizePublicKeyRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"not hex", strings.Repeat("zz", 32)},
		{"too short", "abcd"},
		{"too long", strings.Repeat("ab", 33)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NormalizePublicKey(tc.key); err == nil {
				t.Fatalf("expected error for %q", tc.key)
			}
		})
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	priv, pubHex := generateTestKeypair(t)

	msg := []byte(`{"from":"a","to":"b"}`)
	sig := hex.EncodeToString(ed25519.Sign(priv, msg))

	if !Verify(msg, sig, pubHex) {
		t.Fatal("expected valid signature to verify")
	}
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	priv, pubHex := generateTestKeypair(t)

	msg := []byte(`{"from":"a","to":"b"}`)
	sig := hex.EncodeToString(ed25519.Sign(priv, msg))

	tampered := []byte(`{"from":"a","to":"c"}`)
	if Verify(tampered, sig, pubHex) {
		t.Fatal("tampered message must not verify")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	priv, _ := generateTestKeypair(t)
	_, otherPub := generateTestKeypair(t)

	msg := []byte("hello")
	sig := hex.EncodeToString(ed25519.Sign(priv, msg))

	if Verify(msg, sig, otherPub) {
		t.Fatal("signature must not verify against another key")
	}
}

func TestVerifyToleratesMalformedInputs(t *testing.T) {
	_, pubHex := generateTestKeypair(t)
	msg := []byte("hello")

	cases := []struct {
		name     string
		sig, pub string
	}{
		{"empty signature", "", pubHex},
		{"short signature", "abcd", pubHex},
		{"non-hex signature", strings.Repeat("zz", 64), pubHex},
		{"empty key", strings.Repeat("ab", 64), ""},
		{"short key", strings.Repeat("ab", 64), "abcd"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if Verify(msg, tc.sig, tc.pub) {
				t.Fatal("malformed input must fail verification, not crash")
			}
		})
	}
}

func TestCanonicalMessageDeterministic(t *testing.T) {
	payload := json.RawMessage(`{"b":2,"a":{"y":1,"x":[1,2,3]}}`)

	first, err := CanonicalMessage("text", "a1", "a2", payload, "", 1700000000000)
	if err != nil {
		t.Fatal(err)
	}
	// Same content with differently ordered payload keys must canonicalize
	// to identical bytes.
	reordered := json.RawMessage(`{"a":{"x":[1,2,3],"y":1},"b":2}`)
	second, err := CanonicalMessage("text", "a1", "a2", reordered, "", 1700000000000)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Fatalf("canonical forms differ:\n%s\n%s", first, second)
	}
}

func TestCanonicalMessageMatchesClientSigning(t *testing.T) {
	// A client signs json.Marshal of a map; the server must reproduce those
	// bytes from the decoded request fields.
	payload := map[string]any{"text": "hi", "n": 42}
	clientSide, err := json.Marshal(map[string]any{
		"type":      "text",
		"from":      "agent-a",
		"to":        "agent-b",
		"payload":   payload,
		"timestamp": int64(1700000000000),
	})
	if err != nil {
		t.Fatal(err)
	}

	rawPayload, _ := json.Marshal(payload)
	serverSide, err := CanonicalMessage("text", "agent-a", "agent-b", rawPayload, "", 1700000000000)
	if err != nil {
		t.Fatal(err)
	}

	if string(clientSide) != string(serverSide) {
		t.Fatalf("canonical mismatch:\nclient: %s\nserver: %s", clientSide, serverSide)
	}
}

func TestCanonicalMessageOmitsEmptyReplyTo(t *testing.T) {
	with, err := CanonicalMessage("text", "a", "b", nil, "m1", 1)
	if err != nil {
		t.Fatal(err)
	}
	without, err := CanonicalMessage("text", "a", "b", nil, "", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(with), `"replyTo":"m1"`) {
		t.Fatalf("expected replyTo in %s", with)
	}
	if strings.Contains(string(without), "replyTo") {
		t.Fatalf("did not expect replyTo in %s", without)
	}
}

func TestCanonicalMessageRejectsInvalidPayload(t *testing.T) {
	if _, err := CanonicalMessage("text", "a", "b", json.RawMessage(`{not json`), "", 1); err == nil {
		t.Fatal("expected error for invalid payload JSON")
	}
}
