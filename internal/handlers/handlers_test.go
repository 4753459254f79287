package handlers_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/aetos53t/ping/internal/api"
	"github.com/aetos53t/ping/internal/crypto"
	"github.com/aetos53t/ping/internal/delivery"
	"github.com/aetos53t/ping/internal/handlers"
	"github.com/aetos53t/ping/internal/relay"
	"github.com/aetos53t/ping/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv, _ := newTestServerWithHub(t)
	return srv
}

func newTestServerWithHub(t *testing.T) (*httptest.Server, *delivery.Hub) {
	t.Helper()
	db := store.NewMemoryStore()
	hub := delivery.NewHub()
	dispatcher := delivery.NewDispatcher(hub, delivery.NewWebhookClient(time.Second), db, zerolog.Nop())
	svc := relay.NewService(db, dispatcher, nil, zerolog.Nop())
	h := handlers.NewHandler(svc, hub, db, nil, zerolog.Nop())

	srv := httptest.NewServer(api.NewRouter(zerolog.Nop(), h))
	t.Cleanup(srv.Close)
	return srv, hub
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		decoded = nil
	}
	return resp, decoded
}

func doJSONList(t *testing.T, url string) (*http.Response, []map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var decoded []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("expected a JSON array: %v", err)
	}
	return resp, decoded
}

type apiAgent struct {
	id   string
	priv ed25519.PrivateKey
}

func registerAgent(t *testing.T, srv *httptest.Server, body map[string]any) apiAgent {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	body["publicKey"] = hex.EncodeToString(pub)

	resp, decoded := doJSON(t, http.MethodPost, srv.URL+"/agents", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register = %d, body %v", resp.StatusCode, decoded)
	}
	return apiAgent{id: decoded["id"].(string), priv: priv}
}

func signedBody(t *testing.T, from apiAgent, to, kind string, payload map[string]any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	timestamp := time.Now().UnixMilli()
	canonical, err := crypto.CanonicalMessage(kind, from.id, to, raw, "", timestamp)
	if err != nil {
		t.Fatal(err)
	}
	return map[string]any{
		"type":      kind,
		"from":      from.id,
		"to":        to,
		"payload":   payload,
		"timestamp": timestamp,
		"signature": hex.EncodeToString(ed25519.Sign(from.priv, canonical)),
	}
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing public key", map[string]any{"name": "x"}, http.StatusBadRequest},
		{"missing name", map[string]any{"publicKey": strings.Repeat("ab", 32)}, http.StatusBadRequest},
		{"malformed key", map[string]any{"publicKey": "zz", "name": "x"}, http.StatusBadRequest},
		{"ok", map[string]any{"publicKey": strings.Repeat("ab", 32), "name": "x"}, http.StatusCreated},
		{"duplicate key", map[string]any{"publicKey": strings.Repeat("AB", 32), "name": "y"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, decoded := doJSON(t, http.MethodPost, srv.URL+"/agents", tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d (%v)", resp.StatusCode, tt.want, decoded)
			}
			if tt.want == http.StatusConflict {
				if _, ok := decoded["existingId"]; !ok {
					t.Fatalf("conflict body must carry existingId: %v", decoded)
				}
			}
		})
	}
}

func TestAgentCRUD(t *testing.T) {
	srv := newTestServer(t)
	a := registerAgent(t, srv, map[string]any{"name": "alpha", "provider": "acme"})

	resp, decoded := doJSON(t, http.MethodGet, srv.URL+"/agents/"+a.id, nil)
	if resp.StatusCode != http.StatusOK || decoded["name"] != "alpha" {
		t.Fatalf("get = %d %v", resp.StatusCode, decoded)
	}

	resp, decoded = doJSON(t, http.MethodPatch, srv.URL+"/agents/"+a.id, map[string]any{"name": "beta", "isPublic": true})
	if resp.StatusCode != http.StatusOK || decoded["name"] != "beta" || decoded["isPublic"] != true {
		t.Fatalf("patch = %d %v", resp.StatusCode, decoded)
	}
	if decoded["provider"] != "acme" {
		t.Fatal("patch must not clear unset fields")
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/agents/"+a.id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/agents/"+a.id, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete = %d", resp.StatusCode)
	}
}

func TestSendMessageValidation(t *testing.T) {
	srv := newTestServer(t)
	a := registerAgent(t, srv, map[string]any{"name": "a"})
	b := registerAgent(t, srv, map[string]any{"name": "b"})

	valid := signedBody(t, a, b.id, "text", map[string]any{"text": "hi"})

	tests := []struct {
		name   string
		mutate func(m map[string]any)
		want   int
	}{
		{"missing type", func(m map[string]any) { delete(m, "type") }, http.StatusBadRequest},
		{"missing signature", func(m map[string]any) { delete(m, "signature") }, http.StatusBadRequest},
		{"unknown type", func(m map[string]any) { m["type"] = "smoke-signal" }, http.StatusBadRequest},
		{"unknown sender", func(m map[string]any) { m["from"] = "ghost" }, http.StatusNotFound},
		{"unknown recipient", func(m map[string]any) { m["to"] = "ghost" }, http.StatusNotFound},
		{"tampered payload", func(m map[string]any) { m["payload"] = map[string]any{"text": "bye"} }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := make(map[string]any, len(valid))
			for k, v := range valid {
				body[k] = v
			}
			tt.mutate(body)
			resp, decoded := doJSON(t, http.MethodPost, srv.URL+"/messages", body)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d (%v)", resp.StatusCode, tt.want, decoded)
			}
		})
	}

	// The untouched body still goes through.
	resp, decoded := doJSON(t, http.MethodPost, srv.URL+"/messages", valid)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send = %d %v", resp.StatusCode, decoded)
	}
	if decoded["deliveryMethod"] != "polling" || decoded["delivered"] != false {
		t.Fatalf("offline recipient should be polling: %v", decoded)
	}
}

func TestMessageLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	a := registerAgent(t, srv, map[string]any{"name": "a"})
	b := registerAgent(t, srv, map[string]any{"name": "b"})

	resp, sent := doJSON(t, http.MethodPost, srv.URL+"/messages", signedBody(t, a, b.id, "text", map[string]any{"text": "hi"}))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send = %d %v", resp.StatusCode, sent)
	}
	msgID := sent["id"].(string)

	resp, inbox := doJSONList(t, srv.URL+"/agents/"+b.id+"/inbox")
	if resp.StatusCode != http.StatusOK || len(inbox) != 1 {
		t.Fatalf("inbox = %d %v", resp.StatusCode, inbox)
	}
	if inbox[0]["delivered"] != true {
		t.Fatal("inbox fetch must mark delivered")
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/messages/"+msgID+"/ack", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ack = %d", resp.StatusCode)
	}

	_, inbox = doJSONList(t, srv.URL+"/agents/"+b.id+"/inbox")
	if len(inbox) != 0 {
		t.Fatalf("acked message must leave the default inbox: %v", inbox)
	}
	_, inbox = doJSONList(t, srv.URL+"/agents/"+b.id+"/inbox?all=true")
	if len(inbox) != 1 || inbox[0]["acknowledged"] != true {
		t.Fatalf("full inbox must keep the acked message: %v", inbox)
	}

	_, conv := doJSONList(t, srv.URL+"/agents/"+a.id+"/messages/"+b.id)
	if len(conv) != 1 || conv[0]["id"] != msgID {
		t.Fatalf("conversation = %v", conv)
	}
}

func TestDirectoryEndpoints(t *testing.T) {
	srv := newTestServer(t)
	registerAgent(t, srv, map[string]any{"name": "Chat Helper", "isPublic": true, "capabilities": []string{"chat"}})
	registerAgent(t, srv, map[string]any{"name": "Hidden"})

	resp, entries := doJSONList(t, srv.URL+"/directory")
	if resp.StatusCode != http.StatusOK || len(entries) != 1 {
		t.Fatalf("directory = %d %v", resp.StatusCode, entries)
	}
	if _, ok := entries[0]["publicKey"]; ok {
		t.Fatal("directory must not expose public keys")
	}

	_, entries = doJSONList(t, srv.URL+"/directory/search?capability=chat")
	if len(entries) != 1 {
		t.Fatalf("search by capability = %v", entries)
	}
	_, entries = doJSONList(t, srv.URL+"/directory/search?capability=chat&q=translator")
	if len(entries) != 0 {
		t.Fatalf("conjunctive search = %v", entries)
	}
}

func TestContactEndpoints(t *testing.T) {
	srv := newTestServer(t)
	a := registerAgent(t, srv, map[string]any{"name": "a"})
	b := registerAgent(t, srv, map[string]any{"name": "b"})

	resp, created := doJSON(t, http.MethodPost, srv.URL+"/agents/"+a.id+"/contacts", map[string]any{"contactId": b.id, "alias": "bob"})
	if resp.StatusCode != http.StatusCreated || created["alias"] != "bob" {
		t.Fatalf("add contact = %d %v", resp.StatusCode, created)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/agents/"+a.id+"/contacts", map[string]any{"contactId": b.id})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate contact = %d", resp.StatusCode)
	}

	_, list := doJSONList(t, srv.URL+"/agents/"+a.id+"/contacts")
	if len(list) != 1 {
		t.Fatalf("contacts = %v", list)
	}
	if list[0]["contact"] == nil {
		t.Fatal("contact view must embed the directory entry")
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/agents/"+a.id+"/contacts/"+b.id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove contact = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/agents/"+a.id+"/contacts/"+b.id, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second remove = %d", resp.StatusCode)
	}
}

func TestPushChannelDelivery(t *testing.T) {
	srv, hub := newTestServerWithHub(t)
	a := registerAgent(t, srv, map[string]any{"name": "a"})
	b := registerAgent(t, srv, map[string]any{"name": "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?agent=" + b.id
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The handler registers the sink just after the handshake.
	deadline := time.Now().Add(2 * time.Second)
	for !hub.Connected(b.id) {
		if time.Now().After(deadline) {
			t.Fatal("push channel never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, sent := doJSON(t, http.MethodPost, srv.URL+"/messages", signedBody(t, a, b.id, "text", map[string]any{"text": "hi"}))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send = %d %v", resp.StatusCode, sent)
	}
	if sent["deliveryMethod"] != "push" || sent["delivered"] != true {
		t.Fatalf("expected push delivery, got %v", sent)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var frame struct {
		Type string `json:"type"`
		Data struct {
			ID   string `json:"id"`
			From string `json:"from"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != "message" || frame.Data.From != a.id {
		t.Fatalf("unexpected frame: %s", data)
	}
}

func TestPushChannelRejectsUnknownAgent(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/ws?agent=ghost")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown agent = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing agent param = %d", resp.StatusCode)
	}
}

func TestWebhookFallbackDelivery(t *testing.T) {
	received := make(chan []byte, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		buf.ReadFrom(r.Body)
		received <- buf.Bytes()
	}))
	defer hook.Close()

	srv := newTestServer(t)
	a := registerAgent(t, srv, map[string]any{"name": "a"})
	b := registerAgent(t, srv, map[string]any{"name": "b", "webhookUrl": hook.URL})

	resp, sent := doJSON(t, http.MethodPost, srv.URL+"/messages", signedBody(t, a, b.id, "text", map[string]any{"text": "hi"}))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send = %d %v", resp.StatusCode, sent)
	}
	if sent["deliveryMethod"] != "webhook" || sent["delivered"] != true {
		t.Fatalf("expected webhook delivery, got %v", sent)
	}

	select {
	case frame := <-received:
		if !bytes.Contains(frame, []byte(`"type":"message"`)) {
			t.Fatalf("unexpected webhook frame: %s", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never received the frame")
	}
}

func TestHealthAndRoot(t *testing.T) {
	srv := newTestServer(t)

	resp, decoded := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK || decoded["status"] != "healthy" {
		t.Fatalf("health = %d %v", resp.StatusCode, decoded)
	}

	resp, decoded = doJSON(t, http.MethodGet, srv.URL+"/", nil)
	if resp.StatusCode != http.StatusOK || decoded["name"] != "PING" {
		t.Fatalf("root = %d %v", resp.StatusCode, decoded)
	}
}

func TestBodyLimits(t *testing.T) {
	srv := newTestServer(t)

	big := map[string]any{"name": strings.Repeat("x", 70*1024), "publicKey": strings.Repeat("ab", 32)}
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/agents", big)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/agents", strings.NewReader("name=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("non-JSON content type = %d", resp2.StatusCode)
	}
}
