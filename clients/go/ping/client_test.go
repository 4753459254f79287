package ping

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aetos53t/ping/internal/api"
	"github.com/aetos53t/ping/internal/delivery"
	"github.com/aetos53t/ping/internal/handlers"
	"github.com/aetos53t/ping/internal/relay"
	"github.com/aetos53t/ping/internal/store"
)

func newRelayServer(t *testing.T) *httptest.Server {
	t.Helper()
	db := store.NewMemoryStore()
	hub := delivery.NewHub()
	dispatcher := delivery.NewDispatcher(hub, delivery.NewWebhookClient(time.Second), db, zerolog.Nop())
	svc := relay.NewService(db, dispatcher, nil, zerolog.Nop())
	h := handlers.NewHandler(svc, hub, db, nil, zerolog.Nop())

	srv := httptest.NewServer(api.NewRouter(zerolog.Nop(), h))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRoundTrip(t *testing.T) {
	srv := newRelayServer(t)
	ctx := context.Background()

	alice := NewClient(srv.URL)
	if _, err := alice.Register(ctx, "alice", &RegisterOptions{IsPublic: true, Capabilities: []string{"chat"}}); err != nil {
		t.Fatal(err)
	}
	bob := NewClient(srv.URL)
	if _, err := bob.Register(ctx, "bob", nil); err != nil {
		t.Fatal(err)
	}

	result, err := alice.Text(ctx, bob.AgentID, "hello bob")
	if err != nil {
		t.Fatal(err)
	}
	if result.DeliveryMethod != "polling" {
		t.Fatalf("expected polling for an offline recipient, got %q", result.DeliveryMethod)
	}

	inbox, err := bob.Inbox(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(inbox) != 1 || inbox[0].From != alice.AgentID {
		t.Fatalf("inbox = %+v", inbox)
	}
	if !strings.Contains(string(inbox[0].Payload), "hello bob") {
		t.Fatalf("payload = %s", inbox[0].Payload)
	}

	if err := bob.Ack(ctx, inbox[0].ID); err != nil {
		t.Fatal(err)
	}
	inbox, err = bob.Inbox(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(inbox) != 0 {
		t.Fatalf("acked inbox should be empty, got %d", len(inbox))
	}

	history, err := bob.History(ctx, alice.AgentID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("history = %+v", history)
	}
}

func TestClientSignsStructPayloads(t *testing.T) {
	srv := newRelayServer(t)
	ctx := context.Background()

	alice := NewClient(srv.URL)
	if _, err := alice.Register(ctx, "alice", nil); err != nil {
		t.Fatal(err)
	}
	bob := NewClient(srv.URL)
	if _, err := bob.Register(ctx, "bob", nil); err != nil {
		t.Fatal(err)
	}

	// Struct fields encode in declaration order, not key order; the signed
	// form must survive the relay's re-canonicalization anyway.
	type task struct {
		Zone  string `json:"zone"`
		Batch int64  `json:"batch"`
		Mode  string `json:"mode"`
	}
	result, err := alice.Request(ctx, bob.AgentID, "run", task{Zone: "eu-1", Batch: 1 << 40, Mode: "dry"})
	if err != nil {
		t.Fatalf("struct-payload request rejected: %v", err)
	}
	if result.ID == "" {
		t.Fatal("expected a stored message id")
	}

	inbox, err := bob.Inbox(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(inbox) != 1 {
		t.Fatalf("inbox = %+v", inbox)
	}
	var decoded struct {
		Action string `json:"action"`
		Data   task   `json:"data"`
	}
	if err := json.Unmarshal(inbox[0].Payload, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Action != "run" || decoded.Data.Zone != "eu-1" || decoded.Data.Batch != 1<<40 {
		t.Fatalf("payload mangled in transit: %s", inbox[0].Payload)
	}
}

func TestClientKeyReuse(t *testing.T) {
	srv := newRelayServer(t)
	ctx := context.Background()

	first := NewClient(srv.URL)
	priv, pub, err := first.GenerateKeys()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.Register(ctx, "first", nil); err != nil {
		t.Fatal(err)
	}

	// A fresh client restored from the same private key derives the same
	// public key and still signs messages the relay accepts.
	restored := NewClient(srv.URL)
	if err := restored.SetKeys(priv); err != nil {
		t.Fatal(err)
	}
	if restored.PublicKey() != pub {
		t.Fatalf("derived key %q, want %q", restored.PublicKey(), pub)
	}
	restored.AgentID = first.AgentID

	other := NewClient(srv.URL)
	if _, err := other.Register(ctx, "other", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := restored.Ping(ctx, other.AgentID); err != nil {
		t.Fatal(err)
	}

	// The same key cannot register twice.
	dup := NewClient(srv.URL)
	if err := dup.SetKeys(priv); err != nil {
		t.Fatal(err)
	}
	if _, err := dup.Register(ctx, "dup", nil); err == nil {
		t.Fatal("expected a conflict error")
	}
}

func TestClientDirectoryAndContacts(t *testing.T) {
	srv := newRelayServer(t)
	ctx := context.Background()

	alice := NewClient(srv.URL)
	if _, err := alice.Register(ctx, "alice", &RegisterOptions{IsPublic: true, Provider: "acme", Capabilities: []string{"chat"}}); err != nil {
		t.Fatal(err)
	}
	bob := NewClient(srv.URL)
	if _, err := bob.Register(ctx, "bob", nil); err != nil {
		t.Fatal(err)
	}

	entries, err := bob.Directory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "alice" {
		t.Fatalf("directory = %+v", entries)
	}

	found, err := bob.Search(ctx, &SearchOptions{Capability: "chat", Provider: "acme"})
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 {
		t.Fatalf("search = %+v", found)
	}

	if err := bob.AddContact(ctx, alice.AgentID, "al", ""); err != nil {
		t.Fatal(err)
	}
	contacts, err := bob.Contacts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(contacts) != 1 || contacts[0].Agent == nil || contacts[0].Agent.Name != "alice" {
		t.Fatalf("contacts = %+v", contacts)
	}
	if err := bob.RemoveContact(ctx, alice.AgentID); err != nil {
		t.Fatal(err)
	}
}
