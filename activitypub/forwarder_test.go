package activitypub

import (
	"context"
	"testing"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

var ldSignature = map[string]any{
	"type":           "RsaSignature2017",
	"creator":        "https://remote.example.com/users/bob#main-key",
	"signatureValue": "c2lnbmF0dXJl",
}

// forwardFixture gives alice a follower on bob's server and one elsewhere
func forwardFixture(t *testing.T, env *testEnv) (alice, bob *domain.Account) {
	t.Helper()
	alice = env.localAccount(t, "alice")
	bob = env.remoteAccount(t, "bob", testRemoteDomain)
	env.follow(t, env.remoteAccount(t, "carol", testRemoteDomain), alice)
	env.follow(t, env.remoteAccount(t, "dave", "other.example.com"), alice)
	return alice, bob
}

func TestForwardSignedReply(t *testing.T) {
	env := setupTestEnv(t)
	alice, bob := forwardFixture(t, env)
	parent := env.localStatus(t, alice, domain.VisibilityPublic)
	uri := "https://remote.example.com/notes/1"

	doc := createActivity(bob.URI, note(uri, bob.URI, map[string]any{"inReplyTo": parent.URI}))
	doc["signature"] = ldSignature
	env.perform(t, doc, bob, Options{Body: []byte(`{"original":"payload"}`)})

	items, _ := env.deliveries(t)
	if len(items) != 1 {
		t.Fatalf("Expected one forwarded delivery, got %d", len(items))
	}
	item := items[0]
	// carol shares bob's inbox and already has the reply
	if item.InboxURI != "https://other.example.com/inbox" {
		t.Errorf("Expected delivery to other.example.com, got %s", item.InboxURI)
	}
	if item.Priority != domain.PriorityLow {
		t.Errorf("Expected low priority, got %d", item.Priority)
	}
	if item.SignerAccountId != alice.Id {
		t.Errorf("Expected alice to sign the forward")
	}
	if item.ActivityJSON != `{"original":"payload"}` {
		t.Errorf("Expected the original payload, got %s", item.ActivityJSON)
	}
}

func TestForwardRequiresSignatureAndVisibility(t *testing.T) {
	tests := []struct {
		name   string
		signed bool
		extra  map[string]any
	}{
		{"unsigned", false, nil},
		{"direct", true, map[string]any{"to": []any{"https://local.example.com/users/alice"}, "cc": []any{}, "tag": []any{map[string]any{"type": "Mention", "href": "https://local.example.com/users/alice"}}}},
		{"followers only", true, map[string]any{"to": []any{"https://remote.example.com/users/bob/followers"}, "cc": []any{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)
			alice, bob := forwardFixture(t, env)
			parent := env.localStatus(t, alice, domain.VisibilityPublic)
			extra := map[string]any{"inReplyTo": parent.URI}
			for k, v := range tt.extra {
				extra[k] = v
			}
			doc := createActivity(bob.URI, note("https://remote.example.com/notes/1", bob.URI, extra))
			if tt.signed {
				doc["signature"] = ldSignature
			}

			env.perform(t, doc, bob, Options{})

			if n, _ := env.db.CountDeliveries(context.Background()); n != 0 {
				t.Errorf("Expected nothing forwarded, got %d", n)
			}
		})
	}
}

func TestForwardToRebloggerFollowers(t *testing.T) {
	env := setupTestEnv(t)
	alice, bob := forwardFixture(t, env)
	s := env.status(t, bob, "https://remote.example.com/notes/1", domain.VisibilityPublic)
	reblogOf := s.Id
	reblog := &domain.Status{Id: uuid.New(), AccountId: alice.Id, ReblogOfId: &reblogOf, Visibility: domain.VisibilityPublic, Local: true}
	reblog.URI = env.deps.Tags.StatusURI(reblog, alice) + "/activity"
	if _, err := env.db.InsertStatus(context.Background(), reblog, nil); err != nil {
		t.Fatalf("InsertStatus failed: %v", err)
	}

	if !env.deps.Forwarder.Forwardable(map[string]any{"signature": ldSignature}, s) {
		t.Fatal("Expected signed public status to be forwardable")
	}
	if err := env.deps.Forwarder.Forward(context.Background(), []byte(`{}`), s, bob); err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	items, _ := env.deliveries(t)
	var inboxes []string
	for _, item := range items {
		inboxes = append(inboxes, item.InboxURI)
		if item.SignerAccountId != alice.Id {
			t.Errorf("Expected reblogger to sign")
		}
	}
	if diff := cmp.Diff([]string{"https://other.example.com/inbox"}, inboxes); diff != "" {
		t.Errorf("Forwarded inboxes mismatch (-want +got):\n%s", diff)
	}
}

func TestForwardWithoutLocalInterestSkipped(t *testing.T) {
	env := setupTestEnv(t)
	bob := env.remoteAccount(t, "bob", testRemoteDomain)
	s := env.status(t, bob, "https://remote.example.com/notes/1", domain.VisibilityPublic)

	if err := env.deps.Forwarder.Forward(context.Background(), []byte(`{}`), s, bob); err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if n, _ := env.db.CountDeliveries(context.Background()); n != 0 {
		t.Errorf("Expected nothing forwarded, got %d", n)
	}
}

func TestForwardSignedDelete(t *testing.T) {
	env := setupTestEnv(t)
	alice, bob := forwardFixture(t, env)
	parent := env.localStatus(t, alice, domain.VisibilityPublic)
	uri := "https://remote.example.com/notes/1"
	env.perform(t, createActivity(bob.URI, note(uri, bob.URI, map[string]any{"inReplyTo": parent.URI})), bob, Options{})

	doc := deleteActivity(bob.URI, uri)
	doc["signature"] = ldSignature
	env.perform(t, doc, bob, Options{})

	if n, _ := env.db.CountDeliveries(context.Background()); n != 1 {
		t.Errorf("Expected the Delete to be forwarded once, got %d", n)
	}
	if s, _ := env.db.FindStatusByURI(context.Background(), uri); s != nil {
		t.Error("Expected status to be removed")
	}
}
