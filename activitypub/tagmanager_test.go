package activitypub

import (
	"context"
	"strings"
	"testing"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func TestTagManagerURIs(t *testing.T) {
	env := setupTestEnv(t)
	tags := env.deps.Tags
	alice := &domain.Account{Username: "alice"}
	instance := &domain.Account{Username: testLocalDomain}
	bob := &domain.Account{Username: "bob", Domain: testRemoteDomain, URI: "https://remote.example.com/users/bob", InboxURI: "https://remote.example.com/users/bob/inbox"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"local actor", tags.AccountURI(alice), "https://local.example.com/users/alice"},
		{"instance actor", tags.AccountURI(instance), "https://local.example.com/actor"},
		{"remote actor", tags.AccountURI(bob), "https://remote.example.com/users/bob"},
		{"key id", tags.KeyID(alice), "https://local.example.com/users/alice#main-key"},
		{"local inbox", tags.InboxURI(alice), "https://local.example.com/users/alice/inbox"},
		{"remote inbox", tags.InboxURI(bob), "https://remote.example.com/users/bob/inbox"},
		{"shared inbox", tags.SharedInboxURI(), "https://local.example.com/inbox"},
		{"followers", tags.FollowersURI(alice), "https://local.example.com/users/alice/followers"},
		{"featured", tags.FeaturedURI(alice), "https://local.example.com/users/alice/collections/featured"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, tt.got)
		}
	}

	if !strings.HasPrefix(tags.FollowURI(alice), "https://local.example.com/users/alice#follows/") {
		t.Errorf("Unexpected follow uri %s", tags.FollowURI(alice))
	}
	if !tags.IsInstanceActor(instance) || tags.IsInstanceActor(alice) {
		t.Error("Expected only the domain-named local account to be the instance actor")
	}
}

func TestTagManagerIsLocalURI(t *testing.T) {
	conf := testConf()
	conf.Conf.WebDomain = "social.local.example.com"
	conf.Conf.AlternateDomains = []string{"old.example.com"}
	tags := NewTagManager(conf, nil)

	for _, uri := range []string{
		"https://local.example.com/users/alice",
		"https://social.local.example.com/users/alice",
		"https://OLD.example.com/users/alice",
	} {
		if !tags.IsLocalURI(uri) {
			t.Errorf("Expected %s to be local", uri)
		}
	}
	if tags.IsLocalURI("https://remote.example.com/users/bob") {
		t.Error("Expected remote uri not to be local")
	}
	if got := tags.AccountURI(&domain.Account{Username: "alice"}); got != "https://social.local.example.com/users/alice" {
		t.Errorf("Expected local URIs under the web domain, got %s", got)
	}
}

func TestTagManagerAccountFromURI(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	alice := env.localAccount(t, "alice")
	bob := env.remoteAccount(t, "bob", testRemoteDomain)

	tests := []struct {
		uri  string
		want *uuid.UUID
	}{
		{"https://local.example.com/users/alice", &alice.Id},
		{"https://local.example.com/users/ALICE#main-key", &alice.Id},
		{"https://local.example.com/@alice", &alice.Id},
		{"https://local.example.com/users/nobody", nil},
		{"https://local.example.com/tags/alice", nil},
		{"https://remote.example.com/users/bob#main-key", &bob.Id},
		{"https://remote.example.com/users/carol", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got, err := env.deps.Tags.AccountFromURI(ctx, tt.uri)
		if err != nil {
			t.Fatalf("AccountFromURI(%s) failed: %v", tt.uri, err)
		}
		switch {
		case tt.want == nil && got != nil:
			t.Errorf("AccountFromURI(%s): expected nothing, got %s", tt.uri, got.Username)
		case tt.want != nil && (got == nil || got.Id != *tt.want):
			t.Errorf("AccountFromURI(%s): expected %s, got %+v", tt.uri, *tt.want, got)
		}
	}
}

func TestTagManagerStatusFromURI(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	alice := env.localAccount(t, "alice")
	env.localAccount(t, "mallory")
	bob := env.remoteAccount(t, "bob", testRemoteDomain)
	local := env.localStatus(t, alice, domain.VisibilityPublic)
	remote := env.status(t, bob, remoteNote, domain.VisibilityPublic)

	tests := []struct {
		name string
		uri  string
		want *uuid.UUID
	}{
		{"canonical", "https://local.example.com/users/alice/statuses/" + local.Id.String(), &local.Id},
		{"short", "https://local.example.com/@alice/" + local.Id.String(), &local.Id},
		{"wrong author", "https://local.example.com/users/mallory/statuses/" + local.Id.String(), nil},
		{"legacy tag", "tag:local.example.com,2017-04-07:objectId=" + local.Id.String() + ":objectType=Status", &local.Id},
		{"legacy tag other type", "tag:local.example.com,2017-04-07:objectId=" + local.Id.String() + ":objectType=Conversation", nil},
		{"remote", remoteNote, &remote.Id},
		{"remote with fragment", remoteNote + "#activity", &remote.Id},
		{"unknown", "https://remote.example.com/notes/404", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.deps.Tags.StatusFromURI(ctx, tt.uri)
			if err != nil {
				t.Fatalf("StatusFromURI failed: %v", err)
			}
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("Expected nothing, got %s", got.URI)
			case tt.want != nil && (got == nil || got.Id != *tt.want):
				t.Errorf("Expected %s, got %+v", *tt.want, got)
			}
		})
	}
}

// audienceFixture has alice write a status mentioning x and y, where x
// follows alice and y does not
func audienceFixture(t *testing.T, env *testEnv, visibility domain.Visibility, silenced bool) (*domain.Account, *domain.Status, *domain.Account, *domain.Account) {
	t.Helper()
	ctx := context.Background()
	alice := &domain.Account{Username: "alice", PublicKeyPem: "public", PrivateKeyPem: "private", Silenced: silenced}
	if err := env.db.InsertAccount(ctx, alice); err != nil {
		t.Fatalf("InsertAccount failed: %v", err)
	}
	x := env.remoteAccount(t, "x", testRemoteDomain)
	y := env.remoteAccount(t, "y", "other.example.com")
	env.follow(t, x, alice)

	s := &domain.Status{Id: uuid.New(), AccountId: alice.Id, Visibility: visibility, Local: true}
	s.URI = env.deps.Tags.StatusURI(s, alice)
	mentions := []domain.Mention{{AccountId: x.Id}, {AccountId: y.Id}}
	if _, err := env.db.InsertStatus(ctx, s, mentions); err != nil {
		t.Fatalf("InsertStatus failed: %v", err)
	}
	return alice, s, x, y
}

func TestAudiencePublicStatus(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	alice, s, _, _ := audienceFixture(t, env, domain.VisibilityPublic, false)

	to, err := env.deps.Tags.To(ctx, s, alice)
	if err != nil {
		t.Fatalf("To failed: %v", err)
	}
	cc, err := env.deps.Tags.Cc(ctx, s, alice)
	if err != nil {
		t.Fatalf("Cc failed: %v", err)
	}
	if diff := cmp.Diff([]string{PublicCollection}, to); diff != "" {
		t.Errorf("to mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"https://local.example.com/users/alice/followers"}, cc); diff != "" {
		t.Errorf("cc mismatch (-want +got):\n%s", diff)
	}
}

func TestAudienceDirectStatusSilencedAuthor(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	alice, s, x, y := audienceFixture(t, env, domain.VisibilityDirect, true)

	// a pending requester that is not mentioned stays out
	requester := env.remoteAccount(t, "z", "third.example.com")
	if _, err := env.db.CreateFollowRequest(ctx, requester.Id, alice.Id, "https://third.example.com/follows/1"); err != nil {
		t.Fatalf("CreateFollowRequest failed: %v", err)
	}

	to, err := env.deps.Tags.To(ctx, s, alice)
	if err != nil {
		t.Fatalf("To failed: %v", err)
	}
	if diff := cmp.Diff([]string{x.URI}, to); diff != "" {
		t.Errorf("to mismatch (-want +got):\n%s", diff)
	}

	// once y asks to follow it may be addressed as well
	if _, err := env.db.CreateFollowRequest(ctx, y.Id, alice.Id, "https://other.example.com/follows/1"); err != nil {
		t.Fatalf("CreateFollowRequest failed: %v", err)
	}
	to, err = env.deps.Tags.To(ctx, s, alice)
	if err != nil {
		t.Fatalf("To failed: %v", err)
	}
	if len(to) != 2 {
		t.Errorf("Expected the pending requester to be addressed too, got %v", to)
	}
}

func TestAudienceDirectStatusUnsilencedAuthor(t *testing.T) {
	env := setupTestEnv(t)
	alice, s, x, y := audienceFixture(t, env, domain.VisibilityDirect, false)

	to, err := env.deps.Tags.To(context.Background(), s, alice)
	if err != nil {
		t.Fatalf("To failed: %v", err)
	}
	if len(to) != 2 || !contains(to, x.URI) || !contains(to, y.URI) {
		t.Errorf("Expected both mentions addressed, got %v", to)
	}
}

func TestAudiencePrivateStatusSilencedAuthor(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	alice, s, x, _ := audienceFixture(t, env, domain.VisibilityPrivate, true)

	to, err := env.deps.Tags.To(ctx, s, alice)
	if err != nil {
		t.Fatalf("To failed: %v", err)
	}
	if diff := cmp.Diff([]string{"https://local.example.com/users/alice/followers"}, to); diff != "" {
		t.Errorf("to mismatch (-want +got):\n%s", diff)
	}
	cc, err := env.deps.Tags.Cc(ctx, s, alice)
	if err != nil {
		t.Fatalf("Cc failed: %v", err)
	}
	if diff := cmp.Diff([]string{x.URI}, cc); diff != "" {
		t.Errorf("cc mismatch (-want +got):\n%s", diff)
	}
}

func TestAudienceUnlistedAndReblog(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	alice := env.localAccount(t, "alice")
	bob := env.remoteAccount(t, "bob", testRemoteDomain)
	original := env.status(t, bob, remoteNote, domain.VisibilityPublic)

	reblog := &domain.Status{Id: uuid.New(), AccountId: alice.Id, ReblogOfId: &original.Id, Visibility: domain.VisibilityUnlisted, Local: true}
	cc, err := env.deps.Tags.Cc(ctx, reblog, alice)
	if err != nil {
		t.Fatalf("Cc failed: %v", err)
	}
	if diff := cmp.Diff([]string{bob.URI, PublicCollection}, cc); diff != "" {
		t.Errorf("cc mismatch (-want +got):\n%s", diff)
	}
	to, _ := env.deps.Tags.To(ctx, reblog, alice)
	if diff := cmp.Diff([]string{"https://local.example.com/users/alice/followers"}, to); diff != "" {
		t.Errorf("to mismatch (-want +got):\n%s", diff)
	}
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
