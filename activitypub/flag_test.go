package activitypub

import (
	"context"
	"testing"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func TestFlagReportsLocalAccount(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.localAccount(t, "alice")
	bob := env.remoteAccount(t, "bob", testRemoteDomain)
	s := env.localStatus(t, alice, domain.VisibilityPublic)
	flagID := "https://remote.example.com/reports/1"

	env.perform(t, map[string]any{
		"id":      flagID,
		"type":    "Flag",
		"actor":   bob.URI,
		"content": "spam",
		"object":  []any{"https://local.example.com/users/alice", s.URI},
	}, bob, Options{})

	reports, err := env.db.ReportsAgainst(context.Background(), alice.Id)
	if err != nil {
		t.Fatalf("ReportsAgainst failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("Expected one report, got %d", len(reports))
	}
	r := reports[0]
	if r.AccountId != bob.Id || r.Comment != "spam" || r.URI != flagID {
		t.Errorf("Unexpected report %+v", r)
	}
	if diff := cmp.Diff([]uuid.UUID{s.Id}, r.StatusIds); diff != "" {
		t.Errorf("Reported statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestFlagGroupsStatusesUnderOneReport(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.localAccount(t, "alice")
	carol := env.localAccount(t, "carol")
	bob := env.remoteAccount(t, "bob", testRemoteDomain)
	first := env.localStatus(t, alice, domain.VisibilityPublic)
	second := env.localStatus(t, alice, domain.VisibilityPublic)
	other := env.localStatus(t, carol, domain.VisibilityPublic)

	env.perform(t, map[string]any{
		"id":     "https://remote.example.com/reports/2",
		"type":   "Flag",
		"actor":  bob.URI,
		"object": []any{first.URI, "https://local.example.com/users/alice", second.URI, other.URI},
	}, bob, Options{})

	reports, _ := env.db.ReportsAgainst(context.Background(), alice.Id)
	if len(reports) != 1 {
		t.Fatalf("Expected one report against alice, got %d", len(reports))
	}
	if diff := cmp.Diff([]uuid.UUID{first.Id, second.Id}, reports[0].StatusIds); diff != "" {
		t.Errorf("Reported statuses mismatch (-want +got):\n%s", diff)
	}

	reports, _ = env.db.ReportsAgainst(context.Background(), carol.Id)
	if len(reports) != 1 {
		t.Fatalf("Expected one report against carol, got %d", len(reports))
	}
	if diff := cmp.Diff([]uuid.UUID{other.Id}, reports[0].StatusIds); diff != "" {
		t.Errorf("Reported statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestFlagURIFromOtherHostDropped(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.localAccount(t, "alice")
	bob := env.remoteAccount(t, "bob", testRemoteDomain)

	env.perform(t, map[string]any{
		"id":     "https://elsewhere.example.com/reports/1",
		"type":   "Flag",
		"actor":  bob.URI,
		"object": "https://local.example.com/users/alice",
	}, bob, Options{})

	reports, _ := env.db.ReportsAgainst(context.Background(), alice.Id)
	if len(reports) != 1 || reports[0].URI != "" {
		t.Errorf("Expected one report without uri, got %+v", reports)
	}
}

func TestFlagSkipsSuspendedAndRemoteTargets(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.localAccount(t, "alice")
	if err := env.db.SetAccountFlags(context.Background(), alice.Id, false, true); err != nil {
		t.Fatalf("SetAccountFlags failed: %v", err)
	}
	bob := env.remoteAccount(t, "bob", testRemoteDomain)
	carol := env.remoteAccount(t, "carol", testRemoteDomain)

	env.perform(t, map[string]any{
		"id":     "https://remote.example.com/reports/1",
		"type":   "Flag",
		"actor":  bob.URI,
		"object": []any{"https://local.example.com/users/alice", carol.URI},
	}, bob, Options{})

	for _, a := range []*domain.Account{alice, carol} {
		if reports, _ := env.db.ReportsAgainst(context.Background(), a.Id); len(reports) != 0 {
			t.Errorf("Expected no report against %s, got %d", a.Username, len(reports))
		}
	}
}
