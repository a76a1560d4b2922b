package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/deemkeen/fedinbox/activitypub"
	"github.com/deemkeen/fedinbox/domain"
	"github.com/deemkeen/fedinbox/util"
)

type failingCounter struct{}

func (failingCounter) CountLocalAccounts(context.Context) (int, error) {
	return 0, errors.New("database is gone")
}

func (failingCounter) CountLocalStatuses(context.Context) (int, error) {
	return 0, errors.New("database is gone")
}

func TestGetNodeInfo20(t *testing.T) {
	env := setupWebEnv(t, testConf())
	alice := env.localAccount(t, "alice")
	env.localAccount(t, "bob")
	ctx := context.Background()
	if _, err := env.db.InsertStatus(ctx, &domain.Status{AccountId: alice.Id, URI: "https://" + testLocalDomain + "/users/alice/statuses/1", Text: "hi", Local: true, Visibility: domain.VisibilityPublic}, nil); err != nil {
		t.Fatalf("InsertStatus failed: %v", err)
	}

	nodeInfo := GetNodeInfo20(ctx, env.db, env.deps.Tags)

	if nodeInfo.Version != "2.0" {
		t.Errorf("Expected version to be '2.0', got: %s", nodeInfo.Version)
	}
	if nodeInfo.Software.Name != util.Name {
		t.Errorf("Expected software name %s, got: %s", util.Name, nodeInfo.Software.Name)
	}
	if nodeInfo.Software.Version == "" {
		t.Error("Software version should not be empty")
	}
	if len(nodeInfo.Protocols) != 1 || nodeInfo.Protocols[0] != "activitypub" {
		t.Errorf("Expected protocols [activitypub], got: %v", nodeInfo.Protocols)
	}
	if nodeInfo.Services.Inbound == nil || nodeInfo.Services.Outbound == nil {
		t.Error("Services should be empty lists, not nil")
	}
	// the instance actor is not counted
	if nodeInfo.Usage.Users.Total != 2 {
		t.Errorf("Expected 2 users, got: %d", nodeInfo.Usage.Users.Total)
	}
	if nodeInfo.Usage.LocalPosts != 1 {
		t.Errorf("Expected 1 local post, got: %d", nodeInfo.Usage.LocalPosts)
	}
	if nodeInfo.Metadata.NodeName != testLocalDomain {
		t.Errorf("Expected node name %s, got: %s", testLocalDomain, nodeInfo.Metadata.NodeName)
	}
}

func TestGetNodeInfo20CountFailures(t *testing.T) {
	tags := activitypub.NewTagManager(testConf(), nil)
	nodeInfo := GetNodeInfo20(context.Background(), failingCounter{}, tags)

	if nodeInfo.Usage.Users.Total != 0 || nodeInfo.Usage.LocalPosts != 0 {
		t.Errorf("Expected zero counts on failure, got %+v", nodeInfo.Usage)
	}
}

func TestGetWellKnownNodeInfo(t *testing.T) {
	wellKnown := GetWellKnownNodeInfo("example.com")

	if len(wellKnown.Links) != 1 {
		t.Fatalf("Expected 1 link, got: %d", len(wellKnown.Links))
	}
	link := wellKnown.Links[0]
	if link.Rel != nodeInfoSchema {
		t.Errorf("Expected rel %s, got: %s", nodeInfoSchema, link.Rel)
	}
	if link.Href != "https://example.com/nodeinfo/2.0" {
		t.Errorf("Expected href to nodeinfo 2.0, got: %s", link.Href)
	}
}

func TestNodeInfoRoutes(t *testing.T) {
	conf := testConf()
	conf.Conf.WebDomain = "web.example.com"
	env := setupWebEnv(t, conf)

	w := env.serve(httptest.NewRequest(http.MethodGet, "/.well-known/nodeinfo", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var wellKnown WellKnownNodeInfo
	if err := json.Unmarshal(w.Body.Bytes(), &wellKnown); err != nil {
		t.Fatalf("Failed to parse well-known JSON: %v", err)
	}
	if len(wellKnown.Links) != 1 || wellKnown.Links[0].Href != "https://web.example.com/nodeinfo/2.0" {
		t.Errorf("Expected a link on the web domain, got %+v", wellKnown.Links)
	}

	w = env.serve(httptest.NewRequest(http.MethodGet, "/nodeinfo/2.0", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "nodeinfo.diaspora.software/ns/schema/2.0") {
		t.Errorf("Expected the nodeinfo profile in Content-Type, got %s", ct)
	}
	var nodeInfo NodeInfo20
	if err := json.Unmarshal(w.Body.Bytes(), &nodeInfo); err != nil {
		t.Fatalf("Failed to parse NodeInfo JSON: %v", err)
	}
	if nodeInfo.Version != "2.0" {
		t.Errorf("Expected version 2.0, got %s", nodeInfo.Version)
	}
}

func TestMetricsRoute(t *testing.T) {
	env := setupWebEnv(t, testConf())

	w := env.serve(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("Expected the default Go collectors in the metrics output")
	}
}
