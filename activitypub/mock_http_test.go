package activitypub

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/deemkeen/fedinbox/db"
	"github.com/deemkeen/fedinbox/domain"
	"github.com/deemkeen/fedinbox/markers"
	"github.com/deemkeen/fedinbox/util"
	"github.com/google/uuid"
)

const (
	testLocalDomain  = "local.example.com"
	testRemoteDomain = "remote.example.com"
)

type mockResponse struct {
	status int
	body   []byte
}

// MockHTTPClient answers requests from canned responses and records them.
// Unknown URLs get a 404.
type MockHTTPClient struct {
	mu        sync.Mutex
	responses map[string]mockResponse
	Requests  []*http.Request
	Bodies    [][]byte
	Err       error
}

func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{responses: make(map[string]mockResponse)}
}

func (m *MockHTTPClient) SetResponse(url string, status int, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[url] = mockResponse{status: status, body: body}
}

// SetJSON serves doc with status 200
func (m *MockHTTPClient) SetJSON(t *testing.T, url string, doc map[string]any) {
	t.Helper()
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Failed to marshal response for %s: %v", url, err)
	}
	m.SetResponse(url, http.StatusOK, b)
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
	}
	m.Requests = append(m.Requests, req)
	m.Bodies = append(m.Bodies, body)
	if m.Err != nil {
		return nil, m.Err
	}

	r, ok := m.responses[req.URL.String()]
	if !ok {
		r = mockResponse{status: http.StatusNotFound}
	}
	return &http.Response{
		StatusCode: r.status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(r.body)),
		Request:    req,
	}, nil
}

func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

func testConf() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.LocalDomain = testLocalDomain
	conf.Conf.MaxBodyBytes = 1 << 20
	conf.Conf.FetchTimeoutSeconds = 5
	conf.Conf.DeliveryWorkers = 2
	return conf
}

type testEnv struct {
	db   *db.DB
	http *MockHTTPClient
	deps *Deps
}

// setupTestEnv wires the services over an in-memory database, a mock
// transport and an in-memory marker store
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	client := NewMockHTTPClient()
	deps := NewDeps(testConf(), database, client, markers.NewMemoryStore(1000))
	return &testEnv{db: database, http: client, deps: deps}
}

func (e *testEnv) localAccount(t *testing.T, username string) *domain.Account {
	t.Helper()
	keys, err := util.GeneratePemKeypair(util.KeyBits)
	if err != nil {
		t.Fatalf("Failed to generate keypair: %v", err)
	}
	a := &domain.Account{Username: username, PublicKeyPem: keys.Public, PrivateKeyPem: keys.Private}
	if err := e.db.InsertAccount(context.Background(), a); err != nil {
		t.Fatalf("InsertAccount(%s) failed: %v", username, err)
	}
	return a
}

func (e *testEnv) remoteAccount(t *testing.T, username, domainName string) *domain.Account {
	t.Helper()
	base := "https://" + domainName + "/users/" + username
	a, err := e.db.UpsertRemoteAccount(context.Background(), &domain.Account{
		Username:       username,
		Domain:         domainName,
		URI:            base,
		InboxURI:       base + "/inbox",
		SharedInboxURI: "https://" + domainName + "/inbox",
		FollowersURI:   base + "/followers",
		FeaturedURI:    base + "/collections/featured",
	})
	if err != nil {
		t.Fatalf("UpsertRemoteAccount(%s) failed: %v", username, err)
	}
	return a
}

func (e *testEnv) follow(t *testing.T, follower, target *domain.Account) *domain.Follow {
	t.Helper()
	f, err := e.db.CreateFollow(context.Background(), follower.Id, target.Id, "https://"+testRemoteDomain+"/follows/"+follower.Username)
	if err != nil {
		t.Fatalf("CreateFollow failed: %v", err)
	}
	return f
}

func (e *testEnv) status(t *testing.T, author *domain.Account, uri string, visibility domain.Visibility) *domain.Status {
	t.Helper()
	s := &domain.Status{AccountId: author.Id, URI: uri, Text: "hello", Visibility: visibility, Local: author.IsLocal()}
	created, err := e.db.InsertStatus(context.Background(), s, nil)
	if err != nil {
		t.Fatalf("InsertStatus(%s) failed: %v", uri, err)
	}
	if !created {
		t.Fatalf("Expected status %s to be created", uri)
	}
	return s
}

// localStatus stores a status written here under its canonical URI
func (e *testEnv) localStatus(t *testing.T, author *domain.Account, visibility domain.Visibility) *domain.Status {
	t.Helper()
	s := &domain.Status{Id: uuid.New(), AccountId: author.Id, Text: "local post", Visibility: visibility, Local: true}
	s.URI = e.deps.Tags.StatusURI(s, author)
	if _, err := e.db.InsertStatus(context.Background(), s, nil); err != nil {
		t.Fatalf("InsertStatus failed: %v", err)
	}
	return s
}

// perform dispatches doc as delivered by account
func (e *testEnv) perform(t *testing.T, doc map[string]any, account *domain.Account, opts Options) {
	t.Helper()
	handler := NewActivity(doc, account, opts, e.deps)
	if handler == nil {
		t.Fatalf("No handler for %v", doc["type"])
	}
	if err := handler.Perform(context.Background()); err != nil {
		t.Fatalf("%v failed: %v", doc["type"], err)
	}
}

func note(id, actor string, extra map[string]any) map[string]any {
	n := map[string]any{
		"id":           id,
		"type":         "Note",
		"attributedTo": actor,
		"content":      "<p>hello</p>",
		"published":    "2024-01-02T03:04:05Z",
		"to":           []any{PublicCollection},
		"cc":           []any{actor + "/followers"},
	}
	for k, v := range extra {
		n[k] = v
	}
	return n
}

// deliveries returns the queued deliveries with their decoded payloads
func (e *testEnv) deliveries(t *testing.T) ([]domain.DeliveryQueueItem, []map[string]any) {
	t.Helper()
	items, err := e.db.ReadPendingDeliveries(context.Background(), 100)
	if err != nil {
		t.Fatalf("ReadPendingDeliveries failed: %v", err)
	}
	docs := make([]map[string]any, len(items))
	for i, item := range items {
		if err := json.Unmarshal([]byte(item.ActivityJSON), &docs[i]); err != nil {
			t.Fatalf("Queued activity is not JSON: %v", err)
		}
	}
	return items, docs
}

func (e *testEnv) notifications(t *testing.T, account *domain.Account) []domain.Notification {
	t.Helper()
	n, err := e.db.Notifications(context.Background(), account.Id, 50)
	if err != nil {
		t.Fatalf("Notifications failed: %v", err)
	}
	return n
}

func actorDoc(uri, username string, extra map[string]any) map[string]any {
	doc := map[string]any{
		"@context":          []any{ActivityStreamsContext, SecurityContext},
		"id":                uri,
		"type":              "Person",
		"preferredUsername": username,
		"inbox":             uri + "/inbox",
		"outbox":            uri + "/outbox",
		"followers":         uri + "/followers",
		"featured":          uri + "/collections/featured",
	}
	for k, v := range extra {
		doc[k] = v
	}
	return doc
}
