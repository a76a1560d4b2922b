package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/deemkeen/fedinbox/activitypub"
	"github.com/deemkeen/fedinbox/db"
	"github.com/deemkeen/fedinbox/domain"
	"github.com/deemkeen/fedinbox/markers"
	"github.com/deemkeen/fedinbox/util"
	"github.com/gin-gonic/gin"
)

const (
	testLocalDomain  = "local.example.com"
	testRemoteDomain = "remote.example.com"
)

// mockHTTPClient serves canned JSON documents; everything else is a 404
type mockHTTPClient struct {
	mu        sync.Mutex
	responses map[string][]byte
	requests  []string
}

func newMockHTTPClient() *mockHTTPClient {
	return &mockHTTPClient{responses: make(map[string][]byte)}
}

func (m *mockHTTPClient) setJSON(t *testing.T, url string, doc map[string]any) {
	t.Helper()
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Failed to marshal response: %v", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[url] = b
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req.URL.String())

	status := http.StatusOK
	body, ok := m.responses[req.URL.String()]
	if !ok {
		status = http.StatusNotFound
	}
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(body)),
		Request:    req,
	}, nil
}

func (m *mockHTTPClient) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type remoteActor struct {
	*domain.Account
	privateKeyPem string
}

type webEnv struct {
	conf   *util.AppConfig
	db     *db.DB
	http   *mockHTTPClient
	deps   *activitypub.Deps
	router *gin.Engine
}

func testConf() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.LocalDomain = testLocalDomain
	conf.Conf.MaxBodyBytes = 1 << 20
	conf.Conf.FetchTimeoutSeconds = 5
	return conf
}

func setupWebEnv(t *testing.T, conf *util.AppConfig) *webEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	client := newMockHTTPClient()
	deps := activitypub.NewDeps(conf, database, client, markers.NewMemoryStore(100))
	if _, err := activitypub.EnsureInstanceActor(context.Background(), deps); err != nil {
		t.Fatalf("EnsureInstanceActor failed: %v", err)
	}
	router := NewRouter(conf, deps, activitypub.NewProcessor(deps), database)
	return &webEnv{conf: conf, db: database, http: client, deps: deps, router: router}
}

func (e *webEnv) localAccount(t *testing.T, username string) *domain.Account {
	t.Helper()
	a, err := activitypub.CreateLocalAccount(context.Background(), e.deps, username, false)
	if err != nil {
		t.Fatalf("CreateLocalAccount(%s) failed: %v", username, err)
	}
	return a
}

func (e *webEnv) remoteActor(t *testing.T, username string) *remoteActor {
	t.Helper()
	keys, err := util.GeneratePemKeypair(util.KeyBits)
	if err != nil {
		t.Fatalf("Failed to generate keypair: %v", err)
	}
	base := "https://" + testRemoteDomain + "/users/" + username
	a, err := e.db.UpsertRemoteAccount(context.Background(), &domain.Account{
		Username:      username,
		Domain:        testRemoteDomain,
		URI:           base,
		InboxURI:      base + "/inbox",
		FollowersURI:  base + "/followers",
		PublicKeyPem:  keys.Public,
		LastFetchedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("UpsertRemoteAccount(%s) failed: %v", username, err)
	}
	return &remoteActor{Account: a, privateKeyPem: keys.Private}
}

// signedRequest builds a request to the local host signed with the key of
// signer. A nil body makes a signed GET.
func signedRequest(t *testing.T, method, path string, body []byte, signer *remoteActor) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, "https://"+testLocalDomain+path, bytes.NewReader(body))
	req.Header.Set("Host", testLocalDomain)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Content-Type", "application/activity+json")

	key, err := activitypub.ParsePrivateKey(signer.privateKeyPem)
	if err != nil {
		t.Fatalf("ParsePrivateKey failed: %v", err)
	}
	keyID := signer.URI + "#main-key"
	if method == http.MethodGet {
		err = activitypub.SignGetRequest(req, key, keyID)
	} else {
		err = activitypub.SignRequest(req, key, keyID, body)
	}
	if err != nil {
		t.Fatalf("Signing failed: %v", err)
	}
	return req
}

func (e *webEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to parse JSON response %q: %v", w.Body.String(), err)
	}
	return doc
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	return b
}
