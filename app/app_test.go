package app

import (
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/deemkeen/fedinbox/db"
	"github.com/deemkeen/fedinbox/markers"
	"github.com/deemkeen/fedinbox/util"
)

func testConf(backend string) *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.Host = "127.0.0.1"
	conf.Conf.LocalDomain = "local.example.com"
	conf.Conf.DatabasePath = ":memory:"
	conf.Conf.MarkerBackend = backend
	conf.Conf.MaxBodyBytes = 1 << 20
	return conf
}

func TestNewRequiresLocalDomain(t *testing.T) {
	conf := testConf("memory")
	conf.Conf.LocalDomain = ""
	if _, err := New(conf); err == nil {
		t.Error("Expected an error without a local domain")
	}
}

func TestNewMarkerStore(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	tests := []struct {
		backend string
		check   func(markers.Store) bool
		wantErr bool
	}{
		{backend: "", check: func(s markers.Store) bool { _, ok := s.(*db.MarkerStore); return ok }},
		{backend: "sqlite", check: func(s markers.Store) bool { _, ok := s.(*db.MarkerStore); return ok }},
		{backend: "memory", check: func(s markers.Store) bool { _, ok := s.(*markers.MemoryStore); return ok }},
		{backend: "redis", wantErr: true},
		{backend: "etcd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			store, err := newMarkerStore(testConf(tt.backend), database)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected an error for backend %q", tt.backend)
				}
				return
			}
			if err != nil {
				t.Fatalf("newMarkerStore failed: %v", err)
			}
			if !tt.check(store) {
				t.Errorf("Unexpected store type %T for backend %q", store, tt.backend)
			}
		})
	}
}

func TestOpenCreatesInstanceActor(t *testing.T) {
	a, err := New(testConf("memory"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()
	if err := a.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer a.Close()

	actor, err := a.Deps().Tags.InstanceActor(ctx)
	if err != nil {
		t.Fatalf("InstanceActor failed: %v", err)
	}
	if actor == nil || actor.PrivateKeyPem == "" {
		t.Fatal("Expected an instance actor with a private key")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestStartServesUntilCancelled(t *testing.T) {
	conf := testConf("sqlite")
	conf.Conf.HttpPort = freePort(t)
	a, err := New(conf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()

	url := "http://" + a.httpServer.Addr + "/actor"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Server did not come up: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for the instance actor, got %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "activity+json") {
		t.Errorf("Expected an activity+json response, got %s", resp.Header.Get("Content-Type"))
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected a clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}
