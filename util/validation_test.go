package util

import (
	"strings"
	"testing"
)

func TestIsValidWebFingerUsername(t *testing.T) {
	tests := []struct {
		username string
		valid    bool
		errMsg   string
	}{
		{"alice", true, ""},
		{"alice.bob_123", true, ""},
		{"test!$&'()*+,;=123", true, ""},
		{"", false, "at least 1 character"},
		{strings.Repeat("a", 31), false, "at most 30"},
		{"älice", false, "invalid characters"},
		{"alice bob", false, "invalid characters"},
		{"alice\n", false, "invalid characters"},
		{"alice@bob", false, "invalid characters"},
		{"alice/bob", false, "invalid characters"},
	}

	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			valid, errMsg := IsValidWebFingerUsername(tt.username)

			if valid != tt.valid {
				t.Errorf("Expected valid=%v, got %v for username '%s'", tt.valid, valid, tt.username)
			}
			if !tt.valid && !strings.Contains(strings.ToLower(errMsg), strings.ToLower(tt.errMsg)) {
				t.Errorf("Expected error containing '%s', got '%s'", tt.errMsg, errMsg)
			}
		})
	}
}

func TestIsReservedUsername(t *testing.T) {
	if !IsReservedUsername("Actor", "example.com") {
		t.Error("Expected 'Actor' to be reserved")
	}
	if !IsReservedUsername("example.com", "example.com") {
		t.Error("Expected the local domain to be reserved")
	}
	if IsReservedUsername("alice", "example.com") {
		t.Error("Expected 'alice' not to be reserved")
	}
}
