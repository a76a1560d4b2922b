package activitypub

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/puzpuzpuz/xsync/v3"
)

func TestCaserString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"in_reply_to", "inReplyTo"},
		{"manually_approves_followers", "manuallyApprovesFollowers"},
		{"sharedInbox", "sharedInbox"},
		{"HTMLParser", "htmlParser"},
		{"also-known-as", "alsoKnownAs"},
		{"_:b0_node", "_:b0Node"},
		{"_private", "Private"},
		{"_:", "_:"},
		{"https://example.com/some_path", "https://example.com/some_path"},
		{"http://example.com/Some_Path", "http://example.com/Some_Path"},
		{"@context", "@context"},
	}
	c := NewCaser(nil)
	for _, tt := range tests {
		if got := c.String(tt.in); got != tt.want {
			t.Errorf("String(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestCaserMemoizes(t *testing.T) {
	cache := xsync.NewMapOf[string, string]()
	c := NewCaser(cache)
	c.String("to_be_cached")

	got, ok := cache.Load("to_be_cached")
	if !ok || got != "toBeCached" {
		t.Errorf("Expected cached value toBeCached, got %q (present=%v)", got, ok)
	}
	c.String("https://example.com/x_y")
	if _, ok := cache.Load("https://example.com/x_y"); ok {
		t.Error("URLs should not be cached")
	}
}

func TestCamelLowerTransformsKeysOnly(t *testing.T) {
	in := map[string]any{
		"type":        "Accept",
		"in_reply_to": "some_value",
		"object": map[string]any{
			"target_account": "https://remote.example.com/users/bob",
		},
		"tag": []any{map[string]any{"media_type": "image_png"}},
	}
	want := map[string]any{
		"type":      "Accept",
		"inReplyTo": "some_value",
		"object": map[string]any{
			"targetAccount": "https://remote.example.com/users/bob",
		},
		"tag": []any{map[string]any{"mediaType": "image_png"}},
	}
	if diff := cmp.Diff(want, CamelLower(in)); diff != "" {
		t.Errorf("CamelLower mismatch (-want +got):\n%s", diff)
	}
}

func TestCamelLowerTopLevelStrings(t *testing.T) {
	if got := CamelLower("snake_case"); got != "snakeCase" {
		t.Errorf("Expected snakeCase, got %v", got)
	}
	got := CamelLower([]any{"one_two", "https://a.example/b_c", 3.0})
	want := []any{"oneTwo", "https://a.example/b_c", 3.0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CamelLower list mismatch (-want +got):\n%s", diff)
	}
}
