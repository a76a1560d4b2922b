package activitypub

import (
	"net/url"
	"slices"
	"strings"
)

const (
	ActivityStreamsContext = "https://www.w3.org/ns/activitystreams"
	SecurityContext        = "https://w3id.org/security/v1"
	IdentityContext        = "https://w3id.org/identity/v1"
	PublicCollection       = "https://www.w3.org/ns/activitystreams#Public"

	ContentTypeActivity = "application/activity+json"
	ContentTypeLD       = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`
)

var publicCollectionAliases = []string{PublicCollection, "as:Public", "Public"}

// Note and Question map onto statuses directly, the rest are flattened
var (
	supportedObjectTypes = []string{"Note", "Question"}
	convertedObjectTypes = []string{"Image", "Audio", "Video", "Article", "Page", "Event"}
	actorTypes           = []string{"Application", "Group", "Organization", "Person", "Service"}
)

// IsPublicCollection reports whether uri names the public audience
func IsPublicCollection(uri string) bool {
	return slices.Contains(publicCollectionAliases, uri)
}

// valueOrID returns a string value as is, or the id of an embedded object.
// Lists yield their first element.
func valueOrID(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		id, _ := t["id"].(string)
		return id
	case []any:
		if len(t) > 0 {
			return valueOrID(t[0])
		}
	}
	return ""
}

// asArray wraps a single value into a list
func asArray(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

// uriList returns the ids of every entry of a to/cc style field
func uriList(v any) []string {
	var uris []string
	for _, item := range asArray(v) {
		if id := valueOrID(item); id != "" {
			uris = append(uris, id)
		}
	}
	return uris
}

func asObject(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// equalsOrIncludes reports whether v is s or a list containing s
func equalsOrIncludes(v any, s string) bool {
	for _, item := range asArray(v) {
		if str, ok := item.(string); ok && str == s {
			return true
		}
	}
	return false
}

func equalsOrIncludesAny(v any, values []string) bool {
	for _, s := range values {
		if equalsOrIncludes(v, s) {
			return true
		}
	}
	return false
}

// objectType returns the type of an embedded object, empty for references
func objectType(v any) string {
	m := asObject(v)
	if m == nil {
		return ""
	}
	return valueOrID(m["type"])
}

func isSupportedType(v any) bool {
	m := asObject(v)
	return m != nil && equalsOrIncludesAny(m["type"], supportedObjectTypes)
}

func isConvertedType(v any) bool {
	m := asObject(v)
	return m != nil && equalsOrIncludesAny(m["type"], convertedObjectTypes)
}

// unsupportedObjectType is true for bare references and types that cannot
// become a status
func unsupportedObjectType(v any) bool {
	return !isSupportedType(v) && !isConvertedType(v)
}

// uriHost returns the lowercase host of uri. Bearcap URIs yield the host of
// their embedded target.
func uriHost(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	if u.Scheme == "bear" {
		target := u.Query().Get("u")
		if target == "" {
			return ""
		}
		return uriHost(target)
	}
	return strings.ToLower(u.Hostname())
}

// nonMatchingHosts is true unless both uris are present and share a host
func nonMatchingHosts(a, b string) bool {
	ha, hb := uriHost(a), uriHost(b)
	return ha == "" || hb == "" || ha != hb
}

func stripFragment(uri string) string {
	if i := strings.IndexByte(uri, '#'); i >= 0 {
		return uri[:i]
	}
	return uri
}
