package activitypub

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/piprate/json-gold/ld"
)

//go:embed contexts/*.jsonld
var embeddedContexts embed.FS

var preloadedContexts = map[string]string{
	SecurityContext: "contexts/security-v1.jsonld",
	IdentityContext: "contexts/identity-v1.jsonld",
}

const (
	contextCacheSize = 64
	contextCacheTTL  = 24 * time.Hour
	contextTimeout   = 10 * time.Second
)

// ContextLoader resolves JSON-LD contexts for canonicalization. The
// signature contexts are compiled in, anything else is fetched once and
// cached.
type ContextLoader struct {
	client  HTTPClient
	cache   *expirable.LRU[string, any]
	maxBody int64
}

func NewContextLoader(client HTTPClient, maxBody int64) *ContextLoader {
	return &ContextLoader{
		client:  client,
		cache:   expirable.NewLRU[string, any](contextCacheSize, nil, contextCacheTTL),
		maxBody: maxBody,
	}
}

// LoadDocument implements ld.DocumentLoader
func (l *ContextLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	if path, ok := preloadedContexts[u]; ok {
		raw, err := embeddedContexts.ReadFile(path)
		if err != nil {
			return nil, err
		}
		doc, err := ld.DocumentFromReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		return &ld.RemoteDocument{DocumentURL: u, Document: doc}, nil
	}

	if doc, ok := l.cache.Get(u); ok {
		return &ld.RemoteDocument{DocumentURL: u, Document: doc}, nil
	}

	doc, err := l.fetch(u)
	if err != nil {
		return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, err)
	}
	l.cache.Add(u, doc)
	return &ld.RemoteDocument{DocumentURL: u, Document: doc}, nil
}

func (l *ContextLoader) fetch(u string) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), contextTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/ld+json, application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("context fetch %s returned %d", u, resp.StatusCode)
	}
	body, err := readLimited(resp.Body, l.maxBody)
	if err != nil {
		return nil, err
	}
	return ld.DocumentFromReader(bytes.NewReader(body))
}

// readLimited reads r fully, failing with ErrBodyTooLarge past limit bytes
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = defaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}
