package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/deemkeen/fedinbox/domain"
)

const defaultMaxBody = 1 << 20

const acceptActivity = `application/ld+json; profile="https://www.w3.org/ns/activitystreams", application/activity+json`

// ErrBodyTooLarge is returned when a response exceeds the body ceiling
var ErrBodyTooLarge = errors.New("response body too large")

// UnexpectedResponseError is an HTTP status that says neither "here it is"
// nor "it is gone". Callers may retry.
type UnexpectedResponseError struct {
	URI        string
	StatusCode int
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response %d for %s", e.StatusCode, e.URI)
}

// IsConfirmedAbsent reports whether status means the resource is gone for
// good. Every 4xx qualifies except 401, 408 and 429, which a later request
// may get past.
func IsConfirmedAbsent(status int) bool {
	if status < 400 || status > 499 {
		return false
	}
	switch status {
	case http.StatusUnauthorized, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return true
}

// Fetcher performs single GETs of ActivityPub documents
type Fetcher struct {
	client    HTTPClient
	tags      *TagManager
	maxBody   int64
	timeout   time.Duration
	userAgent string
	log       *slog.Logger
}

func NewFetcher(client HTTPClient, tags *TagManager, maxBody int64, timeout time.Duration, userAgent string) *Fetcher {
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		client:    client,
		tags:      tags,
		maxBody:   maxBody,
		timeout:   timeout,
		userAgent: userAgent,
		log:       slog.Default().With("component", "dereferencer"),
	}
}

// Dereferencer resolves one URI and keeps the result for its lifetime
type Dereferencer struct {
	fetcher         *Fetcher
	uri             string
	permittedOrigin string
	signer          *domain.Account

	done bool
	doc  map[string]any
	err  error
}

// Dereferencer prepares a fetch of uri. permittedOrigin, when set, must
// share uri's host. signer, when set, signs the request.
func (f *Fetcher) Dereferencer(uri, permittedOrigin string, signer *domain.Account) *Dereferencer {
	return &Dereferencer{fetcher: f, uri: uri, permittedOrigin: permittedOrigin, signer: signer}
}

// Object returns the fetched document. A nil document with a nil error
// means the object does not exist or may not be used.
func (d *Dereferencer) Object(ctx context.Context) (map[string]any, error) {
	if !d.done {
		d.doc, d.err = d.fetch(ctx)
		d.done = true
	}
	return d.doc, d.err
}

func (d *Dereferencer) fetch(ctx context.Context) (map[string]any, error) {
	u, err := url.Parse(d.uri)
	if err != nil {
		return nil, nil
	}
	if u.Scheme == "bear" {
		target := u.Query().Get("u")
		token := u.Query().Get("t")
		if target == "" || token == "" {
			return nil, nil
		}
		return d.fetcher.get(ctx, target, func(req *http.Request) error {
			req.Header.Set("Authorization", "Bearer "+token)
			return nil
		})
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, nil
	}
	if d.permittedOrigin != "" && nonMatchingHosts(d.uri, d.permittedOrigin) {
		dereferences.WithLabelValues("origin_mismatch").Inc()
		d.fetcher.log.Info("refusing cross-origin fetch", "uri", d.uri, "origin", d.permittedOrigin)
		return nil, nil
	}
	return d.fetcher.get(ctx, d.uri, d.fetcher.signWith(d.signer))
}

func (f *Fetcher) signWith(signer *domain.Account) func(*http.Request) error {
	if signer == nil || signer.PrivateKeyPem == "" {
		return nil
	}
	return func(req *http.Request) error {
		key, err := ParsePrivateKey(signer.PrivateKeyPem)
		if err != nil {
			return err
		}
		return SignGetRequest(req, key, f.tags.KeyID(signer))
	}
}

// get fetches uri and validates that the document claims to be uri
func (f *Fetcher) get(ctx context.Context, uri string, prepare func(*http.Request) error) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, nil
	}
	req.Header.Set("Accept", acceptActivity)
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if prepare != nil {
		if err := prepare(req); err != nil {
			return nil, fmt.Errorf("failed to sign fetch: %w", err)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		dereferences.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		dereferences.WithLabelValues("empty").Inc()
		return nil, nil
	case IsConfirmedAbsent(resp.StatusCode):
		dereferences.WithLabelValues("absent").Inc()
		return nil, nil
	default:
		dereferences.WithLabelValues("unexpected").Inc()
		return nil, &UnexpectedResponseError{URI: uri, StatusCode: resp.StatusCode}
	}

	body, err := readLimited(resp.Body, f.maxBody)
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			dereferences.WithLabelValues("too_large").Inc()
			return nil, nil
		}
		dereferences.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
		dereferences.WithLabelValues("malformed").Inc()
		return nil, nil
	}
	if id, _ := doc["id"].(string); id != uri {
		dereferences.WithLabelValues("id_mismatch").Inc()
		f.log.Info("fetched document id mismatch", "uri", uri, "id", id)
		return nil, nil
	}
	dereferences.WithLabelValues("ok").Inc()
	return doc, nil
}
