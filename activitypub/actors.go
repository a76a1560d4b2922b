package activitypub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deemkeen/fedinbox/domain"
)

// actorRefreshInterval is how long a fetched actor is trusted
const actorRefreshInterval = 24 * time.Hour

// ActorFetcher resolves remote actors and their keys, keeping the stored
// copies fresh
type ActorFetcher struct {
	fetcher  *Fetcher
	database Database
	log      *slog.Logger
	now      func() time.Time
}

func NewActorFetcher(fetcher *Fetcher, database Database) *ActorFetcher {
	return &ActorFetcher{
		fetcher:  fetcher,
		database: database,
		log:      slog.Default().With("component", "actors"),
		now:      time.Now,
	}
}

// Resolve returns the account behind uri, fetching it when it is unknown
func (f *ActorFetcher) Resolve(ctx context.Context, uri string) (*domain.Account, error) {
	account, err := f.fetcher.tags.AccountFromURI(ctx, uri)
	if err != nil || account != nil {
		return account, err
	}
	if f.fetcher.tags.IsLocalURI(uri) {
		return nil, nil
	}
	return f.FetchActor(ctx, stripFragment(uri), false)
}

// FetchActor returns the remote actor at uri. A stored copy younger than a
// day is returned as is unless force is set. A stale copy is kept when the
// refresh fails.
func (f *ActorFetcher) FetchActor(ctx context.Context, uri string, force bool) (*domain.Account, error) {
	existing, err := f.database.FindAccountByURI(ctx, uri)
	if err != nil {
		return nil, err
	}
	if existing != nil && !force && f.now().Sub(existing.LastFetchedAt) < actorRefreshInterval {
		return existing, nil
	}

	doc, err := f.fetchDocument(ctx, uri)
	if err != nil || doc == nil {
		if existing != nil {
			if err != nil {
				f.log.Warn("actor refresh failed, keeping stored copy", "uri", uri, "err", err)
			}
			return existing, nil
		}
		return nil, err
	}
	if !equalsOrIncludesAny(doc["type"], actorTypes) {
		return existing, nil
	}
	return f.Store(ctx, doc)
}

// FetchKey resolves the owner of a key id. Keys published as their own
// document point at their owner.
func (f *ActorFetcher) FetchKey(ctx context.Context, keyID string) (*domain.Account, error) {
	uri := stripFragment(keyID)
	if existing, err := f.database.FindAccountByURI(ctx, uri); err != nil || existing != nil {
		return existing, err
	}

	doc, err := f.fetchDocument(ctx, uri)
	if err != nil || doc == nil {
		return nil, err
	}
	if equalsOrIncludesAny(doc["type"], actorTypes) {
		return f.Store(ctx, doc)
	}

	owner := stringField(doc, "owner")
	if owner == "" {
		return nil, nil
	}
	account, err := f.FetchActor(ctx, owner, true)
	if err != nil || account == nil {
		return nil, err
	}
	if pem := stringField(doc, "publicKeyPem"); pem != "" && pem != account.PublicKeyPem {
		f.log.Info("key document does not match its owner", "key", keyID, "owner", owner)
		return nil, nil
	}
	return account, nil
}

func (f *ActorFetcher) fetchDocument(ctx context.Context, uri string) (map[string]any, error) {
	signer, err := f.fetcher.tags.InstanceActor(ctx)
	if err != nil {
		return nil, err
	}
	return f.fetcher.Dereferencer(uri, "", signer).Object(ctx)
}

// Store upserts the account described by an actor document
func (f *ActorFetcher) Store(ctx context.Context, doc map[string]any) (*domain.Account, error) {
	account, err := accountFromActor(doc)
	if err != nil {
		return nil, err
	}
	if f.fetcher.tags.IsLocalDomain(account.Domain) {
		return nil, fmt.Errorf("refusing to store local actor %s", account.URI)
	}
	account.LastFetchedAt = f.now()
	return f.database.UpsertRemoteAccount(ctx, account)
}

// accountFromActor maps an actor document onto an account
func accountFromActor(doc map[string]any) (*domain.Account, error) {
	id := stringField(doc, "id")
	host := uriHost(id)
	if id == "" || host == "" {
		return nil, fmt.Errorf("actor without id")
	}
	inbox := stringField(doc, "inbox")
	if inbox == "" {
		return nil, fmt.Errorf("actor %s has no inbox", id)
	}

	a := &domain.Account{
		Username:     stringField(doc, "preferredUsername"),
		Domain:       host,
		URI:          id,
		URL:          valueOrID(doc["url"]),
		DisplayName:  stringField(doc, "name"),
		Summary:      stringField(doc, "summary"),
		ActorType:    domain.ActorType(valueOrID(doc["type"])),
		InboxURI:     inbox,
		OutboxURI:    stringField(doc, "outbox"),
		FollowersURI: valueOrID(doc["followers"]),
		FeaturedURI:  valueOrID(doc["featured"]),
		AlsoKnownAs:  uriList(doc["alsoKnownAs"]),
	}
	if a.Username == "" {
		return nil, fmt.Errorf("actor %s has no preferredUsername", id)
	}
	if endpoints := asObject(doc["endpoints"]); endpoints != nil {
		a.SharedInboxURI = stringField(endpoints, "sharedInbox")
	}
	if locked, ok := doc["manuallyApprovesFollowers"].(bool); ok {
		a.Locked = locked
	}
	for _, key := range asArray(doc["publicKey"]) {
		if k := asObject(key); k != nil && stringField(k, "publicKeyPem") != "" {
			a.PublicKeyPem = stringField(k, "publicKeyPem")
			break
		}
	}
	return a, nil
}
