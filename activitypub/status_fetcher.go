package activitypub

import (
	"context"

	"github.com/deemkeen/fedinbox/domain"
)

// StatusFetcher loads a remote status by URI and stores it like a fetched
// Create
type StatusFetcher struct {
	deps *Deps
}

// Fetch returns the status at uri, signing the fetch as signer when given
func (f *StatusFetcher) Fetch(ctx context.Context, uri string, signer *domain.Account, opts Options) (*domain.Status, error) {
	if opts.Depth > MaxDepth {
		return nil, nil
	}
	if f.deps.Tags.IsLocalURI(uri) {
		return f.deps.Tags.StatusFromURI(ctx, uri)
	}

	doc, err := f.deps.Fetcher.Dereferencer(uri, uri, signer).Object(ctx)
	if err != nil || doc == nil {
		return nil, err
	}

	var activityJSON map[string]any
	var actorURI string
	switch {
	case Kind(objectType(doc)) == KindCreate:
		object := asObject(doc["object"])
		if object == nil || unsupportedObjectType(object) {
			return nil, nil
		}
		activityJSON = doc
		actorURI = valueOrID(doc["actor"])
	case !unsupportedObjectType(doc):
		actorURI = valueOrID(doc["attributedTo"])
		activityJSON = map[string]any{
			"type":   string(KindCreate),
			"actor":  actorURI,
			"object": doc,
		}
	default:
		return nil, nil
	}

	if actorURI == "" || nonMatchingHosts(stringField(doc, "id"), actorURI) {
		return nil, nil
	}
	actor, err := f.deps.Actors.Resolve(ctx, actorURI)
	if err != nil || actor == nil {
		return nil, err
	}

	create := &Create{activity: newActivity(activityJSON, actor, Options{
		RequestID: opts.RequestID,
		Depth:     opts.Depth,
	}, f.deps)}
	return create.perform(ctx)
}
