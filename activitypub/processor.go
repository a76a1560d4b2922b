package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/deemkeen/fedinbox/domain"
)

// ErrMalformedActivity is returned for an inbox body that is not a JSON
// object
var ErrMalformedActivity = errors.New("malformed activity")

// activitiesAllowedWhileSuspended may still arrive from a suspended actor
var activitiesAllowedWhileSuspended = []Kind{KindDelete, KindReject, KindUndo, KindUpdate}

// Processor is the entry point for verified inbox deliveries
type Processor struct {
	deps *Deps
	log  *slog.Logger
}

func NewProcessor(deps *Deps) *Processor {
	return &Processor{
		deps: deps,
		log:  slog.Default().With("component", "inbox"),
	}
}

// ProcessCollection applies a delivered activity, or every item of a
// delivered collection, on behalf of signer. signer is the account whose
// HTTP signature was verified.
func (p *Processor) ProcessCollection(ctx context.Context, body []byte, signer *domain.Account, opts Options) error {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
		return ErrMalformedActivity
	}
	log := p.log.With("request_id", opts.RequestID)

	account := signer
	if actor := valueOrID(doc["actor"]); actor != "" && actor != p.deps.Tags.AccountURI(signer) {
		verified, err := p.deps.Signatures.Verify(ctx, doc)
		if err != nil {
			return err
		}
		if verified == nil || p.deps.Tags.AccountURI(verified) != actor {
			activitiesRejected.WithLabelValues(valueOrID(doc["type"]), "unverified relay").Inc()
			log.Info("rejected activity",
				"type", valueOrID(doc["type"]),
				"id", stringField(doc, "id"),
				"actor", actor,
				"via", signer.URI,
				"reason", "unverified relay")
			return nil
		}
		opts.RelayedThroughAccount = signer
		account = verified
	}

	if account.IsLocal() {
		log.Debug("ignoring activity from local actor", "actor", account.URI)
		return nil
	}
	kind := Kind(valueOrID(doc["type"]))
	if account.Suspended && !slices.Contains(activitiesAllowedWhileSuspended, kind) {
		activitiesRejected.WithLabelValues(string(kind), "suspended").Inc()
		log.Info("rejected activity", "type", kind, "id", stringField(doc, "id"), "actor", account.URI, "reason", "suspended")
		return nil
	}

	switch kind {
	case "Collection", "CollectionPage", "OrderedCollection", "OrderedCollectionPage":
		items := asArray(doc["orderedItems"])
		if len(items) == 0 {
			items = asArray(doc["items"])
		}
		itemOpts := opts
		itemOpts.Body = nil
		for i := len(items) - 1; i >= 0; i-- {
			item := asObject(items[i])
			if item == nil {
				continue
			}
			if err := p.process(ctx, item, account, itemOpts); err != nil {
				return err
			}
		}
		return nil
	}

	opts.Body = body
	return p.process(ctx, doc, account, opts)
}

// process dispatches one activity once per recipient
func (p *Processor) process(ctx context.Context, doc map[string]any, account *domain.Account, opts Options) error {
	handler := NewActivity(doc, account, opts, p.deps)
	if handler == nil {
		p.log.Debug("ignoring unhandled activity type", "type", valueOrID(doc["type"]), "request_id", opts.RequestID)
		return nil
	}

	id := stringField(doc, "id")
	if id == "" {
		return p.perform(ctx, handler, doc)
	}
	entry, err := p.deps.Database.RecordActivity(ctx, &domain.Activity{
		ActivityURI:          id,
		ActivityType:         valueOrID(doc["type"]),
		ActorURI:             account.URI,
		DeliveredToAccountId: opts.DeliveredToAccountID,
	})
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	if entry.Processed {
		p.log.Debug("skipping already processed activity", "id", id, "request_id", opts.RequestID)
		return nil
	}
	if err := p.perform(ctx, handler, doc); err != nil {
		return err
	}
	return p.deps.Database.MarkActivityProcessed(ctx, entry.Id)
}

func (p *Processor) perform(ctx context.Context, handler Handler, doc map[string]any) error {
	if err := handler.Perform(ctx); err != nil {
		return fmt.Errorf("%s %s: %w", valueOrID(doc["type"]), stringField(doc, "id"), err)
	}
	return nil
}
