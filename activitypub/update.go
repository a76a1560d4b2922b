package activitypub

import (
	"context"
	"time"
)

// Update refreshes a remote actor or edits a remote status
type Update struct {
	activity
}

func (u *Update) Perform(ctx context.Context) error {
	if err := u.dereferenceObject(ctx); err != nil {
		return err
	}
	object := asObject(u.object)
	if object == nil {
		u.reject("unresolvable object")
		return nil
	}

	switch {
	case equalsOrIncludesAny(object["type"], actorTypes):
		return u.updateAccount(ctx, object)
	case !unsupportedObjectType(object):
		return u.updateStatus(ctx, object)
	}
	u.reject("unsupported object type")
	return nil
}

func (u *Update) updateAccount(ctx context.Context, object map[string]any) error {
	if u.objectURI() != u.account.URI {
		u.reject("actor mismatch")
		return nil
	}
	if _, err := u.deps.Actors.Store(ctx, object); err != nil {
		u.reject("invalid actor")
		u.log.Info("actor update not applied", "actor", u.account.URI, "err", err)
		return nil
	}
	activitiesProcessed.WithLabelValues(string(KindUpdate)).Inc()
	return nil
}

func (u *Update) updateStatus(ctx context.Context, object map[string]any) error {
	uri := u.objectURI()
	if nonMatchingHosts(uri, u.account.URI) {
		u.reject("object host does not match actor")
		return nil
	}
	status, err := u.db().FindStatusByURIAndAccount(ctx, uri, u.account.Id)
	if err != nil || status == nil {
		return err
	}

	updated, ok := parseTimestamp(stringField(object, "updated"))
	if !ok {
		updated = time.Now().UTC()
	}
	last := status.CreatedAt
	if status.EditedAt != nil {
		last = *status.EditedAt
	}
	if !updated.After(last) {
		u.reject("stale update")
		return nil
	}

	mentions, _, err := u.processTags(ctx, object)
	if err != nil {
		return err
	}
	silent, err := u.processAudience(ctx, object, mentions)
	if err != nil {
		return err
	}

	status.Text = statusText(object)
	status.SpoilerText = spoilerText(object)
	if sensitive, ok := object["sensitive"].(bool); ok {
		status.Sensitive = sensitive
	}
	status.EditedAt = &updated
	if err := u.db().UpdateStatus(ctx, status, append(mentions, silent...)); err != nil {
		return err
	}
	activitiesProcessed.WithLabelValues(string(KindUpdate)).Inc()

	if u.deps.Forwarder.Forwardable(u.json, status) {
		body, err := u.payload()
		if err != nil {
			return err
		}
		if err := u.deps.Forwarder.Forward(ctx, body, status, u.account); err != nil {
			u.log.Warn("forwarding update failed", "uri", uri, "err", err)
		}
	}
	return nil
}
