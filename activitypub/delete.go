package activitypub

import (
	"context"
	"time"

	"github.com/deemkeen/fedinbox/domain"
)

// deleteMarkerTTL is how long a Delete waits for its Create
const deleteMarkerTTL = 6 * time.Hour

// Delete removes a status, or every trace of an actor deleting itself
type Delete struct {
	activity
}

func (d *Delete) Perform(ctx context.Context) error {
	uri := d.objectURI()
	if uri == "" {
		d.reject("missing object")
		return nil
	}
	if uri == d.account.URI {
		return d.deleteAccount(ctx)
	}
	return d.deleteNote(ctx, uri)
}

func (d *Delete) deleteAccount(ctx context.Context) error {
	if err := d.db().DeleteAccountContent(ctx, d.account.Id); err != nil {
		return err
	}
	activitiesProcessed.WithLabelValues(string(KindDelete)).Inc()
	d.log.Info("deleted account content", "actor", d.account.URI)
	return nil
}

func (d *Delete) deleteNote(ctx context.Context, uri string) error {
	var tombstone *domain.Tombstone
	if !nonMatchingHosts(uri, d.account.URI) {
		tombstone = &domain.Tombstone{AccountId: d.account.Id, URI: uri}
	}

	status, err := d.db().FindStatusByURIAndAccount(ctx, uri, d.account.Id)
	if err != nil {
		return err
	}
	if status == nil {
		if atomURI := stringField(asObject(d.object), "atomUri"); atomURI != "" {
			status, err = d.db().FindStatusByURIAndAccount(ctx, atomURI, d.account.Id)
			if err != nil {
				return err
			}
		}
	}

	if status == nil {
		if tombstone != nil {
			if err := d.db().InsertTombstone(ctx, tombstone); err != nil {
				return err
			}
		}
		if d.deps.Markers != nil {
			if _, err := d.deps.Markers.SetIfAbsent(ctx, deleteMarkerKey(d.account, uri), deleteMarkerTTL); err != nil {
				return err
			}
		}
		return nil
	}

	if d.deps.Forwarder.Forwardable(d.json, status) {
		body, err := d.payload()
		if err != nil {
			return err
		}
		if err := d.deps.Forwarder.Forward(ctx, body, status, d.account); err != nil {
			d.log.Warn("forwarding delete failed", "uri", uri, "err", err)
		}
	}

	if err := d.db().RemoveStatus(ctx, status, tombstone); err != nil {
		return err
	}
	activitiesProcessed.WithLabelValues(string(KindDelete)).Inc()
	return nil
}
