package activitypub

import (
	"context"
	"log/slog"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/google/uuid"
)

// Kind is the type of an inbound activity
type Kind string

const (
	KindCreate   Kind = "Create"
	KindAnnounce Kind = "Announce"
	KindDelete   Kind = "Delete"
	KindFollow   Kind = "Follow"
	KindLike     Kind = "Like"
	KindBlock    Kind = "Block"
	KindUpdate   Kind = "Update"
	KindUndo     Kind = "Undo"
	KindAccept   Kind = "Accept"
	KindReject   Kind = "Reject"
	KindFlag     Kind = "Flag"
	KindAdd      Kind = "Add"
	KindRemove   Kind = "Remove"
	KindMove     Kind = "Move"
)

// Kinds lists every activity type with a handler
var Kinds = []Kind{
	KindCreate, KindAnnounce, KindDelete, KindFollow, KindLike, KindBlock, KindUpdate,
	KindUndo, KindAccept, KindReject, KindFlag, KindAdd, KindRemove, KindMove,
}

// Known reports whether k has a handler. Anything else is ignored.
func (k Kind) Known() bool {
	switch k {
	case KindCreate, KindAnnounce, KindDelete, KindFollow, KindLike, KindBlock, KindUpdate,
		KindUndo, KindAccept, KindReject, KindFlag, KindAdd, KindRemove, KindMove:
		return true
	}
	return false
}

// MaxDepth bounds how often handlers may re-enter the dispatcher for
// embedded or fetched objects
const MaxDepth = 3

// Options travel with an activity through every handler
type Options struct {
	RequestID             string
	DeliveredToAccountID  *uuid.UUID
	RelayedThroughAccount *domain.Account
	// Delivery is true for pushed activities and false for fetched ones
	Delivery bool
	Depth    int
	// Body is the original payload when the activity arrived on its own
	Body []byte
}

// Handler applies the side effects of one activity
type Handler interface {
	Perform(ctx context.Context) error
}

// NewActivity returns the handler for json's type, or nil when the type is
// not handled. account is the actor the activity is attributed to.
func NewActivity(json map[string]any, account *domain.Account, opts Options, deps *Deps) Handler {
	base := newActivity(json, account, opts, deps)
	switch Kind(valueOrID(json["type"])) {
	case KindCreate:
		return &Create{activity: base}
	case KindAnnounce:
		return &Announce{activity: base}
	case KindDelete:
		return &Delete{activity: base}
	case KindFollow:
		return &Follow{activity: base}
	case KindLike:
		return &Like{activity: base}
	case KindBlock:
		return &Block{activity: base}
	case KindUpdate:
		return &Update{activity: base}
	case KindUndo:
		return &Undo{activity: base}
	case KindAccept:
		return &Accept{activity: base}
	case KindReject:
		return &Reject{activity: base}
	case KindFlag:
		return &Flag{activity: base}
	case KindAdd:
		return &Add{activity: base}
	case KindRemove:
		return &Remove{activity: base}
	case KindMove:
		return &Move{activity: base}
	}
	return nil
}

// activity carries what every handler needs
type activity struct {
	json    map[string]any
	object  any
	account *domain.Account
	opts    Options
	deps    *Deps
	log     *slog.Logger
}

func newActivity(json map[string]any, account *domain.Account, opts Options, deps *Deps) activity {
	return activity{
		json:    json,
		object:  json["object"],
		account: account,
		opts:    opts,
		deps:    deps,
		log:     slog.Default().With("component", "inbox", "request_id", opts.RequestID),
	}
}

func (a *activity) kind() string {
	return valueOrID(a.json["type"])
}

func (a *activity) id() string {
	return stringField(a.json, "id")
}

func (a *activity) objectURI() string {
	return valueOrID(a.object)
}

func (a *activity) db() Database {
	return a.deps.Database
}

func (a *activity) tags() *TagManager {
	return a.deps.Tags
}

// reject records that the activity was declined
func (a *activity) reject(reason string) {
	via := ""
	if a.opts.RelayedThroughAccount != nil {
		via = a.opts.RelayedThroughAccount.URI
	}
	activitiesRejected.WithLabelValues(a.kind(), reason).Inc()
	a.log.Info("rejected activity",
		"type", a.kind(),
		"id", a.id(),
		"actor", a.account.URI,
		"via", via,
		"reason", reason)
}

func (a *activity) markerSet(ctx context.Context, key string) (bool, error) {
	if a.deps.Markers == nil {
		return false, nil
	}
	return a.deps.Markers.Exists(ctx, key)
}

// deleteArrivedFirst reports whether a Delete for uri preceded this activity
func (a *activity) deleteArrivedFirst(ctx context.Context, uri string) (bool, error) {
	if uri == "" {
		return false, nil
	}
	return a.markerSet(ctx, deleteMarkerKey(a.account, uri))
}

func deleteMarkerKey(account *domain.Account, uri string) string {
	return "delete_upon_arrival:" + account.Id.String() + ":" + uri
}

func moveMarkerKey(account *domain.Account) string {
	return "move_in_progress:" + account.Id.String()
}

// fetchSigner picks the local account on whose behalf remote objects are
// fetched
func (a *activity) fetchSigner(ctx context.Context) (*domain.Account, error) {
	if a.opts.DeliveredToAccountID != nil {
		account, err := a.db().FindAccountByID(ctx, *a.opts.DeliveredToAccountID)
		if err != nil || account != nil {
			return account, err
		}
	}
	follower, err := a.db().FirstLocalFollower(ctx, a.account.Id)
	if err != nil || follower != nil {
		return follower, err
	}
	return a.tags().InstanceActor(ctx)
}

// isLocalStatus reports whether s was written here
func isLocalStatus(s *domain.Status) bool {
	return s != nil && s.Local
}

// statusFromObject resolves the activity's object to a status. An embedded
// object by the actor is created like any Create, and anything else is
// fetched on behalf of a local follower.
func (a *activity) statusFromObject(ctx context.Context) (*domain.Status, error) {
	uri := a.objectURI()
	status, err := a.tags().StatusFromURI(ctx, uri)
	if err != nil || status != nil {
		return status, err
	}

	if !unsupportedObjectType(a.object) {
		object := asObject(a.object)
		if valueOrID(object["attributedTo"]) == a.account.URI {
			if a.opts.Depth >= MaxDepth {
				a.reject("max depth")
				return nil, nil
			}
			virtual := map[string]any{
				"type":   string(KindCreate),
				"actor":  a.account.URI,
				"object": a.object,
			}
			opts := Options{RequestID: a.opts.RequestID, Depth: a.opts.Depth + 1}
			create := &Create{activity: newActivity(virtual, a.account, opts, a.deps)}
			return create.perform(ctx)
		}
	}

	if uri == "" || a.tags().IsLocalURI(uri) {
		return nil, nil
	}
	if a.opts.Depth >= MaxDepth {
		a.reject("max depth")
		return nil, nil
	}
	signer, err := a.fetchSigner(ctx)
	if err != nil {
		return nil, err
	}
	return a.deps.Statuses.Fetch(ctx, uri, signer, Options{RequestID: a.opts.RequestID, Depth: a.opts.Depth + 1})
}

// notify tells a local account about an interaction. Remote recipients
// are skipped.
func (a *activity) notify(ctx context.Context, recipient *domain.Account, kind domain.NotificationType, status *domain.Status) error {
	if recipient == nil || !recipient.IsLocal() || recipient.Id == a.account.Id {
		return nil
	}
	n := &domain.Notification{
		AccountId:        recipient.Id,
		NotificationType: kind,
		FromAccountId:    a.account.Id,
	}
	if status != nil {
		id := status.Id
		n.StatusId = &id
	}
	return a.db().CreateNotification(ctx, n)
}

// payload returns the document to forward, preferring the received bytes
func (a *activity) payload() ([]byte, error) {
	if len(a.opts.Body) > 0 {
		return a.opts.Body, nil
	}
	return marshalActivity(a.json)
}
