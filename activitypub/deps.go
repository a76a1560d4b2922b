package activitypub

import (
	"context"
	"net/http"
	"time"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/deemkeen/fedinbox/markers"
	"github.com/deemkeen/fedinbox/util"
	"github.com/google/uuid"
)

// Database defines the persistence operations required by the ActivityPub package.
// This interface allows for dependency injection and testing with alternative stores.
type Database interface {
	// Accounts
	FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	FindAccountByURI(ctx context.Context, uri string) (*domain.Account, error)
	FindLocalAccount(ctx context.Context, username string) (*domain.Account, error)
	InsertAccount(ctx context.Context, a *domain.Account) error
	UpsertRemoteAccount(ctx context.Context, a *domain.Account) (*domain.Account, error)
	UpdateAccountMovedTo(ctx context.Context, id, movedTo uuid.UUID) error
	DeleteAccountContent(ctx context.Context, accountID uuid.UUID) error
	LocalFollowers(ctx context.Context, accountID uuid.UUID) ([]domain.Account, error)
	FirstLocalFollower(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	HasLocalFollowers(ctx context.Context, accountID uuid.UUID) (bool, error)
	FollowerInboxes(ctx context.Context, targetIDs []uuid.UUID) ([]string, error)
	FilterFollowers(ctx context.Context, targetID uuid.UUID, candidates []uuid.UUID) ([]uuid.UUID, error)
	FilterFollowRequesters(ctx context.Context, targetID uuid.UUID, candidates []uuid.UUID) ([]uuid.UUID, error)
	MentionedAccounts(ctx context.Context, statusID uuid.UUID) ([]domain.Account, error)

	// Statuses
	InsertStatus(ctx context.Context, s *domain.Status, mentions []domain.Mention) (bool, error)
	UpdateStatus(ctx context.Context, s *domain.Status, mentions []domain.Mention) error
	RemoveStatus(ctx context.Context, s *domain.Status, tombstone *domain.Tombstone) error
	FindStatusByID(ctx context.Context, id uuid.UUID) (*domain.Status, error)
	FindStatusByURI(ctx context.Context, uri string) (*domain.Status, error)
	FindStatusByURIAndAccount(ctx context.Context, uri string, accountID uuid.UUID) (*domain.Status, error)
	FindReblog(ctx context.Context, accountID, reblogOfID uuid.UUID) (*domain.Status, error)
	Mentions(ctx context.Context, statusID uuid.UUID) ([]domain.Mention, error)
	LocalReblogAndQuoteAccountIDs(ctx context.Context, statusID uuid.UUID) ([]uuid.UUID, error)
	InsertTombstone(ctx context.Context, t *domain.Tombstone) error
	TombstoneExists(ctx context.Context, uri string) (bool, error)

	// Follows and follow requests
	FindFollow(ctx context.Context, accountID, targetID uuid.UUID) (*domain.Follow, error)
	FindFollowByURI(ctx context.Context, accountID uuid.UUID, uri string) (*domain.Follow, error)
	FindFollowOfTargetByURI(ctx context.Context, targetID uuid.UUID, uri string) (*domain.Follow, error)
	CreateFollow(ctx context.Context, accountID, targetID uuid.UUID, uri string) (*domain.Follow, error)
	UpdateFollowURI(ctx context.Context, id uuid.UUID, uri string) error
	DeleteFollow(ctx context.Context, id uuid.UUID) error
	RevokeFollow(ctx context.Context, f *domain.Follow) error
	FindFollowRequest(ctx context.Context, accountID, targetID uuid.UUID) (*domain.FollowRequest, error)
	FindFollowRequestByURI(ctx context.Context, accountID uuid.UUID, uri string) (*domain.FollowRequest, error)
	FindFollowRequestOfTargetByURI(ctx context.Context, targetID uuid.UUID, uri string) (*domain.FollowRequest, error)
	CreateFollowRequest(ctx context.Context, accountID, targetID uuid.UUID, uri string) (*domain.FollowRequest, error)
	UpdateFollowRequestURI(ctx context.Context, id uuid.UUID, uri string) error
	DeleteFollowRequest(ctx context.Context, id uuid.UUID) error
	AuthorizeFollowRequest(ctx context.Context, fr *domain.FollowRequest) (*domain.Follow, error)

	// Blocks
	FindBlock(ctx context.Context, accountID, targetID uuid.UUID) (*domain.Block, error)
	FindBlockByURI(ctx context.Context, accountID uuid.UUID, uri string) (*domain.Block, error)
	CreateBlock(ctx context.Context, accountID, targetID uuid.UUID, uri string) (*domain.Block, error)
	UpdateBlockURI(ctx context.Context, id uuid.UUID, uri string) error
	DeleteBlock(ctx context.Context, id uuid.UUID) error

	// Favourites, pins, reports, notifications
	CreateFavourite(ctx context.Context, f *domain.Favourite) (bool, error)
	FindFavourite(ctx context.Context, accountID, statusID uuid.UUID) (*domain.Favourite, error)
	FindFavouriteByURI(ctx context.Context, accountID uuid.UUID, uri string) (*domain.Favourite, error)
	DeleteFavourite(ctx context.Context, id uuid.UUID) error
	PinStatus(ctx context.Context, accountID, statusID uuid.UUID) error
	UnpinStatus(ctx context.Context, accountID, statusID uuid.UUID) error
	CreateReport(ctx context.Context, r *domain.Report) error
	CreateNotification(ctx context.Context, n *domain.Notification) error
	DeleteNotificationsFrom(ctx context.Context, accountID, fromID uuid.UUID, kind domain.NotificationType) error

	// Relays
	CreateRelay(ctx context.Context, r *domain.Relay) error
	Relays(ctx context.Context) ([]domain.Relay, error)
	FindRelayByActorURI(ctx context.Context, actorURI string) (*domain.Relay, error)
	FindRelayByFollowURI(ctx context.Context, followURI string) (*domain.Relay, error)
	DeleteRelay(ctx context.Context, id uuid.UUID) error
	IsEnabledRelayInbox(ctx context.Context, inbox string) (bool, error)
	UpdateRelayState(ctx context.Context, id uuid.UUID, state domain.RelayState) error

	// Activity log
	RecordActivity(ctx context.Context, a *domain.Activity) (*domain.Activity, error)
	MarkActivityProcessed(ctx context.Context, id uuid.UUID) error

	// Delivery queue
	EnqueueDeliveries(ctx context.Context, items []domain.DeliveryQueueItem) error
	ReadPendingDeliveries(ctx context.Context, limit int) ([]domain.DeliveryQueueItem, error)
	UpdateDeliveryAttempt(ctx context.Context, id uuid.UUID, attempts int, nextRetry time.Time) error
	DeleteDelivery(ctx context.Context, id uuid.UUID) error
}

// HTTPClient defines the HTTP client operations required by the ActivityPub package.
// This interface allows for dependency injection and testing with mock implementations.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Deps bundles the collaborators shared by every inbound activity. It is
// built once at start-up.
type Deps struct {
	Database   Database
	HTTPClient HTTPClient
	Markers    markers.Store
	Conf       *util.AppConfig

	Tags       *TagManager
	Fetcher    *Fetcher
	Signatures *LinkedDataSignature
	Actors     *ActorFetcher
	Statuses   *StatusFetcher
	Forwarder  *Forwarder
	Outbox     *Outbox
}

// NewDeps wires the ingestion services around a store, a transport and a
// marker store
func NewDeps(conf *util.AppConfig, database Database, client HTTPClient, store markers.Store) *Deps {
	d := &Deps{
		Database:   database,
		HTTPClient: client,
		Markers:    store,
		Conf:       conf,
	}
	d.Tags = NewTagManager(conf, database)
	d.Fetcher = NewFetcher(client, d.Tags, conf.Conf.MaxBodyBytes, conf.FetchTimeout(), util.UserAgent(conf.WebHost()))
	d.Actors = NewActorFetcher(d.Fetcher, database)
	d.Signatures = NewLinkedDataSignature(NewContextLoader(client, conf.Conf.MaxBodyBytes), d.Tags, d.Actors)
	d.Statuses = &StatusFetcher{deps: d}
	d.Forwarder = NewForwarder(database)
	d.Outbox = NewOutbox(database, d.Tags)
	return d
}
