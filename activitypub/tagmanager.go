package activitypub

import (
	"context"
	"net/url"
	"slices"
	"strings"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/deemkeen/fedinbox/util"
	"github.com/google/uuid"
)

// TagManager maps between entities and their canonical URIs. Local
// entities get URLs under the web domain, remote ones keep their origin URI.
type TagManager struct {
	localDomain  string
	webDomain    string
	localDomains []string
	database     Database
}

func NewTagManager(conf *util.AppConfig, database Database) *TagManager {
	t := &TagManager{
		localDomain: strings.ToLower(conf.Conf.LocalDomain),
		webDomain:   strings.ToLower(conf.WebHost()),
		database:    database,
	}
	t.localDomains = []string{t.localDomain, t.webDomain}
	for _, d := range conf.Conf.AlternateDomains {
		t.localDomains = append(t.localDomains, strings.ToLower(d))
	}
	return t
}

// LocalDomain is the domain in local handles
func (t *TagManager) LocalDomain() string {
	return t.localDomain
}

// IsLocalDomain reports whether host is served by this instance
func (t *TagManager) IsLocalDomain(host string) bool {
	host = strings.ToLower(host)
	return host != "" && slices.Contains(t.localDomains, host)
}

func (t *TagManager) IsLocalURI(uri string) bool {
	return t.IsLocalDomain(uriHost(uri))
}

func (t *TagManager) baseURL() string {
	return "https://" + t.webDomain
}

// AccountURI returns the actor URI of a
func (t *TagManager) AccountURI(a *domain.Account) string {
	if !a.IsLocal() {
		return a.URI
	}
	if t.IsInstanceActor(a) {
		return t.baseURL() + "/actor"
	}
	return t.baseURL() + "/users/" + a.Username
}

// IsInstanceActor reports whether a is the local actor representing the
// server itself
func (t *TagManager) IsInstanceActor(a *domain.Account) bool {
	return a.IsLocal() && strings.EqualFold(a.Username, t.localDomain)
}

// InstanceActor returns the local actor representing the server, nil until
// it has been created
func (t *TagManager) InstanceActor(ctx context.Context) (*domain.Account, error) {
	return t.database.FindLocalAccount(ctx, t.localDomain)
}

func (t *TagManager) KeyID(a *domain.Account) string {
	return t.AccountURI(a) + "#main-key"
}

func (t *TagManager) InboxURI(a *domain.Account) string {
	if !a.IsLocal() {
		return a.InboxURI
	}
	return t.AccountURI(a) + "/inbox"
}

func (t *TagManager) SharedInboxURI() string {
	return t.baseURL() + "/inbox"
}

func (t *TagManager) FollowersURI(a *domain.Account) string {
	if !a.IsLocal() {
		return a.FollowersURI
	}
	return t.AccountURI(a) + "/followers"
}

func (t *TagManager) FeaturedURI(a *domain.Account) string {
	if !a.IsLocal() {
		return a.FeaturedURI
	}
	return t.AccountURI(a) + "/collections/featured"
}

// FollowURI mints the id of a new Follow sent by a
func (t *TagManager) FollowURI(a *domain.Account) string {
	return t.AccountURI(a) + "#follows/" + uuid.NewString()
}

// StatusURI returns the URI of s written by author
func (t *TagManager) StatusURI(s *domain.Status, author *domain.Account) string {
	if !s.Local && s.URI != "" {
		return s.URI
	}
	return t.AccountURI(author) + "/statuses/" + s.Id.String()
}

// AccountFromURI returns the account uri denotes. Local URIs are routed,
// everything else is looked up by stored URI without its fragment.
func (t *TagManager) AccountFromURI(ctx context.Context, uri string) (*domain.Account, error) {
	if uri == "" {
		return nil, nil
	}
	if t.IsLocalURI(uri) {
		route, ok := parseLocalRoute(uri)
		if !ok {
			return nil, nil
		}
		if route.instance {
			return t.database.FindLocalAccount(ctx, t.localDomain)
		}
		if route.username == "" {
			return nil, nil
		}
		return t.database.FindLocalAccount(ctx, route.username)
	}
	return t.database.FindAccountByURI(ctx, stripFragment(uri))
}

// StatusFromURI returns the status uri denotes, including statuses under
// a legacy tag: URI
func (t *TagManager) StatusFromURI(ctx context.Context, uri string) (*domain.Status, error) {
	if uri == "" {
		return nil, nil
	}
	if t.IsLocalURI(uri) {
		route, ok := parseLocalRoute(uri)
		if !ok || route.statusID == uuid.Nil {
			return nil, nil
		}
		s, err := t.database.FindStatusByID(ctx, route.statusID)
		if err != nil || s == nil {
			return nil, err
		}
		author, err := t.database.FindAccountByID(ctx, s.AccountId)
		if err != nil || author == nil || !strings.EqualFold(author.Username, route.username) {
			return nil, err
		}
		return s, nil
	}
	if id, ok := t.legacyStatusID(uri); ok {
		return t.database.FindStatusByID(ctx, id)
	}
	return t.database.FindStatusByURI(ctx, stripFragment(uri))
}

// legacyStatusID parses tag:<local domain>,<date>:objectId=<id>:objectType=Status
func (t *TagManager) legacyStatusID(uri string) (uuid.UUID, bool) {
	rest, ok := strings.CutPrefix(uri, "tag:")
	if !ok {
		return uuid.Nil, false
	}
	host, rest, ok := strings.Cut(rest, ",")
	if !ok || !t.IsLocalDomain(host) {
		return uuid.Nil, false
	}
	var idPart, typePart string
	for _, seg := range strings.Split(rest, ":") {
		if v, ok := strings.CutPrefix(seg, "objectId="); ok {
			idPart = v
		}
		if v, ok := strings.CutPrefix(seg, "objectType="); ok {
			typePart = v
		}
	}
	if typePart != "Status" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

type localRoute struct {
	instance bool
	username string
	statusID uuid.UUID
}

// parseLocalRoute understands /actor, /users/:name, /@:name and their
// /statuses/:id and /:id children
func parseLocalRoute(uri string) (localRoute, bool) {
	u, err := url.Parse(stripFragment(uri))
	if err != nil {
		return localRoute{}, false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "actor":
		return localRoute{instance: true}, true
	case len(parts) >= 2 && parts[0] == "users":
		r := localRoute{username: parts[1]}
		if len(parts) == 4 && parts[2] == "statuses" {
			id, err := uuid.Parse(parts[3])
			if err != nil {
				return localRoute{}, false
			}
			r.statusID = id
		}
		return r, true
	case len(parts) >= 1 && strings.HasPrefix(parts[0], "@"):
		r := localRoute{username: strings.TrimPrefix(parts[0], "@")}
		if len(parts) == 2 {
			id, err := uuid.Parse(parts[1])
			if err != nil {
				return localRoute{}, false
			}
			r.statusID = id
		}
		return r, true
	}
	return localRoute{}, false
}

// To computes the primary audience of a status written by author
func (t *TagManager) To(ctx context.Context, s *domain.Status, author *domain.Account) ([]string, error) {
	switch s.Visibility {
	case domain.VisibilityPublic:
		return []string{PublicCollection}, nil
	case domain.VisibilityUnlisted, domain.VisibilityPrivate:
		return []string{t.FollowersURI(author)}, nil
	case domain.VisibilityDirect, domain.VisibilityLimited:
		return t.mentionAudience(ctx, s, author)
	}
	return nil, nil
}

// Cc computes the secondary audience. A reblog also copies the original
// author.
func (t *TagManager) Cc(ctx context.Context, s *domain.Status, author *domain.Account) ([]string, error) {
	var cc []string
	if s.ReblogOfId != nil {
		original, err := t.database.FindStatusByID(ctx, *s.ReblogOfId)
		if err != nil {
			return nil, err
		}
		if original != nil {
			originalAuthor, err := t.database.FindAccountByID(ctx, original.AccountId)
			if err != nil {
				return nil, err
			}
			if originalAuthor != nil {
				cc = append(cc, t.AccountURI(originalAuthor))
			}
		}
	}

	switch s.Visibility {
	case domain.VisibilityPublic:
		cc = append(cc, t.FollowersURI(author))
	case domain.VisibilityUnlisted:
		cc = append(cc, PublicCollection)
	case domain.VisibilityPrivate:
		mentioned, err := t.mentionAudience(ctx, s, author)
		if err != nil {
			return nil, err
		}
		cc = append(cc, mentioned...)
	}
	return dedupe(cc), nil
}

// mentionAudience lists the mentioned accounts. A silenced author only
// reaches mentioned accounts that follow it or asked to.
func (t *TagManager) mentionAudience(ctx context.Context, s *domain.Status, author *domain.Account) ([]string, error) {
	mentioned, err := t.database.MentionedAccounts(ctx, s.Id)
	if err != nil {
		return nil, err
	}
	if !author.Silenced {
		uris := make([]string, 0, len(mentioned))
		for i := range mentioned {
			uris = append(uris, t.AccountURI(&mentioned[i]))
		}
		return dedupe(uris), nil
	}

	ids := make([]uuid.UUID, len(mentioned))
	for i := range mentioned {
		ids[i] = mentioned[i].Id
	}
	followers, err := t.database.FilterFollowers(ctx, author.Id, ids)
	if err != nil {
		return nil, err
	}
	requesters, err := t.database.FilterFollowRequesters(ctx, author.Id, ids)
	if err != nil {
		return nil, err
	}
	allowed := append(followers, requesters...)

	var uris []string
	for i := range mentioned {
		if slices.Contains(allowed, mentioned[i].Id) {
			uris = append(uris, t.AccountURI(&mentioned[i]))
		}
	}
	return dedupe(uris), nil
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0:0]
	for _, item := range items {
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
