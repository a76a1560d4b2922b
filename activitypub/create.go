package activitypub

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/google/uuid"
)

// Create materializes a remote status
type Create struct {
	activity
}

func (c *Create) Perform(ctx context.Context) error {
	_, err := c.perform(ctx)
	return err
}

// perform returns the stored status, including one that already existed
func (c *Create) perform(ctx context.Context) (*domain.Status, error) {
	if c.opts.Depth > MaxDepth {
		c.reject("max depth")
		return nil, nil
	}
	if err := c.dereferenceObject(ctx); err != nil {
		return nil, err
	}

	uri := c.objectURI()
	if unsupportedObjectType(c.object) {
		c.reject("unsupported object type")
		return nil, nil
	}
	if nonMatchingHosts(uri, c.account.URI) {
		c.reject("object host does not match actor")
		return nil, nil
	}

	tombstoned, err := c.db().TombstoneExists(ctx, uri)
	if err != nil {
		return nil, err
	}
	if tombstoned {
		c.reject("tombstoned")
		return nil, nil
	}

	deleted, err := c.deleteArrivedFirst(ctx, uri)
	if err != nil {
		return nil, err
	}
	if deleted {
		c.reject("deleted before arrival")
		return nil, nil
	}

	existing, err := c.db().FindStatusByURI(ctx, uri)
	if err != nil || existing != nil {
		return existing, err
	}

	if c.opts.Delivery {
		relevant, err := c.relevant(ctx)
		if err != nil {
			return nil, err
		}
		if !relevant {
			c.reject("not relevant")
			return nil, nil
		}
	}

	return c.createStatus(ctx)
}

// dereferenceObject replaces a referenced object with its document. The
// object must come from the actor's server.
func (a *activity) dereferenceObject(ctx context.Context) error {
	uri, ok := a.object.(string)
	if !ok {
		return nil
	}
	signer, err := a.fetchSigner(ctx)
	if err != nil {
		return err
	}
	object, err := a.deps.Fetcher.Dereferencer(uri, a.account.URI, signer).Object(ctx)
	if err != nil {
		return err
	}
	if object != nil {
		a.object = object
	}
	return nil
}

func (c *Create) createStatus(ctx context.Context) (*domain.Status, error) {
	object := asObject(c.object)

	status := &domain.Status{
		Id:          uuid.New(),
		AccountId:   c.account.Id,
		URI:         c.objectURI(),
		URL:         objectURL(object),
		Text:        statusText(object),
		SpoilerText: spoilerText(object),
		CreatedAt:   publishedAt(object),
	}
	if sensitive, ok := object["sensitive"].(bool); ok {
		status.Sensitive = sensitive
	}
	if edited := editedAt(object); edited != nil {
		status.EditedAt = edited
	}

	mentions, mentioned, err := c.processTags(ctx, object)
	if err != nil {
		return nil, err
	}
	silent, err := c.processAudience(ctx, object, mentions)
	if err != nil {
		return nil, err
	}
	status.Visibility = visibilityFromAudience(object, c.account, len(silent) > 0)
	mentions = append(mentions, silent...)

	parent, err := c.processReply(ctx, object, status)
	if err != nil {
		return nil, err
	}

	created, err := c.db().InsertStatus(ctx, status, mentions)
	if err != nil {
		return nil, err
	}
	if !created {
		return c.db().FindStatusByURI(ctx, status.URI)
	}
	activitiesProcessed.WithLabelValues(string(KindCreate)).Inc()

	for _, account := range mentioned {
		if err := c.notify(ctx, account, domain.NotificationMention, status); err != nil {
			return nil, err
		}
	}
	if parent != nil && parent.Local {
		author, err := c.db().FindAccountByID(ctx, parent.AccountId)
		if err != nil {
			return nil, err
		}
		if author != nil && !slices.ContainsFunc(mentioned, func(a *domain.Account) bool { return a.Id == author.Id }) {
			if err := c.notify(ctx, author, domain.NotificationReply, status); err != nil {
				return nil, err
			}
		}
	}

	if parent != nil && parent.Local && c.deps.Forwarder.Forwardable(c.json, status) {
		body, err := c.payload()
		if err != nil {
			return nil, err
		}
		if err := c.deps.Forwarder.Forward(ctx, body, status, c.account); err != nil {
			c.log.Warn("forwarding reply failed", "uri", status.URI, "err", err)
		}
	}
	return status, nil
}

// processTags turns Mention tags into mentions of known or fetchable
// accounts
func (a *activity) processTags(ctx context.Context, object map[string]any) ([]domain.Mention, []*domain.Account, error) {
	var mentions []domain.Mention
	var accounts []*domain.Account
	for _, item := range asArray(object["tag"]) {
		tag := asObject(item)
		if objectType(tag) != "Mention" {
			continue
		}
		href := stringField(tag, "href")
		if href == "" {
			continue
		}
		account, err := a.deps.Actors.Resolve(ctx, href)
		if err != nil {
			a.log.Info("unresolvable mention", "href", href, "err", err)
			continue
		}
		if account == nil || slices.ContainsFunc(accounts, func(known *domain.Account) bool { return known.Id == account.Id }) {
			continue
		}
		accounts = append(accounts, account)
		mentions = append(mentions, domain.Mention{AccountId: account.Id})
	}
	return mentions, accounts, nil
}

// processAudience adds silent mentions for known addressees that the text
// does not mention
func (a *activity) processAudience(ctx context.Context, object map[string]any, mentions []domain.Mention) ([]domain.Mention, error) {
	var silent []domain.Mention
	audience := append(uriList(object["to"]), uriList(object["cc"])...)
	for _, uri := range dedupe(audience) {
		if IsPublicCollection(uri) || uri == a.account.FollowersURI {
			continue
		}
		account, err := a.tags().AccountFromURI(ctx, uri)
		if err != nil {
			return nil, err
		}
		if account == nil {
			continue
		}
		known := func(m domain.Mention) bool { return m.AccountId == account.Id }
		if slices.ContainsFunc(mentions, known) || slices.ContainsFunc(silent, known) {
			continue
		}
		silent = append(silent, domain.Mention{AccountId: account.Id, Silent: true})
	}
	return silent, nil
}

// visibilityFromAudience reads the visibility off the to and cc fields of
// doc. Missing audiences mean direct.
func visibilityFromAudience(doc map[string]any, author *domain.Account, silentMentions bool) domain.Visibility {
	to := uriList(doc["to"])
	cc := uriList(doc["cc"])
	switch {
	case slices.ContainsFunc(to, IsPublicCollection):
		return domain.VisibilityPublic
	case slices.ContainsFunc(cc, IsPublicCollection):
		return domain.VisibilityUnlisted
	case author.FollowersURI != "" && slices.Contains(to, author.FollowersURI):
		return domain.VisibilityPrivate
	case silentMentions:
		return domain.VisibilityLimited
	}
	return domain.VisibilityDirect
}

// processReply links the status to its parent, fetching an unknown parent
// while the depth allows
func (c *Create) processReply(ctx context.Context, object map[string]any, status *domain.Status) (*domain.Status, error) {
	uri := valueOrID(object["inReplyTo"])
	if uri == "" {
		return nil, nil
	}
	status.InReplyToURI = uri

	parent, err := c.tags().StatusFromURI(ctx, uri)
	if err != nil {
		return nil, err
	}
	if parent == nil && !c.tags().IsLocalURI(uri) && c.opts.Depth < MaxDepth {
		signer, err := c.fetchSigner(ctx)
		if err != nil {
			return nil, err
		}
		parent, err = c.deps.Statuses.Fetch(ctx, uri, signer, Options{RequestID: c.opts.RequestID, Depth: c.opts.Depth + 1})
		if err != nil {
			c.log.Info("failed to fetch replied-to status", "uri", uri, "err", err)
			parent = nil
		}
	}
	if parent == nil {
		return nil, nil
	}
	parentID, parentAccountID := parent.Id, parent.AccountId
	status.InReplyToId = &parentID
	status.InReplyToAccountId = &parentAccountID
	return parent, nil
}

// relevant reports whether a pushed status concerns anyone here
func (c *Create) relevant(ctx context.Context) (bool, error) {
	if c.opts.DeliveredToAccountID != nil {
		return true, nil
	}
	followed, err := c.db().HasLocalFollowers(ctx, c.account.Id)
	if err != nil || followed {
		return followed, err
	}
	relayed, err := c.viaRelay(ctx)
	if err != nil || relayed {
		return relayed, err
	}

	object := asObject(c.object)
	if parentURI := valueOrID(object["inReplyTo"]); parentURI != "" {
		parent, err := c.tags().StatusFromURI(ctx, parentURI)
		if err != nil {
			return false, err
		}
		if parent != nil {
			if parent.Local {
				return true, nil
			}
			followed, err := c.db().HasLocalFollowers(ctx, parent.AccountId)
			if err != nil || followed {
				return followed, err
			}
		}
	}

	candidates := append(uriList(object["to"]), uriList(object["cc"])...)
	for _, item := range asArray(object["tag"]) {
		if tag := asObject(item); objectType(tag) == "Mention" {
			candidates = append(candidates, stringField(tag, "href"))
		}
	}
	for _, uri := range candidates {
		if !c.tags().IsLocalURI(uri) {
			continue
		}
		account, err := c.tags().AccountFromURI(ctx, uri)
		if err != nil {
			return false, err
		}
		if account != nil {
			return true, nil
		}
	}
	return false, nil
}

// viaRelay reports whether the activity came through an accepted relay
func (a *activity) viaRelay(ctx context.Context) (bool, error) {
	if relay := a.opts.RelayedThroughAccount; relay != nil && relay.InboxURI != "" {
		ok, err := a.db().IsEnabledRelayInbox(ctx, relay.InboxURI)
		if err != nil || ok {
			return ok, err
		}
	}
	if a.account.InboxURI == "" {
		return false, nil
	}
	return a.db().IsEnabledRelayInbox(ctx, a.account.InboxURI)
}

// statusText flattens the object into the text of a status
func statusText(object map[string]any) string {
	if isSupportedType(object) {
		return stringField(object, "content")
	}
	var parts []string
	for _, part := range []string{stringField(object, "name"), stringField(object, "summary"), objectURL(object)} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return stringField(object, "id")
	}
	return strings.Join(parts, "\n\n")
}

func spoilerText(object map[string]any) string {
	if !isSupportedType(object) {
		return ""
	}
	return stringField(object, "summary")
}

// objectURL returns the first url, which may be a Link
func objectURL(object map[string]any) string {
	for _, item := range asArray(object["url"]) {
		switch v := item.(type) {
		case string:
			return v
		case map[string]any:
			if href := stringField(v, "href"); href != "" {
				return href
			}
		}
	}
	return ""
}

// parseTimestamp accepts RFC3339 timestamps within years 0 to 9999
func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil || t.Year() < 0 || t.Year() > 9999 {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func publishedAt(object map[string]any) time.Time {
	if t, ok := parseTimestamp(stringField(object, "published")); ok {
		return t
	}
	return time.Now().UTC()
}

// editedAt is set when updated differs from published
func editedAt(object map[string]any) *time.Time {
	updated := stringField(object, "updated")
	if updated == "" || updated == stringField(object, "published") {
		return nil
	}
	t, ok := parseTimestamp(updated)
	if !ok {
		return nil
	}
	return &t
}
