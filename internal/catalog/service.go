// Package catalog composes the feed store, the fetcher and the auth manager
// into the operations exposed by the HTTP API and the CLI.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mrlokans/opdscatalog/internal/audit"
	"github.com/mrlokans/opdscatalog/internal/entities"
	"github.com/mrlokans/opdscatalog/internal/httpclient"
	"github.com/mrlokans/opdscatalog/internal/oauth2"
	"github.com/mrlokans/opdscatalog/internal/opds"
)

// ErrNoSearch is returned by Search when the catalog offers no usable search
// template.
var ErrNoSearch = errors.New("catalog does not support search")

// FeedInput carries user-supplied feed fields. Identifier is optional on add.
type FeedInput struct {
	Identifier string `json:"identifier,omitempty"`
	Title      string `json:"title"`
	URL        string `json:"url"`
}

// SearchResult is the outcome of a catalog search.
type SearchResult struct {
	URL  string     `json:"url"`
	Feed *opds.Feed `json:"feed"`
}

// Service is the catalog facade.
type Service struct {
	store     FeedStore
	browser   Browser
	auth      Authenticator
	audit     AuditLogger
	snapshots SnapshotSaver
}

// Option configures a Service.
type Option func(*Service)

// WithAudit records feed changes through a.
func WithAudit(a AuditLogger) Option {
	return func(s *Service) { s.audit = a }
}

// WithSnapshots stores malformed catalog responses through saver.
func WithSnapshots(saver SnapshotSaver) Option {
	return func(s *Service) { s.snapshots = saver }
}

// NewService creates a catalog Service.
func NewService(store FeedStore, browser Browser, auth Authenticator, opts ...Option) *Service {
	s := &Service{
		store:   store,
		browser: browser,
		auth:    auth,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetFeed returns a stored feed.
func (s *Service) GetFeed(ctx context.Context, id string) (*entities.OPDSFeed, error) {
	return s.store.GetFeed(ctx, strings.TrimSpace(id))
}

// FindAllFeeds returns every stored feed, oldest first.
func (s *Service) FindAllFeeds(ctx context.Context) ([]entities.OPDSFeed, error) {
	return s.store.FindAllFeeds(ctx)
}

// AddFeed stores a new feed definition.
func (s *Service) AddFeed(ctx context.Context, in FeedInput) (*entities.OPDSFeed, error) {
	feed, err := s.store.AddFeed(ctx, &entities.OPDSFeed{
		Identifier: strings.TrimSpace(in.Identifier),
		Title:      strings.TrimSpace(in.Title),
		URL:        strings.TrimSpace(in.URL),
	})
	if err != nil {
		s.logFeed("add", in.Identifier, in.Title, err)
		return nil, err
	}

	log.Printf("Added feed %s (%s)", feed.Identifier, feed.Title)
	s.logFeed("add", feed.Identifier, feed.Title, nil)
	return feed, nil
}

// UpdateFeed replaces the title and URL of an existing feed.
func (s *Service) UpdateFeed(ctx context.Context, in FeedInput) (*entities.OPDSFeed, error) {
	feed, err := s.store.UpdateFeed(ctx, &entities.OPDSFeed{
		Identifier: strings.TrimSpace(in.Identifier),
		Title:      strings.TrimSpace(in.Title),
		URL:        strings.TrimSpace(in.URL),
	})
	if err != nil {
		s.logFeed("update", in.Identifier, in.Title, err)
		return nil, err
	}

	s.logFeed("update", feed.Identifier, feed.Title, nil)
	return feed, nil
}

// DeleteFeed removes a feed and the credentials linked to it.
func (s *Service) DeleteFeed(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)

	var title string
	if existing, err := s.store.GetFeed(ctx, id); err == nil {
		title = existing.Title
	}

	if err := s.store.DeleteFeed(ctx, id); err != nil {
		s.logFeed("delete", id, title, err)
		return err
	}

	log.Printf("Deleted feed %s", id)
	s.logFeed("delete", id, title, nil)
	return nil
}

// Browse fetches and parses the catalog at url.
func (s *Service) Browse(ctx context.Context, url string) (*opds.Feed, error) {
	feed, err := s.browser.Browse(ctx, url)
	if err != nil {
		s.snapshot(err)
		return nil, err
	}
	return feed, nil
}

// BrowseFeed fetches the catalog of a stored feed.
func (s *Service) BrowseFeed(ctx context.Context, id string) (*opds.Feed, error) {
	stored, err := s.store.GetFeed(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	return s.Browse(ctx, stored.URL)
}

// GetURLWithSearchLinks resolves query against links, preferring OPDS 1
// catalog templates. An OpenSearch description link is fetched first to
// obtain its template. Absence is a normal result.
func (s *Service) GetURLWithSearchLinks(ctx context.Context, links []opds.SearchLink, query string) (string, bool) {
	return s.ResolveSearch(ctx, links, query, opds.MediaTypeAtomCatalog)
}

// ResolveSearch is GetURLWithSearchLinks with an explicit preferred media type.
func (s *Service) ResolveSearch(ctx context.Context, links []opds.SearchLink, query, preferredType string) (string, bool) {
	link, ok := opds.SelectSearchLink(links, preferredType)
	if !ok {
		return "", false
	}

	tmpl := link.Href
	if link.IsDescription() {
		tmpl, ok = s.browser.SearchTemplate(ctx, link.Href)
		if !ok {
			return "", false
		}
	}
	return opds.ExpandTemplate(tmpl, query), true
}

// Search browses the catalog at url, resolves its search links with query
// and fetches the results.
func (s *Service) Search(ctx context.Context, url, query string) (*SearchResult, error) {
	root, err := s.Browse(ctx, url)
	if err != nil {
		return nil, err
	}

	target, ok := s.ResolveSearch(ctx, root.SearchLinks, query, root.PrimaryType())
	if !ok {
		return nil, fmt.Errorf("%s: %w", httpclient.Redact(root.URL), ErrNoSearch)
	}

	results, err := s.Browse(ctx, target)
	if err != nil {
		return nil, err
	}
	return &SearchResult{URL: target, Feed: results}, nil
}

// OAuth authenticates against a catalog source.
func (s *Service) OAuth(ctx context.Context, req oauth2.Request) (bool, error) {
	return s.auth.OAuth(ctx, req)
}

// Logout forgets the session and stored credential of a catalog source.
func (s *Service) Logout(ctx context.Context, url string) error {
	return s.auth.Logout(ctx, url)
}

// AuthState reports the authentication state of a catalog source.
func (s *Service) AuthState(url string) oauth2.State {
	return s.auth.State(url)
}

func (s *Service) logFeed(action, id, title string, err error) {
	if s.audit != nil {
		s.audit.LogFeed(action, id, title, err)
	}
}

func (s *Service) snapshot(err error) {
	var malformed *opds.MalformedFeedError
	if s.snapshots == nil || !errors.As(err, &malformed) {
		return
	}

	name, saveErr := s.snapshots.SaveSnapshot(audit.Snapshot{
		URL:         malformed.URL,
		StatusCode:  malformed.StatusCode,
		ContentType: malformed.ContentType,
		Error:       malformed.Err.Error(),
		BodyPrefix:  malformed.BodyPrefix,
		CapturedAt:  time.Now().UTC(),
	})
	if saveErr != nil {
		log.Printf("Failed to save malformed feed snapshot: %v", saveErr)
		return
	}
	log.Printf("Saved malformed feed snapshot %s", name)
}
