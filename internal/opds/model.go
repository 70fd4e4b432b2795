package opds

import (
	"mime"
	"strings"
	"time"
)

// Media types and link relations used by OPDS 1.x and 2.0 catalogs.
const (
	MediaTypeAtom            = "application/atom+xml"
	MediaTypeAtomCatalog     = "application/atom+xml;profile=opds-catalog"
	MediaTypeAtomEntry       = "application/atom+xml;type=entry;profile=opds-catalog"
	MediaTypeOPDS2           = "application/opds+json"
	MediaTypeOPDS2Pub        = "application/opds-publication+json"
	MediaTypeOpenSearch      = "application/opensearchdescription+xml"
	MediaTypeAuthentication  = "application/opds-authentication+json"
	MediaTypeAuthenticationX = "application/vnd.opds.authentication.v1.0+json"

	RelSelf        = "self"
	RelStart       = "start"
	RelNext        = "next"
	RelPrevious    = "previous"
	RelPrev        = "prev"
	RelFirst       = "first"
	RelLast        = "last"
	RelSearch      = "search"
	RelFacet       = "http://opds-spec.org/facet"
	RelImage       = "http://opds-spec.org/image"
	RelThumbnail   = "http://opds-spec.org/image/thumbnail"
	RelAcquisition = "http://opds-spec.org/acquisition"
)

// Format identifies the document format a feed was parsed from.
type Format string

const (
	FormatAtom  Format = "atom"
	FormatOPDS2 Format = "opds2"
)

// Link is a typed hyperlink in a feed or entry. Facet fields are only set on
// facet links.
type Link struct {
	Rel       string `json:"rel,omitempty"`
	Href      string `json:"href"`
	Type      string `json:"type,omitempty"`
	Title     string `json:"title,omitempty"`
	Templated bool   `json:"templated,omitempty"`

	FacetGroup  string `json:"facet_group,omitempty"`
	ActiveFacet bool   `json:"active_facet,omitempty"`
	Count       int    `json:"count,omitempty"`
}

// IsAcquisition reports whether the link acquires a publication.
func (l Link) IsAcquisition() bool {
	return strings.HasPrefix(l.Rel, RelAcquisition)
}

// Entry is a publication or navigation entry.
type Entry struct {
	ID         string     `json:"id,omitempty"`
	Title      string     `json:"title"`
	Summary    string     `json:"summary,omitempty"`
	Content    string     `json:"content,omitempty"`
	Authors    []string   `json:"authors,omitempty"`
	Categories []string   `json:"categories,omitempty"`
	Language   string     `json:"language,omitempty"`
	Updated    *time.Time `json:"updated,omitempty"`
	Links      []Link     `json:"links,omitempty"`
}

// AcquisitionLinks returns the links that download, buy or borrow the entry.
func (e Entry) AcquisitionLinks() []Link {
	var out []Link
	for _, l := range e.Links {
		if l.IsAcquisition() {
			out = append(out, l)
		}
	}
	return out
}

// IsNavigation reports whether the entry points to another catalog feed
// rather than describing a publication.
func (e Entry) IsNavigation() bool {
	return len(e.AcquisitionLinks()) == 0
}

// FacetGroup is a named set of mutually exclusive facet links.
type FacetGroup struct {
	Title  string `json:"title"`
	Facets []Link `json:"facets"`
}

// Group is an OPDS 2 collection embedded in a feed.
type Group struct {
	Title      string  `json:"title"`
	Navigation []Link  `json:"navigation,omitempty"`
	Entries    []Entry `json:"entries,omitempty"`
	Links      []Link  `json:"links,omitempty"`
}

// SearchLink is a search template (or an OpenSearch description document
// that yields one).
type SearchLink struct {
	Rel   string `json:"rel,omitempty"`
	Href  string `json:"href"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// IsDescription reports whether the link points to an OpenSearch description
// document instead of carrying a template itself.
func (s SearchLink) IsDescription() bool {
	return mediaTypeMatches(s.Type, MediaTypeOpenSearch)
}

// Feed is a fully parsed catalog document. It is only produced by a
// successful parse and is not modified afterwards.
type Feed struct {
	ID       string     `json:"id,omitempty"`
	Title    string     `json:"title"`
	Subtitle string     `json:"subtitle,omitempty"`
	URL      string     `json:"url"`
	Format   Format     `json:"format"`
	Updated  *time.Time `json:"updated,omitempty"`
	Icon     string     `json:"icon,omitempty"`

	Entries    []Entry      `json:"entries"`
	Navigation []Link       `json:"navigation,omitempty"`
	Facets     []FacetGroup `json:"facets,omitempty"`
	Groups     []Group      `json:"groups,omitempty"`
	Links      []Link       `json:"links,omitempty"`

	Next     *Link `json:"next,omitempty"`
	Previous *Link `json:"previous,omitempty"`
	First    *Link `json:"first,omitempty"`
	Last     *Link `json:"last,omitempty"`

	SearchLinks []SearchLink `json:"search_links,omitempty"`

	TotalResults int `json:"total_results,omitempty"`
	ItemsPerPage int `json:"items_per_page,omitempty"`
	StartIndex   int `json:"start_index,omitempty"`
}

// PrimaryType is the media type search templates are matched against.
func (f *Feed) PrimaryType() string {
	if f.Format == FormatOPDS2 {
		return MediaTypeOPDS2
	}
	return MediaTypeAtomCatalog
}

// classify sorts feed-level links into pagination, search, facet and
// navigation buckets, keeping document order within each bucket.
func (f *Feed) classify(links []Link) {
	for _, l := range links {
		switch {
		case l.Rel == RelNext:
			f.Next = linkPtr(f.Next, l)
		case l.Rel == RelPrevious || l.Rel == RelPrev:
			f.Previous = linkPtr(f.Previous, l)
		case l.Rel == RelFirst:
			f.First = linkPtr(f.First, l)
		case l.Rel == RelLast:
			f.Last = linkPtr(f.Last, l)
		case l.Rel == RelSearch:
			f.SearchLinks = append(f.SearchLinks, SearchLink{Rel: l.Rel, Href: l.Href, Type: l.Type, Title: l.Title})
		case l.Rel == RelFacet:
			f.addFacet(l)
		case l.Rel == RelSelf || l.Rel == "alternate" || l.Rel == "":
			f.Links = append(f.Links, l)
		default:
			f.Navigation = append(f.Navigation, l)
		}
	}
}

func (f *Feed) addFacet(l Link) {
	group := l.FacetGroup
	for i := range f.Facets {
		if f.Facets[i].Title == group {
			f.Facets[i].Facets = append(f.Facets[i].Facets, l)
			return
		}
	}
	f.Facets = append(f.Facets, FacetGroup{Title: group, Facets: []Link{l}})
}

// linkPtr keeps the first occurrence of a pagination link.
func linkPtr(current *Link, l Link) *Link {
	if current != nil {
		return current
	}
	return &l
}

// mediaTypeMatches compares two media types ignoring parameters.
func mediaTypeMatches(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return baseMediaType(a) == baseMediaType(b)
}

func baseMediaType(v string) string {
	if mt, _, err := mime.ParseMediaType(v); err == nil {
		return mt
	}
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = v[:i]
	}
	return strings.ToLower(strings.TrimSpace(v))
}
