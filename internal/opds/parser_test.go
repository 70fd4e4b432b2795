package opds

import (
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const atomCatalog = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"
      xmlns:opds="http://opds-spec.org/2010/catalog"
      xmlns:thr="http://purl.org/syndication/thread/1.0"
      xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/"
      xmlns:dc="http://purl.org/dc/elements/1.1/">
  <id>urn:uuid:public-library</id>
  <title>Public Library</title>
  <updated>2024-01-02T03:04:05Z</updated>
  <link rel="self" href="/opds" type="application/atom+xml;profile=opds-catalog;kind=acquisition"/>
  <link rel="start" href="/opds" type="application/atom+xml;profile=opds-catalog;kind=navigation"/>
  <link rel="next" href="/opds?page=2" type="application/atom+xml;profile=opds-catalog;kind=acquisition"/>
  <link rel="search" href="/opds/search.xml" type="application/opensearchdescription+xml"/>
  <link rel="search" href="/opds/search?q={searchTerms}" type="application/atom+xml"/>
  <link rel="http://opds-spec.org/facet" href="/opds?sort=new" title="Newest" opds:facetGroup="Sort" opds:activeFacet="true" thr:count="42"/>
  <link rel="http://opds-spec.org/facet" href="/opds?sort=title" title="Title" opds:facetGroup="Sort"/>
  <opensearch:totalResults>120</opensearch:totalResults>
  <opensearch:itemsPerPage>2</opensearch:itemsPerPage>
  <opensearch:startIndex>1</opensearch:startIndex>
  <entry>
    <title>Moby Dick</title>
    <id>urn:isbn:9780000000001</id>
    <updated>2024-01-01T00:00:00Z</updated>
    <author><name>Herman Melville</name></author>
    <dc:language>en</dc:language>
    <category term="fiction" label="Fiction"/>
    <summary>A whale of a tale.</summary>
    <link rel="http://opds-spec.org/acquisition" href="books/1.epub" type="application/epub+zip"/>
    <link rel="http://opds-spec.org/image" href="/covers/1.jpg" type="image/jpeg"/>
  </entry>
  <entry>
    <title>Poetry</title>
    <id>urn:nav:poetry</id>
    <updated>2024-01-01T00:00:00Z</updated>
    <link rel="subsection" href="/opds/poetry" type="application/atom+xml;profile=opds-catalog;kind=navigation"/>
  </entry>
</feed>`

const atomEntryDocument = `<?xml version="1.0" encoding="UTF-8"?>
<entry xmlns="http://www.w3.org/2005/Atom">
  <title>Standalone Book</title>
  <id>urn:isbn:9780000000002</id>
  <updated>2024-03-01T00:00:00Z</updated>
  <link rel="http://opds-spec.org/acquisition/open-access" href="/standalone.epub" type="application/epub+zip"/>
</entry>`

const opds2Catalog = `{
  "metadata": {"title": "OPDS 2 Library", "numberOfItems": 10, "itemsPerPage": 5, "currentPage": 2},
  "links": [
    {"rel": "self", "href": "/v2/catalog", "type": "application/opds+json"},
    {"rel": "next", "href": "/v2/catalog?page=3", "type": "application/opds+json"},
    {"rel": "search", "href": "/v2/search{?query}", "type": "application/opds+json", "templated": true}
  ],
  "navigation": [
    {"href": "/v2/new", "title": "New Arrivals", "type": "application/opds+json"}
  ],
  "facets": [
    {
      "metadata": {"title": "Language"},
      "links": [
        {"href": "/v2/catalog?lang=en", "title": "English", "rel": "self", "properties": {"numberOfItems": 7}},
        {"href": "/v2/catalog?lang=fr", "title": "French", "properties": {"numberOfItems": 3}}
      ]
    }
  ],
  "publications": [
    {
      "metadata": {
        "identifier": "urn:isbn:9780000000003",
        "title": {"fr": "Alice au pays", "en": "Alice in Wonderland"},
        "author": [{"name": "Lewis Carroll"}, "Anonymous"],
        "language": "en",
        "modified": "2024-02-03T00:00:00Z"
      },
      "links": [
        {"rel": ["http://opds-spec.org/acquisition/open-access"], "href": "/books/alice.epub", "type": "application/epub+zip"}
      ],
      "images": [
        {"href": "/covers/alice.jpg", "type": "image/jpeg"}
      ]
    }
  ]
}`

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestParseAtom_Catalog(t *testing.T) {
	feed, err := parseAtom([]byte(atomCatalog), mustURL(t, "https://lib.example/catalog/root"))
	require.NoError(t, err)

	assert.Equal(t, "urn:uuid:public-library", feed.ID)
	assert.Equal(t, "Public Library", feed.Title)
	assert.Equal(t, FormatAtom, feed.Format)
	require.NotNil(t, feed.Updated)
	assert.Equal(t, 2024, feed.Updated.Year())

	require.NotNil(t, feed.Next)
	assert.Equal(t, "https://lib.example/opds?page=2", feed.Next.Href)
	assert.Nil(t, feed.Previous)

	require.Len(t, feed.SearchLinks, 2)
	assert.True(t, feed.SearchLinks[0].IsDescription())
	assert.Equal(t, "https://lib.example/opds/search?q={searchTerms}", feed.SearchLinks[1].Href)

	require.Len(t, feed.Facets, 1)
	assert.Equal(t, "Sort", feed.Facets[0].Title)
	require.Len(t, feed.Facets[0].Facets, 2)
	assert.True(t, feed.Facets[0].Facets[0].ActiveFacet)
	assert.Equal(t, 42, feed.Facets[0].Facets[0].Count)
	assert.False(t, feed.Facets[0].Facets[1].ActiveFacet)

	require.Len(t, feed.Navigation, 1)
	assert.Equal(t, RelStart, feed.Navigation[0].Rel)

	assert.Equal(t, 120, feed.TotalResults)
	assert.Equal(t, 2, feed.ItemsPerPage)
	assert.Equal(t, 1, feed.StartIndex)

	require.Len(t, feed.Entries, 2)
	book := feed.Entries[0]
	assert.Equal(t, "Moby Dick", book.Title)
	assert.Equal(t, []string{"Herman Melville"}, book.Authors)
	assert.Equal(t, []string{"Fiction"}, book.Categories)
	assert.Equal(t, "en", book.Language)
	assert.Equal(t, "A whale of a tale.", book.Summary)
	assert.False(t, book.IsNavigation())
	acq := book.AcquisitionLinks()
	require.Len(t, acq, 1)
	assert.Equal(t, "https://lib.example/catalog/books/1.epub", acq[0].Href)

	assert.True(t, feed.Entries[1].IsNavigation())
	assert.Equal(t, "https://lib.example/opds/poetry", feed.Entries[1].Links[0].Href)
}

func TestParseAtom_EntryDocument(t *testing.T) {
	feed, err := parseAtom([]byte(atomEntryDocument), mustURL(t, "https://lib.example/opds/entry/2"))
	require.NoError(t, err)

	require.Len(t, feed.Entries, 1)
	assert.Equal(t, "Standalone Book", feed.Title)
	assert.Equal(t, "urn:isbn:9780000000002", feed.Entries[0].ID)
	require.Len(t, feed.Entries[0].AcquisitionLinks(), 1)
	assert.Equal(t, "https://lib.example/standalone.epub", feed.Entries[0].Links[0].Href)
}

func TestParseAtom_EmptyFeed(t *testing.T) {
	body := `<feed xmlns="http://www.w3.org/2005/Atom"><id>x</id><title>Empty</title></feed>`

	feed, err := parseAtom([]byte(body), mustURL(t, "https://lib.example/opds"))
	require.NoError(t, err)
	assert.Equal(t, "Empty", feed.Title)
	assert.NotNil(t, feed.Entries)
	assert.Empty(t, feed.Entries)
}

func TestParseAtom_Rejects(t *testing.T) {
	base, _ := url.Parse("https://lib.example/opds")

	tests := []struct {
		name string
		body string
	}{
		{"truncated", atomCatalog[:len(atomCatalog)/2]},
		{"html page", `<html><body><h1>Maintenance</h1></body></html>`},
		{"rss", `<rss version="2.0"><channel><title>x</title></channel></rss>`},
		{"foreign root in atom namespace", `<service xmlns="http://www.w3.org/2005/Atom"/>`},
		{"not xml", `Service Unavailable`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed, err := parseAtom([]byte(tt.body), base)
			assert.Error(t, err)
			assert.Nil(t, feed)
		})
	}
}

func TestParseAtom_TruncatedIsUnexpectedEOF(t *testing.T) {
	body := `<feed xmlns="http://www.w3.org/2005/Atom"><title>Cut</title><entry><title>A</title>`

	_, err := parseAtom([]byte(body), mustURL(t, "https://lib.example/opds"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF) || strings.Contains(err.Error(), "unexpected EOF"))
}

func TestParseOPDS2_Catalog(t *testing.T) {
	feed, err := parseOPDS2([]byte(opds2Catalog), mustURL(t, "https://lib.example/v2/catalog"))
	require.NoError(t, err)

	assert.Equal(t, "OPDS 2 Library", feed.Title)
	assert.Equal(t, FormatOPDS2, feed.Format)
	assert.Equal(t, MediaTypeOPDS2, feed.PrimaryType())
	assert.Equal(t, 10, feed.TotalResults)
	assert.Equal(t, 5, feed.ItemsPerPage)
	assert.Equal(t, 6, feed.StartIndex)

	require.NotNil(t, feed.Next)
	assert.Equal(t, "https://lib.example/v2/catalog?page=3", feed.Next.Href)

	require.Len(t, feed.SearchLinks, 1)
	assert.Equal(t, "https://lib.example/v2/search{?query}", feed.SearchLinks[0].Href)

	require.Len(t, feed.Navigation, 1)
	assert.Equal(t, "New Arrivals", feed.Navigation[0].Title)
	assert.Equal(t, "https://lib.example/v2/new", feed.Navigation[0].Href)

	require.Len(t, feed.Facets, 1)
	assert.Equal(t, "Language", feed.Facets[0].Title)
	require.Len(t, feed.Facets[0].Facets, 2)
	assert.True(t, feed.Facets[0].Facets[0].ActiveFacet)
	assert.Equal(t, 7, feed.Facets[0].Facets[0].Count)
	assert.Equal(t, "Language", feed.Facets[0].Facets[1].FacetGroup)

	require.Len(t, feed.Entries, 1)
	pub := feed.Entries[0]
	assert.Equal(t, "Alice in Wonderland", pub.Title)
	assert.Equal(t, []string{"Lewis Carroll", "Anonymous"}, pub.Authors)
	assert.Equal(t, "en", pub.Language)
	require.NotNil(t, pub.Updated)
	require.Len(t, pub.AcquisitionLinks(), 1)
	assert.Equal(t, "https://lib.example/books/alice.epub", pub.AcquisitionLinks()[0].Href)
	assert.Equal(t, RelImage, pub.Links[len(pub.Links)-1].Rel)
}

func TestParseOPDS2_PublicationDocument(t *testing.T) {
	body := `{"metadata":{"title":"Single","author":"Someone"},
		"links":[{"rel":"http://opds-spec.org/acquisition","href":"/single.epub","type":"application/epub+zip"}]}`

	feed, err := parseOPDS2([]byte(body), mustURL(t, "https://lib.example/v2/pub/1"))
	require.NoError(t, err)
	require.Len(t, feed.Entries, 1)
	assert.Equal(t, "Single", feed.Title)
	assert.Equal(t, []string{"Someone"}, feed.Entries[0].Authors)
	assert.Empty(t, feed.Navigation)
}

func TestParseOPDS2_Rejects(t *testing.T) {
	base, _ := url.Parse("https://lib.example/v2")

	for name, body := range map[string]string{
		"truncated":      opds2Catalog[:40],
		"trailing data":  `{"metadata":{"title":"x"}} {"again":true}`,
		"unrelated json": `{"status":"ok"}`,
		"array":          `[1,2,3]`,
	} {
		t.Run(name, func(t *testing.T) {
			feed, err := parseOPDS2([]byte(body), base)
			assert.Error(t, err)
			assert.Nil(t, feed)
		})
	}
}

func TestParseAuthDocument(t *testing.T) {
	body := `{
	  "id": "https://lib.example/auth",
	  "title": "Library login",
	  "authentication": [
	    {"type": "http://opds-spec.org/auth/basic"},
	    {"type": "http://opds-spec.org/auth/oauth/password",
	     "links": [
	       {"rel": "authenticate", "href": "/oauth/token"},
	       {"rel": "refresh", "href": "/oauth/refresh"}
	     ]}
	  ]
	}`

	doc := parseAuthDocument([]byte(body), mustURL(t, "https://lib.example/opds"))
	require.NotNil(t, doc)
	assert.Equal(t, "Library login", doc.Title)

	oauthURL, refreshURL, ok := doc.PasswordGrant()
	require.True(t, ok)
	assert.Equal(t, "https://lib.example/oauth/token", oauthURL)
	assert.Equal(t, "https://lib.example/oauth/refresh", refreshURL)

	assert.Nil(t, parseAuthDocument([]byte(`{"error":"nope"}`), nil))
	assert.Nil(t, parseAuthDocument([]byte(`not json`), nil))

	var missing *AuthDocument
	_, _, ok = missing.PasswordGrant()
	assert.False(t, ok)
}

func TestParseDocument_Detection(t *testing.T) {
	base := mustURL(t, "https://lib.example/opds")

	feed, err := parseDocument(&response{url: base, contentType: "text/xml", body: []byte("\xef\xbb\xbf" + atomCatalog)})
	require.NoError(t, err)
	assert.Equal(t, FormatAtom, feed.Format)

	feed, err = parseDocument(&response{url: base, contentType: "application/octet-stream", body: []byte(opds2Catalog)})
	require.NoError(t, err)
	assert.Equal(t, FormatOPDS2, feed.Format)

	feed, err = parseDocument(&response{url: base, body: []byte(atomEntryDocument)})
	require.NoError(t, err)
	assert.Len(t, feed.Entries, 1)

	_, err = parseDocument(&response{url: base, body: []byte("   ")})
	assert.Error(t, err)

	_, err = parseDocument(&response{url: base, body: []byte(atomCatalog), truncated: true})
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestResolveHref(t *testing.T) {
	base := mustURL(t, "https://lib.example/catalog/root")

	assert.Equal(t, "https://lib.example/catalog/a.epub", resolveHref(base, "a.epub"))
	assert.Equal(t, "https://other.example/x", resolveHref(base, "https://other.example/x"))
	assert.Equal(t, "https://lib.example/search{?query}", resolveHref(base, "/search{?query}"))
	assert.Equal(t, "", resolveHref(base, "  "))
}
