package opds

import (
	"bytes"
	"context"
	"encoding/xml"
	"log"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/mrlokans/opdscatalog/internal/httpclient"
)

const acceptOpenSearch = "application/opensearchdescription+xml, application/xml;q=0.9, */*;q=0.5"

// templateExpr matches OpenSearch parameters ({searchTerms}, {count?}) and
// RFC 6570 form-style expressions ({?query}, {&query,page}).
var templateExpr = regexp.MustCompile(`\{([?&]?)([^}]*)\}`)

// Resolve picks a search template from links and substitutes query into it.
// It returns false when links is empty.
func Resolve(links []SearchLink, query, preferredType string) (string, bool) {
	link, ok := SelectSearchLink(links, preferredType)
	if !ok {
		return "", false
	}
	return ExpandTemplate(link.Href, query), true
}

// SelectSearchLink returns the first link whose media type matches
// preferredType, or the first link when none matches. Links sharing a media
// type are taken in declaration order.
func SelectSearchLink(links []SearchLink, preferredType string) (SearchLink, bool) {
	if len(links) == 0 {
		return SearchLink{}, false
	}
	for _, l := range links {
		if mediaTypeMatches(l.Type, preferredType) {
			return l, true
		}
	}
	return links[0], true
}

// ExpandTemplate fills the search placeholders of tmpl with query. Optional
// OpenSearch parameters other than the search terms are emptied.
func ExpandTemplate(tmpl, query string) string {
	q := escapeQuery(query)

	var b strings.Builder
	last := 0
	for _, m := range templateExpr.FindAllStringSubmatchIndex(tmpl, -1) {
		b.WriteString(tmpl[last:m[0]])
		last = m[1]

		op := tmpl[m[2]:m[3]]
		names := tmpl[m[4]:m[5]]

		if op == "" {
			if isSearchTermsParam(names) {
				b.WriteString(q)
			}
			continue
		}

		var parts []string
		for _, name := range strings.Split(names, ",") {
			name = strings.TrimSpace(name)
			if isSearchTermsParam(name) {
				parts = append(parts, name+"="+q)
			}
		}
		if len(parts) == 0 {
			continue
		}
		if op == "?" && strings.Contains(b.String(), "?") {
			op = "&"
		}
		b.WriteString(op)
		b.WriteString(strings.Join(parts, "&"))
	}
	b.WriteString(tmpl[last:])
	return b.String()
}

func isSearchTermsParam(name string) bool {
	name = strings.TrimSuffix(name, "?")
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	switch name {
	case "searchTerms", "query", "q":
		return true
	}
	return false
}

// escapeQuery percent-encodes a query term with spaces as %20 so the result
// is safe in both paths and query strings.
func escapeQuery(q string) string {
	return strings.ReplaceAll(url.QueryEscape(q), "+", "%20")
}

type openSearchDescription struct {
	XMLName xml.Name        `xml:"OpenSearchDescription"`
	URLs    []openSearchURL `xml:"Url"`
}

type openSearchURL struct {
	Type     string `xml:"type,attr"`
	Template string `xml:"template,attr"`
	Rel      string `xml:"rel,attr"`
}

// SearchTemplate fetches an OpenSearch description document and returns its
// catalog search template as an absolute URL. Failures are logged and
// reported as absent.
func (f *Fetcher) SearchTemplate(ctx context.Context, descriptionURL string) (string, bool) {
	target, err := ParseCatalogURL(descriptionURL)
	if err != nil {
		return "", false
	}

	resp, err := f.get(ctx, target.String(), acceptOpenSearch)
	if err != nil {
		log.Printf("Failed to fetch search description %s: %v", httpclient.Redact(target.String()), err)
		return "", false
	}
	if resp.truncated {
		log.Printf("Search description %s exceeds body limit", httpclient.Redact(resp.url.String()))
		return "", false
	}

	var desc openSearchDescription
	d := xml.NewDecoder(bytes.NewReader(resp.body))
	d.CharsetReader = charset.NewReaderLabel
	d.Entity = xml.HTMLEntity
	if err := d.Decode(&desc); err != nil {
		log.Printf("Failed to parse search description %s: %v", httpclient.Redact(resp.url.String()), err)
		return "", false
	}

	tmpl, ok := pickDescriptionTemplate(desc.URLs)
	if !ok {
		return "", false
	}
	return resolveHref(resp.url, tmpl), true
}

// pickDescriptionTemplate prefers result templates returning Atom or OPDS 2
// documents, then any result template.
func pickDescriptionTemplate(urls []openSearchURL) (string, bool) {
	var fallback string
	for _, u := range urls {
		if strings.TrimSpace(u.Template) == "" {
			continue
		}
		if u.Rel != "" && u.Rel != "results" {
			continue
		}
		if mediaTypeMatches(u.Type, MediaTypeAtom) || mediaTypeMatches(u.Type, MediaTypeOPDS2) {
			return u.Template, true
		}
		if fallback == "" {
			fallback = u.Template
		}
	}
	return fallback, fallback != ""
}
