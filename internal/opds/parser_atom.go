package opds

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed/atom"
	"golang.org/x/net/html/charset"
)

const (
	nsAtom       = "http://www.w3.org/2005/Atom"
	nsOPDS       = "http://opds-spec.org/2010/catalog"
	nsThread     = "http://purl.org/syndication/thread/1.0"
	nsOpenSearch = "http://a9.com/-/spec/opensearch/1.1/"
)

// linkAttrs holds the attributes the Atom parser drops from feed links.
type linkAttrs struct {
	facetGroup  string
	activeFacet bool
	count       int
}

// atomExtras is what the secondary token pass collects.
type atomExtras struct {
	root         string
	links        map[string]linkAttrs
	totalResults int
	itemsPerPage int
	startIndex   int
}

func linkKey(rel, href string) string {
	return rel + "\x00" + href
}

// parseAtom parses an OPDS 1.x document. A standalone <entry> document is
// returned as a feed with a single entry.
func parseAtom(body []byte, base *url.URL) (*Feed, error) {
	extras, err := scanAtom(body)
	if err != nil {
		return nil, err
	}

	doc := body
	switch extras.root {
	case "feed":
	case "entry":
		doc = wrapEntry(body)
	default:
		return nil, fmt.Errorf("unexpected root element <%s>", extras.root)
	}

	parser := &atom.Parser{}
	parsed, err := parser.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, err
	}

	feed := &Feed{
		ID:           parsed.ID,
		Title:        strings.TrimSpace(parsed.Title),
		Subtitle:     strings.TrimSpace(parsed.Subtitle),
		URL:          base.String(),
		Format:       FormatAtom,
		Updated:      parsed.UpdatedParsed,
		Icon:         resolveHref(base, parsed.Icon),
		Entries:      make([]Entry, 0, len(parsed.Entries)),
		TotalResults: extras.totalResults,
		ItemsPerPage: extras.itemsPerPage,
		StartIndex:   extras.startIndex,
	}

	links := make([]Link, 0, len(parsed.Links))
	for _, l := range parsed.Links {
		if l == nil || l.Href == "" {
			continue
		}
		link := convertAtomLink(base, l)
		if attrs, ok := extras.links[linkKey(l.Rel, l.Href)]; ok {
			link.FacetGroup = attrs.facetGroup
			link.ActiveFacet = attrs.activeFacet
			link.Count = attrs.count
		}
		links = append(links, link)
	}
	feed.classify(links)

	for _, e := range parsed.Entries {
		if e == nil {
			continue
		}
		feed.Entries = append(feed.Entries, convertAtomEntry(base, e))
	}

	if extras.root == "entry" && feed.Title == "" && len(feed.Entries) == 1 {
		feed.Title = feed.Entries[0].Title
	}

	return feed, nil
}

func convertAtomEntry(base *url.URL, e *atom.Entry) Entry {
	entry := Entry{
		ID:      e.ID,
		Title:   strings.TrimSpace(e.Title),
		Summary: strings.TrimSpace(e.Summary),
		Updated: e.UpdatedParsed,
	}
	if entry.Updated == nil {
		entry.Updated = e.PublishedParsed
	}
	if e.Content != nil {
		entry.Content = strings.TrimSpace(e.Content.Value)
	}
	for _, a := range e.Authors {
		if a != nil && a.Name != "" {
			entry.Authors = append(entry.Authors, a.Name)
		}
	}
	for _, c := range e.Categories {
		if c == nil {
			continue
		}
		label := c.Label
		if label == "" {
			label = c.Term
		}
		if label != "" {
			entry.Categories = append(entry.Categories, label)
		}
	}
	if lang, ok := e.Extensions["dc"]["language"]; ok && len(lang) > 0 {
		entry.Language = lang[0].Value
	}
	for _, l := range e.Links {
		if l == nil || l.Href == "" {
			continue
		}
		entry.Links = append(entry.Links, convertAtomLink(base, l))
	}
	return entry
}

func convertAtomLink(base *url.URL, l *atom.Link) Link {
	return Link{
		Rel:   l.Rel,
		Href:  resolveHref(base, l.Href),
		Type:  l.Type,
		Title: l.Title,
	}
}

// scanAtom walks the document with encoding/xml to find the root element and
// the attributes and OpenSearch elements the Atom parser does not keep. It
// also rejects documents that are not well formed.
func scanAtom(body []byte) (*atomExtras, error) {
	extras := &atomExtras{links: make(map[string]linkAttrs)}

	d := xml.NewDecoder(bytes.NewReader(body))
	d.CharsetReader = charset.NewReaderLabel
	d.Entity = xml.HTMLEntity

	depth := 0
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				if t.Name.Space != nsAtom {
					return nil, fmt.Errorf("root element <%s> is not in the Atom namespace", t.Name.Local)
				}
				extras.root = t.Name.Local
				continue
			}
			if depth != 2 {
				continue
			}

			switch {
			case t.Name.Space == nsAtom && t.Name.Local == "link":
				rel, href, attrs := readLinkAttrs(t)
				if attrs != (linkAttrs{}) {
					extras.links[linkKey(rel, href)] = attrs
				}
			case t.Name.Space == nsOpenSearch:
				var value string
				if err := d.DecodeElement(&value, &t); err != nil {
					return nil, err
				}
				depth--
				n, _ := strconv.Atoi(strings.TrimSpace(value))
				switch t.Name.Local {
				case "totalResults":
					extras.totalResults = n
				case "itemsPerPage":
					extras.itemsPerPage = n
				case "startIndex":
					extras.startIndex = n
				}
			}
		case xml.EndElement:
			depth--
		}
	}

	if extras.root == "" {
		return nil, errors.New("document has no root element")
	}
	if depth != 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return extras, nil
}

func readLinkAttrs(t xml.StartElement) (rel, href string, attrs linkAttrs) {
	for _, a := range t.Attr {
		switch {
		case a.Name.Space == "" && a.Name.Local == "rel":
			rel = a.Value
		case a.Name.Space == "" && a.Name.Local == "href":
			href = a.Value
		case a.Name.Space == nsOPDS && a.Name.Local == "facetGroup":
			attrs.facetGroup = a.Value
		case a.Name.Space == nsOPDS && a.Name.Local == "activeFacet":
			attrs.activeFacet = a.Value == "true"
		case a.Name.Space == nsThread && a.Name.Local == "count":
			attrs.count, _ = strconv.Atoi(strings.TrimSpace(a.Value))
		}
	}
	if rel == "" {
		rel = "alternate"
	}
	return rel, href, attrs
}

// wrapEntry embeds a standalone entry document in a feed element.
func wrapEntry(body []byte) []byte {
	doc := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if bytes.HasPrefix(doc, []byte("<?xml")) {
		if end := bytes.Index(doc, []byte("?>")); end >= 0 {
			doc = doc[end+2:]
		}
	}

	var buf bytes.Buffer
	buf.WriteString(`<feed xmlns="` + nsAtom + `">`)
	buf.Write(doc)
	buf.WriteString(`</feed>`)
	return buf.Bytes()
}

// resolveHref makes href absolute against base. For URI templates only the
// part before the first expression is resolved so braces are not escaped.
func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == nil {
		return href
	}
	var expr string
	if i := strings.IndexByte(href, '{'); i >= 0 {
		href, expr = href[:i], href[i:]
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href + expr
	}
	return base.ResolveReference(ref).String() + expr
}
