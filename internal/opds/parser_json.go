package opds

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"
)

type opds2Feed struct {
	Metadata     opds2Metadata      `json:"metadata"`
	Links        []opds2Link        `json:"links"`
	Navigation   []opds2Link        `json:"navigation"`
	Publications []opds2Publication `json:"publications"`
	Facets       []opds2Collection  `json:"facets"`
	Groups       []opds2Collection  `json:"groups"`
	Images       []opds2Link        `json:"images"`
}

type opds2Collection struct {
	Metadata     opds2Metadata      `json:"metadata"`
	Links        []opds2Link        `json:"links"`
	Navigation   []opds2Link        `json:"navigation"`
	Publications []opds2Publication `json:"publications"`
}

type opds2Metadata struct {
	Identifier    string          `json:"identifier"`
	Title         json.RawMessage `json:"title"`
	Subtitle      json.RawMessage `json:"subtitle"`
	Description   string          `json:"description"`
	Modified      string          `json:"modified"`
	Published     string          `json:"published"`
	Language      json.RawMessage `json:"language"`
	Author        json.RawMessage `json:"author"`
	Subject       json.RawMessage `json:"subject"`
	NumberOfItems int             `json:"numberOfItems"`
	ItemsPerPage  int             `json:"itemsPerPage"`
	CurrentPage   int             `json:"currentPage"`
}

type opds2Publication struct {
	Metadata opds2Metadata `json:"metadata"`
	Links    []opds2Link   `json:"links"`
	Images   []opds2Link   `json:"images"`
}

type opds2Link struct {
	Href       string          `json:"href"`
	Type       string          `json:"type"`
	Title      string          `json:"title"`
	Rel        json.RawMessage `json:"rel"`
	Templated  bool            `json:"templated"`
	Properties struct {
		NumberOfItems int `json:"numberOfItems"`
	} `json:"properties"`
}

// parseOPDS2 parses an OPDS 2.0 JSON feed. A publication document (metadata
// plus links, no collections) is returned as a single-entry feed.
func parseOPDS2(body []byte, base *url.URL) (*Feed, error) {
	var doc opds2Feed
	d := json.NewDecoder(bytes.NewReader(body))
	if err := d.Decode(&doc); err != nil {
		return nil, err
	}
	if d.More() {
		return nil, errors.New("trailing data after JSON document")
	}

	hasCollections := doc.Navigation != nil || doc.Publications != nil || doc.Groups != nil || doc.Facets != nil
	title := localized(doc.Metadata.Title)
	if title == "" && !hasCollections && len(doc.Links) == 0 {
		return nil, errors.New("document is not an OPDS 2 feed: no metadata title, links or collections")
	}

	feed := &Feed{
		ID:           doc.Metadata.Identifier,
		Title:        title,
		Subtitle:     localized(doc.Metadata.Subtitle),
		URL:          base.String(),
		Format:       FormatOPDS2,
		Updated:      parseTime(doc.Metadata.Modified),
		Entries:      []Entry{},
		TotalResults: doc.Metadata.NumberOfItems,
		ItemsPerPage: doc.Metadata.ItemsPerPage,
	}
	if doc.Metadata.CurrentPage > 0 && doc.Metadata.ItemsPerPage > 0 {
		feed.StartIndex = (doc.Metadata.CurrentPage-1)*doc.Metadata.ItemsPerPage + 1
	}

	var links []Link
	for _, l := range doc.Links {
		links = append(links, convertJSONLinks(base, l)...)
	}

	if !hasCollections && isPublication(doc) {
		pub := opds2Publication{Metadata: doc.Metadata, Links: doc.Links, Images: doc.Images}
		entry := convertPublication(base, pub)
		feed.Title = entry.Title
		feed.Entries = append(feed.Entries, entry)
		return feed, nil
	}

	feed.classify(links)

	for _, l := range doc.Navigation {
		feed.Navigation = append(feed.Navigation, convertJSONLinks(base, l)...)
	}
	for _, p := range doc.Publications {
		feed.Entries = append(feed.Entries, convertPublication(base, p))
	}
	for _, fc := range doc.Facets {
		group := FacetGroup{Title: localized(fc.Metadata.Title)}
		for _, l := range fc.Links {
			for _, link := range convertJSONLinks(base, l) {
				link.FacetGroup = group.Title
				link.Count = l.Properties.NumberOfItems
				for _, r := range relations(l.Rel) {
					if r == RelSelf {
						link.ActiveFacet = true
					}
				}
				group.Facets = append(group.Facets, link)
			}
		}
		feed.Facets = append(feed.Facets, group)
	}
	for _, g := range doc.Groups {
		group := Group{Title: localized(g.Metadata.Title)}
		for _, l := range g.Links {
			group.Links = append(group.Links, convertJSONLinks(base, l)...)
		}
		for _, l := range g.Navigation {
			group.Navigation = append(group.Navigation, convertJSONLinks(base, l)...)
		}
		for _, p := range g.Publications {
			group.Entries = append(group.Entries, convertPublication(base, p))
		}
		feed.Groups = append(feed.Groups, group)
	}

	return feed, nil
}

// isPublication reports whether a collection-less document describes a single
// publication rather than an empty feed.
func isPublication(doc opds2Feed) bool {
	if len(doc.Images) > 0 || len(doc.Metadata.Author) > 0 {
		return true
	}
	for _, l := range doc.Links {
		for _, rel := range relations(l.Rel) {
			if strings.HasPrefix(rel, RelAcquisition) {
				return true
			}
		}
	}
	return false
}

func convertPublication(base *url.URL, p opds2Publication) Entry {
	entry := Entry{
		ID:         p.Metadata.Identifier,
		Title:      localized(p.Metadata.Title),
		Summary:    strings.TrimSpace(p.Metadata.Description),
		Authors:    contributors(p.Metadata.Author),
		Categories: subjects(p.Metadata.Subject),
		Updated:    parseTime(p.Metadata.Modified),
	}
	if entry.Updated == nil {
		entry.Updated = parseTime(p.Metadata.Published)
	}
	if langs := stringOrList(p.Metadata.Language); len(langs) > 0 {
		entry.Language = langs[0]
	}
	for _, l := range p.Links {
		entry.Links = append(entry.Links, convertJSONLinks(base, l)...)
	}
	for _, img := range p.Images {
		for _, l := range convertJSONLinks(base, img) {
			if l.Rel == "" {
				l.Rel = RelImage
			}
			entry.Links = append(entry.Links, l)
		}
	}
	return entry
}

// convertJSONLinks expands a link whose rel is an array into one Link per
// relation so rel matching stays a string comparison.
func convertJSONLinks(base *url.URL, l opds2Link) []Link {
	if strings.TrimSpace(l.Href) == "" {
		return nil
	}

	href := resolveHref(base, l.Href)
	rels := relations(l.Rel)
	if len(rels) == 0 {
		rels = []string{""}
	}

	out := make([]Link, 0, len(rels))
	for _, rel := range rels {
		out = append(out, Link{
			Rel:       rel,
			Href:      href,
			Type:      l.Type,
			Title:     l.Title,
			Templated: l.Templated,
			Count:     l.Properties.NumberOfItems,
		})
	}
	return out
}

func relations(raw json.RawMessage) []string {
	return stringOrList(raw)
}

func stringOrList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one == "" {
			return nil
		}
		return []string{one}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}

// localized reads a string or a language map ({"en": "..."}), preferring
// English and falling back to any value.
func localized(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err == nil {
		if v, ok := m["en"]; ok {
			return strings.TrimSpace(v)
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > 0 {
			return strings.TrimSpace(m[keys[0]])
		}
	}
	return ""
}

// contributors accepts a name, an object with a name, or an array of either.
func contributors(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		items = []json.RawMessage{raw}
	}

	var names []string
	for _, item := range items {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
			continue
		}
		var obj struct {
			Name json.RawMessage `json:"name"`
		}
		if err := json.Unmarshal(item, &obj); err == nil {
			if name := localized(obj.Name); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

func subjects(raw json.RawMessage) []string {
	return contributors(raw)
}

func parseTime(v string) *time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}
