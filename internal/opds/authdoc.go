package opds

import (
	"encoding/json"
	"net/url"
)

// Authentication types from the OPDS Authentication 1.0 document.
const (
	AuthTypeBasic         = "http://opds-spec.org/auth/basic"
	AuthTypeOAuthPassword = "http://opds-spec.org/auth/oauth/password"
	AuthTypeOAuthImplicit = "http://opds-spec.org/auth/oauth/implicit"

	RelAuthenticate = "authenticate"
	RelRefresh      = "refresh"
)

// AuthDocument describes how a catalog expects clients to authenticate.
type AuthDocument struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	Authentication []AuthMethod `json:"authentication"`
	Links          []Link       `json:"links,omitempty"`
}

// AuthMethod is one supported authentication flow.
type AuthMethod struct {
	Type   string            `json:"type"`
	Labels map[string]string `json:"labels,omitempty"`
	Links  []Link            `json:"links,omitempty"`
}

// PasswordGrant returns the token and refresh endpoints of the OAuth password
// flow, if the document offers one. refreshURL may be empty.
func (d *AuthDocument) PasswordGrant() (oauthURL, refreshURL string, ok bool) {
	if d == nil {
		return "", "", false
	}
	for _, m := range d.Authentication {
		if m.Type != AuthTypeOAuthPassword {
			continue
		}
		for _, l := range m.Links {
			switch l.Rel {
			case RelAuthenticate:
				oauthURL = l.Href
			case RelRefresh:
				refreshURL = l.Href
			}
		}
		if oauthURL != "" {
			return oauthURL, refreshURL, true
		}
	}
	return "", "", false
}

// parseAuthDocument decodes an authentication document, resolving its links
// against base. Returns nil when body is not one.
func parseAuthDocument(body []byte, base *url.URL) *AuthDocument {
	var raw struct {
		ID             string `json:"id"`
		Title          string `json:"title"`
		Description    string `json:"description"`
		Authentication []struct {
			Type   string            `json:"type"`
			Labels map[string]string `json:"labels"`
			Links  []opds2Link       `json:"links"`
		} `json:"authentication"`
		Links []opds2Link `json:"links"`
	}
	if err := json.Unmarshal(body, &raw); err != nil || len(raw.Authentication) == 0 {
		return nil
	}

	doc := &AuthDocument{
		ID:          raw.ID,
		Title:       raw.Title,
		Description: raw.Description,
	}
	for _, a := range raw.Authentication {
		m := AuthMethod{Type: a.Type, Labels: a.Labels}
		for _, l := range a.Links {
			m.Links = append(m.Links, convertJSONLinks(base, l)...)
		}
		doc.Authentication = append(doc.Authentication, m)
	}
	for _, l := range raw.Links {
		doc.Links = append(doc.Links, convertJSONLinks(base, l)...)
	}
	return doc
}
