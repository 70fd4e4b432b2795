package httpclient

import (
	"net/url"
	"strings"
)

// Redact strips user info and the query string from a URL for logging.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// Origin returns scheme://host[:port] of raw, lower-cased, or "" when raw is
// not an absolute URL.
func Origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	o := url.URL{Scheme: u.Scheme, Host: u.Host}
	return strings.ToLower(o.String())
}
