package evidence

import (
	"net/url"
	"strings"
	"unicode"
)

// NormalizeURL lowercases the scheme/host, strips a trailing slash and any
// fragment, and drops default ports (:80 for http, :443 for https) so that
// "https://Example.com/a/" and "https://example.com/a" dedup to the same
// key (spec §4.5: dedup key is "normalized URL").
func NormalizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	switch u.Scheme {
	case "http":
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case "https":
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// NormalizeTitle lowercases a title and strips punctuation, per spec §4.5:
// "lowercase title stripped of punctuation".
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		if unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
