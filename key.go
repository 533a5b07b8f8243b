package fetchonce

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Reference describes one fetchable resource as supplied by an item.
// Method defaults to GET. Meta is opaque to the engine: it is carried
// through to the fetch and post hooks but never participates in
// fetch-equivalence.
type Reference struct {
	URL    string
	Method string
	Body   []byte
	Meta   map[string]string
}

// Fingerprint is the canonical fetch-equivalence key for a Reference.
// Two references with the same method, canonical URL, and body map to
// the same Fingerprint and share a single fetch per session.
type Fingerprint string

// Fingerprint derives the identity key for r. It is deterministic and
// pure: the URL is canonicalized (lowercased scheme and host, default
// ports stripped, query parameters sorted, fragment dropped) before
// hashing, so semantically-equal references collapse to one fetch.
func (r Reference) Fingerprint() Fingerprint {
	h := sha1.New()
	io.WriteString(h, r.method())
	io.WriteString(h, "\n")
	io.WriteString(h, canonicalURL(r.URL))
	io.WriteString(h, "\n")
	h.Write(r.Body)
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

func (r Reference) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

func canonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		// Unparseable targets are deduplicated on the raw string.
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if i := strings.LastIndex(u.Host, ":"); i >= 0 {
		port := u.Host[i+1:]
		if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
			u.Host = u.Host[:i]
		}
	}
	u.Fragment = ""
	u.RawQuery = u.Query().Encode() // Encode sorts keys
	return u.String()
}
