// Package helpers holds the URL and text normalisation shared by the document
// sources and the cache.
package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"path"
	"sort"
	"strings"
)

// tracking parameters dropped from document links; xtor and at_* are the
// AT Internet tags found on most French public sites.
var trackingParams = map[string]struct{}{
	"gclid":   {},
	"fbclid":  {},
	"msclkid": {},
	"xtor":    {},
}

func isTracking(key string) bool {
	key = strings.ToLower(key)
	if strings.HasPrefix(key, "utm_") || strings.HasPrefix(key, "at_") {
		return true
	}
	_, ok := trackingParams[key]
	return ok
}

// CanonicalURL normalises a document link so the same file found through two
// queries is only downloaded once. Scheme and host are lowercased, default
// ports and fragments removed, the path cleaned and the query sorted without
// tracking parameters. A missing scheme defaults to https.
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" && u.Host == "" {
		if u, err = url.Parse("https://" + strings.TrimPrefix(raw, "//")); err != nil {
			return "", err
		}
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", errors.New("url missing host")
	}
	if port := u.Port(); port != "" && !(u.Scheme == "http" && port == "80") && !(u.Scheme == "https" && port == "443") {
		host += ":" + port
	}
	u.Host = host
	u.User = nil

	p := path.Clean("/" + u.Path)
	if p != "/" && strings.HasSuffix(u.Path, "/") {
		p += "/"
	}
	u.Path, u.RawPath = p, ""
	u.Fragment, u.RawFragment = "", ""

	q := u.Query()
	for key, values := range q {
		if isTracking(key) {
			q.Del(key)
			continue
		}
		sort.Strings(values)
	}
	// Encode sorts by key
	u.RawQuery = q.Encode()
	u.ForceQuery = false
	return u.String(), nil
}

// URLFingerprint is the hex SHA-256 of the canonical URL.
func URLFingerprint(raw string) (string, error) {
	canonical, err := CanonicalURL(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}
