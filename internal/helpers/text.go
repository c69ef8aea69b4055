package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictOnce sync.Once
	strict     *bluemonday.Policy
)

func strictPolicy() *bluemonday.Policy {
	strictOnce.Do(func() { strict = bluemonday.StrictPolicy() })
	return strict
}

// PlainText strips every tag from an HTML fragment such as a search result
// title, unescapes entities and collapses whitespace.
func PlainText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	out := strictPolicy().Sanitize(s)
	out = strings.NewReplacer("&amp;", "&", "&#39;", "'", "&#34;", `"`, "&lt;", "<", "&gt;", ">", "&nbsp;", " ").Replace(out)
	return strings.Join(strings.Fields(out), " ")
}

// ContentHash hashes text after whitespace folding and lowercasing, so two
// extractions of the same document compare equal.
func ContentHash(text string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}
