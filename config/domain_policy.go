package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// DomainPolicy restricts which hosts web search results may come from.
// An empty Allow list admits every host not denied.
type DomainPolicy struct {
	Allow []string `mapstructure:"allow" json:"allow"`
	Deny  []string `mapstructure:"deny" json:"deny"`
}

// Normalize cleans entries and removes duplicates.
func (c DomainPolicy) Normalize() DomainPolicy {
	return DomainPolicy{Allow: sanitizeDomainList(c.Allow), Deny: sanitizeDomainList(c.Deny)}
}

// Validate ensures configured entries do not conflict.
func (c DomainPolicy) Validate() error {
	norm := c.Normalize()
	allow := make(map[string]struct{}, len(norm.Allow))
	for _, host := range norm.Allow {
		allow[host] = struct{}{}
	}
	for _, host := range norm.Deny {
		if _, ok := allow[host]; ok {
			return fmt.Errorf("sources.domains conflict: host %q present in both allow and deny lists", host)
		}
	}
	return nil
}

// Allows reports whether rawURL may be fetched. Subdomains match their parent
// entry, so "gouv.fr" admits "www.georisques.gouv.fr".
func (c DomainPolicy) Allows(rawURL string) bool {
	host := normalizeHost(rawURL)
	if host == "" {
		return false
	}
	for _, d := range c.Deny {
		if matchesHost(host, normalizeHost(d)) {
			return false
		}
	}
	if len(c.Allow) == 0 {
		return true
	}
	for _, a := range c.Allow {
		if matchesHost(host, normalizeHost(a)) {
			return true
		}
	}
	return false
}

func matchesHost(host, entry string) bool {
	return entry != "" && (host == entry || strings.HasSuffix(host, "."+entry))
}

func sanitizeDomainList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		host := normalizeHost(raw)
		if host == "" {
			continue
		}
		seen[host] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for host := range seen {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}

func normalizeHost(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		u, err := url.Parse(value)
		if err != nil || u.Host == "" {
			return ""
		}
		value = u.Hostname()
	}
	return strings.TrimPrefix(value, "www.")
}
