package models

import "strings"

// Result is one organic search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Query narrows a search.
type Query struct {
	Text string
	K    int
	// FileType restricts results to one extension, such as "pdf".
	FileType string
	// Sites restricts results to these hosts.
	Sites []string
}

// String renders the query with search operators.
func (q Query) String() string {
	parts := []string{strings.TrimSpace(q.Text)}
	if q.FileType != "" {
		parts = append(parts, "filetype:"+q.FileType)
	}
	if len(q.Sites) > 0 {
		sites := make([]string, len(q.Sites))
		for i, s := range q.Sites {
			sites[i] = "site:" + s
		}
		parts = append(parts, "("+strings.Join(sites, " OR ")+")")
	}
	return strings.Join(parts, " ")
}
