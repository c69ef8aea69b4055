package models

type Result struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	ContentType string `json:"content_type"`
	ContentHash string `json:"content_hash"`
	Status      int    `json:"status"`
	Bytes       int    `json:"bytes"`
	RenderMS    int    `json:"render_ms"`
}

// Content types reported in Result.ContentType.
const (
	ContentPDF  = "pdf"
	ContentHTML = "html"
	ContentText = "text"
)
