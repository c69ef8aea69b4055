package server

import (
	"github.com/mohammad-safakhou/climarisk/internal/pipeline"
	"github.com/mohammad-safakhou/climarisk/internal/planner"
	"github.com/mohammad-safakhou/climarisk/internal/store"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// RequestPayload carries a free-text user request.
type RequestPayload struct {
	Request string `json:"request"`
}

// SubmitResponse is the body of a successful submit.
type SubmitResponse struct {
	Tasks []planner.SubTask `json:"tasks"`
}

// ReportsResponse lists stored reports.
type ReportsResponse struct {
	Reports []store.ReportSummary `json:"reports"`
}

// RunEvent is the payload of the final "report" SSE event.
type RunEvent struct {
	Report pipeline.Report `json:"report"`
}
