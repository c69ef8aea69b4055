package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/climarisk/internal/executor"
	"github.com/mohammad-safakhou/climarisk/internal/pipeline"
	"github.com/mohammad-safakhou/climarisk/internal/store"
)

type handler struct {
	pipeline Pipeline
	reports  Reports
	logger   *zap.Logger
}

func (h *handler) Register(g *echo.Group) {
	g.POST("/submit", h.submit)
	g.POST("/runs", h.run)
	g.GET("/reports", h.listReports)
	g.GET("/reports/:id", h.getReport)
}

func bindRequest(c echo.Context) (string, error) {
	var req RequestPayload
	if err := c.Bind(&req); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	raw := strings.TrimSpace(req.Request)
	if raw == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "request required")
	}
	return raw, nil
}

// submit
//
//	@Summary	Validate a request and return its plan
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		RequestPayload	true	"User request"
//	@Success	200		{object}	SubmitResponse
//	@Failure	422		{object}	HTTPError
//	@Router		/api/submit [post]
func (h *handler) submit(c echo.Context) error {
	raw, err := bindRequest(c)
	if err != nil {
		return err
	}
	sub, err := h.pipeline.Submit(c.Request().Context(), raw)
	if err != nil {
		h.logger.Error("submit failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, pipeline.FailureMessage)
	}
	if sub.Rejected() {
		return c.JSON(http.StatusUnprocessableEntity, HTTPError{Error: sub.Error})
	}
	return c.JSON(http.StatusOK, SubmitResponse{Tasks: sub.Tasks})
}

// run streams one "progress" event per completed task, then a "report" or
// an "error" event.
//
//	@Summary	Run the pipeline for a request
//	@Accept		json
//	@Produce	text/event-stream
//	@Param		payload	body		RequestPayload	true	"User request"
//	@Success	200		{string}	string
//	@Router		/api/runs [post]
func (h *handler) run(c echo.Context) error {
	raw, err := bindRequest(c)
	if err != nil {
		return err
	}
	resp := c.Response()
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	send := func(event string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			h.logger.Error("encode event", zap.String("event", event), zap.Error(err))
			return
		}
		if _, err := resp.Write([]byte("event: " + event + "\ndata: " + string(data) + "\n\n")); err != nil {
			h.logger.Debug("client gone", zap.Error(err))
			return
		}
		flusher.Flush()
	}

	report, err := h.pipeline.Run(c.Request().Context(), raw, func(p executor.Progress) { send("progress", p) })
	var rejected *pipeline.RejectionError
	switch {
	case errors.As(err, &rejected):
		send("error", HTTPError{Error: rejected.Message})
	case err != nil:
		h.logger.Error("run failed", zap.String("run_id", report.ID), zap.Error(err))
		send("error", HTTPError{Error: pipeline.FailureMessage})
	default:
		send("report", RunEvent{Report: report})
	}
	return nil
}

// listReports
//
//	@Summary	List stored reports
//	@Produce	json
//	@Param		limit	query		int	false	"Maximum number of reports"
//	@Success	200		{object}	ReportsResponse
//	@Router		/api/reports [get]
func (h *handler) listReports(c echo.Context) error {
	if h.reports == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "report storage disabled")
	}
	limit := 0
	if v := strings.TrimSpace(c.QueryParam("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	list, err := h.reports.ListReports(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ReportsResponse{Reports: list})
}

// getReport
//
//	@Summary	Get one report
//	@Produce	json
//	@Param		id	path		string	true	"Report id"
//	@Success	200	{object}	pipeline.Report
//	@Failure	404	{object}	HTTPError
//	@Router		/api/reports/{id} [get]
func (h *handler) getReport(c echo.Context) error {
	if h.reports == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "report storage disabled")
	}
	r, err := h.reports.GetReport(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrReportNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, r)
}
