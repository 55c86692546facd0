package audit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-his/meridian/internal/platform/httpx"
	"github.com/meridian-his/meridian/internal/rbac"
	"github.com/meridian-his/meridian/internal/shared"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

// Handler exposes the audit timeline read endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	now     func() time.Time
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes registers audit routes behind the gate.
func (h *Handler) MountRoutes(r chi.Router, gate *rbac.Gate) {
	r.Route("/audit", func(r chi.Router) {
		r.Use(gate.Authenticate)
		r.With(gate.Require(shared.ResourceAudit, shared.ActionView)).Get("/logs", h.listLogs)
		r.With(gate.Require(shared.ResourceAudit, shared.ActionExport)).Get("/logs/export", h.exportLogs)
	})
}

type timelineResponse struct {
	Rows   []LogRow   `json:"rows"`
	Paging PagingInfo `json:"paging"`
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if result.Rows == nil {
		result.Rows = []LogRow{}
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{Rows: result.Rows, Paging: result.Paging})
}

func (h *Handler) exportLogs(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	csvBytes, err := WriteCSV(rows)
	if err != nil {
		h.logger.Error("encode csv", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-logs.csv"`)
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

// parseFilters reads the query string. Dates use YYYY-MM-DD; the default
// window is the last 7 days and the range may not exceed 90 days.
func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	now := h.now().UTC()

	toStr := strings.TrimSpace(q.Get("to"))
	if toStr == "" {
		toStr = now.Format("2006-01-02")
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return TimelineFilters{}, fmt.Errorf("invalid to date")
	}
	fromStr := strings.TrimSpace(q.Get("from"))
	if fromStr == "" {
		fromStr = to.Add(-defaultDateRange).Format("2006-01-02")
	}
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return TimelineFilters{}, fmt.Errorf("invalid from date")
	}
	if from.After(to) {
		return TimelineFilters{}, fmt.Errorf("from must not be after to")
	}
	if to.Sub(from) > maxDateRange {
		return TimelineFilters{}, fmt.Errorf("date range exceeds 90 days")
	}

	page := 0
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		page, err = strconv.Atoi(v)
		if err != nil || page <= 0 {
			return TimelineFilters{}, fmt.Errorf("invalid page")
		}
	}
	pageSize := 0
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		pageSize, err = strconv.Atoi(v)
		if err != nil || pageSize <= 0 {
			return TimelineFilters{}, fmt.Errorf("invalid page_size")
		}
	}

	return TimelineFilters{
		From:     from,
		To:       to,
		Operator: strings.TrimSpace(q.Get("operator")),
		Resource: strings.TrimSpace(q.Get("resource")),
		Action:   strings.TrimSpace(q.Get("action")),
		Page:     page,
		PageSize: pageSize,
	}, nil
}
