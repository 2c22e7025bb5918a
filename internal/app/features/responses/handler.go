// internal/app/features/responses/handler.go
package responses

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dalemusser/mindpath/internal/app/dispatchjobs"
	"github.com/dalemusser/mindpath/internal/app/engine"
	"github.com/dalemusser/mindpath/internal/app/system/httpjson"
	"github.com/dalemusser/mindpath/internal/app/system/ratelimit"
	"github.com/dalemusser/mindpath/internal/app/views"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves the counselor review API: submissions, bulk dispatch,
// single responses, deletion and the CSV export.
type Handler struct {
	Views *views.Registry
	Jobs  *dispatchjobs.Registry
	Log   *zap.Logger

	// Loc is the zone export timestamps are written in.
	Loc *time.Location

	// DispatchLimit throttles dispatch starts per counselor; nil disables it.
	DispatchLimit *ratelimit.Limiter

	// Audit backs the audit trail endpoint; nil when events are not stored.
	Audit AuditReader
}

// NewHandler constructs a responses Handler. A nil loc exports in UTC.
func NewHandler(reg *views.Registry, jobs *dispatchjobs.Registry, loc *time.Location, logger *zap.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{Views: reg, Jobs: jobs, Log: logger, Loc: loc}
}

// target resolves {program} and {index}. On failure the response has been
// written and the engine is nil.
func (h *Handler) target(w http.ResponseWriter, r *http.Request) (*engine.Engine, int) {
	e, err := h.Views.Engine(chi.URLParam(r, "program"))
	if err != nil {
		httpjson.Fail(w, http.StatusNotFound, "not_found", "unknown program")
		return nil, 0
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpjson.Fail(w, http.StatusNotFound, "not_found", "unknown session")
		return nil, 0
	}
	if _, err := e.Session(index); err != nil {
		httpjson.Error(w, h.Log, "resolve session", err)
		return nil, 0
	}
	return e, index
}
