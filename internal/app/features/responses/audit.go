// internal/app/features/responses/audit.go
package responses

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dalemusser/mindpath/internal/app/store/audit"
	"github.com/dalemusser/mindpath/internal/app/system/authz"
	"github.com/dalemusser/mindpath/internal/app/system/httpjson"
	"github.com/dalemusser/mindpath/internal/app/system/timeouts"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// AuditReader lists recorded audit events. *audit.Store satisfies it.
type AuditReader interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
	CountByFilter(ctx context.Context, filter audit.QueryFilter) (int64, error)
}

type auditEntry struct {
	At      time.Time         `json:"at"`
	Type    string            `json:"type"`
	Actor   string            `json:"actor,omitempty"`
	User    string            `json:"user,omitempty"`
	Success bool              `json:"success"`
	Reason  string            `json:"reason,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// ServeAudit handles GET /audit: the session's audit trail, newest first.
// Admins only. Optional query parameters: type, limit, offset.
func (h *Handler) ServeAudit(w http.ResponseWriter, r *http.Request) {
	if !authz.IsAdmin(r) {
		httpjson.Fail(w, http.StatusForbidden, "forbidden", "audit trail is restricted to administrators")
		return
	}
	if h.Audit == nil {
		httpjson.Fail(w, http.StatusNotFound, "not_found", "audit trail is not stored")
		return
	}
	e, index := h.target(w, r)
	if e == nil {
		return
	}

	q := r.URL.Query()
	limit := int64(defaultAuditLimit)
	if v := q.Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			httpjson.Fail(w, http.StatusBadRequest, "bad_request", "invalid limit")
			return
		}
		limit = min(n, maxAuditLimit)
	}
	var offset int64
	if v := q.Get("offset"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			httpjson.Fail(w, http.StatusBadRequest, "bad_request", "invalid offset")
			return
		}
		offset = n
	}

	filter := audit.QueryFilter{
		Program:      e.Kind(),
		SessionIndex: &index,
		EventType:    q.Get("type"),
		Limit:        limit,
		Offset:       offset,
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "audit query")
	defer cancel()

	total, err := h.Audit.CountByFilter(ctx, filter)
	if err != nil {
		httpjson.Error(w, h.Log, "audit count", err)
		return
	}
	events, err := h.Audit.Query(ctx, filter)
	if err != nil {
		httpjson.Error(w, h.Log, "audit query", err)
		return
	}

	entries := make([]auditEntry, 0, len(events))
	for _, ev := range events {
		entry := auditEntry{
			At:      ev.Timestamp.In(h.Loc),
			Type:    ev.EventType,
			Success: ev.Success,
			Reason:  ev.FailureReason,
			Details: ev.Details,
		}
		if ev.ActorID != nil {
			entry.Actor = ev.ActorID.Hex()
		}
		if ev.UserID != nil {
			entry.User = ev.UserID.Hex()
		}
		entries = append(entries, entry)
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"entries": entries, "total": total})
}
