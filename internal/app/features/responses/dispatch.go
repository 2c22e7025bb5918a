// internal/app/features/responses/dispatch.go
package responses

import (
	"context"
	"net/http"
	"strings"

	"github.com/dalemusser/mindpath/internal/app/engine"
	"github.com/dalemusser/mindpath/internal/app/system/authz"
	"github.com/dalemusser/mindpath/internal/app/system/htmlsanitize"
	"github.com/dalemusser/mindpath/internal/app/system/httpjson"
	"github.com/dalemusser/mindpath/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// filterRequest is the target filter without the session, which comes
// from the URL.
type filterRequest struct {
	Number int               `json:"number"`
	Cohort engine.CohortMode `json:"cohort"`
	Group  string            `json:"group"`
}

func (f filterRequest) filter(index int) engine.TargetFilter {
	return engine.TargetFilter{SessionIndex: index, Number: f.Number, Cohort: f.Cohort, Group: strings.TrimSpace(f.Group)}
}

type targetsResponse struct {
	Targets []engine.Entry `json:"targets"`
	Count   int            `json:"count"`
}

// HandleTargets handles POST /targets and previews the recipients of a
// dispatch with the given filters.
func (h *Handler) HandleTargets(w http.ResponseWriter, r *http.Request) {
	e, index := h.target(w, r)
	if e == nil {
		return
	}
	var req filterRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	targets, err := e.ComputeTargets(ctx, req.filter(index))
	if err != nil {
		httpjson.Error(w, h.Log, "compute targets", err)
		return
	}
	httpjson.Write(w, http.StatusOK, targetsResponse{Targets: targets, Count: len(targets)})
}

type dispatchRequest struct {
	filterRequest
	Text         string   `json:"text"`
	Deselected   []string `json:"deselected"`
	SkipExisting bool     `json:"skip_existing"`
	// Expected holds the submission ids of the previewed targets. When set,
	// the send is refused if the recomputed targets differ.
	Expected []string `json:"expected"`
}

type dispatchStarted struct {
	JobID string `json:"job_id"`
	Total int    `json:"total"`
}

// HandleDispatch handles POST /dispatch. Targets are recomputed from the
// filters, the deselected participants removed, and the send started as a
// background job whose ID is returned. A request carrying the previewed
// submission ids gets 409 when the targets no longer match them.
func (h *Handler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	e, index := h.target(w, r)
	if e == nil {
		return
	}
	actor := authz.Actor(r)
	if !actor.Privileged() {
		httpjson.Error(w, h.Log, "dispatch", engine.ErrNotPrivileged)
		return
	}
	if h.DispatchLimit != nil && !h.DispatchLimit.Allow(actor.UserID.Hex()) {
		httpjson.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many dispatches, try again shortly")
		return
	}

	var req dispatchRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	text := htmlsanitize.Response(req.Text)
	if text == "" {
		httpjson.Error(w, h.Log, "dispatch", engine.ErrEmptyResponse)
		return
	}
	deselected := make([]primitive.ObjectID, 0, len(req.Deselected))
	for _, s := range req.Deselected {
		id, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			httpjson.Fail(w, http.StatusBadRequest, "bad_request", "invalid participant id "+s)
			return
		}
		deselected = append(deselected, id)
	}
	var expected []primitive.ObjectID
	if req.Expected != nil {
		expected = make([]primitive.ObjectID, 0, len(req.Expected))
		for _, s := range req.Expected {
			id, err := primitive.ObjectIDFromHex(s)
			if err != nil {
				httpjson.Fail(w, http.StatusBadRequest, "bad_request", "invalid submission id "+s)
				return
			}
			expected = append(expected, id)
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	targets, err := e.ComputeTargets(ctx, req.filter(index))
	if err != nil {
		httpjson.Error(w, h.Log, "compute targets", err)
		return
	}
	if expected != nil && !sameSubmissions(targets, expected) {
		h.Log.Info("dispatch refused: targets changed since preview",
			zap.String("program", e.Kind()),
			zap.Int("session", index),
			zap.Int("previewed", len(expected)),
			zap.Int("current", len(targets)),
			zap.String("by", actor.Name))
		httpjson.Fail(w, http.StatusConflict, "targets_changed", "recipients changed since the preview; review them again")
		return
	}
	recipients := engine.Recipients(targets, deselected)
	if len(recipients) == 0 {
		httpjson.Fail(w, http.StatusBadRequest, "bad_request", "no recipients selected")
		return
	}

	id := h.Jobs.Start(e, actor, engine.DispatchRequest{
		SessionIndex: index,
		Text:         text,
		Recipients:   recipients,
		SkipExisting: req.SkipExisting,
	})
	h.Log.Info("bulk dispatch started",
		zap.String("job_id", id),
		zap.String("program", e.Kind()),
		zap.Int("session", index),
		zap.Int("recipients", len(recipients)),
		zap.String("by", actor.Name))
	httpjson.Write(w, http.StatusAccepted, dispatchStarted{JobID: id, Total: len(recipients)})
}

// sameSubmissions reports whether targets point at exactly the submissions
// in ids, in any order.
func sameSubmissions(targets []engine.Entry, ids []primitive.ObjectID) bool {
	want := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	if len(want) != len(targets) {
		return false
	}
	for _, t := range targets {
		if !want[t.Submission.ID] {
			return false
		}
	}
	return true
}

// ServeJob handles GET /dispatch/{job}.
func (h *Handler) ServeJob(w http.ResponseWriter, r *http.Request) {
	e, index := h.target(w, r)
	if e == nil {
		return
	}
	job, ok := h.Jobs.Get(chi.URLParam(r, "job"))
	if !ok || job.Program != e.Kind() || job.SessionIndex != index {
		httpjson.Fail(w, http.StatusNotFound, "not_found", "unknown job")
		return
	}
	httpjson.Write(w, http.StatusOK, job)
}
