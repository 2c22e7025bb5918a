// internal/app/features/responses/submissions.go
package responses

import (
	"context"
	"errors"
	"net/http"

	"github.com/dalemusser/mindpath/internal/app/engine"
	"github.com/dalemusser/mindpath/internal/app/system/authz"
	"github.com/dalemusser/mindpath/internal/app/system/htmlsanitize"
	"github.com/dalemusser/mindpath/internal/app/system/httpjson"
	"github.com/dalemusser/mindpath/internal/app/system/timeouts"
	"github.com/dalemusser/mindpath/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type submissionsResponse struct {
	Entries []engine.Entry `json:"entries"`
	Count   int            `json:"count"`
}

// ServeSubmissions handles GET /submissions: every submission of the
// session with its participant's name and cohort.
func (h *Handler) ServeSubmissions(w http.ResponseWriter, r *http.Request) {
	e, index := h.target(w, r)
	if e == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	entries, err := e.SessionSubmissions(ctx, index)
	if err != nil {
		httpjson.Error(w, h.Log, "list submissions", err)
		return
	}
	httpjson.Write(w, http.StatusOK, submissionsResponse{Entries: entries, Count: len(entries)})
}

type respondRequest struct {
	Text string `json:"text"`
}

// respondResponse is the saved submission. Warning is set when the response
// is stored but the participant's progress does not show it yet.
type respondResponse struct {
	models.Submission
	Warning string `json:"warning,omitempty"`
}

// HandleRespond handles POST /submissions/{id}/response.
func (h *Handler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	e, _ := h.target(w, r)
	if e == nil {
		return
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		httpjson.Fail(w, http.StatusNotFound, "not_found", "unknown submission")
		return
	}
	var req respondRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	sub, err := e.RespondToSubmission(ctx, authz.Actor(r), id, htmlsanitize.Response(req.Text))
	resp := respondResponse{Submission: sub}
	switch {
	case errors.Is(err, engine.ErrMirrorFailed):
		resp.Warning = "progress_not_saved"
	case err != nil:
		httpjson.Error(w, h.Log, "save response", err)
		return
	}
	httpjson.Write(w, http.StatusOK, resp)
}

type deleteRequest struct {
	IDs     []string `json:"ids"`
	Confirm bool     `json:"confirm"`
}

type deleteResponse struct {
	engine.DeleteResult
	Invalid []string `json:"invalid,omitempty"`
	Warning string   `json:"warning,omitempty"`
}

// HandleDelete handles POST /submissions/delete. Nothing is removed unless
// confirm is true. Malformed ids are reported back without being tried.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	e, _ := h.target(w, r)
	if e == nil {
		return
	}
	var req deleteRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var resp deleteResponse
	ids := make([]primitive.ObjectID, 0, len(req.IDs))
	for _, s := range req.IDs {
		id, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			resp.Invalid = append(resp.Invalid, s)
			continue
		}
		ids = append(ids, id)
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "delete submissions")
	defer cancel()

	res, err := e.DeleteSubmissions(ctx, authz.Actor(r), ids, req.Confirm)
	resp.DeleteResult = res
	if err != nil && len(res.Deleted) == 0 {
		httpjson.Error(w, h.Log, "delete submissions", err)
		return
	}
	if err != nil {
		// Submissions are gone; only the progress cleanup failed.
		h.Log.Error("delete cascade failed", zap.Error(err))
		resp.Warning = "progress_not_cleared"
	}
	httpjson.Write(w, http.StatusOK, resp)
}
