// internal/app/features/sessions/handler.go
package sessions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dalemusser/mindpath/internal/app/engine"
	"github.com/dalemusser/mindpath/internal/app/system/authz"
	"github.com/dalemusser/mindpath/internal/app/system/htmlsanitize"
	"github.com/dalemusser/mindpath/internal/app/system/httpjson"
	"github.com/dalemusser/mindpath/internal/app/system/timeouts"
	"github.com/dalemusser/mindpath/internal/app/views"
	"github.com/dalemusser/mindpath/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves the participant session API.
type Handler struct {
	Views *views.Registry
	Log   *zap.Logger
}

// NewHandler constructs a sessions Handler.
func NewHandler(reg *views.Registry, logger *zap.Logger) *Handler {
	return &Handler{Views: reg, Log: logger}
}

// submitResponse is the body of a successful submit.
type submitResponse struct {
	View       engine.View       `json:"view"`
	Submission models.Submission `json:"submission"`
	Warning    string            `json:"warning,omitempty"`
}

type fieldRequest struct {
	Value any `json:"value"`
}

type milestoneRequest struct {
	Field string `json:"field"`
	Value bool   `json:"value"`
}

// open resolves the URL's program and session for the signed-in user,
// runs the access guard and writes the error or denial itself. A nil
// coordinator means the response has been written.
func (h *Handler) open(w http.ResponseWriter, r *http.Request) (*engine.Coordinator, string, int) {
	program := chi.URLParam(r, "program")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		httpjson.Fail(w, http.StatusNotFound, "not_found", "unknown session")
		return nil, "", 0
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	c, d, err := h.Views.Open(ctx, authz.Actor(r), program, index)
	switch {
	case errors.Is(err, views.ErrUnknownProgram):
		httpjson.Fail(w, http.StatusNotFound, "not_found", "unknown program")
		return nil, "", 0
	case err != nil:
		httpjson.Error(w, h.Log, "open session", err)
		return nil, "", 0
	case c == nil:
		httpjson.Denied(w, d, deniedRedirect(r, d, program, index))
		return nil, "", 0
	}
	return c, program, index
}

// deniedRedirect picks where a denied participant should land.
func deniedRedirect(r *http.Request, d engine.Decision, program string, index int) string {
	switch d.Reason {
	case engine.NotAuthenticated:
		return "/login?return=" + url.QueryEscape(r.URL.RequestURI())
	case engine.PreviousIncomplete:
		return fmt.Sprintf("/programs/%s/sessions/%d", program, index-1)
	}
	return "/programs/" + program
}

// ServeView handles GET /programs/{program}/sessions/{index}/.
func (h *Handler) ServeView(w http.ResponseWriter, r *http.Request) {
	c, _, _ := h.open(w, r)
	if c == nil {
		return
	}
	httpjson.Write(w, http.StatusOK, c.Snapshot())
}

// HandleSetField handles PUT /fields/{key}. The body is {"value": ...};
// strings anywhere in the value are reduced to plain text.
func (h *Handler) HandleSetField(w http.ResponseWriter, r *http.Request) {
	c, _, _ := h.open(w, r)
	if c == nil {
		return
	}
	var req fieldRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	key := chi.URLParam(r, "key")
	value := htmlsanitize.Answers(map[string]any{key: req.Value})[key]
	if err := c.SetField(key, value); err != nil {
		httpjson.Error(w, h.Log, "set field", err)
		return
	}
	httpjson.Write(w, http.StatusOK, c.Snapshot())
}

// HandleStartNew handles POST /new.
func (h *Handler) HandleStartNew(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "start new", (*engine.Coordinator).StartNew)
}

// HandleCancelNew handles POST /cancel.
func (h *Handler) HandleCancelNew(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "cancel new", (*engine.Coordinator).CancelNew)
}

// HandleCloseHistory handles POST /history/close.
func (h *Handler) HandleCloseHistory(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "close history", (*engine.Coordinator).CloseHistory)
}

// ServeHistory handles GET /history/{number}.
func (h *Handler) ServeHistory(w http.ResponseWriter, r *http.Request) {
	c, _, _ := h.open(w, r)
	if c == nil {
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || n < 1 {
		httpjson.Fail(w, http.StatusNotFound, "not_found", "unknown submission")
		return
	}
	if err := c.ViewHistory(n); err != nil {
		httpjson.Error(w, h.Log, "view history", err)
		return
	}
	httpjson.Write(w, http.StatusOK, c.Snapshot())
}

func (h *Handler) command(w http.ResponseWriter, r *http.Request, op string, fn func(*engine.Coordinator) error) {
	c, _, _ := h.open(w, r)
	if c == nil {
		return
	}
	if err := fn(c); err != nil {
		httpjson.Error(w, h.Log, op, err)
		return
	}
	httpjson.Write(w, http.StatusOK, c.Snapshot())
}

// HandleSubmit handles POST /submit. A submission that was stored while
// its assignment flag was not is reported as a success with a warning;
// the flag is repaired the next time the session is opened.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	c, program, index := h.open(w, r)
	if c == nil {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "submit")
	defer cancel()

	sub, err := c.Submit(ctx)
	if err != nil && sub.ID.IsZero() {
		httpjson.Error(w, h.Log, "submit", err)
		return
	}
	resp := submitResponse{View: c.Snapshot(), Submission: sub}
	if err != nil {
		resp.Warning = "progress_not_saved"
	}
	h.Log.Info("submission created",
		zap.String("program", program),
		zap.Int("session", index),
		zap.Int("number", sub.SubmissionNumber))
	httpjson.Write(w, http.StatusCreated, resp)
}

// HandleMilestone handles POST /milestones with {"field", "value"}.
// assignment_done is only set by submitting.
func (h *Handler) HandleMilestone(w http.ResponseWriter, r *http.Request) {
	c, program, index := h.open(w, r)
	if c == nil {
		return
	}
	var req milestoneRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	m, ok := models.ParseMilestone(req.Field)
	if !ok || m == models.MilestoneAssignmentDone {
		httpjson.Fail(w, http.StatusBadRequest, "bad_request", "unknown milestone")
		return
	}

	e, err := h.Views.Engine(program)
	if err != nil {
		httpjson.Fail(w, http.StatusNotFound, "not_found", "unknown program")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	actor := authz.Actor(r)
	if err := e.SetMilestone(ctx, actor.UserID, index, m, req.Value); err != nil {
		httpjson.Error(w, h.Log, "set milestone", err)
		return
	}
	if err := c.Reload(ctx); err != nil {
		h.Log.Warn("reload after milestone failed", zap.Error(err))
	}
	httpjson.Write(w, http.StatusOK, c.Snapshot())
}
