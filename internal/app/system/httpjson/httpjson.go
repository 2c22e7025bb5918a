// Package httpjson writes JSON responses for the session and response APIs
// and maps engine errors onto HTTP status codes.
package httpjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dalemusser/mindpath/internal/app/engine"
	"github.com/dalemusser/mindpath/internal/domain/models"
	"go.uber.org/zap"
)

// MaxBody caps request bodies read by Decode.
const MaxBody = 1 << 20

// ErrorBody is the shape of every error response.
type ErrorBody struct {
	Error    string `json:"error"`
	Message  string `json:"message,omitempty"`
	Field    string `json:"field,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

// Write encodes v with status.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Fail writes an ErrorBody with the given code and message.
func Fail(w http.ResponseWriter, status int, code, msg string) {
	Write(w, status, ErrorBody{Error: code, Message: msg})
}

// Decode reads a JSON body into v. Unknown fields are rejected.
func Decode(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// Denied writes the 403 for an access-guard denial. redirect is where the
// client should send the user instead.
func Denied(w http.ResponseWriter, d engine.Decision, redirect string) {
	Write(w, http.StatusForbidden, ErrorBody{
		Error:    "access_denied",
		Reason:   string(d.Reason),
		Redirect: redirect,
	})
}

// Status maps an engine or store error to a status code and error code.
func Status(err error) (int, string) {
	var ve *engine.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, models.ErrNotFound), errors.Is(err, engine.ErrUnknownSession):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, engine.ErrNotPrivileged):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, engine.ErrIllegalTransition):
		return http.StatusConflict, "illegal_transition"
	case errors.Is(err, engine.ErrResponderMismatch):
		return http.StatusConflict, "responder_mismatch"
	case errors.Is(err, engine.ErrViewClosed):
		return http.StatusConflict, "view_closed"
	case errors.Is(err, engine.ErrUnknownField),
		errors.Is(err, engine.ErrBadFilter),
		errors.Is(err, engine.ErrEmptyResponse),
		errors.Is(err, engine.ErrConfirmRequired):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, engine.ErrPersistence):
		return http.StatusBadGateway, "persistence_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

// Error writes err using Status. Server-side failures are logged at Error
// and their detail is not echoed to the client.
func Error(w http.ResponseWriter, log *zap.Logger, op string, err error) {
	status, code := Status(err)
	body := ErrorBody{Error: code, Message: err.Error()}

	var ve *engine.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	if status >= http.StatusInternalServerError {
		if log != nil {
			log.Error(op+" failed", zap.Error(err))
		}
		body.Message = "the change could not be saved, please retry"
		if status == http.StatusInternalServerError {
			body.Message = "internal error"
		}
	}
	Write(w, status, body)
}
