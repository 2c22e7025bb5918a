// internal/app/features/sessions/routes.go
package sessions

import (
	"github.com/dalemusser/mindpath/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes returns the participant router. Mount it under
// /programs/{program}/sessions/{index}.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.ServeView)
	r.Put("/fields/{key}", h.HandleSetField)
	r.Post("/new", h.HandleStartNew)
	r.Post("/cancel", h.HandleCancelNew)
	r.Post("/submit", h.HandleSubmit)
	r.Get("/history/{number}", h.ServeHistory)
	r.Post("/history/close", h.HandleCloseHistory)
	r.Post("/milestones", h.HandleMilestone)
	return r
}
