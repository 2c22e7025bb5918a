// internal/app/features/responses/routes.go
package responses

import (
	"github.com/dalemusser/mindpath/internal/app/system/auth"
	"github.com/dalemusser/mindpath/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes returns the counselor router. Mount it under
// /admin/programs/{program}/sessions/{index}.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireRole(models.RoleAdmin, models.RoleSuperAdmin, models.RoleCounselor))

	r.Get("/submissions", h.ServeSubmissions)
	r.Post("/submissions/{id}/response", h.HandleRespond)
	r.Post("/submissions/delete", h.HandleDelete)
	r.Post("/targets", h.HandleTargets)
	r.Post("/dispatch", h.HandleDispatch)
	r.Get("/dispatch/{job}", h.ServeJob)
	r.Get("/export.csv", h.ServeExport)
	r.Get("/audit", h.ServeAudit)
	return r
}
