package health

import "github.com/go-chi/chi/v5"

// Routes serves the probe at the mount point; HEAD is accepted for load
// balancers that only look at the status line.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Serve)
	r.Head("/", h.Serve)
	return r
}
