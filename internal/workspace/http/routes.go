package workspacehttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers the voucher API onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	aiLimiter := httprate.Limit(20, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/api/voucher-types", h.handleTypes)
	r.Post("/api/tax/split", h.handleSplit)
	r.Route("/api/vouchers", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Get("/totals", h.handleTotals)
			r.Get("/journal", h.handleJournal)
			r.Post("/actions", h.handleActions)
			r.Post("/resolve", h.handleResolve)
			r.Post("/post", h.handlePost)
			r.Delete("/commands", h.handleCancel)
			r.Group(func(gr chi.Router) {
				gr.Use(aiLimiter)
				gr.Post("/commands", h.handleCommand)
				gr.Post("/commands/answer", h.handleAnswer)
			})
		})
	})
}
