package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/application"
)

// Handler is the HTTP adapter entrypoint for work-item use-cases.
// Keeping only application dependencies here preserves clean adapter boundaries.
type Handler struct {
	service *application.Service
	relay   *application.RelayService
}

// NewHandler constructs an HTTP handler bound to the application services.
func NewHandler(service *application.Service, relay *application.RelayService) *Handler {
	return &Handler{service: service, relay: relay}
}

// NewRouter registers M72 HTTP routes and middleware stack.
// Centralizing routes here ensures consistent tenant scoping and error
// behavior across endpoints.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/workitems/v1", func(r chi.Router) {
		r.Use(tenantMiddleware)

		r.Post("/workitems", handler.createWorkItem)
		r.Get("/workitems", handler.listWorkItems)
		r.Get("/workitems/{workitem_id}", handler.getWorkItem)
		r.Post("/workitems/{workitem_id}/start", handler.startWorkItem)
		r.Post("/workitems/{workitem_id}/submit", handler.submitWorkItem)
		r.Post("/workitems/{workitem_id}/approve", handler.approveWorkItem)
		r.Post("/workitems/{workitem_id}/rework", handler.reworkWorkItem)
		r.Post("/workitems/{workitem_id}/cancel", handler.cancelWorkItem)
		r.Post("/workitems/{workitem_id}/agent-run", handler.runAgentTask)
		r.Get("/process-instances/{proc_inst_id}/workitems", handler.listByProcInst)

		r.Get("/metrics", handler.metrics)
	})

	// Relay and DLQ operations are administrative and deliberately
	// cross-tenant; they still ride the same middleware stack for request
	// ids and logging.
	r.Route("/workitems/v1/outbox", func(r chi.Router) {
		r.Post("/relay", handler.relayOnce)
		r.Post("/retry", handler.retryOnce)
		r.Get("/backlog", handler.backlog)
		r.Get("/dlq/{stream}", handler.inspectDLQ)
		r.Post("/dlq/{stream}/reprocess", handler.reprocessDLQ)
	})

	return r
}
