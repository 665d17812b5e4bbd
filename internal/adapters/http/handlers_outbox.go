package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) relayOnce(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 100)
	report, err := h.relay.PublishPendingOnce(r.Context(), limit)
	if err != nil {
		writeMappedError(r.Context(), w, "outbox_relay", err)
		return
	}
	writeSuccess(w, http.StatusOK, report)
}

func (h *Handler) retryOnce(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 100)
	report, err := h.relay.RetryFailedOnce(r.Context(), limit)
	if err != nil {
		writeMappedError(r.Context(), w, "outbox_retry", err)
		return
	}
	writeSuccess(w, http.StatusOK, report)
}

func (h *Handler) backlog(w http.ResponseWriter, r *http.Request) {
	report, err := h.relay.Backlog(r.Context())
	if err != nil {
		writeMappedError(r.Context(), w, "outbox_backlog", err)
		return
	}
	writeSuccess(w, http.StatusOK, report)
}

func (h *Handler) inspectDLQ(w http.ResponseWriter, r *http.Request) {
	stream := chi.URLParam(r, "stream")
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	entries, err := h.relay.InspectDLQ(r.Context(), stream, limit)
	if err != nil {
		writeMappedError(r.Context(), w, "dlq_inspect", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"stream":  stream,
		"entries": entries,
	})
}

func (h *Handler) reprocessDLQ(w http.ResponseWriter, r *http.Request) {
	stream := chi.URLParam(r, "stream")
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	report, err := h.relay.ReprocessDLQOnce(r.Context(), stream, limit)
	if err != nil {
		writeMappedError(r.Context(), w, "dlq_reprocess", err)
		return
	}
	writeSuccess(w, http.StatusOK, report)
}
