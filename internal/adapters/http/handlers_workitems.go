package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/application"
)

func (h *Handler) createWorkItem(w http.ResponseWriter, r *http.Request) {
	var req application.CreateWorkItemRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "create_workitem", err)
		return
	}

	res, err := h.service.Create(r.Context(), tenantIDFromContext(r.Context()), req)
	if err != nil {
		writeMappedError(r.Context(), w, "create_workitem", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) getWorkItem(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Get(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "workitem_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "get_workitem", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) listWorkItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := application.ListWorkItemsQuery{
		Status:       q.Get("status"),
		ActivityType: q.Get("activity_type"),
		AssigneeID:   q.Get("assignee_id"),
		ProcInstID:   q.Get("proc_inst_id"),
		Limit:        parseIntDefault(q.Get("limit"), 0),
		Offset:       parseIntDefault(q.Get("offset"), 0),
	}

	res, err := h.service.List(r.Context(), tenantIDFromContext(r.Context()), query)
	if err != nil {
		writeMappedError(r.Context(), w, "list_workitems", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) listByProcInst(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ListByProcInst(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "proc_inst_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "list_workitems_by_proc_inst", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) startWorkItem(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Start(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "workitem_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "start_workitem", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) submitWorkItem(w http.ResponseWriter, r *http.Request) {
	var req application.SubmitRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "submit_workitem", err)
		return
	}

	res, err := h.service.Submit(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "workitem_id"), req)
	if err != nil {
		writeMappedError(r.Context(), w, "submit_workitem", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) approveWorkItem(w http.ResponseWriter, r *http.Request) {
	var req application.ApproveHITLRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "approve_workitem", err)
		return
	}

	res, err := h.service.ApproveHITL(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "workitem_id"), req)
	if err != nil {
		writeMappedError(r.Context(), w, "approve_workitem", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) reworkWorkItem(w http.ResponseWriter, r *http.Request) {
	var req application.ReworkRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "rework_workitem", err)
		return
	}

	res, err := h.service.Rework(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "workitem_id"), req)
	if err != nil {
		writeMappedError(r.Context(), w, "rework_workitem", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) cancelWorkItem(w http.ResponseWriter, r *http.Request) {
	var req application.CancelRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "cancel_workitem", err)
		return
	}

	res, err := h.service.Cancel(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "workitem_id"), req)
	if err != nil {
		writeMappedError(r.Context(), w, "cancel_workitem", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) runAgentTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input map[string]any `json:"input"`
	}
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeValidationError(r.Context(), w, "run_agent_task", err)
		return
	}

	res, err := h.service.ExecuteAgentTask(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "workitem_id"), req.Input)
	if err != nil {
		writeMappedError(r.Context(), w, "run_agent_task", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{
		"self_verification": h.service.VerificationMetrics(),
		"publisher":         h.service.PublisherMetrics(),
		"relay":             h.relay.Metrics(),
	})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusOK, "ready")
}
