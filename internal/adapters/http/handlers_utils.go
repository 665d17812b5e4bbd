package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/domain"
)

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

func parseIntDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func mapDomainError(err error) (int, string, string) {
	var contractErr *domain.ContractError
	if errors.As(err, &contractErr) {
		return http.StatusInternalServerError, contractErr.Code, contractErr.Message
	}
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, domain.ErrTenantRequired):
		return http.StatusBadRequest, "TENANT_REQUIRED", "tenant id is required"
	case errors.Is(err, domain.ErrWorkItemNotFound):
		return http.StatusNotFound, "NOT_FOUND", "work item not found"
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict, "CONFLICT", "work item was modified concurrently"
	case errors.Is(err, domain.ErrAlreadyCompleted):
		return http.StatusConflict, "ALREADY_COMPLETED", err.Error()
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return http.StatusConflict, "INVALID_STATE_TRANSITION", err.Error()
	case errors.Is(err, domain.ErrProcessCompleted):
		return http.StatusConflict, "PROCESS_COMPLETED", "process instance already completed"
	case errors.Is(err, domain.ErrAgentUnavailable):
		return http.StatusServiceUnavailable, "AGENT_UNAVAILABLE", "agent executor is unavailable"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

func writeMappedError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	status, code, msg := mapDomainError(err)
	logHTTPOperationError(ctx, operation, status, code, msg, err)
	writeError(w, status, code, msg)
}

func writeValidationError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	code := "VALIDATION_ERROR"
	msg := err.Error()
	logHTTPOperationError(ctx, operation, http.StatusBadRequest, code, msg, err)
	writeError(w, http.StatusBadRequest, code, msg)
}
