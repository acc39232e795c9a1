package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ventas-png/control-consumo-agua/internal/application"
)

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "create_user")
		return
	}
	var req application.CreateUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "create_user", err)
		return
	}

	res, err := h.service.CreateUser(r.Context(), token, req)
	if err != nil {
		writeMappedError(r.Context(), w, "create_user", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) changeUserRole(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "change_user_role")
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		writeValidationError(r.Context(), w, "change_user_role", errors.New("invalid user_id"))
		return
	}
	var req application.ChangeRoleRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "change_user_role", err)
		return
	}

	if err := h.service.ChangeUserRole(r.Context(), token, userID, req); err != nil {
		writeMappedError(r.Context(), w, "change_user_role", err)
		return
	}
	writeMessage(w, http.StatusOK, "Role updated successfully")
}

func (h *Handler) deactivateUser(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "deactivate_user")
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		writeValidationError(r.Context(), w, "deactivate_user", errors.New("invalid user_id"))
		return
	}

	if err := h.service.DeactivateUser(r.Context(), token, userID); err != nil {
		writeMappedError(r.Context(), w, "deactivate_user", err)
		return
	}
	writeMessage(w, http.StatusOK, "User deactivated successfully")
}

func (h *Handler) listSecurityEvents(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "list_security_events")
		return
	}

	from, err := parseTimeParam(r.URL.Query().Get("from"))
	if err != nil {
		writeValidationError(r.Context(), w, "list_security_events", err)
		return
	}
	to, err := parseTimeParam(r.URL.Query().Get("to"))
	if err != nil {
		writeValidationError(r.Context(), w, "list_security_events", err)
		return
	}

	query := application.SecurityEventQuery{
		Kind:   r.URL.Query().Get("kind"),
		UserID: r.URL.Query().Get("user_id"),
		Email:  r.URL.Query().Get("email"),
		From:   from,
		To:     to,
		Page:   parseIntDefault(r.URL.Query().Get("page"), 1),
		Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
	}
	items, err := h.service.ListSecurityEvents(r.Context(), token, query)
	if err != nil {
		writeMappedError(r.Context(), w, "list_security_events", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"events": items})
}
