package approvals

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/edonhq/gateway/pkg/auth"
	"github.com/edonhq/gateway/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handlers serves the approval decision endpoints, mounted on the gateway
// router under /v1/approvals.
type Handlers struct {
	store *Store
	log   *slog.Logger
}

func NewHandlers(store *Store, log *slog.Logger) *Handlers {
	return &Handlers{store: store, log: log}
}

// Mount registers the routes on r.
func (h *Handlers) Mount(r chi.Router) {
	r.Get("/v1/approvals/requests", h.handleListPending)
	r.Post("/v1/approvals/requests/{id}/grant", h.handleGrant)
	r.Post("/v1/approvals/requests/{id}/deny", h.handleDeny)
}

func (h *Handlers) handleListPending(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	reqs, err := h.store.ListPending(r.Context(), tenantID)
	if err != nil {
		h.log.ErrorContext(r.Context(), "list pending approvals failed", "error", err)
		types.ErrInternal("failed to list approvals").WriteJSON(w)
		return
	}
	writeJSON(w, map[string]any{"requests": reqs, "total": len(reqs)})
}

func (h *Handlers) handleGrant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		types.ErrMalformedAction("invalid approval id").WriteJSON(w)
		return
	}
	var in GrantInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Approver == "" {
		types.ErrMalformedAction("approver is required").WriteJSON(w)
		return
	}

	tenantID := auth.TenantFromContext(r.Context())
	ok, err := h.store.Grant(r.Context(), id, tenantID, in.Approver)
	if err != nil {
		h.log.ErrorContext(r.Context(), "grant approval failed", "id", id, "error", err)
		types.ErrInternal("failed to grant approval").WriteJSON(w)
		return
	}
	if !ok {
		types.ErrMalformedAction("request is not pending").WriteJSON(w)
		return
	}
	h.log.InfoContext(r.Context(), "approval granted", "id", id, "approver", in.Approver)
	writeJSON(w, map[string]any{"granted": true, "id": id})
}

func (h *Handlers) handleDeny(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		types.ErrMalformedAction("invalid approval id").WriteJSON(w)
		return
	}
	var in DenyInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Approver == "" {
		types.ErrMalformedAction("approver is required").WriteJSON(w)
		return
	}

	tenantID := auth.TenantFromContext(r.Context())
	ok, err := h.store.Deny(r.Context(), id, tenantID, in.Approver, in.Reason)
	if err != nil {
		h.log.ErrorContext(r.Context(), "deny approval failed", "id", id, "error", err)
		types.ErrInternal("failed to deny approval").WriteJSON(w)
		return
	}
	if !ok {
		types.ErrMalformedAction("request is not pending").WriteJSON(w)
		return
	}
	h.log.InfoContext(r.Context(), "approval denied", "id", id, "approver", in.Approver)
	writeJSON(w, map[string]any{"denied": true, "id": id})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
