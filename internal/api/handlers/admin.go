// admin.go — обработчики /api/v1/admin: сводка, пользователи, роли,
// журнал аудита, рассылки, должности, модерация заявок.
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/goelection/election-api/internal/api/errors"
	"github.com/bigkaa/goelection/election-api/internal/service"
)

// AdminHandler — обработчик административных операций.
type AdminHandler struct {
	admin      *service.AdminService
	candidates *service.CandidateService
	logger     *slog.Logger
}

// NewAdminHandler создаёт обработчик административных операций.
func NewAdminHandler(admin *service.AdminService, candidates *service.CandidateService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:      admin,
		candidates: candidates,
		logger:     logger.With(slog.String("component", "admin_handler")),
	}
}

type summaryResponse struct {
	TotalUsers      int `json:"total_users"`
	TotalVotes      int `json:"total_votes"`
	TotalCandidates int `json:"total_candidates"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type broadcastRequest struct {
	Message string `json:"message"`
	Target  string `json:"target"`
}

type broadcastResponse struct {
	Message    string `json:"message"`
	Recipients int    `json:"recipients"`
}

type officeRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type approveResponse struct {
	Candidate   candidateResponse `json:"candidate"`
	Permissions []string          `json:"permissions"`
}

// Summary — GET /api/v1/admin/summary.
func (h *AdminHandler) Summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.admin.Summary(r.Context())
	if err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		TotalUsers:      s.TotalUsers,
		TotalVotes:      s.TotalVotes,
		TotalCandidates: s.TotalCandidates,
	})
}

// ListUsers — GET /api/v1/admin/users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.admin.ListUsers(r.Context())
	if err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	items := make([]userResponse, 0, len(users))
	for _, u := range users {
		items = append(items, userResponse{
			ID:       u.ID,
			Name:     u.Name,
			Email:    u.Email,
			Role:     u.Role,
			IsActive: u.IsActive,
		})
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(len(items)))
	writeJSON(w, http.StatusOK, items)
}

// UpdateUserRole — PUT /api/v1/admin/users/{id}/role.
func (h *AdminHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.admin.UpdateUserRole(r.Context(), actorFrom(claims), userID, req.Role); err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Роль обновлена"})
}

// DeleteUser — DELETE /api/v1/admin/users/{id}.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.admin.DeleteUser(r.Context(), actorFrom(claims), userID); err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AuditLogs — GET /api/v1/admin/logs.
func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.admin.AuditLogs(r.Context())
	if err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	items := make([]auditLogResponse, 0, len(logs))
	for _, l := range logs {
		items = append(items, auditLogResponse{
			ID:          l.ID,
			Action:      l.Action,
			Details:     l.Details,
			PerformedBy: l.PerformedBy,
			CreatedAt:   l.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, items)
}

// Broadcast — POST /api/v1/admin/notifications/broadcast.
func (h *AdminHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req broadcastRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	n, err := h.admin.Broadcast(r.Context(), actorFrom(claims), req.Message, service.BroadcastTarget(req.Target))
	if err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, broadcastResponse{
		Message:    "Рассылка отправлена",
		Recipients: n,
	})
}

// CreateOffice — POST /api/v1/admin/offices.
func (h *AdminHandler) CreateOffice(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req officeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	office, err := h.admin.CreateOffice(r.Context(), actorFrom(claims), req.Title, req.Description)
	if err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapOffice(office))
}

// PendingCandidates — GET /api/v1/admin/candidates/pending.
func (h *AdminHandler) PendingCandidates(w http.ResponseWriter, r *http.Request) {
	list, err := h.admin.PendingCandidates(r.Context())
	if err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, mapCandidateViews(list))
}

// ApproveCandidate — PUT /api/v1/admin/candidates/{id}/approve.
// Владелец заявки получает роль Candidate; в ответе его новые разрешения.
func (h *AdminHandler) ApproveCandidate(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	res, err := h.candidates.Approve(r.Context(), actorFrom(claims), id)
	if err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, approveResponse{
		Candidate:   mapCandidate(res.Candidate),
		Permissions: res.Permissions,
	})
}

// DenyCandidate — PUT /api/v1/admin/candidates/{id}/deny.
func (h *AdminHandler) DenyCandidate(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	c, err := h.candidates.Deny(r.Context(), actorFrom(claims), id)
	if err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, mapCandidate(c))
}
