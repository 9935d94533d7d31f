// candidate.go — обработчики /api/v1/candidate: подача заявки,
// статистика и программа кандидата.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goelection/election-api/internal/api/errors"
	"github.com/bigkaa/goelection/election-api/internal/service"
)

// CandidateHandler — обработчик операций кандидата.
type CandidateHandler struct {
	candidates *service.CandidateService
	logger     *slog.Logger
}

// NewCandidateHandler создаёт обработчик операций кандидата.
func NewCandidateHandler(candidates *service.CandidateService, logger *slog.Logger) *CandidateHandler {
	return &CandidateHandler{
		candidates: candidates,
		logger:     logger.With(slog.String("component", "candidate_handler")),
	}
}

type applyRequest struct {
	OfficeID          int64  `json:"office_id"`
	Manifesto         string `json:"manifesto"`
	Degree            string `json:"degree"`
	MaritalStatus     string `json:"marital_status"`
	NationalID        string `json:"national_id"`
	HasCriminalRecord bool   `json:"has_criminal_record"`
}

type applyResponse struct {
	Message   string            `json:"message"`
	Candidate candidateResponse `json:"candidate"`
}

type statsResponse struct {
	CandidateID int64  `json:"candidate_id"`
	OfficeID    int64  `json:"office_id"`
	Status      string `json:"status"`
	Rank        int    `json:"rank"`
	VoteCount   int    `json:"vote_count"`
}

type manifestoRequest struct {
	Manifesto string `json:"manifesto"`
}

// Apply — POST /api/v1/candidate/apply.
// Заявка с судимостью создаётся сразу отклонённой, ответ всё равно 201.
func (h *CandidateHandler) Apply(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req applyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.candidates.Apply(r.Context(), claims.UserID, service.ApplyRequest{
		OfficeID:          req.OfficeID,
		Manifesto:         req.Manifesto,
		Degree:            req.Degree,
		MaritalStatus:     req.MaritalStatus,
		NationalID:        req.NationalID,
		HasCriminalRecord: req.HasCriminalRecord,
	})
	if err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, applyResponse{
		Message:   res.Message,
		Candidate: mapCandidate(res.Candidate),
	})
}

// Stats — GET /api/v1/candidate/stats.
func (h *CandidateHandler) Stats(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	stats, err := h.candidates.Stats(r.Context(), claims.UserID)
	if err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		CandidateID: stats.CandidateID,
		OfficeID:    stats.OfficeID,
		Status:      string(stats.Status),
		Rank:        stats.Rank,
		VoteCount:   stats.VoteCount,
	})
}

// UpdateManifesto — PUT /api/v1/candidate/manifesto.
func (h *CandidateHandler) UpdateManifesto(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req manifestoRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.candidates.UpdateManifesto(r.Context(), claims.UserID, req.Manifesto); err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Программа обновлена"})
}
