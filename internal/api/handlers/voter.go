// voter.go — обработчики /api/v1/voter: витрина, голосование,
// лидеры, уведомления, профиль.
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/goelection/election-api/internal/api/errors"
	"github.com/bigkaa/goelection/election-api/internal/service"
)

// VoterHandler — обработчик операций избирателя.
type VoterHandler struct {
	votes  *service.VoteService
	logger *slog.Logger
}

// NewVoterHandler создаёт обработчик операций избирателя.
func NewVoterHandler(votes *service.VoteService, logger *slog.Logger) *VoterHandler {
	return &VoterHandler{
		votes:  votes,
		logger: logger.With(slog.String("component", "voter_handler")),
	}
}

type voteRequest struct {
	CandidateID int64 `json:"candidate_id"`
	OfficeID    int64 `json:"office_id"`
}

type voteResponse struct {
	Message     string `json:"message"`
	CandidateID int64  `json:"candidate_id"`
	VoteCount   int    `json:"vote_count"`
}

type dashboardOffice struct {
	officeResponse
	Candidates []candidateResponse `json:"candidates"`
	HasVoted   bool                `json:"has_voted"`
}

type dashboardResponse struct {
	Offices []dashboardOffice `json:"offices"`
}

type profileRequest struct {
	Name           string `json:"name"`
	ProfileDetails string `json:"profile_details"`
}

// Dashboard — GET /api/v1/voter/dashboard.
func (h *VoterHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	d, err := h.votes.Dashboard(r.Context(), claims.UserID)
	if err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	voted := make(map[int64]bool, len(d.VotedOfficeIDs))
	for _, id := range d.VotedOfficeIDs {
		voted[id] = true
	}

	resp := dashboardResponse{Offices: make([]dashboardOffice, 0, len(d.Offices))}
	for _, o := range d.Offices {
		resp.Offices = append(resp.Offices, dashboardOffice{
			officeResponse: mapOffice(o),
			Candidates:     mapCandidateViews(d.Candidates[o.ID]),
			HasVoted:       voted[o.ID],
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// Vote — POST /api/v1/voter/vote.
func (h *VoterHandler) Vote(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req voteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.votes.CastVote(r.Context(), claims.UserID, req.CandidateID, req.OfficeID)
	if err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, voteResponse{
		Message:     "Голос учтён",
		CandidateID: res.CandidateID,
		VoteCount:   res.VoteCount,
	})
}

// Trends — GET /api/v1/voter/trends.
func (h *VoterHandler) Trends(w http.ResponseWriter, r *http.Request) {
	top, err := h.votes.Trends(r.Context())
	if err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, mapCandidateViews(top))
}

// Notifications — GET /api/v1/voter/notifications.
func (h *VoterHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.votes.Notifications(r.Context(), claims.UserID)
	if err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	items := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		items = append(items, notificationResponse{
			ID:      n.ID,
			Message: n.Message,
			IsRead:  n.IsRead,
			SentAt:  n.SentAt,
		})
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(len(items)))
	writeJSON(w, http.StatusOK, items)
}

// UpdateProfile — PUT /api/v1/voter/profile.
func (h *VoterHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.votes.UpdateProfile(r.Context(), claims.UserID, req.Name, req.ProfileDetails); err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Профиль обновлён"})
}
