// Пакет handlers — HTTP-обработчики Election API.
// Обработчики разбирают запрос, вызывают сервисный слой и переводят
// результат в JSON. Права проверяются middleware до вызова обработчика.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goelection/election-api/internal/api/errors"
	"github.com/bigkaa/goelection/election-api/internal/api/middleware"
	"github.com/bigkaa/goelection/election-api/internal/domain/model"
	"github.com/bigkaa/goelection/election-api/internal/service"
)

// maxBodySize — предельный размер тела JSON-запроса.
const maxBodySize = 1 << 20

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса в dst. При ошибке пишет 400
// и возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			apierrors.ValidationError(w, "Пустое тело запроса")
			return false
		}
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return false
	}
	return true
}

// pathID разбирает числовой параметр пути. При ошибке пишет 400.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		apierrors.ValidationError(w, "Некорректный идентификатор: "+name)
		return 0, false
	}
	return id, true
}

// currentUser возвращает claims запроса. Маршруты без JWT сюда не попадают,
// поэтому отсутствие claims — 401.
func currentUser(w http.ResponseWriter, r *http.Request) (*middleware.AuthClaims, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return nil, false
	}
	return claims, true
}

// actorFrom строит Actor для журнала аудита.
func actorFrom(claims *middleware.AuthClaims) service.Actor {
	return service.Actor{UserID: claims.UserID, Email: claims.Email}
}

// messageResponse — ответ с текстовым сообщением.
type messageResponse struct {
	Message string `json:"message"`
}

// --- Представления доменных объектов ---

type officeResponse struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

func mapOffice(o *model.Office) officeResponse {
	return officeResponse{
		ID:          o.ID,
		Title:       o.Title,
		Description: o.Description,
		IsActive:    o.IsActive,
		CreatedAt:   o.CreatedAt,
	}
}

type candidateResponse struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	OfficeID    int64  `json:"office_id"`
	Manifesto   string `json:"manifesto"`
	Status      string `json:"status"`
	VoteCount   int    `json:"vote_count"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	OfficeTitle string `json:"office_title,omitempty"`
}

func mapCandidate(c *model.Candidate) candidateResponse {
	return candidateResponse{
		ID:        c.ID,
		UserID:    c.UserID,
		OfficeID:  c.OfficeID,
		Manifesto: c.Manifesto,
		Status:    string(c.Status),
		VoteCount: c.VoteCount,
	}
}

func mapCandidateView(v *model.CandidateView) candidateResponse {
	resp := mapCandidate(&v.Candidate)
	resp.Name = v.UserName
	resp.Email = v.UserEmail
	resp.OfficeTitle = v.OfficeTitle
	return resp
}

func mapCandidateViews(list []*model.CandidateView) []candidateResponse {
	out := make([]candidateResponse, 0, len(list))
	for _, v := range list {
		out = append(out, mapCandidateView(v))
	}
	return out
}

type notificationResponse struct {
	ID      int64     `json:"id"`
	Message string    `json:"message"`
	IsRead  bool      `json:"is_read"`
	SentAt  time.Time `json:"sent_at"`
}

type auditLogResponse struct {
	ID          int64     `json:"id"`
	Action      string    `json:"action"`
	Details     string    `json:"details"`
	PerformedBy *string   `json:"performed_by"`
	CreatedAt   time.Time `json:"created_at"`
}
