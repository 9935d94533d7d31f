package errors

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bigkaa/goelection/election-api/internal/service"
)

func TestWriteServiceError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"повторный голос", service.ErrAlreadyVoted, http.StatusConflict, "ALREADY_VOTED"},
		{"обёрнутая доменная ошибка", fmt.Errorf("голосование: %w", service.ErrAlreadyVoted), http.StatusConflict, "ALREADY_VOTED"},
		{"кандидат не найден", service.ErrCandidateNotFound, http.StatusNotFound, "CANDIDATE_NOT_FOUND"},
		{"несовпадение должности", service.ErrCandidateOfficeMismatch, http.StatusBadRequest, "CANDIDATE_OFFICE_MISMATCH"},
		{"неверный OTP", service.ErrInvalidOrExpiredOTP, http.StatusUnauthorized, "INVALID_OR_EXPIRED_OTP"},
		{"отключённая учётная запись", service.ErrAccountInactive, http.StatusForbidden, "ACCOUNT_INACTIVE"},
		{"инфраструктурная ошибка", fmt.Errorf("запрос: %w", io.ErrUnexpectedEOF), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteServiceError(rec, logger, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, хотели %d", rec.Code, tt.wantStatus)
			}
			var body errorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("декодирование тела: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("code = %q, хотели %q", body.Error.Code, tt.wantCode)
			}
			if body.Error.Message == "" {
				t.Error("пустое сообщение")
			}
		})
	}
}

func TestWriteServiceError_HidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteServiceError(rec, slog.New(slog.NewTextHandler(io.Discard, nil)),
		fmt.Errorf("dial tcp 10.0.0.5:5432: connection refused"))

	var body errorBody
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.Error.Message != "Внутренняя ошибка сервера" {
		t.Errorf("message = %q, детали инфраструктуры не должны попадать в ответ", body.Error.Message)
	}
}
