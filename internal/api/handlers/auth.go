// auth.go — обработчики /api/v1/auth и /.well-known/jwks.json.
// Вход двухшаговый: пароль → OTP на почту → токен.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/goelection/election-api/internal/api/errors"
	"github.com/bigkaa/goelection/election-api/internal/service"
)

// JWKSProvider — источник публичного набора ключей. Реализуется security.TokenManager.
type JWKSProvider interface {
	JWKS(ctx context.Context) (json.RawMessage, error)
}

// AuthHandler — обработчик аутентификации.
type AuthHandler struct {
	auth   *service.AuthService
	jwks   JWKSProvider
	logger *slog.Logger
}

// NewAuthHandler создаёт обработчик аутентификации.
func NewAuthHandler(auth *service.AuthService, jwks JWKSProvider, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		jwks:   jwks,
		logger: logger.With(slog.String("component", "auth_handler")),
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

type tokenResponse struct {
	Token       string    `json:"token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Permissions []string  `json:"permissions"`
}

func mapToken(t *service.TokenResult) tokenResponse {
	return tokenResponse{
		Token:       t.Token,
		TokenType:   "Bearer",
		ExpiresAt:   t.ExpiresAt,
		Permissions: t.Permissions,
	}
}

// Register — POST /api/v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
	})
}

// Login — POST /api/v1/auth/login. Проверяет пароль и отправляет OTP.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.auth.Login(r.Context(), req.Email, req.Password); err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Код подтверждения отправлен на email"})
}

// VerifyOTP — POST /api/v1/auth/verify-otp. Гасит код и выдаёт токен.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.auth.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, mapToken(res))
}

// Refresh — POST /api/v1/auth/refresh. Пересчитывает разрешения
// и выдаёт новый токен.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	res, err := h.auth.RefreshToken(r.Context(), claims.UserID)
	if err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, mapToken(res))
}

// ForgotPassword — POST /api/v1/auth/forgot-password.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Код для сброса пароля отправлен на email"})
}

// ResetPassword — POST /api/v1/auth/reset-password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		apierrors.WriteServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Пароль изменён"})
}

// JWKS — GET /.well-known/jwks.json. Публичные ключи для проверки токенов
// внешними сервисами.
func (h *AuthHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	data, err := h.jwks.JWKS(r.Context())
	if err != nil {
		h.logger.Error("Ошибка формирования JWKS", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка формирования JWKS")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
