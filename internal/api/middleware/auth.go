// auth.go — JWT middleware аутентификации и авторизации Election API.
// Проверяет подпись и срок токена, извлекает идентификатор пользователя
// и набор разрешений. Права берутся только из токена, в хранилище
// middleware не ходит.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/goelection/election-api/internal/api/errors"
	"github.com/bigkaa/goelection/election-api/internal/domain/rbac"
	"github.com/bigkaa/goelection/election-api/internal/security"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyClaims — извлечённые claims в контексте запроса.
	ContextKeyClaims contextKey = "jwt_claims"
)

// queryTokenParam — параметр запроса с токеном для EventSource,
// который не умеет передавать заголовки.
const queryTokenParam = "access_token"

// AuthClaims — claims аутентифицированного пользователя.
type AuthClaims struct {
	// UserID — идентификатор пользователя из sub.
	UserID int64
	// Email — email из токена.
	Email string
	// Permissions — разрешения на момент выпуска токена.
	Permissions rbac.PermissionSet
}

// Has проверяет наличие разрешения.
func (c *AuthClaims) Has(perm string) bool {
	return c.Permissions.Has(perm)
}

// TokenVerifier — проверка токена. Реализуется security.TokenManager.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*security.Claims, error)
}

// JWTAuth — middleware для JWT-аутентификации.
type JWTAuth struct {
	verifier   TokenVerifier
	allowQuery bool
	logger     *slog.Logger
}

// NewJWTAuth создаёт JWT middleware.
func NewJWTAuth(verifier TokenVerifier, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		verifier: verifier,
		logger:   logger.With(slog.String("component", "jwt_auth")),
	}
}

// WithQueryToken возвращает копию middleware, которая дополнительно
// принимает токен из параметра access_token. Нужна только для SSE.
func (j *JWTAuth) WithQueryToken() *JWTAuth {
	cp := *j
	cp.allowQuery = true
	return &cp
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, валидирует его и помещает AuthClaims в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, msg := j.extractToken(r)
			if tokenString == "" {
				apierrors.Unauthorized(w, msg)
				return
			}

			raw, err := j.verifier.Verify(r.Context(), tokenString)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			userID, err := raw.UserID()
			if err != nil {
				apierrors.Unauthorized(w, "Некорректный sub в токене")
				return
			}

			claims := &AuthClaims{
				UserID:      userID,
				Email:       raw.Email,
				Permissions: rbac.NewPermissionSet(raw.Permissions),
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken достаёт токен из заголовка Authorization или, если разрешено,
// из параметра access_token. При неудаче возвращает пустой токен и сообщение.
func (j *JWTAuth) extractToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if j.allowQuery {
			if t := r.URL.Query().Get(queryTokenParam); t != "" {
				return t, ""
			}
		}
		return "", "Отсутствует заголовок Authorization"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "Неверный формат Authorization: ожидается Bearer <token>"
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return "", "Пустой Bearer token"
	}
	return tokenString, ""
}

// --- RBAC middleware ---

// RequirePermission возвращает middleware, требующий разрешение perm.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}

			if !claims.Has(perm) {
				apierrors.Forbidden(w, "Недостаточно прав: требуется разрешение "+perm)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// ClaimsFromContext извлекает AuthClaims из контекста запроса.
// Возвращает nil, если claims не найдены.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// WithClaims помещает claims в контекст. Используется в тестах обработчиков.
func WithClaims(ctx context.Context, claims *AuthClaims) context.Context {
	return context.WithValue(ctx, ContextKeyClaims, claims)
}
