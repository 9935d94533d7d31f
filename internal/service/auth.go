// auth.go — аутентификация: пароль → OTP → токен, регистрация,
// обновление токена и сброс пароля через OTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bigkaa/goelection/election-api/internal/domain/model"
	"github.com/bigkaa/goelection/election-api/internal/domain/rbac"
	"github.com/bigkaa/goelection/election-api/internal/notify"
	"github.com/bigkaa/goelection/election-api/internal/repository"
)

// minPasswordLength — минимальная длина пароля в символах.
const minPasswordLength = 8

// AuthConfig — параметры аутентификации.
type AuthConfig struct {
	// LoginOTPTTL — время жизни кода входа
	LoginOTPTTL time.Duration
	// ResetOTPTTL — время жизни кода сброса пароля
	ResetOTPTTL time.Duration
	// Now — источник времени (nil — time.Now)
	Now func() time.Time
}

// TokenResult — выпущенный токен.
type TokenResult struct {
	Token       string
	ExpiresAt   time.Time
	Permissions []string
}

// AuthService — сервис аутентификации.
type AuthService struct {
	store    repository.Store
	resolver *PermissionResolver
	hasher   PasswordHasher
	otp      OTPGenerator
	tokens   TokenIssuer
	mailer   notify.Mailer
	loginTTL time.Duration
	resetTTL time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(
	store repository.Store,
	hasher PasswordHasher,
	otp OTPGenerator,
	tokens TokenIssuer,
	mailer notify.Mailer,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		store:    store,
		resolver: NewPermissionResolver(store),
		hasher:   hasher,
		otp:      otp,
		tokens:   tokens,
		mailer:   mailer,
		loginTTL: cfg.LoginOTPTTL,
		resetTTL: cfg.ResetOTPTTL,
		now:      now,
		logger:   logger.With(slog.String("component", "auth_service")),
	}
}

// Login проверяет пароль и отправляет код входа на email.
// Токен не выпускается: следующий шаг — VerifyOTP.
func (s *AuthService) Login(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return validationError("Email и пароль обязательны")
	}

	user, err := s.store.Repos().Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("поиск пользователя: %w", err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if !user.IsActive {
		return ErrAccountInactive
	}

	code, err := s.issueOTP(ctx, user, model.OTPPurposeLogin, s.loginTTL)
	if err != nil {
		return err
	}

	s.sendMail(ctx, notify.Message{
		To:      user.Email,
		Subject: "Код для входа",
		Body:    fmt.Sprintf("Ваш код для входа: %s\nКод действует %s.", code, formatTTL(s.loginTTL)),
	})

	s.logger.Info("Код входа отправлен", slog.Int64("user_id", user.ID))
	return nil
}

// VerifyOTP погашает код входа и выпускает токен с текущими разрешениями.
// Код одноразовый: из двух одновременных проверок успешна ровно одна.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (*TokenResult, error) {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, validationError("Email и код обязательны")
	}

	user, err := s.store.Repos().Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("поиск пользователя: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	var permissions []string
	err = s.store.InTx(ctx, func(r *repository.Repositories) error {
		ok, err := r.Users.ConsumeOTP(ctx, user.ID, code, model.OTPPurposeLogin, s.now())
		if err != nil {
			return fmt.Errorf("погашение кода: %w", err)
		}
		if !ok {
			return ErrInvalidOrExpiredOTP
		}
		permissions, err = resolveWith(ctx, r.Roles, user.ID)
		return err
	})
	otpVerificationsTotal.WithLabelValues(model.OTPPurposeLogin, outcomeLabel(err)).Inc()
	if err != nil {
		return nil, err
	}

	return s.issueToken(user, permissions)
}

// Register создаёт учётную запись с ролью Voter (если роль существует).
// Токен не выпускается: пользователь входит через Login.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return nil, validationError("Имя обязательно")
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	if _, err := s.store.Repos().Users.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailAlreadyExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("проверка email: %w", err)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: digest,
		IsActive:     true,
	}

	err = s.store.InTx(ctx, func(r *repository.Repositories) error {
		if err := r.Users.Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrEmailAlreadyExists
			}
			return fmt.Errorf("создание пользователя: %w", err)
		}

		role, err := r.Roles.GetByName(ctx, rbac.RoleVoter)
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("Роль Voter не найдена, пользователь создан без ролей",
				slog.Int64("user_id", user.ID),
			)
			return nil
		}
		if err != nil {
			return fmt.Errorf("получение роли %s: %w", rbac.RoleVoter, err)
		}
		return r.Roles.AddUserRole(ctx, user.ID, role.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Пользователь зарегистрирован", slog.Int64("user_id", user.ID))
	return user, nil
}

// RefreshToken выпускает новый токен с разрешениями, вычисленными заново
// по графу ролей, а не из старого токена.
func (s *AuthService) RefreshToken(ctx context.Context, userID int64) (*TokenResult, error) {
	user, err := s.store.Repos().Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFoundOrInactive
		}
		return nil, fmt.Errorf("поиск пользователя: %w", err)
	}
	if !user.IsActive {
		return nil, ErrUserNotFoundOrInactive
	}

	permissions, err := s.resolver.Resolve(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return s.issueToken(user, permissions)
}

// ForgotPassword отправляет код сброса пароля.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return validationError("Email обязателен")
	}

	user, err := s.store.Repos().Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("поиск пользователя: %w", err)
	}

	code, err := s.issueOTP(ctx, user, model.OTPPurposeReset, s.resetTTL)
	if err != nil {
		return err
	}

	s.sendMail(ctx, notify.Message{
		To:      user.Email,
		Subject: "Код для сброса пароля",
		Body:    fmt.Sprintf("Ваш код для сброса пароля: %s\nКод действует %s.", code, formatTTL(s.resetTTL)),
	})

	s.logger.Info("Код сброса пароля отправлен", slog.Int64("user_id", user.ID))
	return nil
}

// ResetPassword погашает код сброса и устанавливает новый пароль
// в одной транзакции.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return validationError("Email и код обязательны")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.store.Repos().Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("поиск пользователя: %w", err)
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = s.store.InTx(ctx, func(r *repository.Repositories) error {
		ok, err := r.Users.ConsumeOTP(ctx, user.ID, code, model.OTPPurposeReset, s.now())
		if err != nil {
			return fmt.Errorf("погашение кода: %w", err)
		}
		if !ok {
			return ErrInvalidOrExpiredOTP
		}
		return r.Users.UpdatePassword(ctx, user.ID, digest)
	})
	otpVerificationsTotal.WithLabelValues(model.OTPPurposeReset, outcomeLabel(err)).Inc()
	if err != nil {
		return err
	}

	s.logger.Info("Пароль изменён по коду сброса", slog.Int64("user_id", user.ID))
	return nil
}

// issueOTP генерирует код и сохраняет его с абсолютным сроком истечения.
// Новый код заменяет предыдущий независимо от назначения.
func (s *AuthService) issueOTP(ctx context.Context, user *model.User, purpose string, ttl time.Duration) (string, error) {
	code, err := s.otp.Generate()
	if err != nil {
		return "", err
	}
	expiresAt := s.now().Add(ttl)
	if err := s.store.Repos().Users.SetOTP(ctx, user.ID, code, purpose, expiresAt); err != nil {
		return "", fmt.Errorf("сохранение кода: %w", err)
	}
	return code, nil
}

func (s *AuthService) issueToken(user *model.User, permissions []string) (*TokenResult, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID, user.Email, permissions)
	if err != nil {
		return nil, err
	}
	return &TokenResult{
		Token:       token,
		ExpiresAt:   expiresAt,
		Permissions: permissions,
	}, nil
}

// sendMail отправляет письмо. Ошибка транспорта не влияет на результат операции.
func (s *AuthService) sendMail(ctx context.Context, msg notify.Message) {
	if err := s.mailer.Send(detached(ctx), msg); err != nil {
		s.logger.Error("Ошибка отправки письма",
			slog.String("to", msg.To),
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
	}
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return validationError(fmt.Sprintf("Пароль должен содержать не менее %d символов", minPasswordLength))
	}
	return nil
}

// formatTTL — "10 мин." для писем.
func formatTTL(d time.Duration) string {
	return fmt.Sprintf("%d мин.", int(d.Round(time.Minute)/time.Minute))
}
