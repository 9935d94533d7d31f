// Пакет service — бизнес-логика Election API: аутентификация с OTP,
// вычисление разрешений, жизненный цикл кандидата, голосование и
// административные операции.
//
// Все изменения состояния выполняются внутри repository.Store.InTx.
// Побочные эффекты вне хранилища (push-события, письма) выполняются
// только после коммита, их ошибки логируются и не возвращаются клиенту.
package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goelection/election-api/internal/notify"
)

// PasswordHasher — хеширование и проверка паролей.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}

// OTPGenerator — генерация одноразовых кодов.
type OTPGenerator interface {
	Generate() (string, error)
}

// TokenIssuer — выпуск подписанных токенов.
type TokenIssuer interface {
	Issue(userID int64, email string, permissions []string) (string, time.Time, error)
}

// Publisher — push-канал к подписчикам. Реализуется notify.Hub.
type Publisher interface {
	Broadcast(evt notify.Event)
	SendToUser(userID int64, evt notify.Event)
	SendToUsers(userIDs []int64, evt notify.Event)
}

// Actor — пользователь, выполняющий административное действие.
type Actor struct {
	UserID int64
	Email  string
}

// performedBy возвращает email для журнала аудита.
func (a Actor) performedBy() *string {
	if a.Email == "" {
		return nil
	}
	email := a.Email
	return &email
}

var (
	votesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "election_votes_total",
			Help: "Количество попыток голосования по результату",
		},
		[]string{"outcome"},
	)

	otpVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "election_otp_verifications_total",
			Help: "Количество проверок OTP по назначению и результату",
		},
		[]string{"purpose", "outcome"},
	)
)

// outcomeLabel классифицирует ошибку для лейбла метрики.
func outcomeLabel(err error) string {
	var de *DomainError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &de):
		return strings.ToLower(de.Code)
	default:
		return "error"
	}
}

// normalizeEmail приводит email к каноническому виду для поиска.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail проверяет, что строка — одиночный адрес без display name.
func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return validationError("Некорректный email")
	}
	return nil
}

// detached возвращает контекст для побочных эффектов после коммита:
// отмена запроса клиентом не должна обрывать отправку письма.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
