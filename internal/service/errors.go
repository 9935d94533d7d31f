// errors.go — ошибки бизнес-логики сервисного слоя.
//
// Каждая доменная ошибка — *DomainError со стабильным машинным кодом
// и коротким сообщением для пользователя. Unwrap возвращает категорию,
// по которой транспортный слой выбирает HTTP-статус.
package service

import "errors"

// Категории ошибок.
var (
	// ErrValidation — некорректные входные данные.
	ErrValidation = errors.New("ошибка валидации")
	// ErrConflict — переход недопустим при текущем состоянии.
	ErrConflict = errors.New("конфликт состояния")
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrUnauthenticated — ошибка аутентификации.
	ErrUnauthenticated = errors.New("ошибка аутентификации")
	// ErrForbidden — действие запрещено.
	ErrForbidden = errors.New("действие запрещено")
)

// DomainError — отказ бизнес-операции.
type DomainError struct {
	kind    error
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// Unwrap возвращает категорию ошибки.
func (e *DomainError) Unwrap() error {
	return e.kind
}

// Is сравнивает доменные ошибки по коду, чтобы копии с уточнённым
// сообщением совпадали с исходным значением.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

func newDomainError(kind error, code, message string) *DomainError {
	return &DomainError{kind: kind, Code: code, Message: message}
}

// validationError создаёт ошибку валидации с конкретным сообщением.
func validationError(message string) *DomainError {
	return newDomainError(ErrValidation, "VALIDATION_ERROR", message)
}

// Доменные ошибки.
var (
	ErrAlreadyVoted = newDomainError(ErrConflict, "ALREADY_VOTED",
		"Пользователь уже голосовал за эту должность")
	ErrAlreadyApplied = newDomainError(ErrConflict, "ALREADY_APPLIED",
		"Заявка на эту должность уже подана")
	ErrEmailAlreadyExists = newDomainError(ErrConflict, "EMAIL_ALREADY_EXISTS",
		"Email уже зарегистрирован")
	ErrInvalidTransition = newDomainError(ErrConflict, "INVALID_TRANSITION",
		"Недопустимая смена статуса заявки")
	ErrUserHasReferences = newDomainError(ErrConflict, "USER_HAS_REFERENCES",
		"У пользователя есть голоса или заявки, удаление невозможно")
	ErrCandidateOfficeMismatch = newDomainError(ErrValidation, "CANDIDATE_OFFICE_MISMATCH",
		"Кандидат не относится к этой должности")
	ErrCandidateNotApproved = newDomainError(ErrConflict, "CANDIDATE_NOT_APPROVED",
		"Кандидат не допущен к выборам")

	ErrUserNotFound = newDomainError(ErrNotFound, "USER_NOT_FOUND",
		"Пользователь не найден")
	ErrCandidateNotFound = newDomainError(ErrNotFound, "CANDIDATE_NOT_FOUND",
		"Кандидат не найден")
	ErrRoleNotFound = newDomainError(ErrNotFound, "ROLE_NOT_FOUND",
		"Роль не найдена")
	ErrOfficeNotFound = newDomainError(ErrNotFound, "OFFICE_NOT_FOUND",
		"Должность не найдена")
	ErrNotCandidate = newDomainError(ErrNotFound, "NOT_CANDIDATE",
		"Пользователь не является кандидатом")

	ErrInvalidCredentials = newDomainError(ErrUnauthenticated, "INVALID_CREDENTIALS",
		"Неверный email или пароль")
	ErrInvalidOrExpiredOTP = newDomainError(ErrUnauthenticated, "INVALID_OR_EXPIRED_OTP",
		"Неверный или просроченный код")
	ErrAccountInactive = newDomainError(ErrForbidden, "ACCOUNT_INACTIVE",
		"Учётная запись отключена")
	ErrUserNotFoundOrInactive = newDomainError(ErrUnauthenticated, "USER_NOT_FOUND_OR_INACTIVE",
		"Пользователь не найден или отключён")

	ErrSelfDeletion = newDomainError(ErrForbidden, "SELF_DELETION",
		"Нельзя удалить собственную учётную запись")
)
