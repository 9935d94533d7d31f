// Пакет model — доменные модели Election API.
package model

import "time"

// Назначения одноразового кода. Код, выданный для одного потока,
// не принимается в другом.
const (
	OTPPurposeLogin = "login"
	OTPPurposeReset = "reset"
)

// User — учётная запись избирателя, кандидата или администратора.
// Хранится в таблице users.
type User struct {
	// ID — идентификатор пользователя
	ID int64
	// Name — отображаемое имя
	Name string
	// Email — адрес электронной почты (уникален)
	Email string
	// PasswordHash — bcrypt-дайджест пароля
	PasswordHash string
	// IsActive — активна ли учётная запись
	IsActive bool
	// OTPCode — текущий одноразовый код (nil, если не выдан)
	OTPCode *string
	// OTPPurpose — назначение кода (login, reset)
	OTPPurpose *string
	// OTPExpiresAt — абсолютный момент истечения кода
	OTPExpiresAt *time.Time
	// ProfileDetails — произвольный текст профиля
	ProfileDetails string
	// CreatedAt — время регистрации
	CreatedAt time.Time
}

// UserWithRole — пользователь и его текущие роли для списка в админке.
type UserWithRole struct {
	ID        int64
	Name      string
	Email     string
	IsActive  bool
	Roles     []string
	CreatedAt time.Time
}

// Role — именованный набор разрешений.
type Role struct {
	ID   int64
	Name string
}
