package model

import "time"

// Notification — сообщение пользователю. Хранится в таблице notifications.
type Notification struct {
	ID      int64
	UserID  int64
	Message string
	IsRead  bool
	SentAt  time.Time
}

// AuditLog — запись журнала аудита. Только добавление.
type AuditLog struct {
	// ID — идентификатор записи
	ID int64
	// Action — метка действия ("Vote Cast", "Candidate Approved", ...)
	Action string
	// Details — произвольное описание
	Details string
	// PerformedBy — кто выполнил действие (email, nil для системных событий)
	PerformedBy *string
	// CreatedAt — время записи
	CreatedAt time.Time
}
