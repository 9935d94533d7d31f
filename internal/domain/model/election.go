package model

import "time"

// CandidateStatus — состояние заявки кандидата.
type CandidateStatus string

const (
	CandidatePending  CandidateStatus = "Pending"
	CandidateApproved CandidateStatus = "Approved"
	CandidateDenied   CandidateStatus = "Denied"
)

// Office — выборная должность.
// Хранится в таблице offices.
type Office struct {
	// ID — идентификатор должности
	ID int64
	// Title — название
	Title string
	// Description — описание
	Description string
	// IsActive — открыта ли должность для голосования
	IsActive bool
	// CreatedAt — время создания
	CreatedAt time.Time
}

// Candidate — заявка пользователя на должность.
// Не более одной заявки на пару (UserID, OfficeID).
type Candidate struct {
	// ID — идентификатор кандидата
	ID int64
	// UserID — владелец заявки
	UserID int64
	// OfficeID — должность
	OfficeID int64
	// Manifesto — предвыборная программа
	Manifesto string
	// Status — Pending, Approved или Denied
	Status CandidateStatus
	// VoteCount — денормализованный счётчик голосов
	VoteCount int
	// Degree — образование
	Degree string
	// MaritalStatus — семейное положение
	MaritalStatus string
	// NationalID — номер документа
	NationalID string
	// HasCriminalRecord — наличие судимости (заявка отклоняется автоматически)
	HasCriminalRecord bool
	// CreatedAt — время подачи заявки
	CreatedAt time.Time
}

// CandidateView — кандидат с именем владельца и названием должности для чтения.
type CandidateView struct {
	Candidate
	UserName    string
	UserEmail   string
	OfficeTitle string
}

// Vote — отданный голос. Не более одного на пару (VoterUserID, OfficeID).
type Vote struct {
	ID          int64
	VoterUserID int64
	CandidateID int64
	OfficeID    int64
	CreatedAt   time.Time
}
