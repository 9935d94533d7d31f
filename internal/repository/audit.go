package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/goelection/election-api/internal/domain/model"
)

// AuditRepository — журнал аудита. Только добавление и чтение.
type AuditRepository interface {
	// Append добавляет запись.
	Append(ctx context.Context, entry *model.AuditLog) error
	// ListRecent возвращает limit последних записей, новые первыми.
	ListRecent(ctx context.Context, limit int) ([]*model.AuditLog, error)
}

// auditRepo — реализация AuditRepository.
type auditRepo struct {
	db DBTX
}

// NewAuditRepository создаёт репозиторий журнала аудита.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Append(ctx context.Context, entry *model.AuditLog) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO audit_logs (action, details, performed_by)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		entry.Action, entry.Details, entry.PerformedBy,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи аудита: %w", err)
	}
	return nil
}

func (r *auditRepo) ListRecent(ctx context.Context, limit int) ([]*model.AuditLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, action, details, performed_by, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала аудита: %w", err)
	}
	defer rows.Close()

	var result []*model.AuditLog
	for rows.Next() {
		e := &model.AuditLog{}
		if err := rows.Scan(&e.ID, &e.Action, &e.Details, &e.PerformedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи аудита: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
