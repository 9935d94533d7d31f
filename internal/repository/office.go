package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goelection/election-api/internal/domain/model"
)

// OfficeRepository — интерфейс CRUD для таблицы offices.
type OfficeRepository interface {
	// Create создаёт должность.
	Create(ctx context.Context, o *model.Office) error
	// GetByID возвращает должность по ID.
	GetByID(ctx context.Context, id int64) (*model.Office, error)
	// ListActive возвращает открытые для голосования должности.
	ListActive(ctx context.Context) ([]*model.Office, error)
}

// officeRepo — реализация OfficeRepository.
type officeRepo struct {
	db DBTX
}

// NewOfficeRepository создаёт репозиторий должностей.
func NewOfficeRepository(db DBTX) OfficeRepository {
	return &officeRepo{db: db}
}

const officeColumns = `id, title, description, is_active, created_at`

func (r *officeRepo) Create(ctx context.Context, o *model.Office) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO offices (title, description, is_active)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		o.Title, o.Description, o.IsActive,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания должности: %w", err)
	}
	return nil
}

func (r *officeRepo) GetByID(ctx context.Context, id int64) (*model.Office, error) {
	query := fmt.Sprintf(`SELECT %s FROM offices WHERE id = $1`, officeColumns)

	o := &model.Office{}
	err := r.db.QueryRow(ctx, query, id).Scan(&o.ID, &o.Title, &o.Description, &o.IsActive, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения должности: %w", err)
	}
	return o, nil
}

func (r *officeRepo) ListActive(ctx context.Context) ([]*model.Office, error) {
	query := fmt.Sprintf(`SELECT %s FROM offices WHERE is_active ORDER BY id`, officeColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка должностей: %w", err)
	}
	defer rows.Close()

	var result []*model.Office
	for rows.Next() {
		o := &model.Office{}
		if err := rows.Scan(&o.ID, &o.Title, &o.Description, &o.IsActive, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования должности: %w", err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}
