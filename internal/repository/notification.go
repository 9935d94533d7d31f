package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goelection/election-api/internal/domain/model"
)

// NotificationRepository — интерфейс доступа к таблице notifications.
type NotificationRepository interface {
	// Create сохраняет уведомление одному пользователю.
	Create(ctx context.Context, n *model.Notification) error
	// CreateMany сохраняет одно сообщение для набора пользователей.
	CreateMany(ctx context.Context, userIDs []int64, message string) (int, error)
	// ListForUser возвращает уведомления пользователя, новые первыми.
	ListForUser(ctx context.Context, userID int64) ([]*model.Notification, error)
}

// notificationRepo — реализация NotificationRepository.
type notificationRepo struct {
	db DBTX
}

// NewNotificationRepository создаёт репозиторий уведомлений.
func NewNotificationRepository(db DBTX) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) Create(ctx context.Context, n *model.Notification) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO notifications (user_id, message)
		VALUES ($1, $2)
		RETURNING id, is_read, sent_at`,
		n.UserID, n.Message,
	).Scan(&n.ID, &n.IsRead, &n.SentAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения уведомления: %w", err)
	}
	return nil
}

func (r *notificationRepo) CreateMany(ctx context.Context, userIDs []int64, message string) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO notifications (user_id, message)
		SELECT uid, $2 FROM unnest($1::bigint[]) AS uid`,
		userIDs, message,
	)
	if err != nil {
		return 0, fmt.Errorf("ошибка массовой записи уведомлений: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *notificationRepo) ListForUser(ctx context.Context, userID int64) ([]*model.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, message, is_read, sent_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY sent_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения уведомлений: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.Notification, error) {
		n := &model.Notification{}
		err := row.Scan(&n.ID, &n.UserID, &n.Message, &n.IsRead, &n.SentAt)
		return n, err
	})
}
