package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goelection/election-api/internal/domain/model"
)

// UserRepository — интерфейс CRUD для таблицы users.
type UserRepository interface {
	// Create создаёт пользователя. ErrConflict, если email занят.
	Create(ctx context.Context, u *model.User) error
	// GetByID возвращает пользователя по ID.
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// GetByEmail возвращает пользователя по email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// LockByID блокирует строку пользователя до конца транзакции (SELECT ... FOR UPDATE).
	LockByID(ctx context.Context, id int64) error
	// SetOTP сохраняет одноразовый код с назначением и моментом истечения.
	SetOTP(ctx context.Context, id int64, code, purpose string, expiresAt time.Time) error
	// ConsumeOTP атомарно гасит код, если он совпадает, назначение верно
	// и срок не истёк. Возвращает true ровно для одного из конкурентных вызовов.
	ConsumeOTP(ctx context.Context, id int64, code, purpose string, now time.Time) (bool, error)
	// ClearExpiredOTP стирает коды, истёкшие до now. Возвращает число затронутых строк.
	ClearExpiredOTP(ctx context.Context, now time.Time) (int, error)
	// UpdatePassword заменяет дайджест пароля.
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	// UpdateProfile обновляет имя и текст профиля.
	UpdateProfile(ctx context.Context, id int64, name, details string) error
	// Delete удаляет пользователя. ErrReferenced, если есть голоса или заявки.
	Delete(ctx context.Context, id int64) error
	// List возвращает пользователей с их ролями.
	List(ctx context.Context) ([]*model.UserWithRole, error)
	// ListIDs возвращает идентификаторы всех пользователей.
	ListIDs(ctx context.Context) ([]int64, error)
	// Count возвращает количество пользователей.
	Count(ctx context.Context) (int, error)
}

// userRepo — реализация UserRepository.
type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, name, email, password_hash, is_active, otp_code, otp_purpose,
	otp_expires_at, profile_details, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.IsActive,
		&u.OTPCode, &u.OTPPurpose, &u.OTPExpiresAt, &u.ProfileDetails, &u.CreatedAt,
	)
	return u, err
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (name, email, password_hash, is_active, profile_details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		u.Name, u.Email, u.PasswordHash, u.IsActive, u.ProfileDetails,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)

	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)

	u, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя по email: %w", err)
	}
	return u, nil
}

func (r *userRepo) LockByID(ctx context.Context, id int64) error {
	var locked int64
	err := r.db.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка блокировки пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) SetOTP(ctx context.Context, id int64, code, purpose string, expiresAt time.Time) error {
	query := `
		UPDATE users
		SET otp_code = $2, otp_purpose = $3, otp_expires_at = $4
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, code, purpose, expiresAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения OTP: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) ConsumeOTP(ctx context.Context, id int64, code, purpose string, now time.Time) (bool, error) {
	query := `
		UPDATE users
		SET otp_code = NULL, otp_purpose = NULL, otp_expires_at = NULL
		WHERE id = $1
		  AND otp_code = $2
		  AND otp_purpose = $3
		  AND otp_expires_at >= $4`

	tag, err := r.db.Exec(ctx, query, id, code, purpose, now)
	if err != nil {
		return false, fmt.Errorf("ошибка погашения OTP: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *userRepo) ClearExpiredOTP(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE users
		SET otp_code = NULL, otp_purpose = NULL, otp_expires_at = NULL
		WHERE otp_expires_at < $1`

	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки истёкших OTP: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *userRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("ошибка обновления пароля: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) UpdateProfile(ctx context.Context, id int64, name, details string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET name = $2, profile_details = $3 WHERE id = $1`, id, name, details)
	if err != nil {
		return fmt.Errorf("ошибка обновления профиля: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrReferenced
		}
		return fmt.Errorf("ошибка удаления пользователя: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) List(ctx context.Context) ([]*model.UserWithRole, error) {
	query := `
		SELECT u.id, u.name, u.email, u.is_active, u.created_at,
		       COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles r ON r.id = ur.role_id
		GROUP BY u.id
		ORDER BY u.id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка пользователей: %w", err)
	}
	defer rows.Close()

	var result []*model.UserWithRole
	for rows.Next() {
		u := &model.UserWithRole{}
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.IsActive, &u.CreatedAt, &u.Roles); err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (r *userRepo) ListIDs(ctx context.Context) ([]int64, error) {
	return queryIDs(ctx, r.db, `SELECT id FROM users ORDER BY id`)
}

func (r *userRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта пользователей: %w", err)
	}
	return count, nil
}

// queryIDs выполняет запрос, возвращающий один столбец BIGINT.
func queryIDs(ctx context.Context, db DBTX, query string, args ...any) ([]int64, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения идентификаторов: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования идентификатора: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
