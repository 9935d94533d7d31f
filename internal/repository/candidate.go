package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goelection/election-api/internal/domain/model"
)

// CandidateRepository — интерфейс доступа к таблице candidates.
type CandidateRepository interface {
	// Create создаёт заявку. ErrConflict, если заявка на (user, office) уже есть.
	Create(ctx context.Context, c *model.Candidate) error
	// GetByID возвращает кандидата по ID.
	GetByID(ctx context.Context, id int64) (*model.Candidate, error)
	// LatestByUser возвращает последнюю заявку пользователя.
	LatestByUser(ctx context.Context, userID int64) (*model.Candidate, error)
	// Exists проверяет наличие заявки на (user, office).
	Exists(ctx context.Context, userID, officeID int64) (bool, error)
	// SetStatus меняет статус заявки.
	SetStatus(ctx context.Context, id int64, status model.CandidateStatus) error
	// IncrementVotes атомарно увеличивает счётчик на единицу и возвращает новое значение.
	IncrementVotes(ctx context.Context, id int64) (int, error)
	// UpdateManifesto заменяет текст программы.
	UpdateManifesto(ctx context.Context, id int64, manifesto string) error
	// Rank возвращает место: 1 + число кандидатов той же должности с большим счётчиком.
	Rank(ctx context.Context, officeID int64, voteCount int) (int, error)
	// ListByStatus возвращает кандидатов с указанным статусом.
	ListByStatus(ctx context.Context, status model.CandidateStatus) ([]*model.CandidateView, error)
	// TopApproved возвращает одобренных кандидатов по убыванию счётчика.
	TopApproved(ctx context.Context, limit int) ([]*model.CandidateView, error)
	// OwnerIDs возвращает пользователей, подавших хотя бы одну заявку.
	OwnerIDs(ctx context.Context) ([]int64, error)
	// Count возвращает количество заявок.
	Count(ctx context.Context) (int, error)
}

// candidateRepo — реализация CandidateRepository.
type candidateRepo struct {
	db DBTX
}

// NewCandidateRepository создаёт репозиторий кандидатов.
func NewCandidateRepository(db DBTX) CandidateRepository {
	return &candidateRepo{db: db}
}

const candidateColumns = `c.id, c.user_id, c.office_id, c.manifesto, c.status, c.vote_count,
	c.degree, c.marital_status, c.national_id, c.has_criminal_record, c.created_at`

func candidateFields(c *model.Candidate) []any {
	return []any{
		&c.ID, &c.UserID, &c.OfficeID, &c.Manifesto, &c.Status, &c.VoteCount,
		&c.Degree, &c.MaritalStatus, &c.NationalID, &c.HasCriminalRecord, &c.CreatedAt,
	}
}

func (r *candidateRepo) Create(ctx context.Context, c *model.Candidate) error {
	query := `
		INSERT INTO candidates (user_id, office_id, manifesto, status, vote_count,
			degree, marital_status, national_id, has_criminal_record)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		c.UserID, c.OfficeID, c.Manifesto, c.Status, c.VoteCount,
		c.Degree, c.MaritalStatus, c.NationalID, c.HasCriminalRecord,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка создания заявки кандидата: %w", err)
	}
	return nil
}

func (r *candidateRepo) GetByID(ctx context.Context, id int64) (*model.Candidate, error) {
	query := fmt.Sprintf(`SELECT %s FROM candidates c WHERE c.id = $1`, candidateColumns)
	return r.getOne(ctx, query, id)
}

func (r *candidateRepo) LatestByUser(ctx context.Context, userID int64) (*model.Candidate, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM candidates c
		WHERE c.user_id = $1
		ORDER BY c.created_at DESC, c.id DESC
		LIMIT 1`, candidateColumns)
	return r.getOne(ctx, query, userID)
}

func (r *candidateRepo) getOne(ctx context.Context, query string, arg int64) (*model.Candidate, error) {
	c := &model.Candidate{}
	if err := r.db.QueryRow(ctx, query, arg).Scan(candidateFields(c)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения кандидата: %w", err)
	}
	return c, nil
}

func (r *candidateRepo) Exists(ctx context.Context, userID, officeID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM candidates WHERE user_id = $1 AND office_id = $2)`,
		userID, officeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки заявки: %w", err)
	}
	return exists, nil
}

func (r *candidateRepo) SetStatus(ctx context.Context, id int64, status model.CandidateStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE candidates SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("ошибка смены статуса кандидата: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *candidateRepo) IncrementVotes(ctx context.Context, id int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		UPDATE candidates
		SET vote_count = vote_count + 1
		WHERE id = $1
		RETURNING vote_count`, id,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ошибка увеличения счётчика голосов: %w", err)
	}
	return count, nil
}

func (r *candidateRepo) UpdateManifesto(ctx context.Context, id int64, manifesto string) error {
	tag, err := r.db.Exec(ctx, `UPDATE candidates SET manifesto = $2 WHERE id = $1`, id, manifesto)
	if err != nil {
		return fmt.Errorf("ошибка обновления программы: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *candidateRepo) Rank(ctx context.Context, officeID int64, voteCount int) (int, error) {
	var ahead int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM candidates WHERE office_id = $1 AND vote_count > $2`,
		officeID, voteCount,
	).Scan(&ahead)
	if err != nil {
		return 0, fmt.Errorf("ошибка вычисления места кандидата: %w", err)
	}
	return ahead + 1, nil
}

const candidateViewQuery = `
	SELECT %s, u.name, u.email, o.title
	FROM candidates c
	JOIN users u ON u.id = c.user_id
	JOIN offices o ON o.id = c.office_id`

func (r *candidateRepo) ListByStatus(ctx context.Context, status model.CandidateStatus) ([]*model.CandidateView, error) {
	query := fmt.Sprintf(candidateViewQuery, candidateColumns) + `
	WHERE c.status = $1
	ORDER BY c.office_id, c.id`
	return r.listViews(ctx, query, status)
}

func (r *candidateRepo) TopApproved(ctx context.Context, limit int) ([]*model.CandidateView, error) {
	query := fmt.Sprintf(candidateViewQuery, candidateColumns) + `
	WHERE c.status = $1
	ORDER BY c.vote_count DESC, c.id
	LIMIT $2`
	return r.listViews(ctx, query, model.CandidateApproved, limit)
}

func (r *candidateRepo) listViews(ctx context.Context, query string, args ...any) ([]*model.CandidateView, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка кандидатов: %w", err)
	}
	defer rows.Close()

	var result []*model.CandidateView
	for rows.Next() {
		v := &model.CandidateView{}
		dest := append(candidateFields(&v.Candidate), &v.UserName, &v.UserEmail, &v.OfficeTitle)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("ошибка сканирования кандидата: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (r *candidateRepo) OwnerIDs(ctx context.Context) ([]int64, error) {
	return queryIDs(ctx, r.db, `SELECT DISTINCT user_id FROM candidates ORDER BY user_id`)
}

func (r *candidateRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM candidates`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта кандидатов: %w", err)
	}
	return count, nil
}
