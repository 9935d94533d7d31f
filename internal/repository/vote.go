package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/goelection/election-api/internal/domain/model"
)

// VoteRepository — интерфейс доступа к таблице votes.
type VoteRepository interface {
	// Create сохраняет голос. ErrConflict, если избиратель уже голосовал за должность;
	// ErrNotFound, если избиратель, кандидат или должность не существуют.
	Create(ctx context.Context, v *model.Vote) error
	// Exists проверяет, голосовал ли избиратель за должность.
	Exists(ctx context.Context, voterID, officeID int64) (bool, error)
	// OfficeIDsForVoter возвращает должности, за которые избиратель уже голосовал.
	OfficeIDsForVoter(ctx context.Context, voterID int64) ([]int64, error)
	// CountForCandidate возвращает количество голосов за кандидата.
	CountForCandidate(ctx context.Context, candidateID int64) (int, error)
	// Count возвращает общее количество голосов.
	Count(ctx context.Context) (int, error)
}

// voteRepo — реализация VoteRepository.
type voteRepo struct {
	db DBTX
}

// NewVoteRepository создаёт репозиторий голосов.
func NewVoteRepository(db DBTX) VoteRepository {
	return &voteRepo{db: db}
}

func (r *voteRepo) Create(ctx context.Context, v *model.Vote) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO votes (voter_user_id, candidate_id, office_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		v.VoterUserID, v.CandidateID, v.OfficeID,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка сохранения голоса: %w", err)
	}
	return nil
}

func (r *voteRepo) Exists(ctx context.Context, voterID, officeID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM votes WHERE voter_user_id = $1 AND office_id = $2)`,
		voterID, officeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки голоса: %w", err)
	}
	return exists, nil
}

func (r *voteRepo) OfficeIDsForVoter(ctx context.Context, voterID int64) ([]int64, error) {
	return queryIDs(ctx, r.db,
		`SELECT office_id FROM votes WHERE voter_user_id = $1 ORDER BY office_id`, voterID)
}

func (r *voteRepo) CountForCandidate(ctx context.Context, candidateID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM votes WHERE candidate_id = $1`, candidateID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта голосов кандидата: %w", err)
	}
	return count, nil
}

func (r *voteRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM votes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта голосов: %w", err)
	}
	return count, nil
}
