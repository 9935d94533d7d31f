// candidate.go — жизненный цикл заявки кандидата:
// подача → (автоотказ | ожидание) → одобрение администратором → роль Candidate.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bigkaa/goelection/election-api/internal/domain/model"
	"github.com/bigkaa/goelection/election-api/internal/domain/rbac"
	"github.com/bigkaa/goelection/election-api/internal/notify"
	"github.com/bigkaa/goelection/election-api/internal/repository"
)

// Сообщения о результате подачи заявки.
const (
	msgApplicationDenied  = "Заявка автоматически отклонена: у заявителя есть судимость"
	msgApplicationPending = "Заявка принята и ожидает одобрения администратором"
)

// ApplyRequest — заявка на должность.
type ApplyRequest struct {
	OfficeID          int64
	Manifesto         string
	Degree            string
	MaritalStatus     string
	NationalID        string
	HasCriminalRecord bool
}

// ApplyResult — созданная заявка и сообщение для пользователя.
type ApplyResult struct {
	Candidate *model.Candidate
	Message   string
}

// ApproveResult — одобренный кандидат и пересчитанные разрешения владельца.
type ApproveResult struct {
	Candidate   *model.Candidate
	Permissions []string
}

// CandidateStats — место кандидата среди кандидатов той же должности.
type CandidateStats struct {
	CandidateID int64
	OfficeID    int64
	Status      model.CandidateStatus
	Rank        int
	VoteCount   int
}

// CandidateService — сервис заявок кандидатов.
type CandidateService struct {
	store     repository.Store
	publisher Publisher
	logger    *slog.Logger
}

// NewCandidateService создаёт сервис заявок кандидатов.
func NewCandidateService(store repository.Store, publisher Publisher, logger *slog.Logger) *CandidateService {
	return &CandidateService{
		store:     store,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "candidate_service")),
	}
}

// Apply подаёт заявку. При наличии судимости заявка сразу создаётся
// в статусе Denied, иначе — Pending.
func (s *CandidateService) Apply(ctx context.Context, userID int64, req ApplyRequest) (*ApplyResult, error) {
	if req.OfficeID <= 0 {
		return nil, validationError("Не указана должность")
	}

	status := model.CandidatePending
	message := msgApplicationPending
	if req.HasCriminalRecord {
		status = model.CandidateDenied
		message = msgApplicationDenied
	}

	candidate := &model.Candidate{
		UserID:            userID,
		OfficeID:          req.OfficeID,
		Manifesto:         strings.TrimSpace(req.Manifesto),
		Status:            status,
		VoteCount:         0,
		Degree:            strings.TrimSpace(req.Degree),
		MaritalStatus:     strings.TrimSpace(req.MaritalStatus),
		NationalID:        strings.TrimSpace(req.NationalID),
		HasCriminalRecord: req.HasCriminalRecord,
	}

	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		exists, err := r.Candidates.Exists(ctx, userID, req.OfficeID)
		if err != nil {
			return fmt.Errorf("проверка заявки: %w", err)
		}
		if exists {
			return ErrAlreadyApplied
		}

		user, err := r.Users.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("поиск пользователя: %w", err)
		}

		if _, err := r.Offices.GetByID(ctx, req.OfficeID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrOfficeNotFound
			}
			return fmt.Errorf("поиск должности: %w", err)
		}

		if err := r.Candidates.Create(ctx, candidate); err != nil {
			switch {
			case errors.Is(err, repository.ErrConflict):
				return ErrAlreadyApplied
			case errors.Is(err, repository.ErrNotFound):
				return ErrOfficeNotFound
			}
			return fmt.Errorf("создание заявки: %w", err)
		}

		return r.Audit.Append(ctx, &model.AuditLog{
			Action: "Candidate Applied",
			Details: fmt.Sprintf("Пользователь %d подал заявку %d на должность %d, статус %s",
				userID, candidate.ID, req.OfficeID, status),
			PerformedBy: &user.Email,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Заявка кандидата создана",
		slog.Int64("candidate_id", candidate.ID),
		slog.Int64("user_id", userID),
		slog.Int64("office_id", req.OfficeID),
		slog.String("status", string(status)),
	)
	return &ApplyResult{Candidate: candidate, Message: message}, nil
}

// Approve одобряет заявку и выдаёт владельцу роль Candidate, если её нет.
// Разрешения владельца пересчитываются в той же транзакции, события
// публикуются после коммита.
func (s *CandidateService) Approve(ctx context.Context, actor Actor, candidateID int64) (*ApproveResult, error) {
	var (
		candidate   *model.Candidate
		permissions []string
	)

	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		candidate, err = r.Candidates.GetByID(ctx, candidateID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCandidateNotFound
			}
			return fmt.Errorf("поиск кандидата: %w", err)
		}

		if err := r.Candidates.SetStatus(ctx, candidate.ID, model.CandidateApproved); err != nil {
			return fmt.Errorf("смена статуса кандидата: %w", err)
		}
		candidate.Status = model.CandidateApproved

		if err := s.grantCandidateRole(ctx, r, candidate.UserID); err != nil {
			return err
		}

		if err := r.Audit.Append(ctx, &model.AuditLog{
			Action:      "Candidate Approved",
			Details:     fmt.Sprintf("Кандидат %d одобрен на должность %d", candidate.ID, candidate.OfficeID),
			PerformedBy: actor.performedBy(),
		}); err != nil {
			return err
		}

		permissions, err = resolveWith(ctx, r.Roles, candidate.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Broadcast(notify.Event{Type: notify.EventDashboardRefresh})
	s.publisher.SendToUser(candidate.UserID, notify.Event{
		Type: notify.EventCandidateApproved,
		Data: map[string]any{
			"candidate_id": candidate.ID,
			"user_id":      candidate.UserID,
			"permissions":  permissions,
		},
	})

	s.logger.Info("Кандидат одобрен",
		slog.Int64("candidate_id", candidate.ID),
		slog.Int64("user_id", candidate.UserID),
		slog.String("actor", actor.Email),
	)
	return &ApproveResult{Candidate: candidate, Permissions: permissions}, nil
}

// grantCandidateRole добавляет роль Candidate к уже имеющимся ролям.
// Ручная смена роли (AdminService.UpdateUserRole) оставляет одну роль,
// одобрение — добавляет: у одобренного избирателя будет две роли.
func (s *CandidateService) grantCandidateRole(ctx context.Context, r *repository.Repositories, userID int64) error {
	role, err := r.Roles.GetByName(ctx, rbac.RoleCandidate)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("Роль Candidate не найдена, роль не выдана", slog.Int64("user_id", userID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("получение роли %s: %w", rbac.RoleCandidate, err)
	}

	held, err := r.Roles.RoleNamesForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("получение ролей пользователя: %w", err)
	}
	if slices.Contains(held, rbac.RoleCandidate) {
		return nil
	}

	if err := r.Roles.AddUserRole(ctx, userID, role.ID); err != nil {
		return fmt.Errorf("выдача роли %s: %w", rbac.RoleCandidate, err)
	}
	if len(held) > 0 {
		s.logger.Info("Пользователь получил роль Candidate в дополнение к текущим",
			slog.Int64("user_id", userID),
			slog.Any("roles", held),
		)
	}
	return nil
}

// Deny отклоняет заявку, ожидающую рассмотрения.
func (s *CandidateService) Deny(ctx context.Context, actor Actor, candidateID int64) (*model.Candidate, error) {
	var candidate *model.Candidate

	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		candidate, err = r.Candidates.GetByID(ctx, candidateID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCandidateNotFound
			}
			return fmt.Errorf("поиск кандидата: %w", err)
		}
		if candidate.Status != model.CandidatePending {
			return ErrInvalidTransition
		}

		if err := r.Candidates.SetStatus(ctx, candidate.ID, model.CandidateDenied); err != nil {
			return fmt.Errorf("смена статуса кандидата: %w", err)
		}
		candidate.Status = model.CandidateDenied

		return r.Audit.Append(ctx, &model.AuditLog{
			Action:      "Candidate Denied",
			Details:     fmt.Sprintf("Кандидат %d отклонён на должность %d", candidate.ID, candidate.OfficeID),
			PerformedBy: actor.performedBy(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Broadcast(notify.Event{Type: notify.EventDashboardRefresh})
	s.logger.Info("Кандидат отклонён",
		slog.Int64("candidate_id", candidate.ID),
		slog.String("actor", actor.Email),
	)
	return candidate, nil
}

// Stats возвращает место последней заявки пользователя среди кандидатов
// той же должности (1 + число кандидатов со строго большим счётчиком).
func (s *CandidateService) Stats(ctx context.Context, userID int64) (*CandidateStats, error) {
	repos := s.store.Repos()

	candidate, err := s.latestCandidacy(ctx, repos, userID)
	if err != nil {
		return nil, err
	}

	rank, err := repos.Candidates.Rank(ctx, candidate.OfficeID, candidate.VoteCount)
	if err != nil {
		return nil, fmt.Errorf("вычисление места: %w", err)
	}

	return &CandidateStats{
		CandidateID: candidate.ID,
		OfficeID:    candidate.OfficeID,
		Status:      candidate.Status,
		Rank:        rank,
		VoteCount:   candidate.VoteCount,
	}, nil
}

// UpdateManifesto обновляет программу последней заявки пользователя.
func (s *CandidateService) UpdateManifesto(ctx context.Context, userID int64, manifesto string) error {
	manifesto = strings.TrimSpace(manifesto)
	if manifesto == "" {
		return validationError("Программа не может быть пустой")
	}

	repos := s.store.Repos()
	candidate, err := s.latestCandidacy(ctx, repos, userID)
	if err != nil {
		return err
	}

	if err := repos.Candidates.UpdateManifesto(ctx, candidate.ID, manifesto); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotCandidate
		}
		return fmt.Errorf("обновление программы: %w", err)
	}
	return nil
}

func (s *CandidateService) latestCandidacy(ctx context.Context, repos *repository.Repositories, userID int64) (*model.Candidate, error) {
	candidate, err := repos.Candidates.LatestByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotCandidate
		}
		return nil, fmt.Errorf("поиск заявки: %w", err)
	}
	return candidate, nil
}
