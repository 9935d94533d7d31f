// vote.go — транзакция голосования и витрины избирателя.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bigkaa/goelection/election-api/internal/domain/model"
	"github.com/bigkaa/goelection/election-api/internal/notify"
	"github.com/bigkaa/goelection/election-api/internal/repository"
)

// trendsLimit — размер списка лидеров.
const trendsLimit = 10

// VoteResult — итог успешного голосования.
type VoteResult struct {
	CandidateID int64
	VoteCount   int
}

// Dashboard — витрина избирателя.
type Dashboard struct {
	// Offices — активные должности
	Offices []*model.Office
	// Candidates — одобренные кандидаты по должностям
	Candidates map[int64][]*model.CandidateView
	// VotedOfficeIDs — должности, за которые пользователь уже проголосовал
	VotedOfficeIDs []int64
}

// VoteService — сервис голосования.
type VoteService struct {
	store     repository.Store
	publisher Publisher
	mailer    notify.Mailer
	milestone int
	logger    *slog.Logger
}

// NewVoteService создаёт сервис голосования.
// milestone — значение счётчика, при достижении которого владелец кандидата
// получает однократное поздравление.
func NewVoteService(
	store repository.Store,
	publisher Publisher,
	mailer notify.Mailer,
	milestone int,
	logger *slog.Logger,
) *VoteService {
	return &VoteService{
		store:     store,
		publisher: publisher,
		mailer:    mailer,
		milestone: milestone,
		logger:    logger.With(slog.String("component", "vote_service")),
	}
}

// CastVote отдаёт голос за кандидата на должность.
//
// Всё выполняется в одной транзакции: проверка повторного голоса, проверка
// кандидата, вставка голоса, атомарный инкремент счётчика, уведомление при
// достижении milestone и запись аудита. Уникальность (избиратель, должность)
// гарантирует ограничение хранилища: из N одновременных вызовов успешен
// ровно один, остальные получают ErrAlreadyVoted.
//
// Письмо владельцу и push-событие отправляются только после коммита.
func (s *VoteService) CastVote(ctx context.Context, voterID, candidateID, officeID int64) (*VoteResult, error) {
	if candidateID <= 0 || officeID <= 0 {
		return nil, validationError("Не указаны кандидат или должность")
	}

	var (
		tally        int
		owner        *model.User
		congratulate bool
	)

	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		// Транзакция может повторяться целиком
		owner, congratulate = nil, false

		voted, err := r.Votes.Exists(ctx, voterID, officeID)
		if err != nil {
			return fmt.Errorf("проверка голоса: %w", err)
		}
		if voted {
			return ErrAlreadyVoted
		}

		candidate, err := r.Candidates.GetByID(ctx, candidateID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCandidateNotFound
			}
			return fmt.Errorf("поиск кандидата: %w", err)
		}
		if candidate.OfficeID != officeID {
			return ErrCandidateOfficeMismatch
		}
		if candidate.Status != model.CandidateApproved {
			return ErrCandidateNotApproved
		}

		if err := r.Votes.Create(ctx, &model.Vote{
			VoterUserID: voterID,
			CandidateID: candidateID,
			OfficeID:    officeID,
		}); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrAlreadyVoted
			}
			// Кандидат уже найден выше, значит удалён избиратель.
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("запись голоса: %w", err)
		}

		tally, err = r.Candidates.IncrementVotes(ctx, candidateID)
		if err != nil {
			return fmt.Errorf("инкремент счётчика: %w", err)
		}

		if tally == s.milestone {
			owner, err = r.Users.GetByID(ctx, candidate.UserID)
			if err != nil {
				return fmt.Errorf("поиск владельца кандидата: %w", err)
			}
			if err := r.Notifications.Create(ctx, &model.Notification{
				UserID:  owner.ID,
				Message: milestoneMessage(owner.Name, s.milestone),
			}); err != nil {
				return fmt.Errorf("создание уведомления: %w", err)
			}
			congratulate = true
		}

		return r.Audit.Append(ctx, &model.AuditLog{
			Action: "Vote Cast",
			Details: fmt.Sprintf("Пользователь %d проголосовал за кандидата %d на должность %d",
				voterID, candidateID, officeID),
		})
	})
	votesTotal.WithLabelValues(outcomeLabel(err)).Inc()
	if err != nil {
		return nil, err
	}

	s.publisher.Broadcast(notify.Event{
		Type: notify.EventVoteUpdated,
		Data: map[string]any{
			"candidate_id": candidateID,
			"vote_count":   tally,
		},
	})

	if congratulate {
		s.congratulate(ctx, owner)
	}

	s.logger.Debug("Голос учтён",
		slog.Int64("voter_id", voterID),
		slog.Int64("candidate_id", candidateID),
		slog.Int64("office_id", officeID),
		slog.Int("vote_count", tally),
	)
	return &VoteResult{CandidateID: candidateID, VoteCount: tally}, nil
}

// congratulate отправляет владельцу поздравление. Уведомление уже
// сохранено в транзакции; push и письмо — best effort.
func (s *VoteService) congratulate(ctx context.Context, owner *model.User) {
	message := milestoneMessage(owner.Name, s.milestone)

	s.publisher.SendToUser(owner.ID, notify.Event{
		Type: notify.EventNotification,
		Data: map[string]any{"message": message},
	})

	if err := s.mailer.Send(detached(ctx), notify.Message{
		To:      owner.Email,
		Subject: "Поддержка кампании",
		Body:    message,
	}); err != nil {
		s.logger.Error("Ошибка отправки поздравления",
			slog.Int64("user_id", owner.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("Кандидат достиг порога голосов",
		slog.Int64("user_id", owner.ID),
		slog.Int("milestone", s.milestone),
	)
}

func milestoneMessage(name string, milestone int) string {
	return fmt.Sprintf("Поздравляем, %s! Вы набрали %d голосов. Продолжайте в том же духе!", name, milestone)
}

// Dashboard возвращает активные должности, одобренных кандидатов по
// должностям и должности, за которые пользователь уже голосовал.
func (s *VoteService) Dashboard(ctx context.Context, userID int64) (*Dashboard, error) {
	repos := s.store.Repos()

	offices, err := repos.Offices.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение должностей: %w", err)
	}

	approved, err := repos.Candidates.ListByStatus(ctx, model.CandidateApproved)
	if err != nil {
		return nil, fmt.Errorf("получение кандидатов: %w", err)
	}

	voted, err := repos.Votes.OfficeIDsForVoter(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("получение голосов пользователя: %w", err)
	}

	byOffice := make(map[int64][]*model.CandidateView)
	for _, c := range approved {
		byOffice[c.OfficeID] = append(byOffice[c.OfficeID], c)
	}

	return &Dashboard{
		Offices:        offices,
		Candidates:     byOffice,
		VotedOfficeIDs: voted,
	}, nil
}

// Trends возвращает лидеров среди одобренных кандидатов по числу голосов.
func (s *VoteService) Trends(ctx context.Context) ([]*model.CandidateView, error) {
	top, err := s.store.Repos().Candidates.TopApproved(ctx, trendsLimit)
	if err != nil {
		return nil, fmt.Errorf("получение лидеров: %w", err)
	}
	return top, nil
}

// Notifications возвращает уведомления пользователя, новые первыми.
func (s *VoteService) Notifications(ctx context.Context, userID int64) ([]*model.Notification, error) {
	list, err := s.store.Repos().Notifications.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("получение уведомлений: %w", err)
	}
	return list, nil
}

// UpdateProfile обновляет имя и текст профиля.
func (s *VoteService) UpdateProfile(ctx context.Context, userID int64, name, details string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return validationError("Имя обязательно")
	}

	if err := s.store.Repos().Users.UpdateProfile(ctx, userID, name, details); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("обновление профиля: %w", err)
	}
	return nil
}
