// admin.go — административные операции: рассылки, управление ролями
// и пользователями, сводка, журнал аудита, должности.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bigkaa/goelection/election-api/internal/domain/model"
	"github.com/bigkaa/goelection/election-api/internal/domain/rbac"
	"github.com/bigkaa/goelection/election-api/internal/notify"
	"github.com/bigkaa/goelection/election-api/internal/repository"
)

// auditLogLimit — сколько последних записей аудита отдаёт AuditLogs.
const auditLogLimit = 50

// BroadcastTarget — группа получателей рассылки.
type BroadcastTarget string

// Группы получателей.
const (
	TargetAll        BroadcastTarget = "All"
	TargetVoters     BroadcastTarget = "Voters"
	TargetCandidates BroadcastTarget = "Candidates"
)

// noRole — роль в списке пользователей, если ролей нет.
const noRole = "None"

// Summary — агрегированные счётчики.
type Summary struct {
	TotalUsers      int
	TotalVotes      int
	TotalCandidates int
}

// UserSummary — строка списка пользователей.
type UserSummary struct {
	ID       int64
	Name     string
	Email    string
	Role     string
	IsActive bool
}

// AdminService — сервис административных операций.
type AdminService struct {
	store     repository.Store
	hasher    PasswordHasher
	publisher Publisher
	logger    *slog.Logger
}

// NewAdminService создаёт сервис административных операций.
func NewAdminService(store repository.Store, hasher PasswordHasher, publisher Publisher, logger *slog.Logger) *AdminService {
	return &AdminService{
		store:     store,
		hasher:    hasher,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "admin_service")),
	}
}

// Broadcast сохраняет уведомление для каждого пользователя группы и
// отправляет push. Возвращает число получателей.
//
// All — все пользователи; Voters — владельцы роли Voter;
// Candidates — владельцы хотя бы одной заявки (в любом статусе).
func (s *AdminService) Broadcast(ctx context.Context, actor Actor, message string, target BroadcastTarget) (int, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return 0, validationError("Текст рассылки не может быть пустым")
	}
	if target == "" {
		target = TargetAll
	}

	var recipients []int64
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		switch target {
		case TargetAll:
			recipients, err = r.Users.ListIDs(ctx)
		case TargetVoters:
			recipients, err = r.Roles.UserIDsWithRole(ctx, rbac.RoleVoter)
		case TargetCandidates:
			recipients, err = r.Candidates.OwnerIDs(ctx)
		default:
			return validationError(fmt.Sprintf("Неизвестная группа получателей %q", target))
		}
		if err != nil {
			return fmt.Errorf("получение получателей: %w", err)
		}

		if _, err := r.Notifications.CreateMany(ctx, recipients, message); err != nil {
			return fmt.Errorf("создание уведомлений: %w", err)
		}

		return r.Audit.Append(ctx, &model.AuditLog{
			Action:      "Broadcast",
			Details:     fmt.Sprintf("Рассылка группе %s: %d получателей", target, len(recipients)),
			PerformedBy: actor.performedBy(),
		})
	})
	if err != nil {
		return 0, err
	}

	evt := notify.Event{
		Type: notify.EventNotification,
		Data: map[string]any{"message": message},
	}
	if target == TargetAll {
		s.publisher.Broadcast(evt)
	} else {
		s.publisher.SendToUsers(recipients, evt)
	}

	s.logger.Info("Рассылка выполнена",
		slog.String("target", string(target)),
		slog.Int("recipients", len(recipients)),
		slog.String("actor", actor.Email),
	)
	return len(recipients), nil
}

// UpdateUserRole заменяет все роли пользователя одной ролью roleName.
// Строка пользователя блокируется, поэтому одновременные замены
// сериализуются и у пользователя остаётся ровно одна роль.
func (s *AdminService) UpdateUserRole(ctx context.Context, actor Actor, userID int64, roleName string) error {
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return validationError("Не указана роль")
	}

	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		if err := r.Users.LockByID(ctx, userID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("блокировка пользователя: %w", err)
		}

		role, err := r.Roles.GetByName(ctx, roleName)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrRoleNotFound
			}
			return fmt.Errorf("поиск роли: %w", err)
		}

		if err := r.Roles.ClearUserRoles(ctx, userID); err != nil {
			return fmt.Errorf("снятие ролей: %w", err)
		}
		if err := r.Roles.AddUserRole(ctx, userID, role.ID); err != nil {
			return fmt.Errorf("назначение роли: %w", err)
		}

		return r.Audit.Append(ctx, &model.AuditLog{
			Action:      "Role Updated",
			Details:     fmt.Sprintf("Пользователю %d назначена роль %s", userID, role.Name),
			PerformedBy: actor.performedBy(),
		})
	})
	if err != nil {
		return err
	}

	s.publisher.SendToUser(userID, notify.Event{
		Type: notify.EventRoleUpdated,
		Data: map[string]any{
			"user_id": userID,
			"role":    roleName,
		},
	})

	s.logger.Info("Роль пользователя изменена",
		slog.Int64("user_id", userID),
		slog.String("role", roleName),
		slog.String("actor", actor.Email),
	)
	return nil
}

// DeleteUser удаляет пользователя. Пользователя с голосами или заявками
// удалить нельзя, роли и уведомления удаляются каскадно.
func (s *AdminService) DeleteUser(ctx context.Context, actor Actor, userID int64) error {
	if actor.UserID == userID {
		return ErrSelfDeletion
	}

	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		if err := r.Users.Delete(ctx, userID); err != nil {
			switch {
			case errors.Is(err, repository.ErrNotFound):
				return ErrUserNotFound
			case errors.Is(err, repository.ErrReferenced):
				return ErrUserHasReferences
			}
			return fmt.Errorf("удаление пользователя: %w", err)
		}

		return r.Audit.Append(ctx, &model.AuditLog{
			Action:      "User Deleted",
			Details:     fmt.Sprintf("Пользователь %d удалён", userID),
			PerformedBy: actor.performedBy(),
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("Пользователь удалён",
		slog.Int64("user_id", userID),
		slog.String("actor", actor.Email),
	)
	return nil
}

// Summary возвращает общее число пользователей, голосов и заявок.
func (s *AdminService) Summary(ctx context.Context) (*Summary, error) {
	repos := s.store.Repos()

	users, err := repos.Users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт пользователей: %w", err)
	}
	votes, err := repos.Votes.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт голосов: %w", err)
	}
	candidates, err := repos.Candidates.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт кандидатов: %w", err)
	}

	return &Summary{
		TotalUsers:      users,
		TotalVotes:      votes,
		TotalCandidates: candidates,
	}, nil
}

// PendingCandidates возвращает заявки, ожидающие рассмотрения.
func (s *AdminService) PendingCandidates(ctx context.Context) ([]*model.CandidateView, error) {
	list, err := s.store.Repos().Candidates.ListByStatus(ctx, model.CandidatePending)
	if err != nil {
		return nil, fmt.Errorf("получение заявок: %w", err)
	}
	return list, nil
}

// AuditLogs возвращает последние записи аудита, новые первыми.
func (s *AdminService) AuditLogs(ctx context.Context) ([]*model.AuditLog, error) {
	logs, err := s.store.Repos().Audit.ListRecent(ctx, auditLogLimit)
	if err != nil {
		return nil, fmt.Errorf("получение журнала аудита: %w", err)
	}
	return logs, nil
}

// ListUsers возвращает пользователей с первой из их ролей.
func (s *AdminService) ListUsers(ctx context.Context) ([]*UserSummary, error) {
	users, err := s.store.Repos().Users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение пользователей: %w", err)
	}

	result := make([]*UserSummary, 0, len(users))
	for _, u := range users {
		role := noRole
		if len(u.Roles) > 0 {
			role = u.Roles[0]
		}
		result = append(result, &UserSummary{
			ID:       u.ID,
			Name:     u.Name,
			Email:    u.Email,
			Role:     role,
			IsActive: u.IsActive,
		})
	}
	return result, nil
}

// CreateOffice создаёт активную должность.
func (s *AdminService) CreateOffice(ctx context.Context, actor Actor, title, description string) (*model.Office, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, validationError("Название должности обязательно")
	}

	office := &model.Office{
		Title:       title,
		Description: strings.TrimSpace(description),
		IsActive:    true,
	}

	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		if err := r.Offices.Create(ctx, office); err != nil {
			return fmt.Errorf("создание должности: %w", err)
		}
		return r.Audit.Append(ctx, &model.AuditLog{
			Action:      "Office Created",
			Details:     fmt.Sprintf("Создана должность %d: %s", office.ID, office.Title),
			PerformedBy: actor.performedBy(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Broadcast(notify.Event{Type: notify.EventDashboardRefresh})
	s.logger.Info("Должность создана",
		slog.Int64("office_id", office.ID),
		slog.String("title", office.Title),
	)
	return office, nil
}

// EnsureAdmin создаёт администратора при старте, если пользователя с таким
// email ещё нет. Пустой email — ничего не делать.
func (s *AdminService) EnsureAdmin(ctx context.Context, name, email, password string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}

	if _, err := s.store.Repos().Users.GetByEmail(ctx, email); err == nil {
		s.logger.Debug("Администратор уже существует", slog.String("email", email))
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("поиск администратора: %w", err)
	}

	if err := validatePassword(password); err != nil {
		return err
	}
	digest, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	user := &model.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: digest,
		IsActive:     true,
	}

	err = s.store.InTx(ctx, func(r *repository.Repositories) error {
		if err := r.Users.Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrEmailAlreadyExists
			}
			return fmt.Errorf("создание администратора: %w", err)
		}

		role, err := r.Roles.GetByName(ctx, rbac.RoleAdmin)
		if err != nil {
			return fmt.Errorf("получение роли %s: %w", rbac.RoleAdmin, err)
		}
		if err := r.Roles.AddUserRole(ctx, user.ID, role.ID); err != nil {
			return fmt.Errorf("назначение роли %s: %w", rbac.RoleAdmin, err)
		}

		return r.Audit.Append(ctx, &model.AuditLog{
			Action:  "Admin Bootstrapped",
			Details: fmt.Sprintf("Создан администратор %d", user.ID),
		})
	})
	if errors.Is(err, ErrEmailAlreadyExists) {
		// Создан параллельно другим экземпляром
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Info("Администратор создан",
		slog.Int64("user_id", user.ID),
		slog.String("email", email),
	)
	return nil
}
