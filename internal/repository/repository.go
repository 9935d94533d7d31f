// Пакет repository — слой доступа к данным PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — запись уже существует")
	// ErrReferenced — запись нельзя удалить, на неё ссылаются другие записи.
	ErrReferenced = errors.New("на запись есть ссылки")
)

// txRetriesTotal — количество повторов транзакций после транзиентных ошибок.
var txRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "election_tx_retries_total",
	Help: "Количество повторов транзакций после транзиентных ошибок PostgreSQL",
})

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories — набор репозиториев, привязанных к одному DBTX
// (пулу или транзакции).
type Repositories struct {
	Users         UserRepository
	Roles         RoleRepository
	Offices       OfficeRepository
	Candidates    CandidateRepository
	Votes         VoteRepository
	Notifications NotificationRepository
	Audit         AuditRepository
}

// NewRepositories создаёт набор репозиториев поверх db.
func NewRepositories(db DBTX) *Repositories {
	return &Repositories{
		Users:         NewUserRepository(db),
		Roles:         NewRoleRepository(db),
		Offices:       NewOfficeRepository(db),
		Candidates:    NewCandidateRepository(db),
		Votes:         NewVoteRepository(db),
		Notifications: NewNotificationRepository(db),
		Audit:         NewAuditRepository(db),
	}
}

// Store — точка входа сервисов в хранилище.
// Repos работает вне транзакции, InTx выполняет fn атомарно:
// при ошибке fn ни одно изменение не становится видимым.
type Store interface {
	Repos() *Repositories
	InTx(ctx context.Context, fn func(r *Repositories) error) error
}

// PgStore — Store поверх пула pgx с повтором транзиентных ошибок.
type PgStore struct {
	pool       *pgxpool.Pool
	repos      *Repositories
	maxRetries int
	logger     *slog.Logger
}

// NewPgStore создаёт Store. maxRetries — число повторов транзакции
// после сбоя сериализации, дедлока или обрыва соединения.
func NewPgStore(pool *pgxpool.Pool, maxRetries int, logger *slog.Logger) *PgStore {
	return &PgStore{
		pool:       pool,
		repos:      NewRepositories(pool),
		maxRetries: maxRetries,
		logger:     logger.With(slog.String("component", "store")),
	}
}

// Repos возвращает репозитории, работающие напрямую через пул.
func (s *PgStore) Repos() *Repositories {
	return s.repos
}

// InTx выполняет fn внутри транзакции.
// Транзиентные ошибки PostgreSQL приводят к повтору всей транзакции
// с экспоненциальной задержкой. Остальные ошибки возвращаются сразу.
func (s *PgStore) InTx(ctx context.Context, fn func(r *Repositories) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	attempt := 0
	op := func() error {
		attempt++
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		txRetriesTotal.Inc()
		s.logger.Warn("Транзиентная ошибка транзакции, повтор",
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.maxRetries)), ctx)
	return backoff.RetryNotify(op, policy, notify)
}

// runOnce выполняет одну попытку транзакции.
// При ошибке fn — транзакция откатывается, при успехе — коммитится.
func (s *PgStore) runOnce(ctx context.Context, fn func(r *Repositories) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(NewRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка коммита транзакции: %w", err)
	}
	return nil
}

// isRetryable определяет, можно ли повторить транзакцию целиком.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
			return true
		}
		return false
	}
	return pgconn.SafeToRetry(err)
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	return false
}

// isForeignKeyViolation проверяет нарушение внешнего ключа (RESTRICT при удалении).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.ForeignKeyViolation
	}
	return false
}
