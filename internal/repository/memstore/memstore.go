// Пакет memstore — in-memory реализация repository.Store для разработки
// (EL_STORAGE=memory) и unit-тестов сервисов.
//
// Транзакции сериализуются мьютексом и работают над копией состояния:
// изменения публикуются только при успешном завершении fn, поэтому
// откат бесплатен, а уровень изоляции эквивалентен serializable.
// Каждая транзакция копирует всё состояние под глобальным мьютексом, так что
// её стоимость растёт с числом строк: для production используется только
// EL_STORAGE=postgres.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/goelection/election-api/internal/domain/model"
	"github.com/bigkaa/goelection/election-api/internal/domain/rbac"
	"github.com/bigkaa/goelection/election-api/internal/repository"
)

// Store — in-memory хранилище.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// Option — функциональная опция Store.
type Option func(*Store)

// WithClock подменяет источник времени для created_at / sent_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New создаёт хранилище с начальным графом ролей из rbac.DefaultRolePermissions.
func New(opts ...Option) *Store {
	s := &Store{st: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	names := make([]string, 0, len(rbac.DefaultRolePermissions))
	for name := range rbac.DefaultRolePermissions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.st.seqRole++
		id := s.st.seqRole
		s.st.roles[id] = &model.Role{ID: id, Name: name}
		s.st.rolePerms[id] = append([]string(nil), rbac.DefaultRolePermissions[name]...)
	}
	return s
}

// Repos возвращает репозитории вне транзакции: каждый вызов атомарен сам по себе.
// Внутри fn из InTx вызывать Repos нельзя: мьютекс не реентерабелен.
func (s *Store) Repos() *repository.Repositories {
	return newRepositories(&liveAccess{store: s}, s.now)
}

// InTx выполняет fn над копией состояния и публикует её при успехе.
func (s *Store) InTx(ctx context.Context, fn func(r *repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.st.clone()
	if err := fn(newRepositories(&txAccess{st: draft}, s.now)); err != nil {
		return err
	}
	s.st = draft
	return nil
}

// CheckReady для readiness probe: хранилище в памяти доступно всегда.
func (s *Store) CheckReady(_ context.Context) (status string, message string) {
	return "ok", "хранилище в памяти"
}

// access — способ добраться до состояния: под мьютексом или внутри транзакции.
type access interface {
	with(fn func(st *state) error) error
}

type liveAccess struct {
	store *Store
}

func (a *liveAccess) with(fn func(st *state) error) error {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	return fn(a.store.st)
}

type txAccess struct {
	st *state
}

func (a *txAccess) with(fn func(st *state) error) error {
	return fn(a.st)
}

func newRepositories(a access, now func() time.Time) *repository.Repositories {
	return &repository.Repositories{
		Users:         &userRepo{a: a, now: now},
		Roles:         &roleRepo{a: a},
		Offices:       &officeRepo{a: a, now: now},
		Candidates:    &candidateRepo{a: a, now: now},
		Votes:         &voteRepo{a: a, now: now},
		Notifications: &notificationRepo{a: a, now: now},
		Audit:         &auditRepo{a: a, now: now},
	}
}

// state — всё содержимое хранилища.
type state struct {
	users         map[int64]*model.User
	roles         map[int64]*model.Role
	rolePerms     map[int64][]string
	userRoles     map[int64]map[int64]struct{}
	offices       map[int64]*model.Office
	candidates    map[int64]*model.Candidate
	votes         map[int64]*model.Vote
	notifications map[int64]*model.Notification
	audit         []*model.AuditLog

	seqUser, seqRole, seqOffice, seqCandidate, seqVote, seqNotification, seqAudit int64
}

func newState() *state {
	return &state{
		users:         make(map[int64]*model.User),
		roles:         make(map[int64]*model.Role),
		rolePerms:     make(map[int64][]string),
		userRoles:     make(map[int64]map[int64]struct{}),
		offices:       make(map[int64]*model.Office),
		candidates:    make(map[int64]*model.Candidate),
		votes:         make(map[int64]*model.Vote),
		notifications: make(map[int64]*model.Notification),
	}
}

// clone делает глубокую копию состояния.
func (s *state) clone() *state {
	c := newState()
	for id, u := range s.users {
		c.users[id] = copyUser(u)
	}
	for id, r := range s.roles {
		rc := *r
		c.roles[id] = &rc
	}
	for id, perms := range s.rolePerms {
		c.rolePerms[id] = append([]string(nil), perms...)
	}
	for uid, set := range s.userRoles {
		cs := make(map[int64]struct{}, len(set))
		for rid := range set {
			cs[rid] = struct{}{}
		}
		c.userRoles[uid] = cs
	}
	for id, o := range s.offices {
		oc := *o
		c.offices[id] = &oc
	}
	for id, cand := range s.candidates {
		cc := *cand
		c.candidates[id] = &cc
	}
	for id, v := range s.votes {
		vc := *v
		c.votes[id] = &vc
	}
	for id, n := range s.notifications {
		nc := *n
		c.notifications[id] = &nc
	}
	c.audit = make([]*model.AuditLog, len(s.audit))
	for i, e := range s.audit {
		ec := *e
		c.audit[i] = &ec
	}

	c.seqUser, c.seqRole, c.seqOffice = s.seqUser, s.seqRole, s.seqOffice
	c.seqCandidate, c.seqVote = s.seqCandidate, s.seqVote
	c.seqNotification, c.seqAudit = s.seqNotification, s.seqAudit
	return c
}

func copyUser(u *model.User) *model.User {
	uc := *u
	if u.OTPCode != nil {
		v := *u.OTPCode
		uc.OTPCode = &v
	}
	if u.OTPPurpose != nil {
		v := *u.OTPPurpose
		uc.OTPPurpose = &v
	}
	if u.OTPExpiresAt != nil {
		v := *u.OTPExpiresAt
		uc.OTPExpiresAt = &v
	}
	return &uc
}

func sortedIDs[T any](m map[int64]T) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
