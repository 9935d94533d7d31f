package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goelection/election-api/internal/domain/model"
	"github.com/bigkaa/goelection/election-api/internal/notify"
	"github.com/bigkaa/goelection/election-api/internal/repository"
	"github.com/bigkaa/goelection/election-api/internal/repository/memstore"
	"github.com/bigkaa/goelection/election-api/internal/security"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testHasher — bcrypt с минимальной стоимостью, чтобы тесты были быстрыми.
var testHasher = security.NewBcryptHasher(4)

// --- фейки ---

// sequenceOTP выдаёт коды по порядку.
type sequenceOTP struct {
	mu    sync.Mutex
	codes []string
	next  int
}

func (g *sequenceOTP) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.next >= len(g.codes) {
		return "", errors.New("коды закончились")
	}
	code := g.codes[g.next]
	g.next++
	return code, nil
}

// fakeTokens запоминает разрешения, с которыми выпускались токены.
type fakeTokens struct {
	mu     sync.Mutex
	issued [][]string
}

func (f *fakeTokens) Issue(userID int64, _ string, permissions []string) (string, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued = append(f.issued, permissions)
	return fmt.Sprintf("token-%d-%d", userID, len(f.issued)), time.Now().Add(time.Hour), nil
}

// recordingMailer запоминает письма; err — ошибка транспорта.
type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Message(nil), m.sent...)
}

func (m *recordingMailer) last(t *testing.T) notify.Message {
	t.Helper()
	msgs := m.messages()
	if len(msgs) == 0 {
		t.Fatal("письма не отправлялись")
	}
	return msgs[len(msgs)-1]
}

// published — событие с адресатом (0 — всем).
type published struct {
	userID int64
	evt    notify.Event
}

// recordingPublisher запоминает push-события.
type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Broadcast(evt notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{evt: evt})
}

func (p *recordingPublisher) SendToUser(userID int64, evt notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{userID: userID, evt: evt})
}

func (p *recordingPublisher) SendToUsers(userIDs []int64, evt notify.Event) {
	for _, id := range userIDs {
		p.SendToUser(id, evt)
	}
}

// count возвращает число событий типа typ.
func (p *recordingPublisher) count(typ string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.evt.Type == typ {
			n++
		}
	}
	return n
}

// find возвращает события типа typ.
func (p *recordingPublisher) find(typ string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.evt.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// failingAuditStore — Store, у которого запись аудита внутри транзакции
// всегда завершается ошибкой. Проверяет откат всей транзакции.
type failingAuditStore struct {
	repository.Store
}

type failingAudit struct {
	repository.AuditRepository
}

var errAuditDown = errors.New("аудит недоступен")

func (failingAudit) Append(context.Context, *model.AuditLog) error {
	return errAuditDown
}

func (s failingAuditStore) InTx(ctx context.Context, fn func(r *repository.Repositories) error) error {
	return s.Store.InTx(ctx, func(r *repository.Repositories) error {
		wrapped := *r
		wrapped.Audit = failingAudit{r.Audit}
		return fn(&wrapped)
	})
}

// --- фикстуры ---

func mustUser(t *testing.T, store repository.Store, name, email string, roles ...string) *model.User {
	t.Helper()
	ctx := context.Background()
	digest, err := testHasher.Hash("password123")
	if err != nil {
		t.Fatal(err)
	}
	u := &model.User{Name: name, Email: email, PasswordHash: digest, IsActive: true}
	err = store.InTx(ctx, func(r *repository.Repositories) error {
		if err := r.Users.Create(ctx, u); err != nil {
			return err
		}
		for _, roleName := range roles {
			role, err := r.Roles.GetByName(ctx, roleName)
			if err != nil {
				return err
			}
			if err := r.Roles.AddUserRole(ctx, u.ID, role.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("создание пользователя %s: %v", email, err)
	}
	return u
}

func mustOffice(t *testing.T, store repository.Store, title string) *model.Office {
	t.Helper()
	o := &model.Office{Title: title, IsActive: true}
	if err := store.Repos().Offices.Create(context.Background(), o); err != nil {
		t.Fatalf("создание должности: %v", err)
	}
	return o
}

func mustCandidate(t *testing.T, store repository.Store, userID, officeID int64, status model.CandidateStatus) *model.Candidate {
	t.Helper()
	c := &model.Candidate{UserID: userID, OfficeID: officeID, Manifesto: "программа", Status: status}
	if err := store.Repos().Candidates.Create(context.Background(), c); err != nil {
		t.Fatalf("создание кандидата: %v", err)
	}
	return c
}

func mustGetCandidate(t *testing.T, store repository.Store, id int64) *model.Candidate {
	t.Helper()
	c, err := store.Repos().Candidates.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("получение кандидата %d: %v", id, err)
	}
	return c
}

func countAudit(t *testing.T, store repository.Store, action string) int {
	t.Helper()
	logs, err := store.Repos().Audit.ListRecent(context.Background(), 1000)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, l := range logs {
		if l.Action == action {
			n++
		}
	}
	return n
}

// clock — управляемое время для тестов.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// newStore создаёт in-memory хранилище с тем же временем, что и сервисы.
func newStore(c *clock) *memstore.Store {
	return memstore.New(memstore.WithClock(c.Now))
}
