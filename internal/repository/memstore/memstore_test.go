package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goelection/election-api/internal/domain/model"
	"github.com/bigkaa/goelection/election-api/internal/domain/rbac"
	"github.com/bigkaa/goelection/election-api/internal/repository"
)

func createUser(t *testing.T, s *Store, email string) *model.User {
	t.Helper()
	u := &model.User{Name: "Тест", Email: email, PasswordHash: "hash", IsActive: true}
	if err := s.Repos().Users.Create(context.Background(), u); err != nil {
		t.Fatalf("Users.Create() ошибка: %v", err)
	}
	return u
}

// createCandidate создаёт должность и одобренного кандидата на неё.
func createCandidate(t *testing.T, s *Store, email string) (*model.Office, *model.Candidate) {
	t.Helper()
	ctx := context.Background()
	owner := createUser(t, s, email)
	office := &model.Office{Title: "Президент", IsActive: true}
	if err := s.Repos().Offices.Create(ctx, office); err != nil {
		t.Fatalf("Offices.Create() ошибка: %v", err)
	}
	c := &model.Candidate{UserID: owner.ID, OfficeID: office.ID, Status: model.CandidateApproved}
	if err := s.Repos().Candidates.Create(ctx, c); err != nil {
		t.Fatalf("Candidates.Create() ошибка: %v", err)
	}
	return office, c
}

func TestNew_SeedsRoleGraph(t *testing.T) {
	s := New()
	ctx := context.Background()

	for name, perms := range rbac.DefaultRolePermissions {
		role, err := s.Repos().Roles.GetByName(ctx, name)
		if err != nil {
			t.Fatalf("GetByName(%s) ошибка: %v", name, err)
		}
		u := createUser(t, s, name+"@example.com")
		if err := s.Repos().Roles.AddUserRole(ctx, u.ID, role.ID); err != nil {
			t.Fatalf("AddUserRole() ошибка: %v", err)
		}
		grants, err := s.Repos().Roles.GrantsForUser(ctx, u.ID)
		if err != nil {
			t.Fatalf("GrantsForUser() ошибка: %v", err)
		}
		if len(grants) != 1 || len(grants[0].Permissions) != len(perms) {
			t.Errorf("роль %s: гранты %v, ожидались %d разрешений", name, grants, len(perms))
		}
	}
}

func TestUsers_DuplicateEmail(t *testing.T) {
	s := New()
	createUser(t, s, "alice@example.com")

	err := s.Repos().Users.Create(context.Background(),
		&model.User{Name: "Alice 2", Email: "alice@example.com", PasswordHash: "x"})
	if !errors.Is(err, repository.ErrConflict) {
		t.Errorf("Create() = %v, ожидается ErrConflict", err)
	}
}

func TestInTx_RollbackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := createUser(t, s, "bob@example.com")
	boom := errors.New("сбой")

	err := s.InTx(ctx, func(r *repository.Repositories) error {
		if err := r.Users.UpdateProfile(ctx, u.ID, "Изменено", "текст"); err != nil {
			return err
		}
		if err := r.Audit.Append(ctx, &model.AuditLog{Action: "Test"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() = %v, ожидается исходная ошибка", err)
	}

	got, err := s.Repos().Users.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Name != "Тест" {
		t.Errorf("Name = %q, изменение должно быть откачено", got.Name)
	}
	logs, _ := s.Repos().Audit.ListRecent(ctx, 10)
	if len(logs) != 0 {
		t.Errorf("журнал аудита содержит %d записей, ожидается 0", len(logs))
	}
}

func TestConsumeOTP(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := createUser(t, s, "otp@example.com")
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	users := s.Repos().Users

	if err := users.SetOTP(ctx, u.ID, "123456", model.OTPPurposeLogin, now.Add(10*time.Minute)); err != nil {
		t.Fatalf("SetOTP() ошибка: %v", err)
	}

	tests := []struct {
		name    string
		code    string
		purpose string
		at      time.Time
		want    bool
	}{
		{"неверный код", "000000", model.OTPPurposeLogin, now, false},
		{"чужое назначение", "123456", model.OTPPurposeReset, now, false},
		{"после истечения", "123456", model.OTPPurposeLogin, now.Add(11 * time.Minute), false},
		{"верный код", "123456", model.OTPPurposeLogin, now.Add(time.Minute), true},
		{"повторное погашение", "123456", model.OTPPurposeLogin, now.Add(time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := users.ConsumeOTP(ctx, u.ID, tt.code, tt.purpose, tt.at)
			if err != nil {
				t.Fatalf("ConsumeOTP() ошибка: %v", err)
			}
			if got != tt.want {
				t.Errorf("ConsumeOTP() = %v, хотели %v", got, tt.want)
			}
		})
	}
}

func TestVotes_UniquePerOfficeUnderConcurrency(t *testing.T) {
	s := New()
	ctx := context.Background()
	voter := createUser(t, s, "voter@example.com")
	office, cand := createCandidate(t, s, "cand@example.com")

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, conflicts := 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Repos().Votes.Create(ctx, &model.Vote{VoterUserID: voter.ID, CandidateID: cand.ID, OfficeID: office.ID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, repository.ErrConflict):
				conflicts++
			default:
				t.Errorf("Votes.Create() неожиданная ошибка: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || conflicts != workers-1 {
		t.Errorf("успехов %d, конфликтов %d; ожидается 1 и %d", succeeded, conflicts, workers-1)
	}
}

func TestVotes_CreateRequiresReferencedRows(t *testing.T) {
	s := New()
	ctx := context.Background()
	voter := createUser(t, s, "voter@example.com")
	office, cand := createCandidate(t, s, "cand@example.com")

	tests := []struct {
		name string
		vote model.Vote
	}{
		{"нет избирателя", model.Vote{VoterUserID: 999, CandidateID: cand.ID, OfficeID: office.ID}},
		{"нет кандидата", model.Vote{VoterUserID: voter.ID, CandidateID: 999, OfficeID: office.ID}},
		{"нет должности", model.Vote{VoterUserID: voter.ID, CandidateID: cand.ID, OfficeID: 999}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.vote
			if err := s.Repos().Votes.Create(ctx, &v); !errors.Is(err, repository.ErrNotFound) {
				t.Errorf("Votes.Create() = %v, ожидается ErrNotFound", err)
			}
		})
	}

	if n, _ := s.Repos().Votes.Count(ctx); n != 0 {
		t.Errorf("голосов = %d, ожидается 0", n)
	}
}

func TestUsers_DeleteRestrictedByReferences(t *testing.T) {
	s := New()
	ctx := context.Background()
	r := s.Repos()

	u := createUser(t, s, "cand@example.com")
	office := &model.Office{Title: "Президент", IsActive: true}
	if err := r.Offices.Create(ctx, office); err != nil {
		t.Fatalf("Offices.Create() ошибка: %v", err)
	}
	c := &model.Candidate{UserID: u.ID, OfficeID: office.ID, Status: model.CandidatePending}
	if err := r.Candidates.Create(ctx, c); err != nil {
		t.Fatalf("Candidates.Create() ошибка: %v", err)
	}

	if err := r.Users.Delete(ctx, u.ID); !errors.Is(err, repository.ErrReferenced) {
		t.Errorf("Delete() = %v, ожидается ErrReferenced", err)
	}

	other := createUser(t, s, "free@example.com")
	if err := r.Notifications.Create(ctx, &model.Notification{UserID: other.ID, Message: "привет"}); err != nil {
		t.Fatalf("Notifications.Create() ошибка: %v", err)
	}
	if err := r.Users.Delete(ctx, other.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	notes, _ := r.Notifications.ListForUser(ctx, other.ID)
	if len(notes) != 0 {
		t.Errorf("уведомления удалённого пользователя не удалены каскадно: %d", len(notes))
	}
}

func TestCandidates_RankAndTop(t *testing.T) {
	s := New()
	ctx := context.Background()
	r := s.Repos()

	office := &model.Office{Title: "Мэр", IsActive: true}
	_ = r.Offices.Create(ctx, office)

	tallies := []int{3, 7, 7, 1}
	var ids []int64
	for i, n := range tallies {
		u := createUser(t, s, string(rune('a'+i))+"@example.com")
		c := &model.Candidate{UserID: u.ID, OfficeID: office.ID, Status: model.CandidateApproved}
		if err := r.Candidates.Create(ctx, c); err != nil {
			t.Fatalf("Create() ошибка: %v", err)
		}
		for j := 0; j < n; j++ {
			if _, err := r.Candidates.IncrementVotes(ctx, c.ID); err != nil {
				t.Fatalf("IncrementVotes() ошибка: %v", err)
			}
		}
		ids = append(ids, c.ID)
	}

	rank, _ := r.Candidates.Rank(ctx, office.ID, 3)
	if rank != 3 {
		t.Errorf("Rank(3 голоса) = %d, хотели 3", rank)
	}
	rank, _ = r.Candidates.Rank(ctx, office.ID, 7)
	if rank != 1 {
		t.Errorf("Rank(7 голосов) = %d, хотели 1", rank)
	}

	top, _ := r.Candidates.TopApproved(ctx, 2)
	if len(top) != 2 || top[0].ID != ids[1] || top[1].ID != ids[2] {
		t.Errorf("TopApproved(2) вернул неожиданный порядок")
	}
	if top[0].OfficeTitle != "Мэр" {
		t.Errorf("OfficeTitle = %q, хотели Мэр", top[0].OfficeTitle)
	}
}
