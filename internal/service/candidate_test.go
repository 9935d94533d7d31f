package service

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/bigkaa/goelection/election-api/internal/domain/model"
	"github.com/bigkaa/goelection/election-api/internal/domain/rbac"
	"github.com/bigkaa/goelection/election-api/internal/notify"
	"github.com/bigkaa/goelection/election-api/internal/repository"
)

func newCandidateFixture(t *testing.T) (repository.Store, *CandidateService, *recordingPublisher) {
	t.Helper()
	store := newStore(newClock())
	pub := &recordingPublisher{}
	return store, NewCandidateService(store, pub, testLogger()), pub
}

func TestCandidate_Apply(t *testing.T) {
	tests := []struct {
		name        string
		criminal    bool
		wantStatus  model.CandidateStatus
		wantMessage string
	}{
		{"без судимости — ожидание", false, model.CandidatePending, msgApplicationPending},
		{"с судимостью — автоотказ", true, model.CandidateDenied, msgApplicationDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, svc, _ := newCandidateFixture(t)
			ctx := context.Background()
			user := mustUser(t, store, "Bob", "bob@x.com", rbac.RoleVoter)
			office := mustOffice(t, store, "Президент")

			res, err := svc.Apply(ctx, user.ID, ApplyRequest{
				OfficeID:          office.ID,
				Manifesto:         "  Дороги и школы  ",
				HasCriminalRecord: tt.criminal,
			})
			if err != nil {
				t.Fatalf("Apply() ошибка: %v", err)
			}
			if res.Candidate.Status != tt.wantStatus {
				t.Errorf("Status = %s, хотели %s", res.Candidate.Status, tt.wantStatus)
			}
			if res.Message != tt.wantMessage {
				t.Errorf("Message = %q, хотели %q", res.Message, tt.wantMessage)
			}
			if res.Candidate.VoteCount != 0 {
				t.Errorf("VoteCount = %d, ожидается 0", res.Candidate.VoteCount)
			}

			stored := mustGetCandidate(t, store, res.Candidate.ID)
			if stored.Manifesto != "Дороги и школы" {
				t.Errorf("Manifesto = %q", stored.Manifesto)
			}
			if countAudit(t, store, "Candidate Applied") != 1 {
				t.Error("ожидается запись аудита Candidate Applied")
			}

			// Роль при подаче не выдаётся
			names, _ := store.Repos().Roles.RoleNamesForUser(ctx, user.ID)
			if slices.Contains(names, rbac.RoleCandidate) {
				t.Error("роль Candidate выдана до одобрения")
			}
		})
	}
}

func TestCandidate_Apply_Errors(t *testing.T) {
	store, svc, _ := newCandidateFixture(t)
	ctx := context.Background()
	user := mustUser(t, store, "Bob", "bob@x.com", rbac.RoleVoter)
	office := mustOffice(t, store, "Мэр")

	if _, err := svc.Apply(ctx, user.ID, ApplyRequest{OfficeID: office.ID}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		userID  int64
		req     ApplyRequest
		wantErr error
	}{
		{"повторная заявка", user.ID, ApplyRequest{OfficeID: office.ID}, ErrAlreadyApplied},
		{"несуществующая должность", user.ID, ApplyRequest{OfficeID: 999}, ErrOfficeNotFound},
		{"должность не указана", user.ID, ApplyRequest{}, ErrValidation},
		{"несуществующий пользователь", 999, ApplyRequest{OfficeID: office.ID}, ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Apply(ctx, tt.userID, tt.req); !errors.Is(err, tt.wantErr) {
				t.Errorf("Apply() = %v, хотели %v", err, tt.wantErr)
			}
		})
	}

	// Отклонённая заявка тоже занимает пару (пользователь, должность)
	other := mustOffice(t, store, "Губернатор")
	if _, err := svc.Apply(ctx, user.ID, ApplyRequest{OfficeID: other.ID, HasCriminalRecord: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Apply(ctx, user.ID, ApplyRequest{OfficeID: other.ID}); !errors.Is(err, ErrAlreadyApplied) {
		t.Errorf("повторная заявка после автоотказа = %v, ожидается ErrAlreadyApplied", err)
	}
}

func TestCandidate_Approve(t *testing.T) {
	store, svc, pub := newCandidateFixture(t)
	ctx := context.Background()
	user := mustUser(t, store, "Bob", "bob@x.com", rbac.RoleVoter)
	office := mustOffice(t, store, "Президент")
	cand := mustCandidate(t, store, user.ID, office.ID, model.CandidatePending)
	admin := Actor{UserID: 100, Email: "admin@x.com"}

	res, err := svc.Approve(ctx, admin, cand.ID)
	if err != nil {
		t.Fatalf("Approve() ошибка: %v", err)
	}
	if res.Candidate.Status != model.CandidateApproved {
		t.Errorf("Status = %s, ожидается Approved", res.Candidate.Status)
	}
	if got := mustGetCandidate(t, store, cand.ID).Status; got != model.CandidateApproved {
		t.Errorf("сохранённый Status = %s", got)
	}
	if !slices.Contains(res.Permissions, rbac.CanAccessCandidateDashboard) {
		t.Errorf("Permissions = %v, ожидается CanAccessCandidateDashboard", res.Permissions)
	}
	// Роль добавляется к Voter
	if !slices.Contains(res.Permissions, rbac.CanApplyForCandidacy) {
		t.Errorf("Permissions = %v, права Voter должны сохраниться", res.Permissions)
	}

	names, err := store.Repos().Roles.RoleNamesForUser(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(names, rbac.RoleCandidate) || !slices.Contains(names, rbac.RoleVoter) {
		t.Errorf("роли = %v, ожидаются Voter и Candidate", names)
	}

	if pub.count(notify.EventDashboardRefresh) != 1 {
		t.Error("ожидается событие dashboard_refresh")
	}
	approved := pub.find(notify.EventCandidateApproved)
	if len(approved) != 1 || approved[0].userID != user.ID {
		t.Fatalf("candidate_approved = %+v, ожидается одно событие владельцу", approved)
	}
	data, ok := approved[0].evt.Data.(map[string]any)
	if !ok || data["candidate_id"] != cand.ID {
		t.Errorf("данные события = %+v", approved[0].evt.Data)
	}

	// Повторное одобрение не дублирует роль
	if _, err := svc.Approve(ctx, admin, cand.ID); err != nil {
		t.Fatalf("повторный Approve() ошибка: %v", err)
	}
	names, _ = store.Repos().Roles.RoleNamesForUser(ctx, user.ID)
	n := 0
	for _, name := range names {
		if name == rbac.RoleCandidate {
			n++
		}
	}
	if n != 1 {
		t.Errorf("роль Candidate назначена %d раз", n)
	}

	if countAudit(t, store, "Candidate Approved") != 2 {
		t.Error("ожидается две записи аудита Candidate Approved")
	}
}

func TestCandidate_Approve_Denied(t *testing.T) {
	store, svc, _ := newCandidateFixture(t)
	user := mustUser(t, store, "Bob", "bob@x.com", rbac.RoleVoter)
	office := mustOffice(t, store, "Мэр")
	cand := mustCandidate(t, store, user.ID, office.ID, model.CandidateDenied)

	res, err := svc.Approve(context.Background(), Actor{}, cand.ID)
	if err != nil {
		t.Fatalf("Approve(Denied) ошибка: %v", err)
	}
	if res.Candidate.Status != model.CandidateApproved {
		t.Errorf("Status = %s, ожидается Approved", res.Candidate.Status)
	}
}

func TestCandidate_Approve_NotFound(t *testing.T) {
	_, svc, pub := newCandidateFixture(t)

	if _, err := svc.Approve(context.Background(), Actor{}, 42); !errors.Is(err, ErrCandidateNotFound) {
		t.Errorf("Approve() = %v, ожидается ErrCandidateNotFound", err)
	}
	if len(pub.events) != 0 {
		t.Errorf("опубликовано %d событий при ошибке", len(pub.events))
	}
}

// TestCandidate_Approve_RollbackOnAuditFailure — при ошибке аудита ни статус,
// ни роль не меняются, события не публикуются.
func TestCandidate_Approve_RollbackOnAuditFailure(t *testing.T) {
	base := newStore(newClock())
	pub := &recordingPublisher{}
	svc := NewCandidateService(failingAuditStore{base}, pub, testLogger())

	user := mustUser(t, base, "Bob", "bob@x.com", rbac.RoleVoter)
	office := mustOffice(t, base, "Мэр")
	cand := mustCandidate(t, base, user.ID, office.ID, model.CandidatePending)

	if _, err := svc.Approve(context.Background(), Actor{}, cand.ID); !errors.Is(err, errAuditDown) {
		t.Fatalf("Approve() = %v, ожидается errAuditDown", err)
	}
	if got := mustGetCandidate(t, base, cand.ID).Status; got != model.CandidatePending {
		t.Errorf("Status = %s, ожидается Pending после отката", got)
	}
	names, _ := base.Repos().Roles.RoleNamesForUser(context.Background(), user.ID)
	if slices.Contains(names, rbac.RoleCandidate) {
		t.Error("роль Candidate осталась после отката")
	}
	if len(pub.events) != 0 {
		t.Error("события опубликованы до коммита")
	}
}

func TestCandidate_Deny(t *testing.T) {
	tests := []struct {
		name    string
		from    model.CandidateStatus
		wantErr error
	}{
		{"из Pending", model.CandidatePending, nil},
		{"из Approved", model.CandidateApproved, ErrInvalidTransition},
		{"из Denied", model.CandidateDenied, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, svc, pub := newCandidateFixture(t)
			user := mustUser(t, store, "Bob", "bob@x.com", rbac.RoleVoter)
			office := mustOffice(t, store, "Мэр")
			cand := mustCandidate(t, store, user.ID, office.ID, tt.from)

			_, err := svc.Deny(context.Background(), Actor{Email: "admin@x.com"}, cand.ID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Deny() = %v, хотели %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if got := mustGetCandidate(t, store, cand.ID).Status; got != tt.from {
					t.Errorf("Status изменился на %s", got)
				}
				return
			}
			if got := mustGetCandidate(t, store, cand.ID).Status; got != model.CandidateDenied {
				t.Errorf("Status = %s, ожидается Denied", got)
			}
			if pub.count(notify.EventDashboardRefresh) != 1 {
				t.Error("ожидается событие dashboard_refresh")
			}
		})
	}
}

func TestCandidate_Stats(t *testing.T) {
	store, svc, _ := newCandidateFixture(t)
	ctx := context.Background()
	office := mustOffice(t, store, "Президент")

	counts := []int{5, 3, 3, 1}
	var ids []int64
	for i, n := range counts {
		u := mustUser(t, store, "C", "c"+string(rune('a'+i))+"@x.com", rbac.RoleCandidate)
		c := mustCandidate(t, store, u.ID, office.ID, model.CandidateApproved)
		for j := 0; j < n; j++ {
			if _, err := store.Repos().Candidates.IncrementVotes(ctx, c.ID); err != nil {
				t.Fatal(err)
			}
		}
		ids = append(ids, u.ID)
	}

	wantRanks := []int{1, 2, 2, 4}
	for i, userID := range ids {
		stats, err := svc.Stats(ctx, userID)
		if err != nil {
			t.Fatalf("Stats(%d) ошибка: %v", userID, err)
		}
		if stats.Rank != wantRanks[i] {
			t.Errorf("Rank[%d] = %d, хотели %d", i, stats.Rank, wantRanks[i])
		}
		if stats.VoteCount != counts[i] {
			t.Errorf("VoteCount[%d] = %d, хотели %d", i, stats.VoteCount, counts[i])
		}
	}

	voter := mustUser(t, store, "V", "v@x.com", rbac.RoleVoter)
	if _, err := svc.Stats(ctx, voter.ID); !errors.Is(err, ErrNotCandidate) {
		t.Errorf("Stats(не кандидат) = %v, ожидается ErrNotCandidate", err)
	}
}

func TestCandidate_UpdateManifesto(t *testing.T) {
	store, svc, _ := newCandidateFixture(t)
	ctx := context.Background()
	user := mustUser(t, store, "Bob", "bob@x.com", rbac.RoleCandidate)
	office := mustOffice(t, store, "Мэр")
	cand := mustCandidate(t, store, user.ID, office.ID, model.CandidateApproved)

	if err := svc.UpdateManifesto(ctx, user.ID, "Новая программа"); err != nil {
		t.Fatalf("UpdateManifesto() ошибка: %v", err)
	}
	if got := mustGetCandidate(t, store, cand.ID).Manifesto; got != "Новая программа" {
		t.Errorf("Manifesto = %q", got)
	}

	if err := svc.UpdateManifesto(ctx, user.ID, "   "); !errors.Is(err, ErrValidation) {
		t.Errorf("пустая программа: %v, ожидается ErrValidation", err)
	}

	voter := mustUser(t, store, "V", "v@x.com", rbac.RoleVoter)
	if err := svc.UpdateManifesto(ctx, voter.ID, "текст"); !errors.Is(err, ErrNotCandidate) {
		t.Errorf("не кандидат: %v, ожидается ErrNotCandidate", err)
	}
}
