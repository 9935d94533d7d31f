package service

import (
	"context"
	"testing"
	"time"

	"github.com/bigkaa/goelection/election-api/internal/domain/rbac"
)

func TestOTPCleanup_CleanupNow(t *testing.T) {
	c := newClock()
	store := newStore(c)
	ctx := context.Background()

	expired := mustUser(t, store, "Старый", "old@x.com", rbac.RoleVoter)
	fresh := mustUser(t, store, "Новый", "new@x.com", rbac.RoleVoter)
	users := store.Repos().Users

	if err := users.SetOTP(ctx, expired.ID, "111111", "login", c.Now().Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := users.SetOTP(ctx, fresh.ID, "222222", "login", c.Now().Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	svc := NewOTPCleanupService(store, time.Hour, c.Now, testLogger())
	cleared, err := svc.CleanupNow(ctx)
	if err != nil {
		t.Fatalf("CleanupNow() ошибка: %v", err)
	}
	if cleared != 1 {
		t.Errorf("стёрто %d, хотели 1", cleared)
	}

	got, err := users.GetByID(ctx, expired.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.OTPCode != nil || got.OTPExpiresAt != nil {
		t.Error("истёкший код не стёрт")
	}

	ok, err := users.ConsumeOTP(ctx, fresh.ID, "222222", "login", c.Now())
	if err != nil || !ok {
		t.Errorf("действующий код должен остаться: ok=%v err=%v", ok, err)
	}

	// Повторный проход ничего не находит.
	if cleared, _ := svc.CleanupNow(ctx); cleared != 0 {
		t.Errorf("повторно стёрто %d, хотели 0", cleared)
	}
}

func TestOTPCleanup_StartStop(t *testing.T) {
	c := newClock()
	store := newStore(c)
	u := mustUser(t, store, "Таймер", "tick@x.com")
	if err := store.Repos().Users.SetOTP(context.Background(), u.ID, "333333", "login", c.Now().Add(-time.Second)); err != nil {
		t.Fatal(err)
	}

	svc := NewOTPCleanupService(store, 10*time.Millisecond, c.Now, testLogger())
	svc.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := store.Repos().Users.GetByID(context.Background(), u.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.OTPCode == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("фоновая очистка не сработала")
		}
		time.Sleep(5 * time.Millisecond)
	}

	svc.Stop()
	// Повторный Stop безопасен.
	svc.Stop()
}
