package handlers

import (
	"bufio"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/goelection/election-api/internal/api/middleware"
	"github.com/bigkaa/goelection/election-api/internal/domain/rbac"
	"github.com/bigkaa/goelection/election-api/internal/notify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// withUser подставляет claims так, как это делает JWT middleware.
func withUser(userID int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := &middleware.AuthClaims{UserID: userID, Permissions: rbac.NewPermissionSet(nil)}
		next.ServeHTTP(w, r.WithContext(middleware.WithClaims(r.Context(), claims)))
	})
}

// waitSubscribers ждёт, пока в Hub появится n подписок.
func waitSubscribers(t *testing.T, hub *notify.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("подписок = %d, хотели %d", hub.SubscriberCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// readEvent читает одно SSE-событие (без keepalive-комментариев).
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("чтение потока: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestEventsHandler_Stream(t *testing.T) {
	hub := notify.NewHub(8, testLogger())
	h := NewEventsHandler(hub, time.Hour, testLogger())

	srv := httptest.NewServer(withUser(7, http.HandlerFunc(h.Stream)))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, хотели text/event-stream", ct)
	}
	waitSubscribers(t, hub, 1)

	// Событие другому пользователю не должно дойти.
	hub.SendToUser(8, notify.Event{Type: notify.EventNotification, Data: map[string]string{"message": "чужое"}})
	hub.SendToUser(7, notify.Event{Type: notify.EventNotification, Data: map[string]string{"message": "своё"}})
	hub.Broadcast(notify.Event{Type: notify.EventDashboardRefresh})

	reader := bufio.NewReader(resp.Body)

	event, data := readEvent(t, reader)
	if event != notify.EventNotification || !strings.Contains(data, "своё") {
		t.Errorf("первое событие = %s %s, хотели notification со своим сообщением", event, data)
	}

	event, _ = readEvent(t, reader)
	if event != notify.EventDashboardRefresh {
		t.Errorf("второе событие = %s, хотели %s", event, notify.EventDashboardRefresh)
	}

	cancel()
	waitSubscribers(t, hub, 0)
}

func TestEventsHandler_Keepalive(t *testing.T) {
	hub := notify.NewHub(8, testLogger())
	h := NewEventsHandler(hub, 20*time.Millisecond, testLogger())

	srv := httptest.NewServer(withUser(1, http.HandlerFunc(h.Stream)))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != ": keepalive\n" {
		t.Errorf("строка = %q, хотели keepalive-комментарий", line)
	}
}

func TestNewEventsHandler_NonPositiveKeepalive(t *testing.T) {
	for _, keepalive := range []time.Duration{0, -time.Second} {
		h := NewEventsHandler(notify.NewHub(1, testLogger()), keepalive, testLogger())
		if h.keepalive != defaultKeepalive {
			t.Errorf("keepalive(%v) = %v, ожидается %v", keepalive, h.keepalive, defaultKeepalive)
		}
	}
}

func TestEventsHandler_Unauthenticated(t *testing.T) {
	h := NewEventsHandler(notify.NewHub(1, testLogger()), time.Hour, testLogger())

	rec := httptest.NewRecorder()
	h.Stream(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус = %d, хотели 401", rec.Code)
	}
}
