// events.go — SSE endpoint для push-уведомлений в реальном времени.
// Каждый клиент обслуживается отдельной горутиной и получает события,
// адресованные всем или лично ему.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bigkaa/goelection/election-api/internal/notify"
)

// defaultKeepalive используется, если интервал не задан или не положителен.
const defaultKeepalive = 15 * time.Second

// EventsHandler — обработчик SSE endpoint.
type EventsHandler struct {
	hub       *notify.Hub
	keepalive time.Duration
	logger    *slog.Logger
}

// NewEventsHandler создаёт обработчик SSE.
// keepalive — интервал комментариев-пингов (EL_SSE_KEEPALIVE).
func NewEventsHandler(hub *notify.Hub, keepalive time.Duration, logger *slog.Logger) *EventsHandler {
	if keepalive <= 0 {
		keepalive = defaultKeepalive
	}
	return &EventsHandler{
		hub:       hub,
		keepalive: keepalive,
		logger:    logger.With(slog.String("component", "events_handler")),
	}
}

// Stream обрабатывает GET /api/v1/events.
// Формат: event: <type>\ndata: {json}\n\n. Отключение клиента (context cancel)
// снимает подписку.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Отключаем буферизацию Nginx

	// ResponseController находит http.Flusher через Unwrap() обёрток middleware.
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		http.Error(w, "SSE не поддерживается", http.StatusInternalServerError)
		return
	}
	// Поток живёт дольше WriteTimeout сервера.
	_ = rc.SetWriteDeadline(time.Time{})

	sub := h.hub.Subscribe(claims.UserID)
	defer h.hub.Unsubscribe(sub)

	h.logger.Debug("SSE клиент подключён",
		slog.Int64("user_id", claims.UserID),
		slog.String("subscription_id", sub.ID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE клиент отключён",
				slog.Int64("user_id", claims.UserID),
				slog.String("subscription_id", sub.ID),
			)
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := h.writeEvent(w, rc, evt); err != nil {
				h.logger.Debug("Ошибка записи SSE", slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

// writeEvent сериализует событие в формат SSE.
func (h *EventsHandler) writeEvent(w http.ResponseWriter, rc *http.ResponseController, evt notify.Event) error {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		h.logger.Error("Ошибка сериализации события",
			slog.String("type", evt.Type),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
		return err
	}
	return rc.Flush()
}
