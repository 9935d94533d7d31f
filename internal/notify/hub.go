// Пакет notify — доставка уведомлений: push-события подписчикам (SSE)
// и email через Mailer.
//
// Hub хранит явный реестр подписок user_id → подписки, поэтому
// point-to-point событие получает только адресат. Доставка fire-and-forget:
// медленный подписчик теряет события, отправитель никогда не блокируется.
package notify

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Типы событий.
const (
	EventVoteUpdated       = "vote_updated"
	EventDashboardRefresh  = "dashboard_refresh"
	EventCandidateApproved = "candidate_approved"
	EventRoleUpdated       = "role_updated"
	EventNotification      = "notification"
)

// defaultBuffer — ёмкость канала подписки по умолчанию.
const defaultBuffer = 32

var (
	pushDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "election_push_events_dropped_total",
			Help: "Количество push-событий, отброшенных из-за переполненного буфера подписчика",
		},
		[]string{"type"},
	)

	pushSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "election_push_subscribers",
		Help: "Количество активных push-подписок",
	})
)

// Event — push-событие.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Subscription — подписка одного клиента.
type Subscription struct {
	ID     string
	UserID int64
	ch     chan Event
}

// Events возвращает канал событий. Закрывается при Unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Hub — реестр подписок и fan-out событий.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	byUser map[int64]map[string]*Subscription
	buffer int
	logger *slog.Logger
}

// NewHub создаёт Hub. buffer <= 0 — ёмкость по умолчанию.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[string]*Subscription),
		byUser: make(map[int64]map[string]*Subscription),
		buffer: buffer,
		logger: logger.With(slog.String("component", "push_hub")),
	}
}

// Subscribe регистрирует подписку пользователя.
func (h *Hub) Subscribe(userID int64) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		UserID: userID,
		ch:     make(chan Event, h.buffer),
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[string]*Subscription)
	}
	h.byUser[userID][sub.ID] = sub
	h.mu.Unlock()

	pushSubscribers.Inc()
	h.logger.Debug("Подписка зарегистрирована",
		slog.String("subscription_id", sub.ID),
		slog.Int64("user_id", userID),
	)
	return sub
}

// Unsubscribe удаляет подписку и закрывает её канал. Повторный вызов безопасен.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if _, ok := h.subs[sub.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, sub.ID)
	if userSubs := h.byUser[sub.UserID]; userSubs != nil {
		delete(userSubs, sub.ID)
		if len(userSubs) == 0 {
			delete(h.byUser, sub.UserID)
		}
	}
	close(sub.ch)
	h.mu.Unlock()

	pushSubscribers.Dec()
}

// Broadcast отправляет событие всем подписчикам.
func (h *Hub) Broadcast(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		h.deliver(sub, evt)
	}
}

// SendToUser отправляет событие всем подпискам одного пользователя.
func (h *Hub) SendToUser(userID int64, evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.byUser[userID] {
		h.deliver(sub, evt)
	}
}

// SendToUsers отправляет событие списку пользователей.
func (h *Hub) SendToUsers(userIDs []int64, evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range userIDs {
		for _, sub := range h.byUser[id] {
			h.deliver(sub, evt)
		}
	}
}

// SubscriberCount возвращает число активных подписок.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// deliver вызывается под RLock: Unsubscribe не закроет канал во время отправки.
func (h *Hub) deliver(sub *Subscription, evt Event) {
	select {
	case sub.ch <- evt:
	default:
		pushDroppedTotal.WithLabelValues(evt.Type).Inc()
		h.logger.Warn("Буфер подписчика переполнен, событие отброшено",
			slog.String("subscription_id", sub.ID),
			slog.Int64("user_id", sub.UserID),
			slog.String("type", evt.Type),
		)
	}
}
