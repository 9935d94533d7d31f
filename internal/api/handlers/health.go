// health.go — обработчики health endpoints Election API.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (хранилище доступно)
// /metrics — Prometheus метрики
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goelection/election-api/internal/config"
)

// serviceName — имя сервиса в ответах health.
const serviceName = "election-api"

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady(ctx context.Context) (status string, message string)
}

// HealthReporter — источник фоновых проверок зависимостей (dephealth).
type HealthReporter interface {
	Health() map[string]bool
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	storage     ReadinessChecker
	deps        HealthReporter
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// storage == nil — readiness вернёт "fail"; deps может быть nil
// (режим хранения в памяти без фонового мониторинга).
func NewHealthHandler(storage ReadinessChecker, deps HealthReporter) *HealthHandler {
	return &HealthHandler{
		storage:     storage,
		deps:        deps,
		promHandler: promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		Storage    healthCheckResult  `json:"storage"`
		PostgreSQL *healthCheckResult `json:"postgresql,omitempty"`
	} `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — readiness probe. Проверяет хранилище и, если включён,
// фоновый мониторинг PostgreSQL. Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}

	if h.storage != nil {
		st, msg := h.storage.CheckReady(r.Context())
		resp.Checks.Storage = healthCheckResult{Status: st, Message: msg}
	} else {
		resp.Checks.Storage = healthCheckResult{Status: "fail", Message: "не инициализировано"}
	}

	statuses := []string{resp.Checks.Storage.Status}

	// Фоновая проверка отстаёт от пинга на интервал, поэтому её сбой
	// понижает статус до degraded, а не fail.
	if h.deps != nil {
		pg := healthCheckResult{Status: "ok"}
		if !findHealthByPrefix(h.deps.Health(), "postgresql") {
			pg = healthCheckResult{Status: "degraded", Message: "фоновая проверка не пройдена"}
		}
		resp.Checks.PostgreSQL = &pg
		statuses = append(statuses, pg.Status)
	}

	resp.Status = overallStatus(statuses...)

	status := http.StatusOK
	if resp.Status == "fail" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == "fail" {
			return "fail"
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return "ok"
}

// findHealthByPrefix ищет статус зависимости по префиксу имени.
// Health() из topologymetrics SDK возвращает ключи формата "dependency:host:port".
// Если найдено несколько, true только когда все healthy.
func findHealthByPrefix(health map[string]bool, prefix string) bool {
	found := false
	for key, ok := range health {
		if strings.HasPrefix(key, prefix+":") || key == prefix {
			if !ok {
				return false
			}
			found = true
		}
	}
	return found
}
