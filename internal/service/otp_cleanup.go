// otp_cleanup.go — фоновая очистка истёкших одноразовых кодов.
//
// OTPCleanupService запускает горутину с ticker (EL_OTP_CLEANUP_INTERVAL),
// которая стирает коды с истёкшим сроком. На проверку кода очистка не влияет:
// ConsumeOTP и так отвергает истёкшие коды, здесь лишь убираются их следы.
//
// Prometheus-метрики:
//   - election_otp_cleanup_duration_seconds — длительность прохода
//   - election_otp_cleared_total — количество стёртых кодов
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goelection/election-api/internal/repository"
)

var (
	otpCleanupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "election_otp_cleanup_duration_seconds",
		Help:    "Длительность очистки истёкших OTP",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms … ~4s
	})

	otpClearedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "election_otp_cleared_total",
		Help: "Количество стёртых истёкших OTP",
	})
)

// OTPCleanupService — фоновый сервис очистки истёкших OTP.
type OTPCleanupService struct {
	store    repository.Store
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewOTPCleanupService создаёт сервис очистки. now == nil — time.Now.
func NewOTPCleanupService(store repository.Store, interval time.Duration, now func() time.Time, logger *slog.Logger) *OTPCleanupService {
	if now == nil {
		now = time.Now
	}
	return &OTPCleanupService{
		store:    store,
		interval: interval,
		now:      now,
		logger:   logger.With(slog.String("component", "otp_cleanup")),
	}
}

// Start запускает фоновую горутину с периодической очисткой.
func (s *OTPCleanupService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Периодическая очистка OTP запущена",
			slog.String("interval", s.interval.String()),
		)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Периодическая очистка OTP остановлена")
				return
			case <-ticker.C:
				cleared, err := s.CleanupNow(ctx)
				if err != nil {
					s.logger.Error("Ошибка очистки OTP", slog.String("error", err.Error()))
					continue
				}
				if cleared > 0 {
					s.logger.Debug("Истёкшие OTP стёрты", slog.Int("count", cleared))
				}
			}
		}
	}()
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (s *OTPCleanupService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// CleanupNow выполняет очистку немедленно. Возвращает число стёртых кодов.
func (s *OTPCleanupService) CleanupNow(ctx context.Context) (int, error) {
	started := time.Now()
	defer func() { otpCleanupDuration.Observe(time.Since(started).Seconds()) }()

	cleared, err := s.store.Repos().Users.ClearExpiredOTP(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("очистка истёкших OTP: %w", err)
	}
	otpClearedTotal.Add(float64(cleared))
	return cleared, nil
}
