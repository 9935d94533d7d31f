// Точка входа Election API — ядро системы онлайн-выборов.
// Загружает конфигурацию, подключает хранилище (PostgreSQL или in-memory),
// применяет миграции, создаёт сервисный слой и API handlers,
// запускает мониторинг зависимостей и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/bigkaa/goelection/election-api/internal/api/handlers"
	"github.com/bigkaa/goelection/election-api/internal/api/middleware"
	"github.com/bigkaa/goelection/election-api/internal/config"
	"github.com/bigkaa/goelection/election-api/internal/database"
	"github.com/bigkaa/goelection/election-api/internal/notify"
	"github.com/bigkaa/goelection/election-api/internal/repository"
	"github.com/bigkaa/goelection/election-api/internal/repository/memstore"
	"github.com/bigkaa/goelection/election-api/internal/security"
	"github.com/bigkaa/goelection/election-api/internal/server"
	"github.com/bigkaa/goelection/election-api/internal/service"
)

// bcryptCost — стоимость bcrypt для паролей пользователей.
const bcryptCost = 12

func main() {
	// 0. .env для локальной разработки; в кластере переменные задаёт окружение
	envErr := godotenv.Load()

	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Election API запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage", cfg.Storage),
	)
	if envErr != nil && !os.IsNotExist(envErr) {
		logger.Warn("Ошибка чтения .env", slog.String("error", envErr.Error()))
	}

	ctx := context.Background()

	// 3. Хранилище
	var (
		store        repository.Store
		readiness    handlers.ReadinessChecker
		dephealthSvc *service.DephealthService
	)

	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("Используется хранилище в памяти, данные не сохраняются между рестартами")
		mem := memstore.New()
		store = mem
		readiness = mem

	default:
		// 3.1 Применение миграций БД
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}

		// 3.2 Подключение к PostgreSQL (pgxpool)
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		store = repository.NewPgStore(pool, cfg.TxMaxRetries, logger)
		readiness = database.NewReadinessChecker(pool)

		// 3.3 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
		pgDB := stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()

		if os.Getenv("EL_DEPHEALTH_GROUP") == "" {
			logger.Warn("EL_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
				slog.String("default", cfg.DephealthGroup),
			)
		}

		svc, dhErr := service.NewDephealthService(service.DephealthConfig{
			ServiceID:     "election-api",
			Group:         cfg.DephealthGroup,
			DB:            pgDB,
			PgURL:         cfg.DatabaseURL(),
			CheckInterval: cfg.DephealthCheckInterval,
		}, logger)
		if dhErr != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", dhErr.Error()),
			)
		} else if startErr := svc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		} else {
			dephealthSvc = svc
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 4. Токены
	tokens, err := security.NewTokenManager(security.TokenConfig{
		Issuer:         cfg.JWTIssuer,
		Audience:       cfg.JWTAudience,
		TTL:            cfg.JWTTTL,
		Leeway:         cfg.JWTLeeway,
		KeyID:          cfg.JWTKeyID,
		PrivateKeyPath: cfg.JWTPrivateKeyPath,
	}, logger)
	if err != nil {
		logger.Error("Ошибка инициализации ключа подписи", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Доставка уведомлений
	hub := notify.NewHub(0, logger)

	var mailer notify.Mailer
	if cfg.SMTPHost != "" {
		smtpMailer, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}, logger)
		if err != nil {
			logger.Error("Ошибка настройки SMTP", slog.String("error", err.Error()))
			os.Exit(1)
		}
		mailer = smtpMailer
	} else {
		logger.Warn("EL_SMTP_HOST не задан, письма только логируются")
		mailer = notify.NewLogMailer(logger)
	}

	// 6. Services
	hasher := security.NewBcryptHasher(bcryptCost)

	authSvc := service.NewAuthService(store, hasher, security.NewOTPGenerator(), tokens, mailer,
		service.AuthConfig{
			LoginOTPTTL: cfg.OTPLoginTTL,
			ResetOTPTTL: cfg.OTPResetTTL,
		},
		logger,
	)
	candidateSvc := service.NewCandidateService(store, hub, logger)
	voteSvc := service.NewVoteService(store, hub, mailer, cfg.VoteMilestone, logger)
	adminSvc := service.NewAdminService(store, hasher, hub, logger)

	// 6.1 Начальный администратор
	if cfg.AdminEmail != "" {
		if err := adminSvc.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			logger.Error("Ошибка создания администратора", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 6.2 Фоновая очистка истёкших OTP
	otpCleanup := service.NewOTPCleanupService(store, cfg.OTPCleanupInterval, nil, logger)
	otpCleanup.Start(ctx)

	// 7. Handlers
	var deps handlers.HealthReporter
	if dephealthSvc != nil {
		deps = dephealthSvc
	}

	h := server.Handlers{
		Health:    handlers.NewHealthHandler(readiness, deps),
		Auth:      handlers.NewAuthHandler(authSvc, tokens, logger),
		Voter:     handlers.NewVoterHandler(voteSvc, logger),
		Candidate: handlers.NewCandidateHandler(candidateSvc, logger),
		Admin:     handlers.NewAdminHandler(adminSvc, candidateSvc, logger),
		Events:    handlers.NewEventsHandler(hub, cfg.SSEKeepalive, logger),
	}

	// 8. JWT middleware
	jwtAuth := middleware.NewJWTAuth(tokens, logger)
	logger.Info("JWT middleware инициализирован",
		slog.String("issuer", cfg.JWTIssuer),
		slog.String("key_id", cfg.JWTKeyID),
	)

	// 9. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, h, jwtAuth)
	runErr := srv.Run()

	// 10. Остановка фоновых задач
	otpCleanup.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("Election API остановлен")
}
