// Точка входа Onboarding Module — BFF-оркестратор онбординга Craftlink.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует клиентов Core API и Auth Provider, создаёт сервисный слой
// и API handlers, запускает topologymetrics и HTTP-сервер с JWT middleware
// и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/craftlink/onboarding-module/internal/api/handlers"
	"github.com/craftlink/onboarding-module/internal/api/middleware"
	"github.com/craftlink/onboarding-module/internal/authclient"
	"github.com/craftlink/onboarding-module/internal/config"
	"github.com/craftlink/onboarding-module/internal/coreclient"
	"github.com/craftlink/onboarding-module/internal/database"
	"github.com/craftlink/onboarding-module/internal/repository"
	"github.com/craftlink/onboarding-module/internal/server"
	"github.com/craftlink/onboarding-module/internal/service"
)

func main() {
	// .env — удобство локальной разработки; в кластере переменные
	// приходят из окружения и файл отсутствует.
	_ = godotenv.Load()

	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Onboarding Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("OM_DEPHEALTH_GROUP") == "" {
		logger.Warn("OM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Клиент Core API
	coreClient, err := coreclient.New(cfg.CoreURL, cfg.CoreCACertPath, cfg.CoreTimeout, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента Core API", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Клиент Core API создан", slog.String("url", cfg.CoreURL))

	// 6. Клиент Auth Provider (logout)
	authClient := authclient.New(cfg.AuthURL, cfg.AuthServiceKey, cfg.AuthTimeout, logger)

	// 7. Repositories
	inviteRepo := repository.NewPendingInviteRepository(pool)
	bookingRepo := repository.NewBookingDraftRepository(pool)
	stateRepo := repository.NewSetupStateRepository(pool)
	draftRepo := repository.NewSetupDraftRepository(pool)

	// 8. Services
	profileCache := service.NewProfileCache(cfg.ProfileCacheSize, cfg.ProfileCacheTTL)
	noticeSvc := service.NewNoticeService(cfg.NoticeBuffer, logger)
	inviteSvc := service.NewInviteService(
		coreClient, inviteRepo, bookingRepo, noticeSvc, profileCache,
		cfg.InviteRetryMax, cfg.InviteRetryBaseDelay,
		logger,
	)
	setupSvc := service.NewSetupService(
		coreClient, stateRepo, draftRepo, inviteSvc, noticeSvc, profileCache,
		logger,
	)
	profileSvc := service.NewProfileService(
		coreClient, profileCache, setupSvc, inviteSvc, noticeSvc,
		logger,
	)
	sessionSvc := service.NewSessionService(
		coreClient, profileSvc, inviteSvc, noticeSvc, profileCache,
		logger,
	)
	authSvc := service.NewAuthService(
		coreClient, authClient, sessionSvc, inviteSvc, profileCache, noticeSvc,
		logger,
	)

	// 9. Readiness checkers (PostgreSQL + Auth Provider)
	pgChecker := database.NewReadinessChecker(pool)
	authChecker := middleware.NewAuthReadinessChecker(cfg.AuthJWKSURL, cfg.JWKSClientTimeout)
	healthHandler := handlers.NewHealthHandler(pgChecker, authChecker)

	// 10. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		sessionSvc,
		setupSvc,
		profileSvc,
		inviteSvc,
		noticeSvc,
		authSvc,
		inviteRepo,
		bookingRepo,
		logger,
	)

	// 11. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.AuthJWKSURL,
		cfg.AuthCACertPath,
		cfg.AuthIssuer,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer jwtAuth.Close()
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.AuthJWKSURL),
		slog.String("issuer", cfg.AuthIssuer),
	)

	// 12. topologymetrics — мониторинг зависимостей
	// (PostgreSQL + Core API + Auth Provider)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"onboarding-module",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseDSN(),
		cfg.CoreURL,
		cfg.AuthJWKSURL,
		cfg.DephealthCheckInterval,
		cfg.DephealthIsEntry,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
			defer dephealthSvc.Stop()
		}
	}

	// 13. HTTP-сервер с graceful shutdown
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка HTTP-сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
