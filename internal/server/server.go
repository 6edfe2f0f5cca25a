package server

import (
	"context"

	"backend-safetrack/internal/archive"
	"backend-safetrack/internal/auth"
	"backend-safetrack/internal/checkin"
	"backend-safetrack/internal/config"
	"backend-safetrack/internal/contacts"
	"backend-safetrack/internal/notify"
	"backend-safetrack/internal/store"
	"backend-safetrack/internal/stream"
	"backend-safetrack/internal/throttle"
	"backend-safetrack/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Archive  *archive.Service
	Tracking *tracking.Manager
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}
	if db != nil {
		s.Archive = archive.NewService(db)
	}

	registerRoutes(s)
	return s
}

// Settings maps configuration onto tracker settings.
func Settings(cfg config.Config) tracking.Settings {
	return tracking.Settings{
		BaseURL:             cfg.PublicBaseURL,
		AnomalyThresholdMps: cfg.AnomalyThresholdMps,
		Warmup:              cfg.AnomalyWarmup,
		Throttle:            throttle.New(cfg.ThrottleInterval, cfg.ThrottleDistanceM),
		CheckVisible:        cfg.CheckVisible,
		CheckInterval:       cfg.CheckInterval,
		InitialFixTimeout:   cfg.InitialFixTimeout,
		FixStaleTimeout:     cfg.FixStaleTimeout,
		NotifyTimeout:       cfg.NotifyTimeout,
	}
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.Redis), s.Cfg.Debug)
	if s.Archive != nil {
		archive.RegisterRoutes(s.App.Group("/trips"), s.Archive)
	}

	if s.Redis == nil {
		log.Warn("server: no redis configured, tracking routes disabled")
		stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, jwtMiddleware, nil)
		return
	}

	st := store.NewRedisStore(s.Redis)
	contactSvc := contacts.NewService(st)
	checkins := checkin.NewService(st)
	repo := tracking.NewRepository(st)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, jwtMiddleware, func(ctx context.Context, id string) bool {
		_, err := repo.Get(ctx, id)
		return err == nil
	})

	notifier := notify.NewNotifier(
		contactSvc,
		notify.NewTelegramChannel(s.Cfg.CallMeBotURL),
		notify.NewWhatsAppChannel(s.Cfg.CallMeBotURL, s.Cfg.WhatsAppAPIKey),
		notify.Config{
			AuthorizedNumber: s.Cfg.WhatsAppAuthorizedNumber,
			WhatsAppPhone:    s.Cfg.WhatsAppPhone,
			Timeout:          s.Cfg.NotifyTimeout,
		},
	)

	deps := tracking.Deps{
		Repo:     repo,
		Checkins: checkins,
		Notifier: notifier,
		Events:   tracking.NewHubEvents(s.Stream),
		Viewers:  s.Stream,
	}
	if s.Archive != nil {
		deps.Archiver = s.Archive
	}
	s.Tracking = tracking.NewManager(tracking.NewFactory(deps, Settings(s.Cfg)))

	contacts.RegisterRoutes(s.App.Group("/contacts"), contactSvc, jwtMiddleware)
	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Tracking, jwtMiddleware, s.Cfg.Debug)
	tracking.RegisterViewerRoutes(s.App.Group("/tracker"), repo, checkins)
}

// Close leaves every live session resumable and stops background work.
func (s *Server) Close(ctx context.Context) {
	if s.Tracking != nil {
		if err := s.Tracking.TeardownAll(ctx); err != nil {
			log.WithError(err).Warn("server: tracker teardown failed")
		}
		s.Tracking.Wait()
	}
	s.Stream.Close()
}
