package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"challenge-quest/cache"
	"challenge-quest/config"
	"challenge-quest/handlers"
	"challenge-quest/logger"
	"challenge-quest/metrics"
	"challenge-quest/queue"
	"challenge-quest/repository"
	"challenge-quest/services"
	"challenge-quest/utils"
	"challenge-quest/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New("challenge-quest", "info").WithError(err).Fatal("invalid configuration")
	}
	log := logger.New("challenge-quest", cfg.LogLevel)
	if envErr != nil {
		log.Info("no .env file found, reading environment variables directly")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	var store repository.Store
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn("using in-memory store; data is lost on restart")
		store = repository.NewMemoryStore(clock.Now)
	default:
		db, err := repository.Connect(cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("database connection failed")
		}
		if err := repository.Migrate(db); err != nil {
			log.WithError(err).Fatal("database migration failed")
		}
		store = repository.NewGormStore(db)
	}

	metrics.Register()

	levels := services.NewLevelService(store, log.Component("levels"), cfg.DefaultLevelSpan)
	if seeded, err := levels.SeedDefaultLevels(ctx); err != nil {
		log.WithError(err).Fatal("failed to seed levels")
	} else if seeded {
		log.Info("seeded default level table")
	}

	var pageCache services.PageCache
	if client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); client != nil {
		defer client.Close()
		pageCache = cache.NewRedisCache(client, "challengequest:", log.Component("cache"))
		log.WithField("addr", cfg.RedisAddr).Info("leaderboard cache enabled")
	} else if cfg.RedisAddr != "" {
		log.WithField("addr", cfg.RedisAddr).Warn("redis unreachable, leaderboard cache disabled")
	}

	var publisher queue.Publisher = queue.LogPublisher{Log: log.Component("events")}
	if cfg.RabbitMQURL != "" {
		amqpPub, err := queue.NewAMQPPublisher(cfg.RabbitMQURL, cfg.EventsExchange, log.Component("events"))
		if err != nil {
			log.WithError(err).Warn("rabbitmq unavailable, events will be logged only")
		} else {
			defer amqpPub.Close()
			publisher = amqpPub
		}
	}

	var objects services.ObjectStore
	if cfg.R2Enabled() {
		r2, err := utils.NewR2Store(ctx, utils.R2Config{
			AccountID:       cfg.CloudflareAccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			Bucket:          cfg.R2BucketName,
			CDNBaseURL:      cfg.CDNBaseURL,
		})
		if err != nil {
			log.WithError(err).Fatal("failed to initialize R2 client")
		}
		objects = r2
	} else {
		disk, err := utils.NewDiskStore(cfg.UploadDir, "/uploads")
		if err != nil {
			log.WithError(err).Fatal("failed to ensure upload dir")
		}
		objects = disk
	}

	board := services.NewLeaderboardService(store, pageCache, cfg.LeaderboardCacheTTL, log.Component("leaderboard"), cfg.DefaultLevelSpan)
	users := services.NewUserService(store, board, log.Component("users"), cfg.DefaultLevelSpan)
	auth := services.NewAuthService(store, clock, log.Component("auth"), cfg.JWTSecret, cfg.JWTTTL, cfg.BcryptCost)

	sched, err := services.StartLevelScheduler(levels, cfg.LevelRecalcInterval, clock)
	if err != nil {
		log.WithError(err).Fatal("failed to start level scheduler")
	}

	relay := workers.NewEventRelay(store, publisher, clock, log.Component("relay"))
	relay.MaxAttempts = cfg.EventMaxAttempts
	go relay.Run(ctx, cfg.EventRelayInterval)

	app := fiber.New(fiber.Config{
		BodyLimit:             int(cfg.MaxFileSize) + 1024*1024,
		DisableStartupMessage: true,
	})

	origins := strings.Split(cfg.AllowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(origins, ","),
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Admin",
		ExposeHeaders: "Content-Length, Content-Type, X-Request-ID",
		MaxAge:        86400,
	}))

	handlers.Setup(app, handlers.Deps{
		Auth:         auth,
		Users:        users,
		Progression:  services.NewProgressionService(store, clock, log.Component("progression"), cfg.DefaultLevelSpan),
		Challenges:   services.NewChallengeService(store, objects, clock, log.Component("challenges"), cfg.MaxFileSize),
		Categories:   services.NewCategoryService(store, log.Component("categories")),
		Levels:       levels,
		Leaderboard:  board,
		DB:           store,
		Log:          log.Component("http"),
		GatewayToken: cfg.GatewayToken,
	})
	if !cfg.R2Enabled() {
		app.Static("/uploads", cfg.UploadDir)
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Error("server error")
			stop()
		}
	}()
	log.WithFields(logrus.Fields{
		"port":   cfg.Port,
		"store":  cfg.StoreDriver,
		"env":    cfg.Env,
		"origin": cfg.AllowedOrigins,
	}).Info("server running")

	<-ctx.Done()
	log.Info("shutting down")

	if err := sched.Stop(); err != nil {
		log.WithError(err).Warn("scheduler shutdown failed")
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.WithError(err).Warn("server shutdown failed")
	}
}
