package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/clinsim/simlab-api/api/swagger"
	"github.com/clinsim/simlab-api/internal/handler"
	"github.com/clinsim/simlab-api/internal/repository"
	"github.com/clinsim/simlab-api/internal/router"
	"github.com/clinsim/simlab-api/internal/service"
	"github.com/clinsim/simlab-api/pkg/cache"
	"github.com/clinsim/simlab-api/pkg/config"
	"github.com/clinsim/simlab-api/pkg/database"
	"github.com/clinsim/simlab-api/pkg/jobs"
	"github.com/clinsim/simlab-api/pkg/logger"
	"github.com/clinsim/simlab-api/pkg/mail"
	"github.com/clinsim/simlab-api/pkg/storage"
)

// @title SimLab API
// @version 1.0.0
// @description Clinical simulation lab backend: scheduling, grading and recordings
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	videoStore, err := storage.NewVideoStore(cfg.Videos.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare video storage", "error", err)
	}
	playbackSigner := storage.NewPlaybackSigner(cfg.Videos.SignedURLSecret, cfg.Videos.SignedURLTTL)

	mailer := mail.NewMailer(cfg.Mail, cfg.EnvFile, logr)

	userRepo := repository.NewUserRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	classRepo := repository.NewClassRepository(db)
	practiceRepo := repository.NewPracticeRepository(db)
	simulationRepo := repository.NewSimulationRepository(db)
	rubricRepo := repository.NewRubricRepository(db)
	calendarRepo := repository.NewCalendarRepository(db)
	videoRepo := repository.NewVideoRepository(db)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, mailer, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		ResetTokenExpiry:   cfg.JWT.ResetExpiration,
		Issuer:             "simlab-api",
		Audience:           []string{"simlab"},
	})
	userSvc := service.NewUserService(userRepo, nil, logr)
	roomSvc := service.NewRoomService(roomRepo, nil, logr)
	courseSvc := service.NewCourseService(courseRepo, userRepo, nil, logr)
	classSvc := service.NewClassService(classRepo, courseRepo, userRepo, nil, logr)
	practiceSvc := service.NewPracticeService(practiceRepo, classRepo, simulationRepo, nil, logr)
	simulationSvc := service.NewSimulationService(simulationRepo, practiceRepo, roomRepo, rubricRepo, nil, logr)
	rubricSvc := service.NewRubricService(rubricRepo, practiceRepo, simulationRepo, nil, logr)
	gradeSvc := service.NewGradeService(classRepo, practiceRepo, simulationRepo, nil, logr)
	calendarSvc := service.NewCalendarService(calendarRepo, classRepo, redisClient, cfg.Calendar.CacheTTL, logr)
	videoSvc := service.NewVideoService(videoRepo, simulationRepo, videoStore, playbackSigner, cfg.Videos.Retention, nil, logr)

	handlers := router.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		Users:         handler.NewUserHandler(userSvc),
		Rooms:         handler.NewRoomHandler(roomSvc),
		Courses:       handler.NewCourseHandler(courseSvc),
		Classes:       handler.NewClassHandler(classSvc),
		Practices:     handler.NewPracticeHandler(practiceSvc, rubricSvc),
		Simulations:   handler.NewSimulationHandler(simulationSvc, calendarSvc, metricsSvc),
		Rubrics:       handler.NewRubricHandler(rubricSvc),
		Grades:        handler.NewGradeHandler(gradeSvc),
		Calendar:      handler.NewCalendarHandler(calendarSvc),
		Videos:        handler.NewVideoHandler(videoSvc, metricsSvc),
		Configuration: handler.NewConfigurationHandler(mailer),
		Metrics:       handler.NewMetricsHandler(metricsSvc),
	}

	maintenance := jobs.NewQueue("maintenance", func(ctx context.Context, job jobs.Job) error {
		switch job.Type {
		case "token-purge":
			purged, err := userSvc.PurgeExpiredTokens(ctx)
			if err != nil {
				return err
			}
			if purged > 0 {
				logr.Sugar().Infow("expired tokens purged", "count", purged)
			}
			return nil
		case "video-sweep":
			swept, err := videoSvc.SweepExpired(ctx)
			if err != nil {
				return err
			}
			if swept > 0 {
				logr.Sugar().Infow("expired recordings swept", "count", swept)
			}
			return nil
		default:
			return fmt.Errorf("unknown job type %q", job.Type)
		}
	}, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.Retries,
		Logger:     logr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	maintenance.Start(ctx)
	defer maintenance.Stop()

	scheduleJob(ctx, maintenance, "token-purge", cfg.Jobs.TokenPurgeInterval, logr)
	scheduleJob(ctx, maintenance, "video-sweep", cfg.Jobs.VideoSweepInterval, logr)

	r := router.New(cfg, logr, authSvc, metricsSvc, handlers)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

// scheduleJob enqueues a maintenance job on a fixed interval until ctx ends.
func scheduleJob(ctx context.Context, q *jobs.Queue, jobType string, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := q.Enqueue(jobs.Job{ID: fmt.Sprintf("%s-%d", jobType, time.Now().Unix()), Type: jobType}); err != nil {
					logr.Sugar().Warnw("failed to enqueue maintenance job", "type", jobType, "error", err)
				}
			}
		}
	}()
}
