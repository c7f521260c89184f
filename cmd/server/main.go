package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/adapter"
	"github.com/maheshrc27/postflow/internal/api"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	"github.com/maheshrc27/postflow/internal/events"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/templating"
	"github.com/maheshrc27/postflow/pkg/logger"
	"github.com/maheshrc27/postflow/pkg/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	appLogger, err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.File,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})
	if err != nil {
		log.Fatalf("Failed to initialise logger: %v", err)
	}

	sinks := events.Multi{events.NewLogSink(appLogger)}
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Environment: cfg.AppEnv}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
			sinks = append(sinks, events.NewSentrySink(sentry.CurrentHub()))
		}
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	postRepo := repository.NewPostRepository(db)
	pageRepo := repository.NewPageRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)
	templateRepo := repository.NewTemplateRepository(db)

	cipher, err := utils.NewTokenCipher(cfg.TokenSecret)
	if err != nil {
		log.Fatalf("Failed to build token cipher: %v", err)
	}
	if !cipher.Enabled() {
		slog.Warn("TOKEN_SECRET is not set, platform tokens are read as plain text")
	}

	// media store stays a nil interface when R2 is not configured
	var mediaStore service.MediaStore
	var assetStore templating.ObjectGetter
	if cfg.R2Enabled() {
		r2Service, err := service.NewR2Service(context.Background(), cfg.R2)
		if err != nil {
			log.Fatalf("Failed to configure R2: %v", err)
		}
		mediaStore, assetStore = r2Service, r2Service
	} else {
		slog.Warn("R2 is not configured, processed media cannot be staged")
	}

	pipeline := templating.NewPipeline(
		templating.NewVideoProcessor(cfg.FFmpegPath, cfg.FFprobePath, "", nil),
		appLogger,
		sinks,
	)

	googleOAuth := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope},
	}

	credentialService := service.NewCredentialService(service.CredentialConfig{
		Google:             googleOAuth,
		TiktokClientKey:    cfg.TiktokClientKey,
		TiktokClientSecret: cfg.TiktokClientSecret,
	}, pageRepo, cipher, sinks)

	adapterOpts := adapter.Options{
		HTTPClient: &http.Client{},
		RateLimit:  cfg.APIRateLimit,
		Events:     sinks,
	}
	registry, err := adapter.NewRegistry(
		adapter.NewFacebook(adapterOpts),
		adapter.NewInstagram(adapterOpts),
		adapter.NewThreads(adapterOpts),
		adapter.NewTikTok(adapterOpts, cfg.TiktokPrivacyLevel),
		adapter.NewYouTube(adapterOpts, adapter.YouTubeConfig{
			OAuth:            googleOAuth,
			RefreshThreshold: cfg.YoutubeRefreshThreshold,
			ChunkSize:        cfg.YoutubeChunkSize,
			SaveToken:        credentialService.SaveToken,
		}),
	)
	if err != nil {
		log.Fatalf("Failed to build adapters: %v", err)
	}

	mediaService := service.NewMediaService(mediaAssetRepo, templateRepo, mediaStore,
		templating.NewAssetLoader(assetStore, nil), nil)
	publishService := service.NewPublishService(postRepo, pageRepo, credentialService, mediaService, pipeline, registry)

	var (
		dispatcher  job.Dispatcher = job.NewInlineDispatcher(publishService)
		asynqServer *asynq.Server
	)
	if cfg.DispatchMode == config.DispatchQueue {
		redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
		client := asynq.NewClient(redisConn)
		defer client.Close()
		dispatcher = queue.NewDispatcher(client)

		asynqServer = asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 1,
		})
		mux := asynq.NewServeMux()
		queue.NewWorker(publishService).Register(mux)

		go func() {
			slog.Info("Starting the Asynq server...")
			if err := asynqServer.Run(mux); err != nil {
				log.Fatalf("Could not start Asynq server: %v", err)
			}
		}()
	}

	scheduler := job.NewScheduler(postRepo, dispatcher, cfg.SchedulerBatchSize)
	refreshJob := job.NewTokenRefreshJob(credentialService, cfg.TokenRefreshWindow)

	c, err := job.NewCron(scheduler, cfg.SchedulerInterval, refreshJob, cfg.TokenRefreshInterval)
	if err != nil {
		log.Fatalf("Failed to schedule jobs: %v", err)
	}
	c.Start()
	slog.Info("scheduler started", "interval", cfg.SchedulerInterval, "dispatch", cfg.DispatchMode)

	app := api.NewApp(
		handlers.NewPostHandler(scheduler, publishService),
		middleware.NewAuthMiddleware(cfg.OperatorAPIKey, cfg.SecretKey),
	)

	go func() {
		if err := app.Listen(cfg.OperatorAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	slog.Info("operator API listening", "addr", cfg.OperatorAddr)

	gracefulShutdown(app, db, func() {
		c.Stop()
		if asynqServer != nil {
			asynqServer.Shutdown()
		}
	})
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB, stopWorkers func()) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("Shutting down server...")

	stopWorkers()

	if err := app.Shutdown(); err != nil {
		slog.Error("Failed to shut down server", "error", err)
	}

	closeDB(db)
	slog.Info("Server shutdown complete.")
}
