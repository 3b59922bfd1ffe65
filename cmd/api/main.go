package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bobarin/storyreel/internal/api"
	"github.com/bobarin/storyreel/internal/config"
	"github.com/bobarin/storyreel/internal/db"
	"github.com/bobarin/storyreel/internal/logging"
	"github.com/bobarin/storyreel/internal/metrics"
	"github.com/bobarin/storyreel/internal/queue"
	"github.com/bobarin/storyreel/internal/services"
	"github.com/bobarin/storyreel/internal/status"
	"github.com/bobarin/storyreel/internal/storage"
	"github.com/bobarin/storyreel/internal/worker"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("info", "console")
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info().Msg("starting storyreel API")
	metrics.MustRegister()

	ctx := context.Background()

	for _, dir := range []string{cfg.UploadsDir, cfg.ContentDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatal().Err(err).Str("dir", dir).Msg("failed to create directory")
		}
	}

	// Redis is shared by the queue and the status store when either uses it.
	var redisClient *redis.Client
	if cfg.QueueBackend == config.BackendRedis || cfg.StatusBackend == config.BackendRedis {
		redisClient, err = queue.Connect(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		logger.Info().Msg("connected to redis")
	}

	// Status store
	var store status.Store
	switch cfg.StatusBackend {
	case config.BackendRedis:
		store = status.NewRedisStore(redisClient, logger)
	case config.BackendPostgres:
		database, err := db.New(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate database")
		}
		store = db.NewStatusStore(database)
		logger.Info().Msg("connected to database")
	default:
		store = status.NewMemoryStore()
	}
	logger.Info().Str("backend", cfg.StatusBackend).Msg("status store ready")

	// Queue. The redis client is closed above, so only the memory queue
	// needs an explicit Close on shutdown.
	var (
		q        queue.Queue
		memQueue *queue.MemoryQueue
	)
	if cfg.QueueBackend == config.BackendRedis {
		q = queue.NewRedisQueue(redisClient)
	} else {
		memQueue = queue.NewMemoryQueue(100)
		q = memQueue
	}
	logger.Info().Str("backend", cfg.QueueBackend).Msg("queue ready")

	personas, err := services.LoadPersonas(cfg.PersonasFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load personas")
	}

	var orchestrator *worker.Orchestrator
	var w *worker.Worker
	if cfg.WorkerEnabled {
		orchestrator = buildOrchestrator(ctx, cfg, store, personas, logger)
		w = worker.New(q, orchestrator, logger)
	} else {
		// API-only process: scripts are still generated in-process.
		orchestrator = worker.NewOrchestrator(worker.Deps{
			Planner:  buildPlanner(ctx, cfg, logger),
			Personas: personas,
			Status:   store,
		}, worker.Options{}, logger)
	}

	handler := api.NewHandler(store, q, orchestrator, cfg.UploadsDir, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
		ContentDir:         cfg.ContentDir,
		Logger:             logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start worker if enabled
	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()
	var workerDone sync.WaitGroup
	if w != nil {
		logger.Info().Int("concurrency", cfg.MaxConcurrentJobs).Msg("worker enabled, starting background processing")
		workerDone.Add(1)
		go func() {
			defer workerDone.Done()
			if err := w.Run(workerCtx, cfg.MaxConcurrentJobs); err != nil {
				logger.Error().Err(err).Msg("worker stopped with error")
			}
		}()
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("port", cfg.APIPort).Msg("API server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Consumers stop taking work; jobs already running finish first.
	workerCancel()
	if memQueue != nil {
		memQueue.Close()
	}
	workerDone.Wait()

	logger.Info().Msg("server exited")
}

func buildOrchestrator(ctx context.Context, cfg *config.Config, store status.Store, personas *services.PersonaRegistry, logger zerolog.Logger) *worker.Orchestrator {
	planner := buildPlanner(ctx, cfg, logger)

	imageSvc, err := services.NewGeminiImageService(ctx, cfg.GeminiKey, cfg.ImagenModel, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create image service")
	}

	var renderer worker.Renderer
	if !cfg.BypassVideoCreation {
		tts, err := services.NewGoogleTTSService(ctx, cfg.GoogleTTSKey, cfg.GoogleCredentials, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create narration service")
		}
		ffmpegSvc := services.NewFFmpegService(cfg.FFmpegPath, cfg.FFprobePath, logger)
		renderer = services.NewVideoAssembler(ffmpegSvc, tts, services.AssemblerConfig{
			MusicDir:  cfg.MusicDir,
			OutputDir: cfg.ContentDir,
			TempRoot:  cfg.TempDir,
		}, logger)
	} else {
		logger.Warn().Msg("BYPASS_VIDEO_CREATION is set, videos will be the placeholder file")
	}

	var (
		uploader    storage.Uploader
		destination string
	)
	switch cfg.UploadBackend {
	case config.UploadDrive:
		uploader, err = storage.NewDriveUploader(ctx, cfg.GoogleCredentials, cfg.DriveFolderID, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create drive uploader")
		}
		destination = cfg.DriveFolderID
	default:
		uploader = storage.NewSupabaseUploader(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket, logger).
			WithRetries(cfg.SupabaseUploadRetries)
		destination = "videos"
	}
	logger.Info().Str("backend", cfg.UploadBackend).Msg("uploader ready")

	return worker.NewOrchestrator(worker.Deps{
		Planner:  planner,
		Personas: personas,
		Images:   services.NewImageBatch(imageSvc, logger),
		Renderer: renderer,
		Uploader: uploader,
		Status:   store,
	}, worker.Options{
		UploadsDir:        cfg.UploadsDir,
		ContentDir:        cfg.ContentDir,
		AssetsDir:         cfg.AssetsDir,
		UploadDestination: destination,
		BypassRender:      cfg.BypassVideoCreation,
	}, logger)
}

// buildPlanner returns nil when no provider is configured; script requests
// then fail with a plan-generation error.
func buildPlanner(ctx context.Context, cfg *config.Config, logger zerolog.Logger) services.StoryPlanner {
	switch cfg.PlanProvider {
	case config.PlannerOpenAI:
		if cfg.OpenAIKey == "" {
			return nil
		}
		logger.Info().Str("provider", "openai").Msg("story planner ready")
		return services.NewOpenAIPlanner(cfg.OpenAIKey, cfg.OpenAIModel, logger)
	default:
		if cfg.GeminiKey == "" {
			return nil
		}
		planner, err := services.NewGeminiPlanner(ctx, cfg.GeminiKey, cfg.GeminiTextModel, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create gemini planner")
		}
		logger.Info().Str("provider", "gemini").Msg("story planner ready")
		return planner
	}
}
