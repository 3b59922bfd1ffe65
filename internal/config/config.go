package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	PlannerGemini = "gemini"
	PlannerOpenAI = "openai"

	UploadSupabase = "supabase"
	UploadDrive    = "drive"
)

type Config struct {
	// Server
	APIPort            string
	LogLevel           string
	LogFormat          string
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *)

	// Worker
	WorkerEnabled     bool
	MaxConcurrentJobs int

	// Queue and status store
	QueueBackend  string
	StatusBackend string
	RedisURL      string
	DatabaseURL   string

	// Story planning
	PlanProvider    string
	GeminiKey       string
	GeminiTextModel string
	OpenAIKey       string
	OpenAIModel     string

	// Image generation
	ImagenModel string

	// Narration (Google Cloud TTS). An API key wins over the credentials file.
	GoogleTTSKey      string
	GoogleCredentials string

	// Upload
	UploadBackend         string
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string
	SupabaseUploadRetries int
	DriveFolderID         string

	// Filesystem
	UploadsDir   string
	ContentDir   string
	MusicDir     string
	AssetsDir    string
	TempDir      string
	PersonasFile string

	// Rendering
	BypassVideoCreation bool
	FFmpegPath          string
	FFprobePath         string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8000"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "json"),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		MaxConcurrentJobs:     getEnvInt("MAX_CONCURRENT_JOBS", 2),
		QueueBackend:          strings.ToLower(getEnv("QUEUE_BACKEND", BackendMemory)),
		StatusBackend:         strings.ToLower(getEnv("STATUS_BACKEND", BackendMemory)),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		PlanProvider:          strings.ToLower(getEnv("PLAN_PROVIDER", PlannerGemini)),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		GeminiTextModel:       getEnv("GEMINI_TEXT_MODEL", "gemini-2.5-pro"),
		ImagenModel:           getEnv("IMAGEN_MODEL", "gemini-2.5-flash-image"),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", ""),
		GoogleTTSKey:          getEnv("GOOGLE_TTS_API_KEY", ""),
		GoogleCredentials:     getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		UploadBackend:         strings.ToLower(getEnv("UPLOAD_BACKEND", UploadSupabase)),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "storyreel-videos"),
		SupabaseUploadRetries: getEnvInt("SUPABASE_UPLOAD_RETRIES", 0),
		DriveFolderID:         getEnv("GOOGLE_DRIVE_FOLDER_ID", ""),
		UploadsDir:            getEnv("UPLOADS_DIR", "uploads"),
		ContentDir:            getEnv("CONTENT_DIR", "content"),
		MusicDir:              getEnv("MUSIC_DIR", "assets/music"),
		AssetsDir:             getEnv("ASSETS_DIR", "assets"),
		TempDir:               getEnv("TEMP_DIR", os.TempDir()),
		PersonasFile:          getEnv("PERSONAS_FILE", ""),
		BypassVideoCreation:   getEnvBool("BYPASS_VIDEO_CREATION", false),
		FFmpegPath:            getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:           getEnv("FFPROBE_PATH", "ffprobe"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.QueueBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("QUEUE_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.QueueBackend)
	}

	switch c.StatusBackend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STATUS_BACKEND is postgres")
		}
	default:
		return fmt.Errorf("STATUS_BACKEND must be memory, redis or postgres, got %q", c.StatusBackend)
	}

	if (c.QueueBackend == BackendRedis || c.StatusBackend == BackendRedis) && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1")
	}

	// Provider keys are only needed by the process that runs the workflows.
	// An API-only process must share its queue and job state with the
	// separate worker, which in-process memory backends cannot do.
	if !c.WorkerEnabled {
		if c.QueueBackend == BackendMemory {
			return fmt.Errorf("WORKER_ENABLED=false requires QUEUE_BACKEND=redis, the memory queue has no other consumer")
		}
		if c.StatusBackend == BackendMemory {
			return fmt.Errorf("WORKER_ENABLED=false requires STATUS_BACKEND redis or postgres, got %q", c.StatusBackend)
		}
		return nil
	}

	switch c.PlanProvider {
	case PlannerGemini:
	case PlannerOpenAI:
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required")
		}
	default:
		return fmt.Errorf("PLAN_PROVIDER must be %q or %q, got %q", PlannerGemini, PlannerOpenAI, c.PlanProvider)
	}

	// Images always come from Gemini.
	if c.GeminiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}

	switch c.UploadBackend {
	case UploadSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
		}
	case UploadDrive:
		if c.DriveFolderID == "" {
			return fmt.Errorf("GOOGLE_DRIVE_FOLDER_ID is required")
		}
	default:
		return fmt.Errorf("UPLOAD_BACKEND must be %q or %q, got %q", UploadSupabase, UploadDrive, c.UploadBackend)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
