package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		QueueBackend:       BackendMemory,
		StatusBackend:      BackendMemory,
		RedisURL:           "redis://localhost:6379",
		MaxConcurrentJobs:  2,
		WorkerEnabled:      true,
		PlanProvider:       PlannerGemini,
		GeminiKey:          "g-key",
		UploadBackend:      UploadSupabase,
		SupabaseURL:        "https://example.supabase.co",
		SupabaseServiceKey: "s-key",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown queue backend", mutate: func(c *Config) { c.QueueBackend = "kafka" }, wantErr: "QUEUE_BACKEND"},
		{name: "unknown status backend", mutate: func(c *Config) { c.StatusBackend = "file" }, wantErr: "STATUS_BACKEND"},
		{
			name:    "postgres without url",
			mutate:  func(c *Config) { c.StatusBackend = BackendPostgres },
			wantErr: "DATABASE_URL",
		},
		{
			name:    "redis without url",
			mutate:  func(c *Config) { c.QueueBackend = BackendRedis; c.RedisURL = "" },
			wantErr: "REDIS_URL",
		},
		{name: "zero concurrency", mutate: func(c *Config) { c.MaxConcurrentJobs = 0 }, wantErr: "MAX_CONCURRENT_JOBS"},
		{name: "missing gemini key", mutate: func(c *Config) { c.GeminiKey = "" }, wantErr: "GEMINI_API_KEY"},
		{
			name:    "openai without key",
			mutate:  func(c *Config) { c.PlanProvider = PlannerOpenAI },
			wantErr: "OPENAI_API_KEY",
		},
		{name: "unknown planner", mutate: func(c *Config) { c.PlanProvider = "llama" }, wantErr: "PLAN_PROVIDER"},
		{name: "supabase without key", mutate: func(c *Config) { c.SupabaseServiceKey = "" }, wantErr: "SUPABASE_SERVICE_KEY"},
		{
			name:    "drive without folder",
			mutate:  func(c *Config) { c.UploadBackend = UploadDrive },
			wantErr: "GOOGLE_DRIVE_FOLDER_ID",
		},
		{
			name: "api only process skips provider keys",
			mutate: func(c *Config) {
				c.WorkerEnabled = false
				c.QueueBackend = BackendRedis
				c.StatusBackend = BackendRedis
				c.GeminiKey = ""
				c.SupabaseURL = ""
			},
		},
		{
			name: "api only process with memory queue",
			mutate: func(c *Config) {
				c.WorkerEnabled = false
				c.StatusBackend = BackendRedis
			},
			wantErr: "QUEUE_BACKEND=redis",
		},
		{
			name: "api only process with memory status",
			mutate: func(c *Config) {
				c.WorkerEnabled = false
				c.QueueBackend = BackendRedis
			},
			wantErr: "STATUS_BACKEND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "s-key")
	t.Setenv("QUEUE_BACKEND", "REDIS")
	t.Setenv("MAX_CONCURRENT_JOBS", "4")
	t.Setenv("BYPASS_VIDEO_CREATION", "true")
	t.Setenv("CONTENT_DIR", "/srv/content")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.QueueBackend != BackendRedis {
		t.Errorf("QueueBackend = %q, want redis", cfg.QueueBackend)
	}
	if cfg.MaxConcurrentJobs != 4 {
		t.Errorf("MaxConcurrentJobs = %d, want 4", cfg.MaxConcurrentJobs)
	}
	if !cfg.BypassVideoCreation {
		t.Error("BypassVideoCreation should be true")
	}
	if cfg.ContentDir != "/srv/content" {
		t.Errorf("ContentDir = %q", cfg.ContentDir)
	}
	if cfg.StatusBackend != BackendMemory {
		t.Errorf("StatusBackend default = %q, want memory", cfg.StatusBackend)
	}
}

func TestLoadRejectsAPIOnlyMemoryQueue(t *testing.T) {
	t.Setenv("WORKER_ENABLED", "false")
	t.Setenv("QUEUE_BACKEND", "memory")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "QUEUE_BACKEND=redis") {
		t.Fatalf("expected API-only memory queue to be rejected, got %v", err)
	}
}

func TestGetEnvFallbacks(t *testing.T) {
	t.Setenv("STORYREEL_TEST_INT", "nope")
	t.Setenv("STORYREEL_TEST_BOOL", "maybe")

	if got := getEnvInt("STORYREEL_TEST_INT", 7); got != 7 {
		t.Errorf("getEnvInt = %d, want 7", got)
	}
	if got := getEnvBool("STORYREEL_TEST_BOOL", true); !got {
		t.Error("getEnvBool should fall back to default")
	}
	if got := getEnv("STORYREEL_TEST_UNSET", "x"); got != "x" {
		t.Errorf("getEnv = %q, want x", got)
	}
}
