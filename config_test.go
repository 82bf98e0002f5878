package main

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Admin.TaskTimeout() != 600*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.Admin.TaskTimeout())
	}
	if cfg.Admin.MaxFileSize() != 100<<20 {
		t.Fatalf("unexpected max file size %d", cfg.Admin.MaxFileSize())
	}
}

func TestLoadConfigOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
admin:
  service_url: http://agent.internal:9991
  max_retries: 5
user:
  default_priority: HIGH
  notification_verbosity: verbose
log_level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Admin.ServiceURL != "http://agent.internal:9991" || cfg.Admin.MaxRetries != 5 {
		t.Fatalf("file values not applied: %+v", cfg.Admin)
	}
	// untouched fields keep their defaults
	if cfg.Admin.TaskTimeoutSeconds != 600 || cfg.User.TaskHistoryLimit != 20 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.User.DefaultPriority != PriorityHigh || cfg.User.NotificationVerbosity != VerbosityVerbose {
		t.Fatalf("user values not applied: %+v", cfg.User)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected debug log level, got %q", cfg.LogLevel)
	}
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Admin.ServiceURL != DefaultConfig().Admin.ServiceURL {
		t.Fatal("empty path should return defaults")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(lookupFrom(map[string]string{
		"DESKAGENT_SERVICE_URL":                 " http://10.0.0.5:9991 ",
		"DESKAGENT_TASK_TIMEOUT_SECONDS":        "120",
		"DESKAGENT_RETRY_BASE_DELAY_SECONDS":    "0.5",
		"DESKAGENT_DEFAULT_PRIORITY":            "urgent",
		"DESKAGENT_DEFAULT_WAIT_FOR_COMPLETION": "false",
		"DESKAGENT_NOTIFICATION_VERBOSITY":      "MINIMAL",
		"DESKAGENT_PREFERRED_MODEL_NAME":        "openai/Custom",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Admin.ServiceURL != "http://10.0.0.5:9991" || cfg.Admin.TaskTimeoutSeconds != 120 {
		t.Fatalf("admin overrides not applied: %+v", cfg.Admin)
	}
	if cfg.Admin.RetryPolicy(nil).BaseDelay != 500*time.Millisecond {
		t.Fatalf("unexpected base delay %v", cfg.Admin.RetryPolicy(nil).BaseDelay)
	}
	if cfg.User.DefaultPriority != PriorityUrgent || cfg.User.DefaultWaitForCompletion {
		t.Fatalf("user overrides not applied: %+v", cfg.User)
	}
	if cfg.User.NotificationVerbosity != VerbosityMinimal {
		t.Fatalf("expected minimal verbosity, got %q", cfg.User.NotificationVerbosity)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("overridden config should validate: %v", err)
	}
}

func TestApplyEnvReportsAllBadValues(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(lookupFrom(map[string]string{
		"DESKAGENT_MAX_RETRIES":         "three",
		"DESKAGENT_SHOW_EXECUTION_LOGS": "maybe",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, name := range []string{"DESKAGENT_MAX_RETRIES", "DESKAGENT_SHOW_EXECUTION_LOGS"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error should mention %s: %v", name, err)
		}
	}
	if cfg.Admin.MaxRetries != 3 {
		t.Fatal("bad value should leave the default in place")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"service_url":            func(c *Config) { c.Admin.ServiceURL = "" },
		"model_proxy_kind":       func(c *Config) { c.Admin.ModelProxyKind = "vllm" },
		"max_retries":            func(c *Config) { c.Admin.MaxRetries = 0 },
		"task_history_limit":     func(c *Config) { c.User.TaskHistoryLimit = -1 },
		"default_priority":       func(c *Config) { c.User.DefaultPriority = "CRITICAL" },
		"notification_verbosity": func(c *Config) { c.User.NotificationVerbosity = "loud" },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), field) {
				t.Fatalf("expected error mentioning %s, got %v", field, err)
			}
		})
	}
}

func TestValidateServiceURL(t *testing.T) {
	cases := []struct {
		url string
		ok  bool
	}{
		{"http://localhost:9991", true},
		{"https://agent.internal", true},
		{"localhost:9991", false},
		{"ftp://agent.internal", false},
		{"http://", false},
		{"://bad", false},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		cfg.Admin.ServiceURL = tc.url
		err := cfg.Validate()
		if tc.ok && err != nil {
			t.Errorf("%q: unexpected error %v", tc.url, err)
		}
		if !tc.ok && (err == nil || !strings.Contains(err.Error(), "admin.service_url")) {
			t.Errorf("%q: expected service_url error, got %v", tc.url, err)
		}
	}
}

func TestPollIntervalsScale(t *testing.T) {
	a := DefaultConfig().Admin
	if got := a.PollIntervals(); !slices.Equal(got, DefaultPollIntervals) {
		t.Fatalf("default interval should keep the schedule, got %v", got)
	}
	a.PollingIntervalSeconds = 4
	want := []time.Duration{4 * time.Second, 6 * time.Second, 10 * time.Second, 16 * time.Second, 26 * time.Second, 40 * time.Second}
	if got := a.PollIntervals(); !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestResolveModel(t *testing.T) {
	cfg := DefaultConfig()
	m := cfg.ResolveModel()
	if m.Name != "openai/Qwen3-VL-32B-Instruct" || m.Title != "Qwen3-VL-32B-Instruct" {
		t.Fatalf("unexpected default model %+v", m)
	}
	if m.Provider != "proxy" || m.ContextWindow != 128000 {
		t.Fatalf("unexpected default model %+v", m)
	}

	cfg.User.PreferredModelName = "plain-name"
	if m := cfg.ResolveModel(); m.Name != "plain-name" || m.Title != "plain-name" {
		t.Fatalf("preferred model should win, got %+v", m)
	}
}
