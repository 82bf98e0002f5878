// config.go defines the two configuration layers: administrator settings
// (where the service is, limits, defaults) and user preferences (how results
// are presented). Both are read-only once loaded.
package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AdminSettings is the administrator-level configuration.
type AdminSettings struct {
	ServiceURL             string  `yaml:"service_url"`
	UIURL                  string  `yaml:"ui_url"`                   // desktop UI shown in needs-help guidance
	ModelProxyURL          string  `yaml:"model_proxy_url"`          // optional; probed by check_connection only
	ModelProxyKind         string  `yaml:"model_proxy_kind"`
	TaskTimeoutSeconds     int     `yaml:"task_timeout_seconds"`
	PollingIntervalSeconds int     `yaml:"polling_interval_seconds"` // first poll interval; the schedule scales from it
	MaxRetries             int     `yaml:"max_retries"`
	RetryBaseDelaySeconds  float64 `yaml:"retry_base_delay_seconds"`
	MaxFileSizeMB          int     `yaml:"max_file_size_mb"`
	MaxFilesPerTask        int     `yaml:"max_files_per_task"`
	ConfiguredModels       string  `yaml:"configured_models"`        // comma-separated, informational
	DefaultModelName       string  `yaml:"default_model_name"`
	DefaultModelProvider   string  `yaml:"default_model_provider"`
	DefaultContextWindow   int     `yaml:"default_context_window"`
}

// UserPreferences is the per-user configuration.
type UserPreferences struct {
	DefaultPriority          Priority  `yaml:"default_priority"`
	DefaultWaitForCompletion bool      `yaml:"default_wait_for_completion"`
	ShowExecutionLogs        bool      `yaml:"show_execution_logs"`
	TaskHistoryLimit         int       `yaml:"task_history_limit"`
	NotificationVerbosity    Verbosity `yaml:"notification_verbosity"`
	PreferredModelName       string    `yaml:"preferred_model_name"`
}

// Config is the full configuration file.
type Config struct {
	Admin     AdminSettings   `yaml:"admin"`
	User      UserPreferences `yaml:"user"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"` // "text" or "json"
}

// Model proxy kinds for the optional diagnostics probe.
const (
	ProxyKindLiteLLM = "litellm"
	ProxyKindOllama  = "ollama"
)

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Admin: AdminSettings{
			ServiceURL:             "http://localhost:9991",
			UIURL:                  "http://localhost:9992",
			ModelProxyKind:         ProxyKindLiteLLM,
			TaskTimeoutSeconds:     600,
			PollingIntervalSeconds: 2,
			MaxRetries:             3,
			RetryBaseDelaySeconds:  1,
			MaxFileSizeMB:          100,
			MaxFilesPerTask:        20,
			ConfiguredModels:       "Qwen3-VL-32B-Instruct",
			DefaultModelName:       "openai/Qwen3-VL-32B-Instruct",
			DefaultModelProvider:   "proxy",
			DefaultContextWindow:   128000,
		},
		User: UserPreferences{
			DefaultPriority:          PriorityMedium,
			DefaultWaitForCompletion: true,
			ShowExecutionLogs:        true,
			TaskHistoryLimit:         20,
			NotificationVerbosity:    VerbosityNormal,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadConfig reads a YAML config file over the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// envPrefix namespaces every environment override.
const envPrefix = "DESKAGENT_"

// ApplyEnv overrides fields from DESKAGENT_* variables. lookup is
// os.LookupEnv in production. Unparsable numbers and booleans are errors
// rather than silently ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := lookup(envPrefix + name); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(envPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	a := &c.Admin
	str("SERVICE_URL", &a.ServiceURL)
	str("UI_URL", &a.UIURL)
	str("MODEL_PROXY_URL", &a.ModelProxyURL)
	str("MODEL_PROXY_KIND", &a.ModelProxyKind)
	num("TASK_TIMEOUT_SECONDS", &a.TaskTimeoutSeconds)
	num("POLLING_INTERVAL_SECONDS", &a.PollingIntervalSeconds)
	num("MAX_RETRIES", &a.MaxRetries)
	float("RETRY_BASE_DELAY_SECONDS", &a.RetryBaseDelaySeconds)
	num("MAX_FILE_SIZE_MB", &a.MaxFileSizeMB)
	num("MAX_FILES_PER_TASK", &a.MaxFilesPerTask)
	str("CONFIGURED_MODELS", &a.ConfiguredModels)
	str("DEFAULT_MODEL_NAME", &a.DefaultModelName)
	str("DEFAULT_MODEL_PROVIDER", &a.DefaultModelProvider)
	num("DEFAULT_CONTEXT_WINDOW", &a.DefaultContextWindow)

	u := &c.User
	var priority, verbosity string
	str("DEFAULT_PRIORITY", &priority)
	if priority != "" {
		u.DefaultPriority = Priority(strings.ToUpper(priority))
	}
	boolean("DEFAULT_WAIT_FOR_COMPLETION", &u.DefaultWaitForCompletion)
	boolean("SHOW_EXECUTION_LOGS", &u.ShowExecutionLogs)
	num("TASK_HISTORY_LIMIT", &u.TaskHistoryLimit)
	str("NOTIFICATION_VERBOSITY", &verbosity)
	if verbosity != "" {
		u.NotificationVerbosity = Verbosity(strings.ToLower(verbosity))
	}
	str("PREFERRED_MODEL_NAME", &u.PreferredModelName)

	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	return errors.Join(errs...)
}

// Validate checks every field an operation depends on.
func (c *Config) Validate() error {
	var errs []error
	a, u := c.Admin, c.User
	if a.ServiceURL == "" {
		errs = append(errs, errors.New("admin.service_url is required"))
	} else if parsed, err := url.Parse(a.ServiceURL); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("admin.service_url %q must be an http or https URL", a.ServiceURL))
	}
	if a.ModelProxyKind != ProxyKindLiteLLM && a.ModelProxyKind != ProxyKindOllama {
		errs = append(errs, fmt.Errorf("admin.model_proxy_kind %q must be %q or %q", a.ModelProxyKind, ProxyKindLiteLLM, ProxyKindOllama))
	}
	for name, v := range map[string]int{
		"admin.task_timeout_seconds":     a.TaskTimeoutSeconds,
		"admin.polling_interval_seconds": a.PollingIntervalSeconds,
		"admin.max_retries":              a.MaxRetries,
		"admin.max_file_size_mb":         a.MaxFileSizeMB,
		"admin.max_files_per_task":       a.MaxFilesPerTask,
		"user.task_history_limit":        u.TaskHistoryLimit,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	if a.RetryBaseDelaySeconds < 0 {
		errs = append(errs, fmt.Errorf("admin.retry_base_delay_seconds must not be negative, got %g", a.RetryBaseDelaySeconds))
	}
	if !slices.Contains(Priorities, u.DefaultPriority) {
		errs = append(errs, fmt.Errorf("user.default_priority %q must be one of LOW, MEDIUM, HIGH, URGENT", u.DefaultPriority))
	}
	if !slices.Contains(Verbosities, u.NotificationVerbosity) {
		errs = append(errs, fmt.Errorf("user.notification_verbosity %q must be minimal, normal or verbose", u.NotificationVerbosity))
	}
	return errors.Join(errs...)
}

// TaskTimeout is the ceiling for both a single request and a completion wait.
func (a AdminSettings) TaskTimeout() time.Duration {
	return time.Duration(a.TaskTimeoutSeconds) * time.Second
}

// RetryPolicy builds the retry policy from the admin limits.
func (a AdminSettings) RetryPolicy(clock Clock) RetryPolicy {
	p := DefaultRetryPolicy()
	if a.MaxRetries > 0 {
		p.MaxAttempts = a.MaxRetries
	}
	if a.RetryBaseDelaySeconds > 0 {
		p.BaseDelay = time.Duration(a.RetryBaseDelaySeconds * float64(time.Second))
	}
	if clock != nil {
		p.Clock = clock
	}
	return p
}

// PollIntervals scales the default schedule so that it starts at
// polling_interval_seconds. With the default of 2 it is 2, 3, 5, 8, 13, 20.
func (a AdminSettings) PollIntervals() []time.Duration {
	base := DefaultPollIntervals[0]
	out := make([]time.Duration, len(DefaultPollIntervals))
	for i, d := range DefaultPollIntervals {
		out[i] = time.Duration(float64(d) * float64(a.PollingIntervalSeconds) / base.Seconds())
	}
	return out
}

// MaxFileSize is max_file_size_mb in bytes.
func (a AdminSettings) MaxFileSize() int64 {
	return int64(a.MaxFileSizeMB) << 20
}

// ResolveModel returns the model descriptor sent with new tasks: the user's
// preferred model if set, else the admin default. The title is the last
// path segment of the name.
func (c *Config) ResolveModel() ModelDescriptor {
	name := strings.TrimSpace(c.User.PreferredModelName)
	if name == "" {
		name = c.Admin.DefaultModelName
	}
	title := name
	if i := strings.LastIndex(name, "/"); i >= 0 {
		title = name[i+1:]
	}
	return ModelDescriptor{
		Name:          name,
		Title:         title,
		Provider:      c.Admin.DefaultModelProvider,
		ContextWindow: c.Admin.DefaultContextWindow,
	}
}
