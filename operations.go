// operations.go implements the user-facing task operations. Each one
// validates input, talks to the agent service through the retry policy, and
// renders the outcome as text. Errors never escape an operation: they are
// converted to a diagnostic at this edge.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/wailsapp/mimetype"
)

const (
	minDescriptionChars    = 5
	connectionProbeTimeout = 10 * time.Second

	taskTypeImmediate = "IMMEDIATE"
	controlAssistant  = "ASSISTANT"
)

// Result is the outcome of an operation. Text is always set. IsError marks
// failures of the operation itself (bad input, unreachable service); a task
// that ran and FAILED is a successful operation.
type Result struct {
	Text    string
	IsError bool
	TaskID  string
	Status  Status
	Count   int
	Models  []ModelDescriptor
}

// Service runs task operations against one agent service.
type Service struct {
	cfg       *Config
	client    *AgentClient
	proxy     ModelProxy
	registry  *WatchRegistry
	retry     RetryPolicy
	clock     Clock
	formatter Formatter
	logger    *slog.Logger
}

// NewService wires the operations to client. proxy may be nil.
func NewService(cfg *Config, client *AgentClient, proxy ModelProxy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	clock := Clock(realClock{})
	return &Service{
		cfg:       cfg,
		client:    client,
		proxy:     proxy,
		registry:  NewWatchRegistry(),
		retry:     cfg.Admin.RetryPolicy(clock),
		clock:     clock,
		formatter: Formatter{UIURL: cfg.Admin.UIURL},
		logger:    logger,
	}
}

// Registry exposes the in-flight polls.
func (s *Service) Registry() *WatchRegistry { return s.registry }

func (s *Service) notifier(host Notifier) Notifier {
	return NewThrottledNotifier(host, s.cfg.User.NotificationVerbosity, s.clock)
}

func (s *Service) poller() *Poller {
	return &Poller{
		Fetcher:   s.client,
		Retry:     s.retry,
		Clock:     s.clock,
		Timeout:   s.cfg.Admin.TaskTimeout(),
		Intervals: s.cfg.Admin.PollIntervals(),
		Registry:  s.registry,
		Logger:    s.logger,
	}
}

// retryCall runs op under the service retry policy, reporting each retry
// and the final exhaustion to n.
func retryCall[T any](ctx context.Context, s *Service, n Notifier, op func(context.Context) (T, error)) (T, error) {
	policy := s.retry.WithObserver(retryReporter(n, s.logger))
	v, err := Retry(ctx, policy, op)
	if err != nil && IsTransient(err) && ctx.Err() == nil {
		n.Report(fmt.Sprintf("All %d retry attempts failed", policy.MaxAttempts), false)
		s.logger.Warn("agent service unreachable", "attempts", policy.MaxAttempts, "error", err)
	}
	return v, err
}

// fail renders err for operation, reports it as final, and logs it.
func (s *Service) fail(n Notifier, err error, operation string) Result {
	text := FormatAPIError(err, operation)
	n.Report(text, true)
	if !errors.Is(err, ErrValidation) {
		s.logger.Error("operation failed", "operation", operation, "error", err)
	}
	return Result{Text: text, IsError: true}
}

// SubmitRequest is the shared input of the submit operations. Empty
// Priority and nil Wait fall back to user preferences.
type SubmitRequest struct {
	Description string
	Priority    string
	Wait        *bool
}

// validateDescription requires at least five non-whitespace characters.
func validateDescription(desc string) error {
	n := 0
	for _, r := range desc {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	if n < minDescriptionChars {
		return fmt.Errorf("%w: task description must be at least %d characters", ErrValidation, minDescriptionChars)
	}
	return nil
}

func (s *Service) normalizeSubmit(req SubmitRequest) (Priority, bool, error) {
	if err := validateDescription(req.Description); err != nil {
		return "", false, err
	}
	raw := req.Priority
	if raw == "" {
		raw = string(s.cfg.User.DefaultPriority)
	}
	priority, err := ParsePriority(raw)
	if err != nil {
		return "", false, err
	}
	wait := s.cfg.User.DefaultWaitForCompletion
	if req.Wait != nil {
		wait = *req.Wait
	}
	return priority, wait, nil
}

func (s *Service) createRequest(desc string, priority Priority) CreateTaskRequest {
	return CreateTaskRequest{
		Description: desc,
		Priority:    priority,
		Type:        taskTypeImmediate,
		Control:     controlAssistant,
		Model:       s.cfg.ResolveModel(),
	}
}

// SubmitTask creates a task and, if waiting, polls it to completion.
func (s *Service) SubmitTask(ctx context.Context, req SubmitRequest, host Notifier) Result {
	n := s.notifier(host)
	priority, wait, err := s.normalizeSubmit(req)
	if err != nil {
		return s.fail(n, err, "task execution")
	}

	n.Report("Connecting to the agent service...", false)
	task, err := retryCall(ctx, s, n, func(ctx context.Context) (*Task, error) {
		return s.client.CreateTask(ctx, s.createRequest(req.Description, priority))
	})
	if err != nil {
		return s.fail(n, err, "task execution")
	}
	s.logger.Info("task submitted", "task_id", task.ID, "priority", priority, "wait", wait)
	n.Report(fmt.Sprintf("Task created: %s", task.ID), false)

	if !wait {
		n.Report("Task submitted successfully", true)
		return Result{
			Text:   fmt.Sprintf("Task submitted successfully.\n\n**Task ID:** `%s`\n\nUse get_task_status('%s') to check progress.", task.ID, task.ID),
			TaskID: task.ID,
			Status: orDefault(task.Status, StatusSubmitted),
		}
	}
	return s.awaitCompletion(ctx, n, task.ID, 0)
}

// awaitCompletion polls taskID and renders the outcome by status. files is
// the number of uploaded files, 0 for plain submissions.
func (s *Service) awaitCompletion(ctx context.Context, n Notifier, taskID string, files int) Result {
	n.Report("Monitoring task progress...", false)
	task, err := s.poller().Poll(ctx, taskID, n)
	if err != nil {
		operation := "task execution"
		if files > 0 {
			operation = "task execution with files"
		}
		res := s.fail(n, err, operation)
		res.TaskID = taskID
		return res
	}
	n.Report("Task monitoring complete", true)

	res := Result{TaskID: taskID, Status: task.Status}
	switch task.Status {
	case StatusTimeout:
		res.Text = s.formatter.FormatTask(task, false)
	case StatusNeedsHelp:
		res.Text = s.formatter.FormatNeedsHelp(taskID)
	case StatusFailed:
		res.Text = s.formatter.FormatTaskFailed(taskID, task.Messages)
	default:
		res.Text = s.formatter.FormatTask(task, s.cfg.User.ShowExecutionLogs)
		if files > 0 {
			res.Text = fmt.Sprintf("**Files Processed:** %d files\n\n%s", files, res.Text)
		}
	}
	return res
}

// validateFiles checks the batch against the admin limits and returns one
// line per violation.
func (s *Service) validateFiles(files []UploadFile) []string {
	var violations []string
	limit := s.cfg.Admin.MaxFileSize()
	for _, f := range files {
		if size := int64(len(f.Content)); size > limit {
			violations = append(violations, fmt.Sprintf("- %s: %.1fMB exceeds limit (%dMB)",
				f.Filename, float64(size)/(1<<20), s.cfg.Admin.MaxFileSizeMB))
		}
	}
	if len(files) > s.cfg.Admin.MaxFilesPerTask {
		violations = append(violations, fmt.Sprintf("- Too many files (%d). Maximum: %d",
			len(files), s.cfg.Admin.MaxFilesPerTask))
	}
	return violations
}

// SubmitTaskWithFiles is SubmitTask with a multipart upload. The whole batch
// is rejected if any file or the file count exceeds the limits.
func (s *Service) SubmitTaskWithFiles(ctx context.Context, req SubmitRequest, files []UploadFile, host Notifier) Result {
	n := s.notifier(host)
	if len(files) == 0 {
		return s.fail(n, fmt.Errorf("%w: no files uploaded. Please attach files to your message", ErrValidation), "task execution with files")
	}
	priority, wait, err := s.normalizeSubmit(req)
	if err != nil {
		return s.fail(n, err, "task execution with files")
	}
	if violations := s.validateFiles(files); len(violations) > 0 {
		text := "File validation failed:\n" + strings.Join(violations, "\n")
		n.Report(text, true)
		return Result{Text: text, IsError: true}
	}

	var total uint64
	for i := range files {
		if files[i].ContentType == "" {
			files[i].ContentType = mimetype.Detect(files[i].Content).String()
		}
		total += uint64(len(files[i].Content))
	}
	n.Report(fmt.Sprintf("Uploading %d files (%s)...", len(files), humanize.Bytes(total)), false)

	task, err := retryCall(ctx, s, n, func(ctx context.Context) (*Task, error) {
		return s.client.CreateTaskWithFiles(ctx, s.createRequest(req.Description, priority), files)
	})
	if err != nil {
		return s.fail(n, err, "task execution with files")
	}
	s.logger.Info("task with files submitted", "task_id", task.ID, "files", len(files), "bytes", total)
	n.Report(fmt.Sprintf("Files uploaded. Task created: %s", task.ID), false)

	if !wait {
		n.Report("Task submitted successfully", true)
		return Result{
			Text: fmt.Sprintf("Task with files submitted successfully.\n\n**Task ID:** `%s`\n**Files:** %d\n\nUse get_task_status('%s') to check progress.",
				task.ID, len(files), task.ID),
			TaskID: task.ID,
			Status: orDefault(task.Status, StatusSubmitted),
		}
	}
	return s.awaitCompletion(ctx, n, task.ID, len(files))
}

// GetStatus fetches one task. includeMessages nil falls back to the user's
// show_execution_logs preference.
func (s *Service) GetStatus(ctx context.Context, taskID string, includeMessages *bool, host Notifier) Result {
	n := s.notifier(host)
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return s.fail(n, fmt.Errorf("%w: task ID is required", ErrValidation), "retrieving task status")
	}
	include := s.cfg.User.ShowExecutionLogs
	if includeMessages != nil {
		include = *includeMessages
	}

	n.Report(fmt.Sprintf("Retrieving status for task %s...", taskID), false)
	task, err := retryCall(ctx, s, n, func(ctx context.Context) (*Task, error) {
		return s.client.GetTask(ctx, taskID)
	})
	if err != nil {
		if IsNotFound(err) {
			text := fmt.Sprintf("Task not found: %s", taskID)
			n.Report(text, true)
			return Result{Text: text, IsError: true, TaskID: taskID}
		}
		res := s.fail(n, err, "retrieving task status")
		res.TaskID = taskID
		return res
	}
	n.Report("Status retrieved successfully", true)

	if !include {
		task.Messages = nil
	}
	return Result{
		Text:   s.formatter.FormatTask(task, include),
		TaskID: task.ID,
		Status: task.Status,
	}
}

// ListRequest selects a page of tasks. Zero Limit and Page fall back to the
// history limit and page 1.
type ListRequest struct {
	Status string
	Limit  int
	Page   int
}

// filterableStatuses are the statuses the service can report.
var filterableStatuses = slices.Concat(
	[]Status{StatusSubmitted}, RunningStatuses, AttentionStatuses, TerminalStatuses)

func parseStatusFilter(raw string) (Status, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	status := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !slices.Contains(filterableStatuses, status) {
		names := lo.Map(filterableStatuses, func(s Status, _ int) string { return string(s) })
		return "", fmt.Errorf("%w: invalid status filter '%s'. Must be one of %s", ErrValidation, raw, strings.Join(names, ", "))
	}
	return status, nil
}

// ListTasks fetches one page of tasks, optionally filtered by status. When
// the service does not confirm it applied the filter, it is applied here.
func (s *Service) ListTasks(ctx context.Context, req ListRequest, host Notifier) Result {
	n := s.notifier(host)
	status, err := parseStatusFilter(req.Status)
	if err != nil {
		return s.fail(n, err, "listing tasks")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.User.TaskHistoryLimit
	}
	page := max(req.Page, 1)

	n.Report("Fetching task list...", false)
	res, err := retryCall(ctx, s, n, func(ctx context.Context) (*ListResult, error) {
		return s.client.ListTasks(ctx, ListOptions{Page: page, Limit: limit, Status: status})
	})
	if err != nil {
		return s.fail(n, err, "listing tasks")
	}

	tasks := res.Tasks
	if status != "" && !res.ServerFiltered {
		tasks = lo.Filter(tasks, func(t Task, _ int) bool { return t.Status == status })
	}
	n.Report(fmt.Sprintf("Found %d tasks (page %d/%d)", len(tasks), page, res.TotalPages), true)

	return Result{
		Text:  FormatTaskList(tasks, page, res.TotalPages, res.Total),
		Count: len(tasks),
	}
}

// ListActiveTasks lists tasks that are PENDING, IN_PROGRESS or QUEUED.
func (s *Service) ListActiveTasks(ctx context.Context, host Notifier) Result {
	n := s.notifier(host)
	n.Report("Fetching active tasks...", false)
	res, err := retryCall(ctx, s, n, func(ctx context.Context) (*ListResult, error) {
		return s.client.ListTasks(ctx, ListOptions{})
	})
	if err != nil {
		return s.fail(n, err, "fetching active tasks")
	}

	active := lo.Filter(res.Tasks, func(t Task, _ int) bool { return t.Status.IsRunning() })
	n.Report(fmt.Sprintf("Found %d active tasks", len(active)), true)
	if len(active) == 0 {
		return Result{Text: "No active tasks currently running."}
	}
	return Result{
		Text:  FormatTaskList(active, 1, 1, len(active)),
		Count: len(active),
	}
}

// CancelTask deletes a task. The DELETE is sent once: a retry after a lost
// response would report the already-cancelled task as not found.
func (s *Service) CancelTask(ctx context.Context, taskID string, host Notifier) Result {
	n := s.notifier(host)
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return s.fail(n, fmt.Errorf("%w: task ID is required", ErrValidation), "cancelling task")
	}

	n.Report(fmt.Sprintf("Cancelling task %s...", taskID), false)
	res, err := s.client.CancelTask(ctx, taskID)
	if err != nil {
		if IsNotFound(err) {
			text := fmt.Sprintf("Task not found: %s", taskID)
			n.Report(text, true)
			return Result{Text: text, IsError: true, TaskID: taskID}
		}
		out := s.fail(n, err, "cancelling task")
		out.TaskID = taskID
		return out
	}
	s.logger.Info("task cancelled", "task_id", taskID, "status", res.StatusCode)

	if res.StatusCode == http.StatusNoContent {
		n.Report("Task cancelled successfully", true)
		return Result{
			Text:   fmt.Sprintf("Task cancelled successfully.\n\n**Task ID:** `%s`", taskID),
			TaskID: taskID,
			Status: StatusCancelled,
		}
	}
	n.Report(fmt.Sprintf("Task cancelled (status: %d)", res.StatusCode), true)
	return Result{
		Text:   fmt.Sprintf("Task cancelled (status: %d).\n\n**Task ID:** `%s`", res.StatusCode, taskID),
		TaskID: taskID,
		Status: StatusCancelled,
	}
}

// DiscoverModels scans the first page of tasks for the models they ran on.
func (s *Service) DiscoverModels(ctx context.Context, host Notifier) Result {
	n := s.notifier(host)
	n.Report("Scanning tasks for available models...", false)
	res, err := retryCall(ctx, s, n, func(ctx context.Context) (*ListResult, error) {
		return s.client.ListTasks(ctx, ListOptions{Page: 1})
	})
	if err != nil {
		return s.fail(n, err, "fetching models")
	}

	models := DiscoverModels(res.Tasks)
	n.Report(fmt.Sprintf("Found %d model(s)", len(models)), true)
	return Result{
		Text:   FormatModels(models, s.cfg.ResolveModel().Name, s.cfg.Admin.DefaultModelName),
		Count:  len(models),
		Models: models,
	}
}

// CheckConnection probes the service once, without retries, and reports
// latency, task counts and the effective configuration.
func (s *Service) CheckConnection(ctx context.Context, host Notifier) Result {
	n := s.notifier(host)
	n.Report("Checking agent service connection...", false)

	var lines []string
	failed := false

	probeCtx, cancel := context.WithTimeout(ctx, connectionProbeTimeout)
	probe, err := s.client.Probe(probeCtx)
	cancel()

	var apiErr *APIError
	switch {
	case err == nil && probe.Page != nil:
		running := lo.CountBy(probe.Page.Tasks, func(t Task) bool { return t.Status.IsRunning() })
		attention := lo.CountBy(probe.Page.Tasks, func(t Task) bool { return t.Status.NeedsAttention() })
		lines = append(lines,
			fmt.Sprintf("Connection successful (%.2fs)", probe.Latency.Seconds()),
			fmt.Sprintf("Status: %d OK", probe.StatusCode),
			fmt.Sprintf("Running tasks: %d", running),
		)
		if attention > 0 {
			lines = append(lines, fmt.Sprintf("Needs attention: %d", attention))
		}
		lines = append(lines, fmt.Sprintf("Total tasks (all time): %s", humanize.Comma(int64(probe.Page.Total))))
	case err == nil:
		lines = append(lines,
			fmt.Sprintf("Connection successful (%.2fs)", probe.Latency.Seconds()),
			fmt.Sprintf("Status: %d OK", probe.StatusCode),
			"Note: Unable to parse task count (API format changed)",
		)
	case errors.As(err, &apiErr):
		lines = append(lines, fmt.Sprintf("Connection established but returned status %d", apiErr.StatusCode))
		failed = true
	case isTimeout(err):
		lines = append(lines,
			fmt.Sprintf("Connection timeout (>%.0fs)", connectionProbeTimeout.Seconds()),
			"Possible causes:",
			"- Slow network connection",
			"- Service overload",
			"- Firewall blocking requests",
		)
		failed = true
	case IsTransient(err):
		lines = append(lines,
			FormatConnectionError(s.client.BaseURL()),
			"",
			fmt.Sprintf("Connection failed: %v", err),
			"Possible causes:",
			"- Agent service not running",
			"- Network unreachable",
			"- Incorrect URL configuration",
		)
		failed = true
	default:
		lines = append(lines, fmt.Sprintf("Unexpected error: %v", err))
		failed = true
	}

	if waits := s.registry.Summary(); waits.Total > 0 {
		lines = append(lines, fmt.Sprintf("Waiting on %d task(s) in this session", waits.Total))
	}

	if s.proxy != nil {
		lines = append(lines, proxyLines(s.proxy.Probe(ctx))...)
	}

	a := s.cfg.Admin
	lines = append(lines,
		"",
		"**Configured Models:**",
		a.ConfiguredModels,
		"",
		"**Configuration:**",
		fmt.Sprintf("Service URL: %s", a.ServiceURL),
		fmt.Sprintf("UI URL: %s", a.UIURL),
		fmt.Sprintf("Task timeout: %ds", a.TaskTimeoutSeconds),
		fmt.Sprintf("Max retries: %d", a.MaxRetries),
		fmt.Sprintf("Model: %s", s.cfg.ResolveModel().Name),
	)

	n.Report("Connection check complete", true)
	return Result{Text: strings.Join(lines, "\n"), IsError: failed}
}
