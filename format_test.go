package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func tasksWithStatuses(statuses ...Status) []Task {
	out := make([]Task, len(statuses))
	for i, s := range statuses {
		out[i] = Task{ID: fmt.Sprintf("t%d", i), Status: s, Description: "task " + string(s)}
	}
	return out
}

// ---------------------------------------------------------------------------
// Summary
// ---------------------------------------------------------------------------

func TestFormatSummary(t *testing.T) {
	tasks := tasksWithStatuses(StatusPending, StatusPending, StatusCompleted, StatusFailed, StatusNeedsHelp)
	want := strings.Join([]string{
		"**Task Summary:**",
		"Running: 2",
		"  - PENDING: 2",
		"Needs Attention: 1",
		"  - NEEDS_HELP: 1",
		"COMPLETED: 1",
		"FAILED: 1",
	}, "\n")
	if got := FormatSummary(tasks); got != want {
		t.Fatalf("unexpected summary:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatSummaryOmitsEmptyGroups(t *testing.T) {
	got := FormatSummary(tasksWithStatuses(StatusCompleted))
	if !strings.Contains(got, "Running: 0") {
		t.Fatalf("running count is always shown, got:\n%s", got)
	}
	if strings.Contains(got, "Needs Attention") || strings.Contains(got, "FAILED") {
		t.Fatalf("zero groups should be omitted, got:\n%s", got)
	}
}

// ---------------------------------------------------------------------------
// Task list
// ---------------------------------------------------------------------------

func TestFormatTaskListEmpty(t *testing.T) {
	if got := FormatTaskList(nil, 1, 1, 0); got != "No tasks found." {
		t.Fatalf("expected literal empty message, got %q", got)
	}
}

func TestFormatTaskListIdempotent(t *testing.T) {
	tasks := tasksWithStatuses(StatusInProgress, StatusCompleted)
	tasks[0].CreatedAt = "2025-03-01T12:30:00.000Z"
	first := FormatTaskList(tasks, 1, 1, 2)
	second := FormatTaskList(tasks, 1, 1, 2)
	if first != second {
		t.Fatal("formatting the same list twice should yield identical text")
	}
	if !strings.Contains(first, "**Recent Tasks (2):**") {
		t.Fatalf("missing header:\n%s", first)
	}
	if !strings.Contains(first, "  - Created: 2025-03-01 12:30:00") {
		t.Fatalf("missing created time:\n%s", first)
	}
	if strings.Contains(first, "**Page") {
		t.Fatal("single page should have no pagination header")
	}
}

func TestFormatTaskListPagination(t *testing.T) {
	got := FormatTaskList(tasksWithStatuses(StatusCompleted), 2, 60, 1200)
	if !strings.Contains(got, "**Page 2 of 60** (Total: 1,200 tasks)") {
		t.Fatalf("missing pagination header:\n%s", got)
	}
}

func TestFormatTaskListTruncatesDescription(t *testing.T) {
	tasks := []Task{{ID: "x", Status: StatusCompleted, Description: strings.Repeat("d", 70)}}
	got := FormatTaskList(tasks, 1, 1, 1)
	if !strings.Contains(got, "  - "+strings.Repeat("d", 60)+"...") {
		t.Fatalf("description should be cut at 60 characters:\n%s", got)
	}
}

// ---------------------------------------------------------------------------
// Single task
// ---------------------------------------------------------------------------

func TestFormatTaskWithLogs(t *testing.T) {
	f := Formatter{UIURL: "http://ui:9992"}
	task := &Task{
		ID:          "t1",
		Status:      StatusNeedsHelp,
		Description: "open the browser",
		CreatedAt:   "2025-03-01T12:00:00Z",
		UpdatedAt:   "2025-03-01T12:00:42Z",
		Messages: []Message{
			{Role: "user", Content: []ContentBlock{{Type: "text", Text: "hidden"}}},
			{Role: "ASSISTANT", Content: []ContentBlock{
				{Type: "image"},
				{Type: "text", Text: "clicked start"},
			}},
		},
	}
	got := f.FormatTask(task, true)
	for _, want := range []string{
		"**Task Needs Help**",
		"**Task ID:** `t1`",
		"**Duration:** 42 seconds",
		"**Execution Log:**",
		"- clicked start",
		"**Action Required:** Check the agent UI at http://ui:9992",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, "hidden") {
		t.Fatal("user messages should not appear in the execution log")
	}

	if strings.Contains(f.FormatTask(task, false), "Execution Log") {
		t.Fatal("logs should be omitted when disabled")
	}
}

func TestFormatTaskTimeout(t *testing.T) {
	task := &Task{ID: "t9", Status: StatusTimeout, TimeoutInfo: "Exceeded 600s timeout"}
	got := Formatter{}.FormatTask(task, true)
	if !strings.Contains(got, "**Status:** Task timed out - Exceeded 600s timeout") {
		t.Fatalf("missing timeout status:\n%s", got)
	}
	if !strings.Contains(got, "get_task_status('t9')") {
		t.Fatalf("missing follow-up hint:\n%s", got)
	}
	if !strings.Contains(got, "**Duration:** Unknown") {
		t.Fatalf("missing timestamps should render Unknown:\n%s", got)
	}
}

func TestFormatTaskFailedUsesLastText(t *testing.T) {
	msgs := []Message{
		{Role: "assistant", Content: []ContentBlock{{Type: "text", Text: "trying"}}},
		{Role: "assistant", Content: []ContentBlock{{Type: "text", Text: "first"}, {Type: "text", Text: "login rejected"}}},
	}
	got := Formatter{UIURL: "http://ui"}.FormatTaskFailed("t1", msgs)
	if !strings.Contains(got, "Error: login rejected") {
		t.Fatalf("expected last text as error:\n%s", got)
	}
	if got := (Formatter{}).FormatTaskFailed("t1", nil); !strings.Contains(got, "Error: No error details available") {
		t.Fatalf("expected fallback error text:\n%s", got)
	}
}

func TestCreatedTimeFallback(t *testing.T) {
	cases := map[string]string{
		"":                         "Unknown",
		"2025-03-01T08:09:10Z":     "2025-03-01 08:09:10",
		"2025-03-01T08:09:10.5":    "2025-03-01 08:09:10",
		"2025-03-01Tgarbage-value": "2025-03-01 garbage-",
	}
	for in, want := range cases {
		if got := createdTime(in); got != want {
			t.Errorf("createdTime(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStatusTitle(t *testing.T) {
	if got := statusTitle(StatusInProgress); got != "In Progress" {
		t.Fatalf("expected In Progress, got %q", got)
	}
}

// ---------------------------------------------------------------------------
// Models
// ---------------------------------------------------------------------------

func TestDiscoverModelsDistinctInOrder(t *testing.T) {
	tasks := []Task{
		{ID: "1", Model: &ModelDescriptor{Name: "A"}},
		{ID: "2", Model: &ModelDescriptor{Name: "B"}},
		{ID: "3", Model: &ModelDescriptor{Name: "A"}},
		{ID: "4"},
	}
	models := DiscoverModels(tasks)
	if len(models) != 2 || models[0].Name != "A" || models[1].Name != "B" {
		t.Fatalf("expected [A B], got %+v", models)
	}
}

func TestFormatModels(t *testing.T) {
	models := []ModelDescriptor{
		{Name: "openai/Qwen3", Title: "Qwen3", Provider: "proxy", ContextWindow: 128000},
		{Name: "openai/Other", Provider: "proxy"},
	}
	got := FormatModels(models, "openai/Qwen3", "openai/Qwen3")
	for _, want := range []string{
		"1. Qwen3 (Currently Selected)",
		"   Context: 128,000 tokens",
		"2. openai/Other\n",
		"Admin Default: openai/Qwen3",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
	}

	empty := FormatModels(nil, "x", "openai/Default")
	if !strings.Contains(empty, "Current Default: openai/Default") {
		t.Fatalf("unexpected empty output:\n%s", empty)
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestFormatAPIError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: task description must be at least 5 characters", ErrValidation),
			"Error: Task description must be at least 5 characters."},
		{fmt.Errorf("GET /tasks: %w", ErrMalformedResponse),
			"Error: Unexpected API response format. Please check agent service version compatibility."},
		{&APIError{StatusCode: 404}, "Listing tasks failed - resource not found (404)."},
		{&APIError{StatusCode: 502}, "Server error during listing tasks. The service may be experiencing issues."},
		{&APIError{StatusCode: 400, Body: "limit must be positive"}, "Listing tasks failed with status 400: limit must be positive"},
		{refused(), "Network error during listing tasks. The agent service is unreachable - please check your connection and retry later."},
		{errors.New("boom"), "Unexpected error during listing tasks: boom"},
	}
	for _, tc := range cases {
		if got := FormatAPIError(tc.err, "listing tasks"); got != tc.want {
			t.Errorf("FormatAPIError(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
