// task.go defines the client-side view of a task owned by the agent service.
// These are transient copies decoded from the REST API; nothing here is
// persisted between calls.
package main

import (
	"fmt"
	"slices"
	"strings"
)

// Status is the lifecycle state reported by the agent service.
//
// Lifecycle: SUBMITTED -> PENDING | QUEUED | IN_PROGRESS -> COMPLETED | FAILED | CANCELLED
//
//	IN_PROGRESS -> NEEDS_HELP | NEEDS_REVIEW (poller exits, job is not finished)
//
// TIMEOUT never comes from the service. The poller synthesizes it when the
// wait ceiling is reached.
type Status string

const (
	StatusSubmitted   Status = "SUBMITTED"
	StatusPending     Status = "PENDING"
	StatusInProgress  Status = "IN_PROGRESS"
	StatusQueued      Status = "QUEUED"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
	StatusCancelled   Status = "CANCELLED"
	StatusNeedsHelp   Status = "NEEDS_HELP"
	StatusNeedsReview Status = "NEEDS_REVIEW"
	StatusTimeout     Status = "TIMEOUT"
	StatusUnknown     Status = "UNKNOWN"
)

// Ordered status groups. The order is the order used in summaries.
var (
	RunningStatuses   = []Status{StatusPending, StatusInProgress, StatusQueued}
	AttentionStatuses = []Status{StatusNeedsHelp, StatusNeedsReview}
	TerminalStatuses  = []Status{StatusCompleted, StatusFailed, StatusCancelled}
)

// IsRunning reports whether the task is still being worked on by the agent.
func (s Status) IsRunning() bool { return slices.Contains(RunningStatuses, s) }

// NeedsAttention reports whether a human has to act before the task continues.
func (s Status) NeedsAttention() bool { return slices.Contains(AttentionStatuses, s) }

// IsTerminal reports whether the job is finished for good.
func (s Status) IsTerminal() bool { return slices.Contains(TerminalStatuses, s) }

// EndsPolling reports whether the completion poller should hand control
// back to the caller on this status.
func (s Status) EndsPolling() bool {
	return s.IsTerminal() || s.NeedsAttention() || s == StatusTimeout
}

// Priority is the task urgency accepted by POST /tasks.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Priorities lists every accepted priority in ascending urgency.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// ParsePriority validates a priority string. Only the exact upper-case
// names are accepted.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !slices.Contains(Priorities, p) {
		return "", fmt.Errorf("%w: invalid priority '%s'. Must be LOW, MEDIUM, HIGH, or URGENT", ErrValidation, s)
	}
	return p, nil
}

// Task is a remote automation job as returned by GET /tasks/{id}.
type Task struct {
	ID          string           `json:"id"`
	Status      Status           `json:"status"`
	Description string           `json:"description"`
	Priority    Priority         `json:"priority,omitempty"`
	CreatedAt   string           `json:"createdAt,omitempty"` // ISO-8601, kept raw so bad values render as Unknown
	UpdatedAt   string           `json:"updatedAt,omitempty"`
	Messages    []Message        `json:"messages,omitempty"`
	Model       *ModelDescriptor `json:"model,omitempty"`

	// TimeoutInfo is only set on the synthetic TIMEOUT record.
	TimeoutInfo string `json:"timeoutInfo,omitempty"`
}

// Message is one entry of a task's conversation log.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a typed payload inside a message. Only "text" blocks are
// rendered; screenshots and tool calls are ignored.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// IsAssistant reports whether the message was authored by the agent.
// The service has used both "assistant" and "ASSISTANT".
func (m Message) IsAssistant() bool {
	return strings.EqualFold(m.Role, "assistant")
}

// Texts returns the text of every text block in order.
func (m Message) Texts() []string {
	var out []string
	for _, b := range m.Content {
		if b.Type == "text" {
			out = append(out, b.Text)
		}
	}
	return out
}

// ModelDescriptor identifies the AI backend that executes a task.
type ModelDescriptor struct {
	Name          string `json:"name"`
	Title         string `json:"title"`
	Provider      string `json:"provider"`
	ContextWindow int    `json:"contextWindow"`
}

// TaskPage is the response body of GET /tasks.
type TaskPage struct {
	Tasks      []Task `json:"tasks"`
	Total      int    `json:"total"`
	TotalPages int    `json:"totalPages"`
}

// LatestAssistantText returns the first text block of the most recent
// assistant message, or "" if there is none.
func LatestAssistantText(t *Task) string {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		m := t.Messages[i]
		if !m.IsAssistant() {
			continue
		}
		if texts := m.Texts(); len(texts) > 0 {
			return texts[0]
		}
	}
	return ""
}
