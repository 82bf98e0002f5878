// format.go turns tasks and task pages into the markdown text returned to
// the host. Everything here is pure: no I/O, no clocks, no config lookups
// beyond what is passed in.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	logEntryMaxLen    = 200
	listDescMaxLen    = 60
	createdTimeLayout = "2006-01-02 15:04:05"
)

// timestampLayouts are tried in order. The service sends RFC 3339 with a Z
// suffix; older builds omitted the zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

// truncateRunes returns at most n runes of s.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// ellipsize truncates s to n runes and appends "..." if anything was cut.
func ellipsize(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return truncateRunes(s, n) + "..."
}

var titleCaser = cases.Title(language.English)

// statusTitle renders IN_PROGRESS as "In Progress".
func statusTitle(s Status) string {
	return titleCaser.String(strings.ReplaceAll(string(s), "_", " "))
}

// taskDuration is updatedAt minus createdAt, or "Unknown".
func taskDuration(t *Task) string {
	start, err := parseTimestamp(t.CreatedAt)
	if err != nil {
		return "Unknown"
	}
	end, err := parseTimestamp(t.UpdatedAt)
	if err != nil {
		return "Unknown"
	}
	return fmt.Sprintf("%.0f seconds", end.Sub(start).Seconds())
}

// createdTime formats createdAt for list output. Unparsable values fall
// back to their first 19 characters.
func createdTime(raw string) string {
	if raw == "" {
		return "Unknown"
	}
	if t, err := parseTimestamp(raw); err == nil {
		return t.Format(createdTimeLayout)
	}
	return strings.Replace(truncateRunes(raw, 19), "T", " ", 1)
}

func orDefault[T ~string](v T, def T) T {
	if v == "" {
		return def
	}
	return v
}

// Formatter renders task results. UIURL is the agent's desktop UI, used in
// guidance that asks a human to step in.
type Formatter struct {
	UIURL string
}

// FormatTask renders one task. With showLogs, every assistant text block is
// listed, each cut at 200 characters.
func (f Formatter) FormatTask(task *Task, showLogs bool) string {
	status := orDefault(task.Status, StatusUnknown)
	id := orDefault(task.ID, "N/A")

	out := []string{
		fmt.Sprintf("**Task %s**", statusTitle(status)),
		"",
		fmt.Sprintf("**Task ID:** `%s`", id),
		fmt.Sprintf("**Description:** %s", orDefault(task.Description, "No description")),
		fmt.Sprintf("**Duration:** %s", taskDuration(task)),
		"",
	}

	if status == StatusTimeout {
		out = append(out,
			fmt.Sprintf("**Status:** Task timed out - %s", task.TimeoutInfo),
			fmt.Sprintf("**Task ID for manual check:** `%s`", id),
			fmt.Sprintf("Use get_task_status('%s') to check current status.", id),
		)
		return strings.Join(out, "\n")
	}

	if showLogs && len(task.Messages) > 0 {
		out = append(out, "**Execution Log:**")
		for _, m := range task.Messages {
			if !m.IsAssistant() {
				continue
			}
			for _, text := range m.Texts() {
				out = append(out, "- "+ellipsize(text, logEntryMaxLen))
			}
		}
		out = append(out, "")
	}

	switch status {
	case StatusNeedsHelp:
		out = append(out, fmt.Sprintf("**Action Required:** Check the agent UI at %s", f.UIURL))
	case StatusNeedsReview:
		out = append(out, fmt.Sprintf("**Action Required:** Review and approve task at %s", f.UIURL))
	case StatusFailed:
		out = append(out, "**Next Steps:** Review logs and try simplifying the task")
	}
	return strings.Join(out, "\n")
}

// FormatTaskFailed renders a FAILED task. The error text is the last text
// block of the last message.
func (f Formatter) FormatTaskFailed(taskID string, messages []Message) string {
	errText := "No error details available"
	if len(messages) > 0 {
		if texts := messages[len(messages)-1].Texts(); len(texts) > 0 {
			errText = texts[len(texts)-1]
		}
	}
	return fmt.Sprintf(`Task Failed

Task ID: %s
Error: %s

Next Steps:
1. Review task description for clarity
2. Check the agent logs at %s
3. Verify any credentials the task depends on
4. Try simplifying the task into smaller steps

Tip: Start with simpler tasks to verify the agent is working correctly.`, taskID, errText, f.UIURL)
}

// FormatNeedsHelp renders a task waiting on human input.
func (f Formatter) FormatNeedsHelp(taskID string) string {
	return fmt.Sprintf(`Human Assistance Required

Task ID: %s

The agent needs clarification or manual input to continue.

How to Help:
1. Open the agent UI: %s
2. Review the task messages
3. Provide requested information or take manual action
4. The agent will resume automatically

Tip: Common reasons include ambiguous instructions, authentication prompts, or CAPTCHAs.`, taskID, f.UIURL)
}

// FormatConnectionError is the troubleshooting text shown when the service
// cannot be reached at all.
func FormatConnectionError(serviceURL string) string {
	return fmt.Sprintf(`Connection Failed

Could not reach the agent service at %s

Troubleshooting Steps:
1. Verify the agent service is running
2. Check network connectivity to the host
3. Confirm the API is accessible: curl %s/tasks
4. Review the agent service logs for errors`, serviceURL, serviceURL)
}

// FormatSummary groups tasks into running, needs-attention and terminal
// buckets. Running is always shown, attention only when non-zero, and each
// terminal status only when non-zero.
func FormatSummary(tasks []Task) string {
	if len(tasks) == 0 {
		return ""
	}
	counts := lo.CountValuesBy(tasks, func(t Task) Status { return orDefault(t.Status, StatusUnknown) })
	total := func(group []Status) int {
		return lo.SumBy(group, func(s Status) int { return counts[s] })
	}
	breakdown := func(lines []string, group []Status) []string {
		for _, s := range group {
			if n := counts[s]; n > 0 {
				lines = append(lines, fmt.Sprintf("  - %s: %d", s, n))
			}
		}
		return lines
	}

	lines := []string{"**Task Summary:**"}
	lines = append(lines, fmt.Sprintf("Running: %d", total(RunningStatuses)))
	lines = breakdown(lines, RunningStatuses)

	if n := total(AttentionStatuses); n > 0 {
		lines = append(lines, fmt.Sprintf("Needs Attention: %d", n))
		lines = breakdown(lines, AttentionStatuses)
	}
	for _, s := range TerminalStatuses {
		if n := counts[s]; n > 0 {
			lines = append(lines, fmt.Sprintf("%s: %d", s, n))
		}
	}
	return strings.Join(lines, "\n")
}

// FormatTaskList renders a page of tasks with a summary and, when there is
// more than one page, a pagination header.
func FormatTaskList(tasks []Task, page, totalPages, total int) string {
	if len(tasks) == 0 {
		return "No tasks found."
	}

	var out []string
	if summary := FormatSummary(tasks); summary != "" {
		out = append(out, summary, "")
	}
	if totalPages > 1 {
		out = append(out, fmt.Sprintf("**Page %d of %d** (Total: %s tasks)", page, totalPages, humanize.Comma(int64(total))), "")
	}
	out = append(out, fmt.Sprintf("**Recent Tasks (%d):**", len(tasks)), "")

	for _, t := range tasks {
		out = append(out,
			fmt.Sprintf("**%s** (Priority: %s)", orDefault(t.Status, StatusUnknown), orDefault(t.Priority, PriorityMedium)),
			fmt.Sprintf("  - ID: `%s`", orDefault(t.ID, "N/A")),
			fmt.Sprintf("  - %s", ellipsize(orDefault(t.Description, "No description"), listDescMaxLen)),
			fmt.Sprintf("  - Created: %s", createdTime(t.CreatedAt)),
			"",
		)
	}
	return strings.Join(out, "\n")
}

// DiscoverModels returns the distinct model descriptors on tasks, keyed by
// name, in first-seen order.
func DiscoverModels(tasks []Task) []ModelDescriptor {
	models := lo.FilterMap(tasks, func(t Task, _ int) (ModelDescriptor, bool) {
		if t.Model == nil {
			return ModelDescriptor{}, false
		}
		return *t.Model, true
	})
	return lo.UniqBy(models, func(m ModelDescriptor) string { return m.Name })
}

// FormatModels renders discovered models as a numbered list, marking the one
// currently selected.
func FormatModels(models []ModelDescriptor, current, adminDefault string) string {
	if len(models) == 0 {
		return fmt.Sprintf(`No model configurations found in recent tasks.

Current Default: %s

To set a custom model, update user preferences:
preferred_model_name: "openai/YourModelName"
`, adminDefault)
	}

	out := []string{"Available Models:\n"}
	for i, m := range models {
		marker := ""
		if m.Name == current {
			marker = " (Currently Selected)"
		}
		out = append(out,
			fmt.Sprintf("%d. %s%s", i+1, orDefault(m.Title, m.Name), marker),
			fmt.Sprintf("   Name: %s", m.Name),
			fmt.Sprintf("   Provider: %s", m.Provider),
			fmt.Sprintf("   Context: %s tokens\n", humanize.Comma(int64(m.ContextWindow))),
		)
	}
	out = append(out,
		"\nTo use a different model:",
		"Set preferred_model_name in user preferences",
		fmt.Sprintf("\nAdmin Default: %s", adminDefault),
	)
	return strings.Join(out, "\n")
}

// FormatAPIError maps an error from an operation to user-facing text.
// operation is a lower-case phrase such as "listing tasks".
func FormatAPIError(err error, operation string) string {
	var apiErr *APIError
	switch {
	case errors.Is(err, ErrValidation):
		msg := capitalize(strings.TrimPrefix(err.Error(), ErrValidation.Error()+": "))
		if !strings.HasSuffix(msg, ".") {
			msg += "."
		}
		return "Error: " + msg
	case errors.Is(err, ErrMalformedResponse):
		return "Error: Unexpected API response format. Please check agent service version compatibility."
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == http.StatusNotFound:
			return fmt.Sprintf("%s failed - resource not found (404).", capitalize(operation))
		case apiErr.StatusCode >= 500:
			return fmt.Sprintf("Server error during %s. The service may be experiencing issues.", operation)
		default:
			return fmt.Sprintf("%s failed with status %d: %s", capitalize(operation), apiErr.StatusCode, apiErr.Detail())
		}
	case isTimeout(err):
		return fmt.Sprintf("%s timed out. The service may be busy - please try again later.", capitalize(operation))
	case IsTransient(err):
		return fmt.Sprintf("Network error during %s. The agent service is unreachable - please check your connection and retry later.", operation)
	}
	return fmt.Sprintf("Unexpected error during %s: %v", operation, err)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return strings.ToUpper(string(r)) + s[size:]
}
