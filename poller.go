// poller.go waits for a submitted task to reach a status that hands control
// back to the caller.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultTaskTimeout = 600 * time.Second
	progressPreviewLen = 80
)

// DefaultPollIntervals polls often early and cheaply later. The last value
// repeats once the schedule is exhausted.
var DefaultPollIntervals = []time.Duration{
	2 * time.Second,
	3 * time.Second,
	5 * time.Second,
	8 * time.Second,
	13 * time.Second,
	20 * time.Second,
}

// TaskFetcher is the single call the poller makes per iteration.
type TaskFetcher interface {
	GetTask(ctx context.Context, id string) (*Task, error)
}

// Poller repeatedly fetches a task until it is COMPLETED, FAILED, CANCELLED,
// NEEDS_HELP or NEEDS_REVIEW, or until Timeout elapses. It does not format
// anything; callers get the last task as fetched.
//
// There is no way to stop a poll from outside other than the timeout and
// the caller's own context.
type Poller struct {
	Fetcher   TaskFetcher
	Retry     RetryPolicy
	Clock     Clock
	Timeout   time.Duration
	Intervals []time.Duration
	Registry  *WatchRegistry
	Logger    *slog.Logger
}

// interval returns the sleep after the n-th (0-based) non-final poll.
func (p *Poller) interval(n int) time.Duration {
	intervals := p.Intervals
	if len(intervals) == 0 {
		intervals = DefaultPollIntervals
	}
	return intervals[min(n, len(intervals)-1)]
}

// Poll blocks until taskID ends polling. A fetch error that survives the
// retry policy aborts immediately and is returned as is. Exceeding the
// timeout is not an error: the result is a synthetic TIMEOUT task carrying
// the original ID.
func (p *Poller) Poll(ctx context.Context, taskID string, notifier Notifier) (*Task, error) {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	clock := p.Clock
	if clock == nil {
		clock = realClock{}
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := p.Retry
	if retry.Clock == nil {
		retry.Clock = clock
	}
	if retry.Observer == nil {
		retry.Observer = retryReporter(notifier, logger)
	}

	start := clock.Now()
	handle := p.Registry.Start(taskID, start)
	defer p.Registry.Done(handle)

	for poll := 0; ; poll++ {
		elapsed := clock.Now().Sub(start)
		if elapsed > timeout {
			notifier.Report(fmt.Sprintf("Task timeout after %.0fs. Task still running.", elapsed.Seconds()), true)
			logger.Info("task wait timed out", "task_id", taskID, "elapsed", elapsed, "polls", poll)
			return &Task{
				ID:          taskID,
				Status:      StatusTimeout,
				TimeoutInfo: fmt.Sprintf("Exceeded %.0fs timeout", timeout.Seconds()),
			}, nil
		}

		task, err := Retry(ctx, retry, func(ctx context.Context) (*Task, error) {
			return p.Fetcher.GetTask(ctx, taskID)
		})
		if err != nil {
			notifier.Report(fmt.Sprintf("Error polling task status: %v", err), true)
			return nil, fmt.Errorf("poll task %s: %w", taskID, err)
		}
		p.Registry.Update(handle, task.Status, clock.Now())
		notifier.Report(progressLine(task), false)

		switch {
		case task.Status.IsTerminal():
			logger.Debug("task finished", "task_id", taskID, "status", task.Status, "polls", poll+1)
			return task, nil
		case task.Status == StatusNeedsHelp:
			notifier.Report("Task needs human assistance", true)
			return task, nil
		case task.Status == StatusNeedsReview:
			notifier.Report("Task needs review", true)
			return task, nil
		}

		if err := sleep(ctx, clock, p.interval(poll)); err != nil {
			return nil, fmt.Errorf("poll task %s: %w", taskID, err)
		}
	}
}

// progressLine is the one-line observation reported after each fetch.
func progressLine(task *Task) string {
	if latest := LatestAssistantText(task); latest != "" {
		return fmt.Sprintf("%s: %s...", task.Status, truncateRunes(latest, progressPreviewLen))
	}
	return fmt.Sprintf("Task status: %s", task.Status)
}
