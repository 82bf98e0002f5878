// notifier.go defines how progress reaches the host while an operation
// runs. The retry and poll loops only see the Notifier interface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Notifier receives human-readable progress. final marks the last report of
// an operation.
type Notifier interface {
	Report(text string, final bool)
}

// Verbosity controls how often non-final progress is forwarded.
type Verbosity string

const (
	VerbosityMinimal Verbosity = "minimal"
	VerbosityNormal  Verbosity = "normal"
	VerbosityVerbose Verbosity = "verbose"
)

// Verbosities lists the accepted verbosity levels.
var Verbosities = []Verbosity{VerbosityMinimal, VerbosityNormal, VerbosityVerbose}

// minInterval is the shortest gap between two forwarded non-final reports.
func (v Verbosity) minInterval() time.Duration {
	switch v {
	case VerbosityMinimal:
		return 10 * time.Second
	case VerbosityNormal:
		return 3 * time.Second
	}
	return 0
}

// ThrottledNotifier drops non-final reports that arrive faster than the
// verbosity allows. The first report and every final report always pass.
type ThrottledNotifier struct {
	next      Notifier
	verbosity Verbosity
	clock     Clock

	mu       sync.Mutex
	lastEmit time.Time
	emitted  int
}

// NewThrottledNotifier wraps next. A nil next yields a notifier that
// discards everything.
func NewThrottledNotifier(next Notifier, verbosity Verbosity, clock Clock) *ThrottledNotifier {
	if clock == nil {
		clock = realClock{}
	}
	return &ThrottledNotifier{next: next, verbosity: verbosity, clock: clock}
}

func (n *ThrottledNotifier) Report(text string, final bool) {
	if n.next == nil {
		return
	}
	n.mu.Lock()
	now := n.clock.Now()
	if !final && n.emitted > 0 && now.Sub(n.lastEmit) < n.verbosity.minInterval() {
		n.mu.Unlock()
		return
	}
	n.lastEmit = now
	n.emitted++
	n.mu.Unlock()

	n.next.Report(text, final)
}

// NopNotifier discards all progress.
type NopNotifier struct{}

func (NopNotifier) Report(string, bool) {}

// LogNotifier writes progress to a structured logger. Used by the CLI.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Report(text string, final bool) {
	n.Logger.Info(text, "final", final)
}

// mcpProgressNotifier forwards progress as MCP notifications/progress on the
// session that issued the tool call. Hosts only receive these if they sent a
// progress token with the request.
type mcpProgressNotifier struct {
	ctx     context.Context
	session *mcp.ServerSession
	token   any
	logger  *slog.Logger

	mu    sync.Mutex
	count int
}

// newMCPProgressNotifier returns a notifier for req, or NopNotifier when the
// host did not ask for progress.
func newMCPProgressNotifier(ctx context.Context, req *mcp.CallToolRequest, logger *slog.Logger) Notifier {
	if req == nil || req.Session == nil || req.Params == nil {
		return NopNotifier{}
	}
	token := req.Params.GetProgressToken()
	if token == nil {
		return NopNotifier{}
	}
	return &mcpProgressNotifier{ctx: ctx, session: req.Session, token: token, logger: logger}
}

func (n *mcpProgressNotifier) Report(text string, final bool) {
	n.mu.Lock()
	n.count++
	progress := float64(n.count)
	n.mu.Unlock()

	params := &mcp.ProgressNotificationParams{
		ProgressToken: n.token,
		Message:       text,
		Progress:      progress,
	}
	if final {
		params.Total = progress
	}
	if err := n.session.NotifyProgress(n.ctx, params); err != nil {
		n.logger.Debug("progress notification failed", "error", err)
	}
}

// retryReporter adapts a Notifier into a RetryObserver with the
// "Request failed (attempt k/N)" wording. Each retry is also logged at Warn
// when logger is set.
func retryReporter(n Notifier, logger *slog.Logger) RetryObserver {
	return func(attempt, maxAttempts int, delay time.Duration, err error) {
		if logger != nil {
			logger.Warn("retrying agent request", "attempt", attempt, "max_attempts", maxAttempts, "delay", delay, "error", err)
		}
		n.Report(fmt.Sprintf("Request failed (attempt %d/%d), retrying in %.1fs...",
			attempt, maxAttempts, delay.Seconds()), false)
	}
}
