package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestThrottledNotifierNormal(t *testing.T) {
	clock := newFakeClock()
	rec := &recordingNotifier{}
	n := NewThrottledNotifier(rec, VerbosityNormal, clock)

	n.Report("first", false) // always passes
	clock.Advance(time.Second)
	n.Report("too soon", false)
	clock.Advance(2 * time.Second)
	n.Report("after 3s", false)
	clock.Advance(500 * time.Millisecond)
	n.Report("done", true) // final always passes

	want := []string{"first", "after 3s", "done"}
	if got := rec.Texts(); !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestThrottledNotifierMinimal(t *testing.T) {
	clock := newFakeClock()
	rec := &recordingNotifier{}
	n := NewThrottledNotifier(rec, VerbosityMinimal, clock)

	n.Report("a", false)
	clock.Advance(9 * time.Second)
	n.Report("b", false)
	clock.Advance(time.Second)
	n.Report("c", false)

	want := []string{"a", "c"}
	if got := rec.Texts(); !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestThrottledNotifierVerbose(t *testing.T) {
	rec := &recordingNotifier{}
	n := NewThrottledNotifier(rec, VerbosityVerbose, newFakeClock())
	for _, s := range []string{"a", "b", "c"} {
		n.Report(s, false)
	}
	if got := len(rec.Texts()); got != 3 {
		t.Fatalf("verbose should forward everything, got %d", got)
	}
}

func TestThrottledNotifierNilNext(t *testing.T) {
	n := NewThrottledNotifier(nil, VerbosityVerbose, nil)
	n.Report("dropped", true) // must not panic
}

func TestRetryReporterWording(t *testing.T) {
	rec := &recordingNotifier{}
	retryReporter(rec, nil)(1, 3, 1500*time.Millisecond, errors.New("x"))
	if got := rec.Last().text; got != "Request failed (attempt 1/3), retrying in 1.5s..." {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	n.Report("Task created: t1", true)
	if out := buf.String(); !strings.Contains(out, `msg="Task created: t1"`) || !strings.Contains(out, "final=true") {
		t.Fatalf("unexpected log output %q", out)
	}
}

func TestMCPProgressNotifierWithoutRequest(t *testing.T) {
	n := newMCPProgressNotifier(context.Background(), nil, slog.Default())
	if _, ok := n.(NopNotifier); !ok {
		t.Fatalf("expected NopNotifier without a request, got %T", n)
	}
}
