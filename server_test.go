package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// connect runs newServer on an in-memory transport and returns a client
// session to it.
func connect(t *testing.T, svc *Service, opts *mcp.ClientOptions) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	ss, err := newServer(svc, logger).Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, opts)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("expected text content")
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected *mcp.TextContent, got %T", res.Content[0])
	}
	return tc.Text
}

func TestServerRegistersTools(t *testing.T) {
	svc, _ := newTestService(t, noNetwork(t))
	cs := connect(t, svc, nil)

	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	want := []string{
		"cancel_task", "check_connection", "get_task_status", "list_active_tasks",
		"list_models", "list_tasks", "submit_task", "submit_task_with_files",
	}
	if !slices.Equal(names, want) {
		t.Fatalf("expected tools %v, got %v", want, names)
	}
}

func TestServerCancelTask(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	cs := connect(t, svc, nil)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "cancel_task",
		Arguments: map[string]any{"task_id": "t1"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if !strings.HasPrefix(resultText(t, res), "Task cancelled successfully.") {
		t.Fatalf("unexpected text %q", resultText(t, res))
	}

	raw, _ := json.Marshal(res.StructuredContent)
	var out TaskOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode structured output: %v", err)
	}
	if out.TaskID != "t1" || out.Status != StatusCancelled {
		t.Fatalf("unexpected structured output %+v", out)
	}
}

func TestServerValidationIsToolError(t *testing.T) {
	svc, _ := newTestService(t, noNetwork(t))
	cs := connect(t, svc, nil)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "submit_task",
		Arguments: map[string]any{"description": "hi"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatal("validation failure should be a tool error")
	}
	if got := resultText(t, res); got != "Error: Task description must be at least 5 characters." {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestServerFileArgsDecoded(t *testing.T) {
	svc, _ := newTestService(t, noNetwork(t))
	cs := connect(t, svc, nil)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "submit_task_with_files",
		Arguments: map[string]any{
			"description": "summarize the notes",
			"files":       []map[string]any{{"filename": "notes.txt", "content": "not base64!"}},
		},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "notes.txt: invalid base64 content") {
		t.Fatalf("expected base64 error, got %q", resultText(t, res))
	}
}

func TestServerSendsProgress(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, `{"id":"t1","status":"SUBMITTED"}`)
	})
	messages := make(chan string, 16)
	cs := connect(t, svc, &mcp.ClientOptions{
		ProgressNotificationHandler: func(_ context.Context, req *mcp.ProgressNotificationClientRequest) {
			messages <- req.Params.Message
		},
	})

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Meta:      mcp.Meta{"progressToken": "tok-1"},
		Name:      "submit_task",
		Arguments: map[string]any{"description": "open the calculator", "wait_for_completion": false},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-messages:
			if msg == "Task created: t1" {
				return
			}
		case <-deadline:
			t.Fatal("did not receive the task-created progress notification")
		}
	}
}
