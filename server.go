// server.go registers the task operations as MCP tools and serves them over
// stdio.
package main

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	serverName    = "deskagent-mcp"
	serverVersion = "0.3.0"
)

func toolResult(r Result) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: r.Text}},
		IsError: r.IsError,
	}
}

// newServer builds the MCP server with one tool per operation.
func newServer(svc *Service, logger *slog.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, &mcp.ServerOptions{Logger: logger})
	progress := func(ctx context.Context, req *mcp.CallToolRequest) Notifier {
		return newMCPProgressNotifier(ctx, req, logger)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name: "submit_task",
		Description: "Submit a task to the desktop automation agent. By default waits for " +
			"completion and streams progress; set wait_for_completion=false to return the task ID immediately.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args SubmitTaskArgs) (*mcp.CallToolResult, TaskOutput, error) {
		res := svc.SubmitTask(ctx, args.request(), progress(ctx, req))
		return toolResult(res), taskOutput(res), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name: "submit_task_with_files",
		Description: "Submit a task together with files the agent needs. Files are given by local path " +
			"or inline as base64 content. The whole batch is rejected if any file exceeds the size limit.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args SubmitTaskWithFilesArgs) (*mcp.CallToolResult, TaskOutput, error) {
		files, err := loadFiles(args.Files)
		if err != nil {
			return toolResult(Result{Text: FormatAPIError(err, "task execution with files"), IsError: true}), TaskOutput{}, nil
		}
		res := svc.SubmitTaskWithFiles(ctx, args.request(), files, progress(ctx, req))
		return toolResult(res), taskOutput(res), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_task_status",
		Description: "Get the current status of a task, optionally with the agent's execution log.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GetTaskStatusArgs) (*mcp.CallToolResult, TaskOutput, error) {
		res := svc.GetStatus(ctx, args.TaskID, args.IncludeMessages, progress(ctx, req))
		return toolResult(res), taskOutput(res), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_tasks",
		Description: "List recent tasks with a status summary. Supports a status filter and pagination.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ListTasksArgs) (*mcp.CallToolResult, ListTasksOutput, error) {
		res := svc.ListTasks(ctx, ListRequest{Status: args.Status, Limit: args.Limit, Page: args.Page}, progress(ctx, req))
		return toolResult(res), ListTasksOutput{Count: res.Count}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_active_tasks",
		Description: "List tasks that are pending, queued or in progress.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ ListActiveTasksArgs) (*mcp.CallToolResult, ListTasksOutput, error) {
		res := svc.ListActiveTasks(ctx, progress(ctx, req))
		return toolResult(res), ListTasksOutput{Count: res.Count}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cancel_task",
		Description: "Cancel a task by ID.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args CancelTaskArgs) (*mcp.CallToolResult, TaskOutput, error) {
		res := svc.CancelTask(ctx, args.TaskID, progress(ctx, req))
		return toolResult(res), taskOutput(res), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_models",
		Description: "List the models seen on recent tasks and which one new tasks will use.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ ListModelsArgs) (*mcp.CallToolResult, ListModelsOutput, error) {
		res := svc.DiscoverModels(ctx, progress(ctx, req))
		return toolResult(res), ListModelsOutput{
			Models:       res.Models,
			Current:      svc.cfg.ResolveModel().Name,
			AdminDefault: svc.cfg.Admin.DefaultModelName,
		}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_connection",
		Description: "Check connectivity to the agent service and the optional model proxy, and show the effective configuration.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ CheckConnectionArgs) (*mcp.CallToolResult, CheckConnectionOutput, error) {
		res := svc.CheckConnection(ctx, progress(ctx, req))
		return toolResult(res), CheckConnectionOutput{
			Connected:   !res.IsError,
			ServiceURL:  svc.cfg.Admin.ServiceURL,
			ActiveWaits: svc.Registry().Summary().Total,
		}, nil
	})

	return server
}

// serve runs the MCP server on stdin/stdout until ctx is done or the host
// disconnects.
func serve(ctx context.Context, svc *Service, logger *slog.Logger) error {
	logger.Info("serving MCP over stdio", "service_url", svc.cfg.Admin.ServiceURL)
	return newServer(svc, logger).Run(ctx, &mcp.StdioTransport{})
}
