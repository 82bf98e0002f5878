// cli.go defines the command tree. With no subcommand the binary serves MCP
// over stdio; the other subcommands run one operation and print its text.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// errOperationFailed is returned when an operation ran and already printed
// its own diagnostic. main exits non-zero without printing again.
var errOperationFailed = errors.New("operation failed")

// proxyProbeTimeout caps each model proxy request during check.
const proxyProbeTimeout = 10 * time.Second

type cliOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// setup loads configuration (file, then DESKAGENT_* environment, then flags)
// and wires a Service.
func (o *cliOptions) setup() (*Service, func(), error) {
	cfg, err := LoadConfig(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, nil, fmt.Errorf("environment: %w", err)
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}

	proxy, err := NewModelProxy(cfg.Admin.ModelProxyKind, cfg.Admin.ModelProxyURL, proxyProbeTimeout)
	if err != nil {
		return nil, nil, err
	}
	client := NewAgentClient(cfg.Admin.ServiceURL, cfg.Admin.TaskTimeout(), logger)
	return NewService(cfg, client, proxy, logger), client.Close, nil
}

// runOp wires a Service, runs op with a logging notifier, and prints the
// result text to stdout.
func (o *cliOptions) runOp(cmd *cobra.Command, op func(ctx context.Context, svc *Service, n Notifier) Result) error {
	svc, closeFn, err := o.setup()
	if err != nil {
		return err
	}
	defer closeFn()

	res := op(cmd.Context(), svc, LogNotifier{Logger: svc.logger})
	fmt.Fprintln(cmd.OutOrStdout(), res.Text)
	if res.IsError {
		return errOperationFailed
	}
	return nil
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "deskagent-mcp",
		Short:         "Drive a desktop-automation agent from MCP hosts and the shell",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.serve(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (defaults apply when omitted)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: text|json")

	root.AddCommand(
		newServeCmd(opts),
		newSubmitCmd(opts),
		newSubmitFilesCmd(opts),
		newStatusCmd(opts),
		newListCmd(opts),
		newActiveCmd(opts),
		newCancelCmd(opts),
		newModelsCmd(opts),
		newCheckCmd(opts),
	)
	return root
}

func (o *cliOptions) serve(ctx context.Context) error {
	svc, closeFn, err := o.setup()
	if err != nil {
		return err
	}
	defer closeFn()
	return serve(ctx, svc, svc.logger)
}

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over MCP stdio (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.serve(cmd.Context())
		},
	}
}

// submitFlags are shared by submit and submit-files.
type submitFlags struct {
	priority string
	wait     bool
}

func (f *submitFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.priority, "priority", "", "LOW|MEDIUM|HIGH|URGENT (default from user preferences)")
	cmd.Flags().BoolVar(&f.wait, "wait", true, "Wait for the task to finish")
}

func (f *submitFlags) request(cmd *cobra.Command, args []string) SubmitRequest {
	req := SubmitRequest{Description: strings.Join(args, " "), Priority: f.priority}
	if cmd.Flags().Changed("wait") {
		req.Wait = &f.wait
	}
	return req
}

func newSubmitCmd(opts *cliOptions) *cobra.Command {
	var flags submitFlags
	cmd := &cobra.Command{
		Use:   "submit DESCRIPTION...",
		Short: "Submit a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := flags.request(cmd, args)
			return opts.runOp(cmd, func(ctx context.Context, svc *Service, n Notifier) Result {
				return svc.SubmitTask(ctx, req, n)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newSubmitFilesCmd(opts *cliOptions) *cobra.Command {
	var (
		flags submitFlags
		paths []string
	)
	cmd := &cobra.Command{
		Use:   "submit-files DESCRIPTION... --file PATH [--file PATH...]",
		Short: "Submit a task with attached files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := flags.request(cmd, args)
			fileArgs := make([]FileArg, 0, len(paths))
			for _, p := range paths {
				fileArgs = append(fileArgs, FileArg{Path: p})
			}
			files, err := loadFiles(fileArgs)
			if err != nil {
				return err
			}
			return opts.runOp(cmd, func(ctx context.Context, svc *Service, n Notifier) Result {
				return svc.SubmitTaskWithFiles(ctx, req, files, n)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringArrayVar(&paths, "file", nil, "File to upload (repeatable)")
	return cmd
}

func newStatusCmd(opts *cliOptions) *cobra.Command {
	var messages bool
	cmd := &cobra.Command{
		Use:   "status TASK_ID",
		Short: "Show a task's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var include *bool
			if cmd.Flags().Changed("messages") {
				include = &messages
			}
			return opts.runOp(cmd, func(ctx context.Context, svc *Service, n Notifier) Result {
				return svc.GetStatus(ctx, args[0], include, n)
			})
		},
	}
	cmd.Flags().BoolVar(&messages, "messages", false, "Include the execution log (default from user preferences)")
	return cmd
}

func newListCmd(opts *cliOptions) *cobra.Command {
	var req ListRequest
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runOp(cmd, func(ctx context.Context, svc *Service, n Notifier) Result {
				return svc.ListTasks(ctx, req, n)
			})
		},
	}
	cmd.Flags().StringVar(&req.Status, "status", "", "Only tasks with this status")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "Tasks per page (default from user preferences)")
	cmd.Flags().IntVar(&req.Page, "page", 1, "Page number")
	return cmd
}

// simpleCmd builds a subcommand that takes no arguments and runs op.
func simpleCmd(opts *cliOptions, use, short string, op func(*Service, context.Context, Notifier) Result) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runOp(cmd, func(ctx context.Context, svc *Service, n Notifier) Result {
				return op(svc, ctx, n)
			})
		},
	}
}

func newActiveCmd(opts *cliOptions) *cobra.Command {
	return simpleCmd(opts, "active", "List running tasks", (*Service).ListActiveTasks)
}

func newModelsCmd(opts *cliOptions) *cobra.Command {
	return simpleCmd(opts, "models", "List models seen on recent tasks", (*Service).DiscoverModels)
}

func newCheckCmd(opts *cliOptions) *cobra.Command {
	return simpleCmd(opts, "check", "Check the connection and show the effective configuration", (*Service).CheckConnection)
}

func newCancelCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel TASK_ID",
		Short: "Cancel a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runOp(cmd, func(ctx context.Context, svc *Service, n Notifier) Result {
				return svc.CancelTask(ctx, args[0], n)
			})
		},
	}
}
