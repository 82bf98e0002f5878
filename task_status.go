// task_status.go defines the get_task_status tool types.
package main

// GetTaskStatusArgs is the input for the get_task_status tool.
type GetTaskStatusArgs struct {
	TaskID string `json:"task_id" jsonschema:"Task ID returned by submit_task"`
	// IncludeMessages defaults to the user's show_execution_logs preference.
	IncludeMessages *bool `json:"include_messages,omitempty" jsonschema:"Include the agent's execution log"`
}
