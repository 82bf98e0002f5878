// cancel_tasks.go defines the cancel_task tool types and the task outcome
// shared by every tool that acts on a single task.
package main

// CancelTaskArgs is the input for the cancel_task tool.
type CancelTaskArgs struct {
	TaskID string `json:"task_id" jsonschema:"ID of the task to cancel"`
}

// TaskOutput is the structured result of a single-task tool.
type TaskOutput struct {
	TaskID string `json:"task_id,omitempty"`
	Status Status `json:"status,omitempty"` // last status seen; TIMEOUT when the wait ceiling was hit
}

func taskOutput(r Result) TaskOutput {
	return TaskOutput{TaskID: r.TaskID, Status: r.Status}
}
