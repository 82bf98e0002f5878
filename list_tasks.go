// list_tasks.go defines the list_tasks and list_active_tasks tool types:
// one page of task history with a status summary, no message logs.
package main

// ListTasksArgs is the input for the list_tasks tool.
type ListTasksArgs struct {
	// Status filters to one status. Empty returns every status.
	Status string `json:"status,omitempty" jsonschema:"Filter by status, e.g. COMPLETED or IN_PROGRESS. Empty returns all."`
	Limit  int    `json:"limit,omitempty"  jsonschema:"Tasks per page. Defaults to the user's history limit."`
	Page   int    `json:"page,omitempty"   jsonschema:"Page number, starting at 1"`
}

// ListActiveTasksArgs is the input for the list_active_tasks tool. No
// arguments needed.
type ListActiveTasksArgs struct{}

// ListTasksOutput reports how many tasks were rendered.
type ListTasksOutput struct {
	Count int `json:"count"`
}
