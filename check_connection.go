// check_connection.go defines the check_connection tool types.
package main

// CheckConnectionArgs is the input for the check_connection tool. No
// arguments needed.
type CheckConnectionArgs struct{}

// CheckConnectionOutput is the machine-readable part of the diagnostics.
type CheckConnectionOutput struct {
	Connected   bool   `json:"connected"`
	ServiceURL  string `json:"service_url"`
	ActiveWaits int    `json:"active_waits"` // completion polls running in this process
}
