// Package types provides the persisted records shared by the backend.
//
// Core Types:
//   - Profile: Browser identity with its fingerprint
//   - Proxy: Library proxy and its last health verdict
//   - Session: One browser launch bound to a profile
//   - Workflow: Stored node/edge graph document and profile assignments
//   - Job, Execution: Workflow run request and its per-profile instances
//
// State Management:
//   - SessionStatus: running, stopped, failed
//   - ExecutionStatus: pending -> running -> {completed, failed}
//   - JobStatus: derived from its executions
//
// Example Usage:
//
//	exec := &types.Execution{
//	    JobID:     job.ID,
//	    ProfileID: 7,
//	    Status:    types.ExecutionPending,
//	}
package types
