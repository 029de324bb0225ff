// Package ws streams execution status changes over WebSocket.
//
// Clients connect to /executions/stream, optionally with ?jobId=N to see a
// single job. Every applied execution update is sent as
//
//	{"type": "execution", "execution": {...}, "jobStatus": "running", "timestamp": 1700000000}
//
// A client may send {"type": "ping"} and receives {"type": "pong"}. Slow
// clients lose events rather than stall the updater.
package ws
