// Package job turns workflow run requests into jobs and executions and
// drives them on a worker pool.
//
// ExecuteWorkflow validates the request, stores one Job and one pending
// Execution per profile, queues a Task per execution and returns. Workers
// pop tasks, launch the profile's browser through the session orchestrator,
// walk the graph and close the session. Every status change goes through
// the Updater, a single goroutine that enforces
//
//	pending -> running -> completed | failed
//
// recomputes the job status and publishes an Event to subscribers.
//
// The queue is a buffered channel in a single process, or a Redis list
// (RPUSH/BLPOP) when several processes share the work. Executions live in
// each process's own store, so tasks on a shared list carry an Owner and a
// process that pops someone else's task pushes it back.
//
// Pool.Stop cancels running executions, fails the queued ones with error
// "shutdown" and gives up waiting when its ctx ends.
package job
