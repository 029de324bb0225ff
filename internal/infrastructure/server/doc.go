// Package server wires the backend together and serves it over HTTP.
//
// Server Lifecycle:
//  1. Load configuration (config.Load)
//  2. Restore the store snapshot and stop sessions left running
//  3. Seed fingerprint presets from FINGERPRINT_PRESETS_FILE
//  4. Build the engine chain, orchestrator, checker, executor and job pool
//  5. Mount middleware, REST routes, /executions/stream and /metrics
//  6. Start the worker pool and periodic snapshots, then serve
//  7. On shutdown: stop HTTP, drain workers, close browsers, save snapshot
//
// Example Usage:
//
//	srv, err := server.NewServer(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv.Start(ctx)
//	go srv.Run()
//	<-stop
//	srv.Shutdown(context.Background())
package server
