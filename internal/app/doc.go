// Package app wires the nodelock bridge together and manages its lifecycle.
//
// # Initialization Flow
//
//  1. Load configuration (defaults, nodelock.yaml, .env, NODELOCK_* env)
//  2. Initialize logging and OpenTelemetry
//  3. Build the fingerprint resolver, the sealed record store and the engine
//  4. Start the event hub and subscribe it to engine verdicts
//  5. Set up the router and the loopback HTTP server
//
// # Usage
//
//	application, err := app.NewApplication()
//	if err != nil {
//	    return err
//	}
//	return application.Run()
//
// Run blocks until SIGINT or SIGTERM, then drains requests, disconnects event
// clients and flushes telemetry. Errors are returned to the caller; the
// package never calls os.Exit.
package app
