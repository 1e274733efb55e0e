// Package app wires the clinic API together and manages its lifecycle.
//
// # Initialization Flow
//
//  1. Load configuration from the .env file, environment and config file
//  2. Initialize logging and OpenTelemetry
//  3. Open the store (MongoDB or in-memory)
//  4. Build the token issuer, license store, audit queue and gates
//  5. Mount the API routes behind the shared middleware chain
//
// Start provisions the license, seeds the superadmin account when one is
// configured, starts the audit workers and serves HTTP. Stop reverses that
// order so queued audit entries are written before the store closes.
//
// # Usage
//
//	application, err := app.NewApplication(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := application.Run(); err != nil {
//	    log.Fatal(err)
//	}
package app
