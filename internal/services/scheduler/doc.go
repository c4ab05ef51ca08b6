// Package scheduler provides the in-process task scheduler used by hotbot
// services and plugins.
//
// # Overview
//
// The scheduler runs user-provided jobs with a configurable worker pool. Jobs
// are registered under a logical name (e.g. "hotmedia:push"). Names are
// intended to be stable and human readable so that tasks can be replaced
// (upserted) and removed deterministically.
//
// # Schedule formats
//
//   - Cron expressions: 5-field (min hour dom mon dow). Example: "0 10 * * *".
//   - Cron descriptors: "@hourly", "@daily", "@every 55m".
//   - AddDaily accepts a wall-clock "HH:MM" and builds the cron spec.
//
// # Concurrency and overlap
//
// Jobs run on a worker pool behind a bounded queue. A run is skipped when the
// previous run of the same schedule is still executing. A per-job timeout is
// applied to each run.
//
// # Lifecycle
//
// The Service can be started/stopped at runtime (e.g. via config hot reload).
// Registering tasks while stopped is supported: definitions are stored and
// applied on the next start.
package scheduler
