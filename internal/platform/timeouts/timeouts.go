// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// RollWait caps how long an executing action waits for one remote dice
// roll before the roll resolves as failed. Deployments override it with
// HEARTH_TABLE_ROLL_TIMEOUT; the constant is the fallback default.
const RollWait = 2 * time.Minute

// Approval caps how long a submitted action waits for a GM decision
// before it is rejected.
const Approval = time.Minute

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Storage caps the time allowed for one document store operation during
// session load and draft commit.
const Storage = 5 * time.Second
