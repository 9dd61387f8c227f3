// Package timeouts defines shared timeout constants used across residency
// processes so lifecycle durations stay discoverable in one place.
package timeouts

import "time"

// GRPCRequest caps the time allowed for a single consumer gRPC request.
const GRPCRequest = 10 * time.Second

// ReadHeader limits how long the metrics HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second

// ChangeFeedPoll bounds one Kafka fetch before the consumer loop re-checks
// for cancellation.
const ChangeFeedPoll = 5 * time.Second

// Warm caps one change-feed pre-warm computation.
const Warm = 30 * time.Second
