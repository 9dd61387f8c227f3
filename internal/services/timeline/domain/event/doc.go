// Package event defines the immutable occupancy event consumed by the timeline
// pipeline.
//
// Events are facts recorded by upstream ingestion: a resident was assigned to a
// resource, released from it, or transferred into it. The log is append-only;
// retractions are recorded beside an event rather than removing it, and the
// store filters retracted events before they reach this package's callers.
package event
