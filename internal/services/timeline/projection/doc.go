// Package projection memoizes computed timelines.
//
// Entries are keyed by a Fingerprint of the exact event set, subject, range and
// tie-break policy that produced them. A new event changes the fingerprint of
// every projection it affects, so stale entries are never served; they simply
// stop being requested and age out of the bounded LRU.
//
// Concurrent requests for the same fingerprint share one in-flight
// computation. The computation runs detached from any single requester, so a
// caller that gives up does not cancel work other callers are waiting on, and
// the finished result still lands in the cache.
package projection
