// Package engine answers timeline queries for the rendering layer.
//
// Each query reads the relevant events once, fingerprints them, and either
// serves the cached projection for that fingerprint or runs the pure pipeline
// (normalize, resolve, build) through the shared projection cache. The engine
// holds no state of its own beyond the cache it is given.
package engine
