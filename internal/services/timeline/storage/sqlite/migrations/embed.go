// Package migrations contains the embedded schema of the event store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
