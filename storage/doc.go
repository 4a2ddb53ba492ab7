// Package storage defines the run ledger: one Run record per request, written
// after the request finishes. The sqlite subpackage provides the durable
// implementation.
package storage
