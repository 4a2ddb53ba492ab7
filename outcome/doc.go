// Package outcome classifies run failures.
//
// Every failure leaving the orchestrator is an *Error with one of six kinds:
// invalid_request and rejected are caller errors detected before any
// container starts; timed_out, execution_failed, artifact_missing and
// internal_io_error are server-side. Classify folds an artifact id and an
// error into the Outcome sum type returned to surfaces.
package outcome
