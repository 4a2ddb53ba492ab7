// Package httpapi exposes the service over HTTP with chi.
//
// Routes:
//
//	POST /generate-visualization  run a script, returns {status, chart_url, run_id}
//	GET  /output/{id}             published artifacts (route prefix is configurable)
//	GET  /runs, /runs/{id}        run ledger
//	GET  /healthz                 liveness
//
// Errors are returned as {status: "error", kind, detail, run_id} with the
// status code outcome.HTTPStatus assigns to the kind.
package httpapi
