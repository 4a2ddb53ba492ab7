// Package visualize orchestrates one visualization request: validate, filter,
// stage, run the container, resolve and publish the artifact, classify the
// result and record it in the ledger.
//
// Each request is handled on the caller's goroutine. Teardown of the staging
// directory, the container and the run's scratch directory is deferred, so it
// happens on every path.
//
// Usage:
//
//	req, err := visualize.NewRequest(code, "python", "png", "static")
//	if err != nil {
//	    return err
//	}
//	res, err := service.Generate(ctx, req)
package visualize
