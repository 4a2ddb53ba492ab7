// Package logger provides structured logging capabilities.
//
// The logger package sets up and configures the application's logging
// system using zap. The logger is built once at process start and passed
// by reference; per-run fields travel in the request context and are
// attached with FromContext.
//
// Usage:
//
//	log, err := logger.New("production", "info")
//	if err != nil {
//	    panic(err)
//	}
//	ctx = logger.WithRunID(ctx, runID)
//	logger.FromContext(ctx, log).Info("container started")
package logger
