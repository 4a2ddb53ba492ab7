// Package main is the entry point for the plotbox server.
//
// plotbox runs short, untrusted Python or R plotting scripts in ephemeral
// containers and serves the chart each run produces. The server always
// exposes the HTTP API (POST /generate-visualization plus static artifact
// serving) and, depending on server.transport, the MCP tool over stdio or
// streamable HTTP.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging, viper for
// configuration and SQLite for the run ledger.
package main
