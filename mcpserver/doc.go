// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The server exposes one tool, generate_visualization, which takes the same
// fields as the HTTP endpoint (code, language, output_type,
// visualization_type) and returns a JSON text result carrying the artifact
// id and chart URL, or the error kind and detail with IsError set. It uses
// the mark3labs/mcp-go library for the protocol.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, service)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
