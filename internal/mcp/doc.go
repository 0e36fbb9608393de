// Package mcp implements an MCP (Model Context Protocol) server over the
// capture pipeline.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Records:
//   - records_query: Records for one UTC date
//
// Captures:
//   - capture_process: Fetch and process the live display
//   - capture_process_key: Process a stored capture
//   - captures_list: List object store keys
//
// Calibration:
//   - catalog_regions: Describe the region catalog
//   - region_read: OCR one region of a stored capture without storing anything
//
// # Error Handling
//
// Tool failures are returned as JSON-RPC errors with code -32000. The error
// data holds the message under "details" and, for pipeline failures, the
// failure code under "code" (e.g. TIMESTAMP_UNRESOLVED).
//
// # Thread Safety
//
// Requests are handled one at a time in arrival order. Decoded captures are
// kept in a small cache between region_read calls.
package mcp
