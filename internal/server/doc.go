// Package server implements the MCP (Model Context Protocol) server for
// medication package scanning.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses and notifications on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - notifications/cancelled: Cancel an in-flight tool call
//   - ping: Health check
//
// Tool calls run concurrently. A scan started while another is running
// supersedes it: the earlier call fails with a cancellation error.
// medscan_ocr_region takes the same recognizer, so at most one recognizer
// session is open at a time.
//
// # Available Tools
//
// Scanning:
//   - medscan_extract: Full scan of a package photo into candidate names
//   - medscan_capture: Take one camera frame, optionally scanning it
//
// Diagnostics:
//   - medscan_preprocess: The OCR-ready bitmap and brightness class
//   - medscan_regions: The regions a scan would recognize and their text scores
//   - medscan_ocr_region: Recognize one region
//   - medscan_analyze: Brightness and dominant colors
//
// Follow-up:
//   - medscan_check_interactions: Interactions, age warnings, alternatives
//   - medscan_engine_info: Recognizer status and active configuration
//
// # Progress
//
// When a medscan_extract call carries params._meta.progressToken, every
// increase of the scan progress is sent as notifications/progress with
// total 100 and the current status message.
//
// # Image Sources
//
// Tools that read an image accept an absolute path, an image_id returned by
// medscan_capture, or inline image_base64 with a declared mime_type. Paths
// and capture ids are cached for the lifetime of the process.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with code
// -32000. The data object carries the Go error string, the error kind and
// reason, and a localized message suitable for display. A failed scan also
// carries its partial result with progress reset to 0.
package server
