// Package server implements the MCP (Model Context Protocol) server for the
// answer-sheet scanner.
//
// The server speaks JSON-RPC 2.0 over stdio, one request per line, and
// exposes the scanning pipeline as tools. Every tool operates on the single
// omr.Session the server was created with, so the layout, image backend and
// active answer key are shared across calls.
//
// # Protocol
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Basic Image Information:
//   - image_load: Load image and get metadata
//   - image_dimensions: Get width and height
//
// Pipeline Stages:
//   - omr_detect_features: Find corner markers or answer tables
//   - omr_rectify: Warp the sheet to its canonical frame
//   - omr_decode: Read the marked answers
//
// Answer Key:
//   - omr_scan_key: Read a key sheet and make it the active key
//   - omr_set_key, omr_get_key, omr_clear_key: Manage the key directly
//
// Grading:
//   - omr_grade: Read a student sheet and score it
//   - omr_grade_maps: Score two answer maps
//
// Live Capture:
//   - omr_live_tick: Feed one camera frame to the stability gate
//   - omr_live_reset: Start looking for the next sheet
//
// Sheet Tools:
//   - omr_calibrate: Suggest layout corrections from a printed sheet
//   - omr_render_sheet: Draw a printable sheet
//
// # Answer Maps
//
// Answer maps in tool arguments use question numbers as keys and option
// letters as values: {"1": "A", "2": "D"}. Results carry both the option
// indices (0 = A) and the letters.
//
// # Error Handling
//
// Tool errors are returned as JSON-RPC error responses with code -32602 when
// the arguments are at fault and -32000 for everything else; the data field
// carries the Go error string. A sheet whose markers cannot all be found is
// a tool failure for the decode tools, but omr_detect_features reports it
// as an incomplete result so the partial detection can be inspected.
package server
