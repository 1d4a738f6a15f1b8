// Package server implements the MCP (Model Context Protocol) server for image
// segmentation tools.
//
// This package provides a JSON-RPC 2.0 server that exposes region-growing
// segmentation through the MCP protocol, so that an MCP client can split an
// image into homogeneous regions and inspect the result.
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
// Image Information:
//   - image_load: Load image and get size, bands, bit depth and value ranges
//   - image_dimensions: Get width and height
//
// Segmentation:
//   - image_segment: Segment an image, return statistics and a label preview,
//     optionally write the label raster as TIFF
//   - image_segment_overlay: Segment an image and draw region boundaries
//
// Label Analysis:
//   - image_label_stats: Size distribution, connectivity and largest segments
//     of a label TIFF
//
// Every segmentation run gets a run_id that also tags the server log lines of
// that run.
//
// # Image Caching
//
// The server maintains an in-memory cache of loaded images and their raster
// form. Images are cached by path and reused across tool calls, so repeated
// segmentations of one image with different parameters skip decoding.
// The cache persists for the lifetime of the server process.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// A segmentation that fails in some blocks reports each failing block with
// its raster window and stage.
//
// # Usage
//
// The server is typically started by an MCP client:
//
//	srv := server.New(logger)
//	if err := srv.Run(ctx); err != nil {
//	    logger.Fatal(err)
//	}
package server
