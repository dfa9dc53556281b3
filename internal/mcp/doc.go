// Package mcp implements the Model Context Protocol (MCP) server for chunkembed.
//
// The MCP server exposes four tools to AI coding assistants:
//   - index_codebase: Chunk and embed a directory tree into the index
//   - search_code: Rank indexed chunks against a natural language query
//   - get_status: Check indexing status and statistics
//   - chunk_code: Preview chunk boundaries for a piece of text
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started by the mcp command:
//
//	chunkembed mcp
//
// # Tool: index_codebase
//
//	Request:
//	{
//	  "name": "index_codebase",
//	  "arguments": {
//	    "path": "/path/to/project",
//	    "force_reindex": false,
//	    "include_vendor": false
//	  }
//	}
//
//	Response:
//	{
//	  "indexed": true,
//	  "files_indexed": 247,
//	  "files_skipped": 89,
//	  "files_removed": 0,
//	  "files_failed": 0,
//	  "chunks_created": 1310,
//	  "duration_ms": 35200
//	}
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "path": "/path/to/project",
//	    "query": "open a database connection",
//	    "limit": 10,
//	    "filters": {"file_pattern": "internal/*", "min_relevance": 0.3}
//	  }
//	}
//
// Each result carries its rank, file path, cosine similarity and the chunk
// (code plus either line/column or byte-offset positions).
//
// # Tool: chunk_code
//
// Runs the window planner on a single text and returns the chunks without
// embedding them. max_tokens defaults to the server's chunk budget.
//
// # Error Handling
//
// Tool failures are returned as *MCPError carrying a JSON-RPC code:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32001: Project path not found
//   - -32002: Indexing in progress
//   - -32003: Project not indexed
//   - -32004: Empty query
//   - -32005: Embedding model failure
//
// # Logging
//
// stdout is reserved for the protocol; the server logs to the slog logger
// passed in Options, which the command wires to stderr.
package mcp
