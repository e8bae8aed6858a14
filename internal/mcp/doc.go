// Package mcp implements the Model Context Protocol (MCP) server for coderag.
//
// The server exposes four tools to AI coding assistants:
//   - index_codebase: Index a directory (full or incremental)
//   - search_code: Hybrid, vector or keyword retrieval
//   - answer_question: Grounded answer with file:line citations
//   - get_status: Index sizes, providers and last build
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Start it with:
//
//	coderag mcp
//
// # Tool: index_codebase
//
//	Request:
//	{
//	  "name": "index_codebase",
//	  "arguments": {
//	    "root": "/path/to/project",
//	    "incremental": true,
//	    "exclude": ["node_modules", "**/*.min.js"]
//	  }
//	}
//
//	Response:
//	{
//	  "indexed": true,
//	  "files_indexed": 12,
//	  "files_skipped": 230,
//	  "chunks": 48,
//	  "documents": 1210,
//	  "up_to_date": false,
//	  "duration_s": 1.7
//	}
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {"query": "where are tokens refreshed", "limit": 5, "search_mode": "hybrid"}
//	}
//
// Each result carries path, start_line, end_line, score, language and snippet.
//
// # Error Handling
//
// Handlers return *MCPError; mcp-go encodes it as a JSON-RPC error.
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error
//   - -32001: Root not found
//   - -32002: Indexing in progress
//   - -32003: Not indexed
//   - -32004: Empty query
//   - -32005: No relevant context
//
// # Logging
//
// Logs go to stderr; stdout is reserved for protocol frames.
package mcp
