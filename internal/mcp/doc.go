// Package mcp exposes the retrieval backend over the Model Context
// Protocol. It wires storage, the embedder, the searcher, the learning
// model, and the reindexer together and registers one tool per exposed
// operation. The server speaks MCP on stdio; all logging goes to stderr.
package mcp
