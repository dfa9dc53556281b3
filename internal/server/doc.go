// Package server serves the chunk-and-embed pipeline over HTTP using the
// KServe v1 inference protocol.
//
// Routes:
//
//	POST /v1/models/{name}:predict  {"instances":[{"file_path","code","file_hash"}]}
//	GET  /v1/models/{name}          {"name","ready"}
//	GET  /v1/models                 {"models":[...]}
//	GET  /healthz
//	GET  /metrics                   Prometheus exposition
//
// A predict response is {"results": {path: {"embeddings": [chunk, ...]}}}.
// Errors are {"error": "..."} with status 400 for invalid input, 404 for an
// unknown model, 413 for an oversized body, 500 for a tokenizer fault, 502
// when the embedding model fails and 504 when the request deadline expires.
package server
