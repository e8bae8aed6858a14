// Package api exposes a Service over HTTP with go-restful.
//
// /health, /config, /metrics and /apidocs.json are public. Index management,
// /query and /answer require the X-API-Key header whenever an API key is
// configured. Every error response has the body {"detail": "..."}.
package api
