// Package server exposes the exporter over HTTP.
//
// NewRegistry(exporter) builds a registry with the Jenkins collector and the
// Go runtime and process collectors. Handler(reg, path) returns a chi router
// serving the text exposition at path (partial results on collector errors),
// /healthz for the exporter's own liveness, and a landing page at /.
//
// Server.Run(ctx) listens until ctx is cancelled and then shuts down with a
// bounded grace period.
package server
