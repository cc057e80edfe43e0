// Package jenkins is a small client for the Jenkins JSON API.
//
// Client.Request(ctx, path, params, out) GETs <base>/<path>/api/json, adds
// basic auth when a username is configured, and decodes the body into out.
// Lock timeouts, transport errors, non-200 responses and malformed JSON are
// all logged and collapsed into ok == false; callers only see presence or
// absence. The X-Jenkins response header is returned as Response.Version.
//
// Typed helpers wrap the three endpoints the exporter reads:
// Queue (/queue), Plugins (/pluginManager with a tree filter) and
// Computers (/computer).
package jenkins
