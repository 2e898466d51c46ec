// Package observability builds the gateway's zap logger.
//
// Production runs get JSON output; development runs get the console encoder
// with colored levels. Request-scoped fields (request_id, sub) are added by
// the middleware that owns them, never here.
package observability
