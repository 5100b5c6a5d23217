// Package requestid assigns a correlation ID to every gateway request.
//
// Middleware accepts a client-supplied X-Request-ID when it is at most 128
// characters of [a-zA-Z0-9_-], and otherwise generates a UUIDv7. The ID is
// echoed in the response header, available through FromContext, added to log
// records by LoggerExtractor and stored with each file history entry.
package requestid
