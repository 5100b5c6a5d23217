// Package redisstore implements subscription.Store on Redis.
//
// Key layout, with the default "quotagate" prefix:
//
//	quotagate:sub:<user-id>              JSON subscription, created with SETNX
//	quotagate:usage:<user-id>:<YYYY-MM>  hash of counters, mutated with HINCRBY
//
// Subscription updates use WATCH-based optimistic transactions; increments are
// queued in a single MULTI/EXEC so a delta touching several counters lands
// atomically.
package redisstore
