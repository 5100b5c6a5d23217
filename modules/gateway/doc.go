// Package gateway exposes the quota gateway's HTTP API.
//
// Subscription routes let the caller inspect entitlements and usage, cancel
// (immediately or at period end), reactivate and change plan. Document, AI and
// API routes are admitted by a gate pipeline and metered by usage trackers:
//
//	POST /v1/documents/merge   files[]  merge feature, batch, size, files and storage quotas
//	POST /v1/documents/{split,compress,convert}  file
//	POST /v1/ai/summarize      file     ai_summary feature, ai quota
//	GET  /v1/api/ping                   minimum plan tier, api_access feature, api quota
//	GET  /v1/history                    file_history feature
//
// The document work itself is delegated to a Processor.
package gateway
