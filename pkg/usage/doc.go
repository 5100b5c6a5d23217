// Package usage meters consumption after protected operations succeed.
//
// Recorder persists one usage event: the atomic store increment is retried
// with exponential backoff, and once retries are exhausted the store's
// non-atomic read-modify-write path is used so the event is still counted.
// File operations tagged with an action are also appended to the file history.
//
// Tracker is response-side middleware. It observes the status code written by
// the handler and, for 2xx responses only, schedules the recording on a
// Dispatcher. Recording runs detached from the request's cancellation, bounded
// in concurrency, and never affects the response. Dispatcher.Close drains
// scheduled recordings at shutdown.
//
//	tracker, _ := usage.NewTracker(recorder, dispatcher, log)
//	r.With(
//		g.Compose(gate.AuthPresence(), gate.ResourceQuota(quota.Files, gate.FileCount("files"))),
//		tracker.Wrap(usage.FileProcessed, usage.FromDecision(quota.Files), usage.Action("merge")),
//	).Post("/documents/merge", merge)
package usage
