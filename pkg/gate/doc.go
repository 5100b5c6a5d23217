// Package gate is the admission pipeline placed in front of protected operations.
//
// A Gate composes guards into HTTP middleware. Guards run strictly in the
// declared order against a request-scoped State; the first rejection is
// rendered as JSON and no later guard runs. Business refusals are *Rejection
// values, while errors returned by guards denote infrastructure or wiring
// failures and are answered with 500 (or a panic in strict mode).
//
//	g, err := gate.New(resolver, catalog, gate.WithUpgradeURL("https://app.example.com/billing"))
//	if err != nil {
//		return err
//	}
//	r.With(g.Compose(
//		gate.AuthPresence(),
//		gate.SubscriptionValidity(),
//		gate.FileSizeLimit(gate.MultipartFiles("files")),
//		gate.BatchSizeLimit(gate.FileCount("files")),
//		gate.ResourceQuota(quota.Files, gate.FileCount("files")),
//	)).Post("/documents/merge", mergeHandler)
//
// Authentication happens before the gate: any middleware calling WithUserID
// marks the request as authenticated. Handlers read the admitted decisions
// through FromContext.
package gate
