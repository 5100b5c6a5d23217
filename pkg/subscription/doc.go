// Package subscription defines subscription records, monthly usage counters and
// the Store contract the entitlement gateway persists them through.
//
// # Data model
//
// Each user owns exactly one Subscription (plan, status, billing period end,
// deferred-cancellation flag). Usage counters are scoped to (user, Period),
// where a Period is a UTC calendar month formatted YYYY-MM. Counters only grow
// within a period; resets belong to an external rollover job.
//
// # Store
//
// Store implementations must honour two concurrency guarantees:
//
//   - CreateIfAbsent is idempotent: concurrent first-time calls for the same
//     user produce one record and every caller observes it.
//   - IncrementUsage is atomic: M concurrent increments of d add exactly M*d.
//
// Stores may also implement FallbackIncrementer, a read-modify-write path used
// only when the atomic primitive keeps failing. It can lose updates under
// concurrency and is kept so that usage is never silently dropped.
//
// Available implementations:
//
//   - NewMemoryStore: in-process, for tests and development
//   - pgstore: PostgreSQL with an increment_usage() SQL function
//   - redisstore: Redis with SETNX records and HINCRBY counters
//
// Wrap any store with WithPlanValidation to reject plans missing from the catalog:
//
//	store := subscription.WithPlanValidation(pgstore.New(db), catalog)
//
// # Lifecycle
//
// Lifecycle applies user-initiated changes (Cancel, ScheduleCancel, Reactivate,
// ChangePlan) through a fixed transition table. Expiry is not driven here: an
// active subscription whose period has ended is treated as expired (or
// cancelled, when cancellation was deferred) at read time.
//
//	lc := subscription.NewLifecycle(store)
//	sub, err := lc.ScheduleCancel(ctx, userID)
//	if errors.Is(err, subscription.ErrInvalidTransition) {
//	    // e.g. already cancelled
//	}
package subscription
