// Package subscription keeps one live user-events subscription per watched
// account.
//
// The Manager owns the (account, handle) slots. A periodic refresh cycle
// tears each subscription down and re-establishes it, isolating failures so
// that one bad account never stops the others from being refreshed.
//
// Slot state machine:
//
//	Active ──(unsubscribe or subscribe fails)──► FailedPendingRetry
//	FailedPendingRetry ──(unsubscribe+subscribe succeed)──► Active
//
// A slot never holds two outstanding handles: when an unsubscribe fails the
// old handle is kept and no subscribe is attempted until teardown succeeds.
package subscription
