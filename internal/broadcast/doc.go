// Package broadcast is the daily reminder core: a set of subscribed
// recipients (Registry) and a single recurring trigger (Scheduler) that sends
// one fixed message to every recipient.
//
// Activation
//
// A recipient is activated by adding it to the Registry and calling
// Scheduler.EnsureStarted. The first EnsureStarted arms the trigger; every
// later call, from any goroutine, is a no-op. There is no way back to the
// not-started state for the life of the process.
//
// Delivery semantics
//
// Each firing takes a Registry snapshot and delivers sequentially. A recipient
// whose delivery returns an error is removed from the Registry and the batch
// continues. There is no retry and no notice to the removed recipient; it
// must activate again to receive future broadcasts. Every error is treated
// as permanent, including transient network errors. The failure reason is
// classified for logs only.
//
// A delivery that hangs without honoring its context blocks the rest of
// that batch.
package broadcast
