// Package subscription paces the notifications of LWM2M observations.
//
// Each observation owns a Subscription that decides, at every engine step,
// whether a notification is due.
//
// # Periods
//
// Config carries the two notification periods of the LWM2M attribute model:
//   - MinPeriod (pmin): minimum time between notifications (coalescing window)
//   - MaxPeriod (pmax): maximum time without notification (heartbeat), zero
//     disables the heartbeat
//
// # Coalescing
//
// Changes reported inside MinPeriod after the previous notification are
// accumulated; one notification carrying the current value is sent when the
// window closes.
//
// # Unchanged Suppression
//
// With SuppressUnchanged, a change whose records equal the last notified
// records is dropped. Heartbeats are always sent.
//
// # Priming
//
// The response to the observe request is the first notification: Prime
// records its values and starts both periods.
package subscription
