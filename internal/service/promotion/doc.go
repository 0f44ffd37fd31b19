// Package promotion implements the promotion lifecycle.
//
// A promotion's status is derived from its date range relative to today:
// SCHEDULED before the start date, ACTIVE from start through end (inclusive),
// EXPIRED afterwards. Operators may set a status explicitly on create or
// update; the stored value then stands until the next sweep recomputes it.
//
// Whenever a promotion enters ACTIVE the service hands an ActivationSignal to
// its SignalPublisher and returns without waiting for delivery. Repository
// implementations live in repository/postgres/.
package promotion
