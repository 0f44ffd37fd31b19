// Package notification fans an activated promotion out to the users who
// consented to promotional email.
//
// Recipients are processed one after another. For each one the dispatcher
// re-checks consent, takes a slot from the rate limiter, renders the message,
// calls the delivery gateway and appends the outcome to the ledger. A slot is
// consumed before the gateway is called, so failed sends count against the
// user's quota. Nothing is retried; a failure on one recipient never stops
// the others.
package notification
