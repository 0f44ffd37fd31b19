// Package consent answers whether a user may be notified on a channel and
// records opt-in changes with their origin.
package consent
