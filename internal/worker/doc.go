// Package worker runs the background machinery: the activation queue that
// hands promotions to the dispatcher and the daily sweep trigger.
package worker
