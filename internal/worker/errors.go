package worker

import "errors"

var (
	ErrQueueClosed     = errors.New("activation queue closed")
	ErrSweepInProgress = errors.New("a promotion sweep is already running")
)
