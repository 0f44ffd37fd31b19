package notification

import "errors"

var (
	ErrNoRecipient          = errors.New("recipient has no email address")
	ErrGatewayNotConfigured = errors.New("delivery gateway not configured")
)
