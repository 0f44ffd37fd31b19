package domain

import "time"

// EmailMessage is the fully-rendered message handed to a delivery gateway.
type EmailMessage struct {
	ID          string `json:"id"`
	PromotionID string `json:"promotion_id,omitempty"`
	UserID      string `json:"user_id"`
	To          string `json:"to"`
	FromName    string `json:"from_name"`
	FromEmail   string `json:"from_email"`
	Subject     string `json:"subject"`
	HTMLContent string `json:"html_content"`
	TextContent string `json:"text_content,omitempty"`
}

// SendResult is returned by a gateway after attempting delivery. A negative
// result (Success=false, nil error) and a returned error are both failures.
type SendResult struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"message_id"`
	Provider  string    `json:"provider"`
	SentAt    time.Time `json:"sent_at"`
	Error     string    `json:"error,omitempty"`
}
