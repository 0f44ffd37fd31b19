package domain

import "time"

// DispatchOutcome enumerates the recorded result of one dispatch attempt.
type DispatchOutcome string

const (
	OutcomePending     DispatchOutcome = "PENDING"
	OutcomeSent        DispatchOutcome = "SENT"
	OutcomeDelivered   DispatchOutcome = "DELIVERED"
	OutcomeFailed      DispatchOutcome = "FAILED"
	OutcomeBounced     DispatchOutcome = "BOUNCED"
	OutcomeRateLimited DispatchOutcome = "RATE_LIMITED"
)

// AttemptOutcomes are the outcomes of a message that reached the gateway.
// Ledger counts of recent sends use exactly this set.
var AttemptOutcomes = []DispatchOutcome{OutcomeSent, OutcomeDelivered, OutcomeFailed, OutcomeBounced}

// DispatchRecord is one append-only ledger entry. A retry is a new record;
// existing records are never updated.
type DispatchRecord struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Recipient   string          `json:"recipient" db:"recipient"`
	Channel     Channel         `json:"channel" db:"channel"`
	PromotionID *string         `json:"promotion_id,omitempty" db:"promotion_id"`
	Subject     string          `json:"subject,omitempty" db:"subject"`
	Outcome     DispatchOutcome `json:"outcome" db:"outcome"`
	Error       string          `json:"error,omitempty" db:"error_message"`
	ExternalID  string          `json:"external_id,omitempty" db:"external_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// RateLimitWindow is the fixed-window counter for one (user, channel) pair.
type RateLimitWindow struct {
	UserID      string    `json:"user_id" db:"user_id"`
	Channel     Channel   `json:"channel" db:"channel"`
	WindowStart time.Time `json:"window_start" db:"window_start"`
	Count       int       `json:"count" db:"count"`
}

// Expired reports whether the window has fully elapsed at now.
func (w RateLimitWindow) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(w.WindowStart) >= window
}

// SignalSource names the operation that detected an activation.
type SignalSource string

const (
	SourceCreate SignalSource = "create"
	SourceUpdate SignalSource = "update"
	SourceSweep  SignalSource = "sweep"
)

// ActivationSignal announces that a promotion has just become ACTIVE. The
// Promotion field is a snapshot taken at emission time.
type ActivationSignal struct {
	Promotion Promotion    `json:"promotion"`
	Source    SignalSource `json:"source"`
	EmittedAt time.Time    `json:"emitted_at"`
}

// DispatchSummary is the result of fanning one promotion out to its
// consented recipients.
type DispatchSummary struct {
	PromotionID string        `json:"promotion_id"`
	Candidates  int           `json:"candidates"`
	Sent        int           `json:"sent"`
	Failed      int           `json:"failed"`
	RateLimited int           `json:"rate_limited"`
	Skipped     int           `json:"skipped"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}
