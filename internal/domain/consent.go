package domain

import (
	"strings"
	"time"
)

// Channel is the notification category that consent and rate limits are
// scoped to.
type Channel string

const (
	ChannelEmailPromotion Channel = "EMAIL_PROMOTION"
	ChannelEmailGeneral   Channel = "EMAIL_GENERAL"
)

// Channels lists every supported channel.
var Channels = []Channel{ChannelEmailPromotion, ChannelEmailGeneral}

// ParseChannel resolves a channel name case-insensitively.
func ParseChannel(s string) (Channel, bool) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, c := range Channels {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// ConsentRecord is the per-(user, channel) opt-in with its audit trail.
type ConsentRecord struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	Channel      Channel   `json:"channel" db:"channel"`
	Granted      bool      `json:"granted" db:"granted"`
	ConsentedAt  time.Time `json:"consented_at" db:"consented_at"`
	LastModified time.Time `json:"last_modified" db:"last_modified"`
	OriginIP     string    `json:"origin_ip,omitempty" db:"origin_ip"`
	UserAgent    string    `json:"user_agent,omitempty" db:"user_agent"`
}

// AuditMeta carries where a consent change came from.
type AuditMeta struct {
	OriginIP  string `json:"origin_ip"`
	UserAgent string `json:"user_agent"`
}

// Recipient is a user resolved for delivery.
type Recipient struct {
	UserID string `json:"user_id" db:"user_id"`
	Email  string `json:"email" db:"email"`
	Name   string `json:"name" db:"name"`
}
