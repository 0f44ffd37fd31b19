package consent

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/promo-notifier/internal/domain"
	"github.com/ignite/promo-notifier/internal/pkg/logger"
)

// Service implements consent lookups and updates. It is safe for concurrent use.
type Service struct {
	repo Repository
	log  *logger.Logger
}

// NewService creates a consent service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, log: logger.With("component", "consent")}
}

// ConsentedRecipients lists users who granted consent for ch.
func (s *Service) ConsentedRecipients(ctx context.Context, ch domain.Channel) ([]domain.Recipient, error) {
	return s.repo.ConsentedRecipients(ctx, ch)
}

// HasActiveConsent reports whether userID currently consents to ch. A user
// with no record has not consented.
func (s *Service) HasActiveConsent(ctx context.Context, userID string, ch domain.Channel) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, ErrUserRequired
	}
	return s.repo.HasActiveConsent(ctx, userID, ch)
}

// Get returns the stored record for (userID, ch).
func (s *Service) Get(ctx context.Context, userID string, ch domain.Channel) (*domain.ConsentRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUserRequired
	}
	return s.repo.Get(ctx, userID, ch)
}

// Upsert records a grant or withdrawal with its audit metadata. Repeated calls
// for the same pair reuse the existing row.
func (s *Service) Upsert(ctx context.Context, userID, channel string, granted bool, meta domain.AuditMeta) (*domain.ConsentRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserRequired
	}
	ch, ok := domain.ParseChannel(channel)
	if !ok {
		return nil, ErrUnknownChannel
	}

	rec := &domain.ConsentRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		Channel:   ch,
		Granted:   granted,
		OriginIP:  meta.OriginIP,
		UserAgent: truncate(meta.UserAgent, 512),
	}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return nil, err
	}

	s.log.Info("consent updated", "user_id", userID, "channel", ch, "granted", granted)
	return rec, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
