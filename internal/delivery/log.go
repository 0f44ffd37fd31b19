package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/promo-notifier/internal/domain"
	"github.com/ignite/promo-notifier/internal/pkg/logger"
)

// LogGateway accepts every message and only logs it. Used when SES is
// disabled.
type LogGateway struct {
	log *logger.Logger
}

func NewLogGateway() *LogGateway {
	return &LogGateway{log: logger.With("component", "log-gateway")}
}

func (g *LogGateway) Send(_ context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	id := "log-" + uuid.New().String()
	g.log.Info("email accepted", "recipient", msg.To, "subject", msg.Subject, "message_id", id)
	return &domain.SendResult{Success: true, MessageID: id, Provider: "log", SentAt: time.Now()}, nil
}
