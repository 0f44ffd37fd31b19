package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/promo-notifier/internal/domain"
	"github.com/ignite/promo-notifier/internal/pkg/logger"
	"github.com/ignite/promo-notifier/internal/ratelimit"
)

// Config holds the dispatch policy.
type Config struct {
	Channel     domain.Channel
	PacingDelay time.Duration
	FromName    string
	FromEmail   string
}

// Dispatcher delivers promotion emails to consented recipients.
type Dispatcher struct {
	consent  ConsentChecker
	limiter  ratelimit.Limiter
	gateway  Gateway
	ledger   LedgerStore
	renderer *Renderer
	reports  ReportSink
	cfg      Config
	now      func() time.Time
	sleep    func(context.Context, time.Duration)
	log      *logger.Logger
}

// NewDispatcher wires a dispatcher. reports may be nil.
func NewDispatcher(consent ConsentChecker, limiter ratelimit.Limiter, gateway Gateway, ledger LedgerStore, renderer *Renderer, reports ReportSink, cfg Config) *Dispatcher {
	if cfg.Channel == "" {
		cfg.Channel = domain.ChannelEmailPromotion
	}
	return &Dispatcher{
		consent:  consent,
		limiter:  limiter,
		gateway:  gateway,
		ledger:   ledger,
		renderer: renderer,
		reports:  reports,
		cfg:      cfg,
		now:      time.Now,
		sleep:    sleepCtx,
		log:      logger.With("component", "dispatcher"),
	}
}

// Channel returns the channel consent and quota are checked against.
func (d *Dispatcher) Channel() domain.Channel { return d.cfg.Channel }

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeFailed
	outcomeRateLimited
)

// DispatchForPromotion sends p to every consented recipient and returns the
// tally. If the recipient set cannot be resolved the dispatch is abandoned
// and an empty summary is returned; the error is only logged.
func (d *Dispatcher) DispatchForPromotion(ctx context.Context, p domain.Promotion) domain.DispatchSummary {
	started := d.now()
	sum := domain.DispatchSummary{PromotionID: p.ID, StartedAt: started}
	log := d.log.With("promotion_id", p.ID)

	recipients, err := d.consent.ConsentedRecipients(ctx, d.cfg.Channel)
	if err != nil {
		log.Error("recipient resolution failed, dispatch abandoned", "error", err)
		sum.Duration = d.now().Sub(started)
		return sum
	}
	sum.Candidates = len(recipients)
	log.Info("dispatch started", "candidates", len(recipients))

	for i, r := range recipients {
		if i > 0 && d.cfg.PacingDelay > 0 {
			d.sleep(ctx, d.cfg.PacingDelay)
		}
		switch d.process(ctx, p, r) {
		case outcomeSent:
			sum.Sent++
		case outcomeFailed:
			sum.Failed++
		case outcomeRateLimited:
			sum.RateLimited++
		default:
			sum.Skipped++
		}
	}
	sum.Duration = d.now().Sub(started)

	log.Info("dispatch finished",
		"sent", sum.Sent, "failed", sum.Failed,
		"rate_limited", sum.RateLimited, "skipped", sum.Skipped,
		"duration_ms", sum.Duration.Milliseconds())

	if d.reports != nil {
		if err := d.reports.StoreDispatchReport(ctx, sum); err != nil {
			log.Warn("dispatch report not archived", "error", err)
		}
	}
	return sum
}

// DispatchToUser runs the per-recipient steps for one known recipient and
// reports whether the message was sent.
func (d *Dispatcher) DispatchToUser(ctx context.Context, p domain.Promotion, r domain.Recipient) bool {
	return d.process(ctx, p, r) == outcomeSent
}

func (d *Dispatcher) process(ctx context.Context, p domain.Promotion, r domain.Recipient) (res outcome) {
	log := d.log.With("promotion_id", p.ID, "user_id", r.UserID)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("recipient processing panicked", "panic", rec)
			res = outcomeFailed
		}
	}()

	ok, err := d.consent.HasActiveConsent(ctx, r.UserID, d.cfg.Channel)
	if err != nil {
		log.Error("consent re-check failed", "error", err)
		return outcomeSkipped
	}
	if !ok {
		log.Debug("consent withdrawn since resolution")
		return outcomeSkipped
	}

	rec := &domain.DispatchRecord{
		UserID:      r.UserID,
		Recipient:   r.Email,
		Channel:     d.cfg.Channel,
		PromotionID: &p.ID,
	}

	decision, err := d.limiter.Acquire(ctx, r.UserID, d.cfg.Channel)
	if err != nil {
		return d.fail(ctx, log, rec, fmt.Errorf("rate limit check: %w", err))
	}
	if !decision.Allowed {
		rec.Outcome = domain.OutcomeRateLimited
		d.append(ctx, log, rec)
		log.Info("recipient rate limited", "count", decision.Count, "reset_at", decision.ResetAt)
		return outcomeRateLimited
	}

	if r.Email == "" {
		return d.fail(ctx, log, rec, ErrNoRecipient)
	}
	subject, html, err := d.renderer.Render(p, r)
	if err != nil {
		return d.fail(ctx, log, rec, err)
	}
	rec.Subject = subject

	if d.gateway == nil {
		return d.fail(ctx, log, rec, ErrGatewayNotConfigured)
	}
	msg := &domain.EmailMessage{
		ID:          uuid.New().String(),
		PromotionID: p.ID,
		UserID:      r.UserID,
		To:          r.Email,
		FromName:    d.cfg.FromName,
		FromEmail:   d.cfg.FromEmail,
		Subject:     subject,
		HTMLContent: html,
	}
	result, err := d.gateway.Send(ctx, msg)
	if err != nil {
		return d.fail(ctx, log, rec, err)
	}
	if result == nil || !result.Success {
		reason := "gateway rejected message"
		if result != nil && result.Error != "" {
			reason = result.Error
		}
		return d.fail(ctx, log, rec, errors.New(reason))
	}

	rec.Outcome = domain.OutcomeSent
	rec.ExternalID = result.MessageID
	d.append(ctx, log, rec)
	log.Info("notification sent", "recipient", r.Email, "external_id", result.MessageID)
	return outcomeSent
}

func (d *Dispatcher) fail(ctx context.Context, log *logger.Logger, rec *domain.DispatchRecord, err error) outcome {
	rec.Outcome = domain.OutcomeFailed
	rec.Error = err.Error()
	d.append(ctx, log, rec)
	log.Error("notification failed", "recipient", rec.Recipient, "error", err)
	return outcomeFailed
}

func (d *Dispatcher) append(ctx context.Context, log *logger.Logger, rec *domain.DispatchRecord) {
	rec.ID = uuid.New().String()
	rec.CreatedAt = d.now()
	if err := d.ledger.Append(ctx, rec); err != nil {
		log.Error("ledger append failed", "outcome", rec.Outcome, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
