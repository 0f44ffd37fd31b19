package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/promo-notifier/internal/domain"
	"github.com/ignite/promo-notifier/internal/pkg/httputil"
	"github.com/ignite/promo-notifier/internal/service/consent"
	"github.com/ignite/promo-notifier/internal/worker"
)

type consentRequest struct {
	UserID  string `json:"user_id"`
	Channel string `json:"channel"`
	Granted *bool  `json:"granted"`
}

type consentResponse struct {
	UserID    string                `json:"user_id"`
	Channel   domain.Channel        `json:"channel"`
	Consented bool                  `json:"consented"`
	Record    *domain.ConsentRecord `json:"record,omitempty"`
}

type rateLimitInfo struct {
	Channel       domain.Channel `json:"channel"`
	Max           int            `json:"max"`
	WindowSeconds int64          `json:"window_seconds"`
}

type failedDispatchesResponse struct {
	Since   time.Time               `json:"since"`
	Count   int                     `json:"count"`
	Entries []domain.DispatchRecord `json:"entries"`
}

type usageResponse struct {
	UserID    string                  `json:"user_id"`
	Channel   domain.Channel          `json:"channel"`
	Max       int                     `json:"max"`
	Remaining int                     `json:"remaining"`
	Window    *domain.RateLimitWindow `json:"window,omitempty"`
}

type statusResponse struct {
	Channels  []domain.Channel    `json:"channels"`
	RateLimit rateLimitInfo       `json:"rate_limit"`
	Queue     *worker.QueueStats  `json:"queue,omitempty"`
	Sweep     *worker.SweepStatus `json:"sweep,omitempty"`
	Time      string              `json:"time"`
}

// UpsertConsent handles POST /api/notifications/consent. The origin IP and
// User-Agent are taken from the request.
func (h *Handlers) UpsertConsent(w http.ResponseWriter, r *http.Request) {
	var req consentRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Granted == nil {
		httputil.ErrorCode(w, http.StatusBadRequest, "validation_failed", "granted is required")
		return
	}

	rec, err := h.consent.Upsert(r.Context(), req.UserID, req.Channel, *req.Granted, domain.AuditMeta{
		OriginIP:  httputil.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, consentResponse{
		UserID:    rec.UserID,
		Channel:   rec.Channel,
		Consented: rec.Granted,
		Record:    rec,
	})
}

// GetConsent handles GET /api/notifications/consent/{userID}/{channel}. A
// user with no record is reported as not consented.
func (h *Handlers) GetConsent(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	ch, ok := domain.ParseChannel(chi.URLParam(r, "channel"))
	if !ok {
		writeError(w, consent.ErrUnknownChannel)
		return
	}

	rec, err := h.consent.Get(r.Context(), userID, ch)
	switch {
	case errors.Is(err, consent.ErrNotFound):
		httputil.OK(w, consentResponse{UserID: userID, Channel: ch})
	case err != nil:
		writeError(w, err)
	default:
		httputil.OK(w, consentResponse{
			UserID:    userID,
			Channel:   ch,
			Consented: rec.Granted,
			Record:    rec,
		})
	}
}

// GetStatus handles GET /api/notifications/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Channels: domain.Channels,
		RateLimit: rateLimitInfo{
			Channel:       h.channel,
			Max:           h.policy.Max,
			WindowSeconds: int64(h.policy.Window.Seconds()),
		},
		Time: h.now().UTC().Format(time.RFC3339),
	}
	if h.queue != nil {
		st := h.queue.Stats()
		resp.Queue = &st
	}
	if h.sweep != nil {
		st := h.sweep.Status()
		resp.Sweep = &st
	}
	httputil.OK(w, resp)
}

// GetFailedDispatches handles GET /api/notifications/failed. The lookback is
// ?hours= (default 24, max 720) or an RFC3339 ?since=.
func (h *Handlers) GetFailedDispatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since := h.now().Add(-24 * time.Hour)
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.ErrorCode(w, http.StatusBadRequest, "validation_failed", "since must be RFC3339")
			return
		}
		since = t
	} else if raw := q.Get("hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours < 1 || hours > 720 {
			httputil.ErrorCode(w, http.StatusBadRequest, "validation_failed", "hours must be between 1 and 720")
			return
		}
		since = h.now().Add(-time.Duration(hours) * time.Hour)
	}

	p := ParsePagination(r, 100, 500)
	entries, err := h.ledger.ListFailedSince(r.Context(), since, p.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.DispatchRecord{}
	}
	httputil.OK(w, failedDispatchesResponse{Since: since.UTC(), Count: len(entries), Entries: entries})
}

// GetRateLimitUsage handles GET /api/notifications/rate-limit/{userID}/{channel}.
func (h *Handlers) GetRateLimitUsage(w http.ResponseWriter, r *http.Request) {
	if h.limiter == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "rate limiter is not configured")
		return
	}
	userID := chi.URLParam(r, "userID")
	ch, ok := domain.ParseChannel(chi.URLParam(r, "channel"))
	if !ok {
		writeError(w, consent.ErrUnknownChannel)
		return
	}

	win, err := h.limiter.Usage(r.Context(), userID, ch)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := usageResponse{UserID: userID, Channel: ch, Max: h.policy.Max, Remaining: h.policy.Max, Window: win}
	if win != nil && !win.Expired(h.now(), h.policy.Window) {
		resp.Remaining = h.policy.Max - win.Count
		if resp.Remaining < 0 {
			resp.Remaining = 0
		}
	}
	httputil.OK(w, resp)
}
