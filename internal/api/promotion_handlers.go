package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/promo-notifier/internal/domain"
	"github.com/ignite/promo-notifier/internal/pkg/httputil"
	"github.com/ignite/promo-notifier/internal/pkg/logger"
	"github.com/ignite/promo-notifier/internal/service/promotion"
)

const dateLayout = "2006-01-02"

type promotionRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Discount    *float64 `json:"discount"`
	StartDate   *string  `json:"start_date"`
	EndDate     *string  `json:"end_date"`
	Status      *string  `json:"status"`
	CategoryID  *string  `json:"category_id"`
	CreatedBy   *string  `json:"created_by"`
}

type promotionListResponse struct {
	Data       []domain.Promotion `json:"data"`
	Pagination PaginationMeta     `json:"pagination"`
}

type promotionNotificationsResponse struct {
	PromotionID      string                  `json:"promotion_id"`
	UniqueRecipients int                     `json:"unique_recipients"`
	Entries          []domain.DispatchRecord `json:"entries"`
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%s must be a date in YYYY-MM-DD form", field)
}

func parseOptionalDate(field string, s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseDate(field, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListPromotions handles GET /api/promotions
func (h *Handlers) ListPromotions(w http.ResponseWriter, r *http.Request) {
	page := ParsePagination(r, 50, 200)
	rows, err := h.promotions.List(r.Context(), promotion.ListFilter{
		Status:     r.URL.Query().Get("status"),
		CategoryID: r.URL.Query().Get("category_id"),
		Limit:      page.fetchLimit(),
		Offset:     page.Offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if rows == nil {
		rows = []domain.Promotion{}
	}
	data, meta := trim(rows, page)
	httputil.OK(w, promotionListResponse{Data: data, Pagination: meta})
}

// GetPromotion handles GET /api/promotions/{id}
func (h *Handlers) GetPromotion(w http.ResponseWriter, r *http.Request) {
	p, err := h.promotions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, p)
}

// CreatePromotion handles POST /api/promotions
func (h *Handlers) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	var req promotionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Name == nil || req.StartDate == nil || req.EndDate == nil {
		httputil.ErrorCode(w, http.StatusBadRequest, "validation_failed", "name, start_date and end_date are required")
		return
	}
	start, err := parseDate("start_date", *req.StartDate)
	if err != nil {
		httputil.ErrorCode(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	end, err := parseDate("end_date", *req.EndDate)
	if err != nil {
		httputil.ErrorCode(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	in := promotion.CreateInput{
		Name:       *req.Name,
		StartDate:  start,
		EndDate:    end,
		Status:     req.Status,
		CategoryID: req.CategoryID,
		CreatedBy:  req.CreatedBy,
	}
	if req.Description != nil {
		in.Description = *req.Description
	}
	if req.Discount != nil {
		in.Discount = *req.Discount
	}

	p, err := h.promotions.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, p)
}

// UpdatePromotion handles PUT /api/promotions/{id}. Omitted fields keep their
// stored values.
func (h *Handlers) UpdatePromotion(w http.ResponseWriter, r *http.Request) {
	var req promotionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.CreatedBy != nil {
		httputil.ErrorCode(w, http.StatusBadRequest, "validation_failed", "created_by cannot be changed")
		return
	}
	start, err := parseOptionalDate("start_date", req.StartDate)
	if err != nil {
		httputil.ErrorCode(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	end, err := parseOptionalDate("end_date", req.EndDate)
	if err != nil {
		httputil.ErrorCode(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	p, err := h.promotions.Update(r.Context(), chi.URLParam(r, "id"), promotion.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		Discount:    req.Discount,
		StartDate:   start,
		EndDate:     end,
		Status:      req.Status,
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, p)
}

// TriggerSweep handles POST /api/promotions/sweep. The sweep runs to
// completion even if the client goes away.
func (h *Handlers) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweep == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "sweep is not configured")
		return
	}
	n, err := h.sweep.RunOnce(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	logger.Info("manual sweep complete", "updated", n, "remote", httputil.ClientIP(r))
	httputil.OK(w, map[string]int{"updated": n})
}

// GetPromotionNotifications handles GET /api/promotions/{id}/notifications
func (h *Handlers) GetPromotionNotifications(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.promotions.Get(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	page := ParsePagination(r, 100, 1000)
	entries, err := h.ledger.ListByPromotion(r.Context(), id, page.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	unique, err := h.ledger.CountUniqueRecipients(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.DispatchRecord{}
	}
	httputil.OK(w, promotionNotificationsResponse{
		PromotionID:      id,
		UniqueRecipients: unique,
		Entries:          entries,
	})
}

// DeletePromotion handles DELETE /api/promotions/{id}?deleted_by=
func (h *Handlers) DeletePromotion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var by *string
	if v := strings.TrimSpace(r.URL.Query().Get("deleted_by")); v != "" {
		by = &v
	}
	if err := h.promotions.Delete(r.Context(), id, by); err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"id": id, "status": "deleted"})
}

// ListDeletedPromotions handles GET /api/promotions/deleted?deleted_by=
func (h *Handlers) ListDeletedPromotions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.promotions.ListDeleted(r.Context(), r.URL.Query().Get("deleted_by"))
	if err != nil {
		writeError(w, err)
		return
	}
	if rows == nil {
		rows = []domain.Promotion{}
	}
	httputil.OK(w, map[string]interface{}{"data": rows})
}

// RestorePromotion handles POST /api/promotions/{id}/restore
func (h *Handlers) RestorePromotion(w http.ResponseWriter, r *http.Request) {
	p, err := h.promotions.Restore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, p)
}

// PurgePromotion handles DELETE /api/promotions/{id}/permanent
func (h *Handlers) PurgePromotion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.promotions.PurgeDeleted(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"id": id, "status": "purged"})
}
