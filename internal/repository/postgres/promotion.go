package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/promo-notifier/internal/domain"
	"github.com/ignite/promo-notifier/internal/service/promotion"
)

// PromotionRepo implements promotion.Repository against PostgreSQL.
type PromotionRepo struct{ db *sql.DB }

// NewPromotionRepo creates a Postgres-backed promotion repository.
func NewPromotionRepo(db *sql.DB) *PromotionRepo { return &PromotionRepo{db: db} }

const promotionColumns = `id, name, COALESCE(description,''), discount, start_date, end_date,
	status, category_id, created_by, created_at, updated_at, deleted_at, deleted_by`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPromotion(s rowScanner) (*domain.Promotion, error) {
	var (
		p                        domain.Promotion
		category, owner, deleter sql.NullString
		deletedAt                sql.NullTime
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &p.Discount, &p.StartDate, &p.EndDate,
		&p.Status, &category, &owner, &p.CreatedAt, &p.UpdatedAt, &deletedAt, &deleter); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		p.DeletedAt = &t
	}
	p.DeletedBy = stringPtr(deleter)
	p.StartDate = domain.DateOf(p.StartDate)
	p.EndDate = domain.DateOf(p.EndDate)
	p.CategoryID = stringPtr(category)
	p.CreatedBy = stringPtr(owner)
	return &p, nil
}

func (r *PromotionRepo) Get(ctx context.Context, id string) (*domain.Promotion, error) {
	p, err := scanPromotion(r.db.QueryRowContext(ctx,
		`SELECT `+promotionColumns+` FROM promotions WHERE id = $1 AND deleted_at IS NULL`, id))
	if err == sql.ErrNoRows {
		return nil, promotion.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get promotion: %w", err)
	}
	return p, nil
}

func (r *PromotionRepo) List(ctx context.Context, f promotion.ListFilter) ([]domain.Promotion, error) {
	q := `SELECT ` + promotionColumns + ` FROM promotions`
	var (
		where = []string{"deleted_at IS NULL"}
		args  []interface{}
	)
	if f.Status != "" {
		args = append(args, strings.ToUpper(f.Status))
		where = append(where, fmt.Sprintf("UPPER(status) = $%d", len(args)))
	}
	if f.CategoryID != "" {
		args = append(args, f.CategoryID)
		where = append(where, fmt.Sprintf("category_id = $%d", len(args)))
	}
	q += " WHERE " + strings.Join(where, " AND ")
	q += " ORDER BY start_date, id"
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	return r.query(ctx, q, args...)
}

func (r *PromotionRepo) query(ctx context.Context, q string, args ...interface{}) ([]domain.Promotion, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	defer rows.Close()

	var out []domain.Promotion
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promotion: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PromotionRepo) Create(ctx context.Context, p *domain.Promotion) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO promotions (id, name, description, discount, start_date, end_date,
		                        status, category_id, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.Name, p.Description, p.Discount, p.StartDate, p.EndDate,
		string(p.Status), nullString(p.CategoryID), nullString(p.CreatedBy), p.CreatedAt, p.UpdatedAt)
	if isForeignKeyViolation(err) {
		return promotion.ErrReferenceNotFound
	}
	if err != nil {
		return fmt.Errorf("insert promotion: %w", err)
	}
	return nil
}

func (r *PromotionRepo) Update(ctx context.Context, p *domain.Promotion) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE promotions
		SET name = $2, description = $3, discount = $4, start_date = $5, end_date = $6,
		    status = $7, category_id = $8, updated_at = $9
		WHERE id = $1 AND deleted_at IS NULL
	`, p.ID, p.Name, p.Description, p.Discount, p.StartDate, p.EndDate,
		string(p.Status), nullString(p.CategoryID), p.UpdatedAt)
	if isForeignKeyViolation(err) {
		return promotion.ErrReferenceNotFound
	}
	if err != nil {
		return fmt.Errorf("update promotion: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return promotion.ErrNotFound
	}
	return nil
}

func (r *PromotionRepo) UpdateStatus(ctx context.Context, id string, status domain.PromotionStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE promotions SET status = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id, string(status))
	if err != nil {
		return fmt.Errorf("update promotion status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return promotion.ErrNotFound
	}
	return nil
}

func (r *PromotionRepo) SoftDelete(ctx context.Context, id string, deletedBy *string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE promotions SET deleted_at = $2, deleted_by = $3, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, at, nullString(deletedBy))
	if isForeignKeyViolation(err) {
		return promotion.ErrReferenceNotFound
	}
	if err != nil {
		return fmt.Errorf("soft delete promotion: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return promotion.ErrNotFound
	}
	return nil
}

func (r *PromotionRepo) GetDeleted(ctx context.Context, id string) (*domain.Promotion, error) {
	p, err := scanPromotion(r.db.QueryRowContext(ctx,
		`SELECT `+promotionColumns+` FROM promotions WHERE id = $1 AND deleted_at IS NOT NULL`, id))
	if err == sql.ErrNoRows {
		return nil, promotion.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get deleted promotion: %w", err)
	}
	return p, nil
}

func (r *PromotionRepo) ListDeleted(ctx context.Context, f promotion.DeletedFilter) ([]domain.Promotion, error) {
	var (
		where = []string{"deleted_at IS NOT NULL"}
		args  []interface{}
	)
	if f.DeletedBy != "" {
		args = append(args, f.DeletedBy)
		where = append(where, fmt.Sprintf("deleted_by = $%d", len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		where = append(where, fmt.Sprintf("deleted_at >= $%d", len(args)))
	}
	q := `SELECT ` + promotionColumns + ` FROM promotions WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY deleted_at DESC, id`
	return r.query(ctx, q, args...)
}

func (r *PromotionRepo) Restore(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE promotions SET deleted_at = NULL, deleted_by = NULL, updated_at = $2
		WHERE id = $1 AND deleted_at IS NOT NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("restore promotion: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return promotion.ErrNotFound
	}
	return nil
}

func (r *PromotionRepo) Purge(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM promotions WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("purge promotion: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return promotion.ErrNotFound
	}
	return nil
}
