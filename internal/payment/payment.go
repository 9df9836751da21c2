// Package payment sells featured-listing plans through MercadoPago.
package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
	"github.com/misiones-arrienda/arrienda/internal/db"
)

var (
	ErrNotFound    = fmt.Errorf("payment %w", apperr.ErrNotFound)
	ErrUnknownPlan = fmt.Errorf("%w: unknown plan", apperr.ErrInvalid)
)

// Plan is a featured-listing promotion.
type Plan struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Days     int    `json:"days"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

var plans = []Plan{
	{ID: "featured_7", Name: "Destacado 7 días", Days: 7, Amount: 5000, Currency: "ARS"},
	{ID: "featured_30", Name: "Destacado 30 días", Days: 30, Amount: 15000, Currency: "ARS"},
}

// Plans returns the plans on sale.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

// PlanByID looks up a plan.
func PlanByID(id string) (Plan, error) {
	for _, p := range plans {
		if p.ID == id {
			return p, nil
		}
	}
	return Plan{}, fmt.Errorf("%w %q", ErrUnknownPlan, id)
}

// Status is the local payment status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInProcess Status = "in_process"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// mapStatus converts a MercadoPago payment status.
func mapStatus(provider string) (Status, bool) {
	switch provider {
	case "approved":
		return StatusApproved, true
	case "pending", "authorized":
		return StatusPending, true
	case "in_process", "in_mediation":
		return StatusInProcess, true
	case "rejected":
		return StatusRejected, true
	case "cancelled":
		return StatusCancelled, true
	case "refunded", "charged_back":
		return StatusRefunded, true
	}
	return "", false
}

// Payment is a plan purchase for one listing.
type Payment struct {
	ID                string    `db:"id" json:"id"`
	UserID            int64     `db:"user_id" json:"user_id"`
	PropertyID        int64     `db:"property_id" json:"property_id"`
	Plan              string    `db:"plan" json:"plan"`
	Amount            int64     `db:"amount" json:"amount"`
	Currency          string    `db:"currency" json:"currency"`
	Status            Status    `db:"status" json:"status"`
	PreferenceID      string    `db:"preference_id" json:"preference_id,omitempty"`
	ProviderPaymentID string    `db:"provider_payment_id" json:"provider_payment_id,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Repository stores payments.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a payment repository over an open database.
func NewRepository(conn *sql.DB) *Repository {
	return &Repository{db: sqlx.NewDb(conn, db.DriverName)}
}

const selectPayment = `SELECT id, user_id, property_id, plan, amount, currency, status, preference_id,
	provider_payment_id, created_at, updated_at FROM payments`

// Create stores a new pending payment and returns it.
func (r *Repository) Create(ctx context.Context, p *Payment) (*Payment, error) {
	now := time.Now().UTC()
	p.ID = uuid.NewString()
	if p.Status == "" {
		p.Status = StatusPending
	}
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := r.db.NamedExecContext(ctx, `INSERT INTO payments
		(id, user_id, property_id, plan, amount, currency, status, preference_id, provider_payment_id, created_at, updated_at)
		VALUES (:id, :user_id, :property_id, :plan, :amount, :currency, :status, :preference_id, :provider_payment_id, :created_at, :updated_at)`,
		p,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting payment: %w", err)
	}
	return p, nil
}

func (r *Repository) get(ctx context.Context, where string, arg any) (*Payment, error) {
	var p Payment
	err := r.db.GetContext(ctx, &p, selectPayment+" WHERE "+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying payment: %w", err)
	}
	return &p, nil
}

// Get returns a payment by id.
func (r *Repository) Get(ctx context.Context, id string) (*Payment, error) {
	return r.get(ctx, "id = ?", id)
}

// GetByPreference returns the payment of a checkout preference.
func (r *Repository) GetByPreference(ctx context.Context, preferenceID string) (*Payment, error) {
	return r.get(ctx, "preference_id = ?", preferenceID)
}

// SetPreference records the checkout preference of a payment.
func (r *Repository) SetPreference(ctx context.Context, id, preferenceID string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE payments SET preference_id = ?, updated_at = ? WHERE id = ?",
		preferenceID, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting preference: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus moves a payment to status and reports whether it changed.
// Setting the current status again is a no-op.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status, providerPaymentID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = ?, provider_payment_id = COALESCE(NULLIF(?, ''), provider_payment_id), updated_at = ?
		 WHERE id = ? AND status <> ?`,
		status, providerPaymentID, time.Now().UTC(), id, status,
	)
	if err != nil {
		return false, fmt.Errorf("updating payment status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// ListForUser returns the user's payments, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID int64) ([]Payment, error) {
	list := []Payment{}
	if err := r.db.SelectContext(ctx, &list,
		selectPayment+" WHERE user_id = ? ORDER BY created_at DESC, id", userID,
	); err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	return list, nil
}
