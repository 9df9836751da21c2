package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
	"github.com/misiones-arrienda/arrienda/internal/auth"
	"github.com/misiones-arrienda/arrienda/internal/metrics"
	"github.com/misiones-arrienda/arrienda/internal/notification"
	"github.com/misiones-arrienda/arrienda/internal/payment/mercadopago"
	"github.com/misiones-arrienda/arrienda/internal/property"
)

// Gateway is the payment provider.
type Gateway interface {
	CreatePreference(ctx context.Context, req mercadopago.PreferenceRequest) (*mercadopago.Preference, error)
	GetPayment(ctx context.Context, id string) (*mercadopago.Payment, error)
}

// Listings reads and promotes listings.
type Listings interface {
	GetByID(id int64) (*property.Property, error)
	SetFeatured(id int64, until time.Time) error
}

// Service runs checkouts and processes provider notifications.
type Service struct {
	repo     *Repository
	gateway  Gateway
	listings Listings
	notifier notification.Notifier
	baseURL  string
	now      func() time.Time
}

// NewService creates a payment service. gateway may be nil when payments
// are not configured; checkouts then fail with apperr.ErrUnavailable.
func NewService(repo *Repository, gateway Gateway, listings Listings, notifier notification.Notifier, baseURL string) *Service {
	return &Service{
		repo:     repo,
		gateway:  gateway,
		listings: listings,
		notifier: notifier,
		baseURL:  baseURL,
		now:      time.Now,
	}
}

// Enabled reports whether a gateway is configured.
func (s *Service) Enabled() bool { return s.gateway != nil }

// CheckoutResult is what the payer needs to complete a checkout.
type CheckoutResult struct {
	Payment   *Payment `json:"payment"`
	InitPoint string   `json:"init_point"`
}

// Checkout starts the purchase of plan for a listing the caller owns.
func (s *Service) Checkout(ctx context.Context, caller *auth.User, propertyID int64, planID string) (*CheckoutResult, error) {
	plan, err := PlanByID(planID)
	if err != nil {
		return nil, err
	}
	if s.gateway == nil {
		return nil, fmt.Errorf("payments: %w", apperr.ErrUnavailable)
	}

	listing, err := s.listings.GetByID(propertyID)
	if err != nil {
		return nil, err
	}
	if listing.OwnerID != caller.ID {
		return nil, fmt.Errorf("%w: only the owner can promote a listing", apperr.ErrForbidden)
	}

	p, err := s.repo.Create(ctx, &Payment{
		UserID:     caller.ID,
		PropertyID: propertyID,
		Plan:       plan.ID,
		Amount:     plan.Amount,
		Currency:   plan.Currency,
	})
	if err != nil {
		return nil, err
	}

	back := fmt.Sprintf("%s/properties/%d?payment=", s.baseURL, propertyID)
	pref, err := s.gateway.CreatePreference(ctx, mercadopago.PreferenceRequest{
		Items: []mercadopago.Item{{
			ID:         plan.ID,
			Title:      plan.Name + ": " + listing.Title,
			Quantity:   1,
			UnitPrice:  float64(plan.Amount),
			CurrencyID: plan.Currency,
		}},
		ExternalReference: p.ID,
		NotificationURL:   s.baseURL + "/api/payments/webhook",
		BackURLs: mercadopago.BackURLs{
			Success: back + "success",
			Pending: back + "pending",
			Failure: back + "failure",
		},
		AutoReturn: "approved",
	})
	if err != nil {
		if _, updErr := s.repo.UpdateStatus(ctx, p.ID, StatusCancelled, ""); updErr != nil {
			slog.Error("cancelling failed checkout", "payment_id", p.ID, "error", updErr)
		}
		return nil, fmt.Errorf("creating checkout: %w", err)
	}

	if err := s.repo.SetPreference(ctx, p.ID, pref.ID); err != nil {
		return nil, err
	}
	p.PreferenceID = pref.ID
	metrics.PaymentStatus(string(StatusPending))

	return &CheckoutResult{Payment: p, InitPoint: pref.InitPoint}, nil
}

// List returns the caller's payments.
func (s *Service) List(ctx context.Context, caller *auth.User) ([]Payment, error) {
	return s.repo.ListForUser(ctx, caller.ID)
}

// HandleNotification processes a webhook notification. Only payment topics
// are handled. The listing is featured on the first transition to approved;
// replays of the same notification change nothing.
func (s *Service) HandleNotification(ctx context.Context, topic, providerID string) error {
	if topic != "payment" {
		slog.Debug("ignoring payment notification", "topic", topic)
		return nil
	}
	if s.gateway == nil {
		return fmt.Errorf("payments: %w", apperr.ErrUnavailable)
	}

	remote, err := s.gateway.GetPayment(ctx, providerID)
	if err != nil {
		return err
	}

	local, err := s.repo.Get(ctx, remote.ExternalReference)
	if errors.Is(err, ErrNotFound) {
		slog.Warn("notification for unknown payment", "external_reference", remote.ExternalReference, "provider_id", providerID)
		return nil
	}
	if err != nil {
		return err
	}

	status, ok := mapStatus(remote.Status)
	if !ok {
		slog.Warn("unknown payment status", "status", remote.Status, "payment_id", local.ID)
		return nil
	}

	remoteID := strconv.FormatInt(remote.ID, 10)
	changed, err := s.repo.UpdateStatus(ctx, local.ID, status, remoteID)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	metrics.PaymentStatus(string(status))
	slog.Info("payment status changed", "payment_id", local.ID, "from", local.Status, "to", status)

	if status != StatusApproved {
		return nil
	}

	if err := s.feature(local); err != nil {
		// Put the old status back so the provider's retry features the listing.
		if _, revertErr := s.repo.UpdateStatus(ctx, local.ID, local.Status, ""); revertErr != nil {
			slog.Error("reverting payment status", "payment_id", local.ID, "error", revertErr)
		}
		return err
	}

	if err := s.notifier.Notify(ctx, local.UserID, notification.TypePayment, "Pago aprobado",
		"Tu publicación ya aparece como destacada.", fmt.Sprintf("/properties/%d", local.PropertyID)); err != nil {
		slog.Error("notifying payment", "payment_id", local.ID, "error", err)
	}
	return nil
}

// feature promotes the paid listing, extending a promotion still running.
func (s *Service) feature(p *Payment) error {
	plan, err := PlanByID(p.Plan)
	if err != nil {
		return err
	}
	listing, err := s.listings.GetByID(p.PropertyID)
	if err != nil {
		return err
	}

	start := s.now().UTC()
	if listing.Featured && listing.FeaturedUntil != nil && listing.FeaturedUntil.After(start) {
		start = *listing.FeaturedUntil
	}
	return s.listings.SetFeatured(p.PropertyID, start.AddDate(0, 0, plan.Days))
}
