package property

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
	"github.com/misiones-arrienda/arrienda/internal/auth"
	"github.com/misiones-arrienda/arrienda/internal/email"
	"github.com/misiones-arrienda/arrienda/internal/inquiry"
	"github.com/misiones-arrienda/arrienda/internal/metrics"
	"github.com/misiones-arrienda/arrienda/internal/notification"
	"github.com/misiones-arrienda/arrienda/internal/storage"
)

// MaxImages is how many images a listing may have.
const MaxImages = 10

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Mailer sends plain-text email.
type Mailer interface {
	Enabled() bool
	Send(to, subject, body string) error
}

// UserLookup resolves listing owners.
type UserLookup interface {
	GetByID(id int64) (*auth.User, error)
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Repo       *Repository
	Inquiries  *inquiry.Repository
	Users      UserLookup
	Bucket     storage.Bucket
	Notifier   notification.Notifier
	Mailer     Mailer
	ListingTTL time.Duration
	BaseURL    string
}

// Service holds the listing business rules.
type Service struct {
	repo       *Repository
	inquiries  *inquiry.Repository
	users      UserLookup
	bucket     storage.Bucket
	notifier   notification.Notifier
	mailer     Mailer
	listingTTL time.Duration
	baseURL    string
	now        func() time.Time
}

// NewService creates a listing service.
func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.ListingTTL
	if ttl <= 0 {
		ttl = 90 * 24 * time.Hour
	}
	return &Service{
		repo:       cfg.Repo,
		inquiries:  cfg.Inquiries,
		users:      cfg.Users,
		bucket:     cfg.Bucket,
		notifier:   cfg.Notifier,
		mailer:     cfg.Mailer,
		listingTTL: ttl,
		baseURL:    cfg.BaseURL,
		now:        time.Now,
	}
}

// Repo exposes the repository for read-only callers.
func (s *Service) Repo() *Repository { return s.repo }

// Get returns a listing.
func (s *Service) Get(id int64) (*Property, error) {
	return s.repo.GetByID(id)
}

// List searches listings.
func (s *Service) List(opts ListOptions) (*Page, error) {
	return s.repo.List(opts)
}

// owned loads a listing and checks that caller may change it.
func (s *Service) owned(caller *auth.User, id int64) (*Property, error) {
	p, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != caller.ID && !caller.IsAdmin() {
		return nil, fmt.Errorf("property %d: %w", id, apperr.ErrForbidden)
	}
	return p, nil
}

// Create stores a new listing owned by caller. It expires after the
// configured listing TTL unless renewed.
func (s *Service) Create(caller *auth.User, in Input) (*Property, error) {
	p := &Property{OwnerID: caller.ID, Status: StatusAvailable}
	in.Apply(p)

	expires := s.now().UTC().Add(s.listingTTL)
	p.ExpiresAt = &expires
	if p.ContactPhone == "" {
		p.ContactPhone = caller.Phone
	}

	saved, err := s.repo.Insert(p)
	if err != nil {
		return nil, fmt.Errorf("saving property: %w", err)
	}
	metrics.ListingCreated()

	return saved, nil
}

// Update applies a partial update. Only the owner or an admin may update.
func (s *Service) Update(caller *auth.User, id int64, in Input) (*Property, error) {
	p, err := s.owned(caller, id)
	if err != nil {
		return nil, err
	}

	in.Apply(p)
	if err := s.repo.Update(p); err != nil {
		return nil, err
	}

	return s.repo.GetByID(id)
}

// ChangeStatus sets the listing status. An expired listing keeps its status
// until it is renewed.
func (s *Service) ChangeStatus(caller *auth.User, id int64, status string) (*Property, error) {
	if !ValidStatus(status) {
		return nil, apperr.Invalid("status must be one of available, reserved, rented, sold")
	}
	p, err := s.owned(caller, id)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusExpired {
		return nil, apperr.Invalid("listing %d has expired: renew it with POST /api/properties/%d/renew", id, id)
	}
	if err := s.repo.UpdateStatus(id, Status(status)); err != nil {
		return nil, err
	}
	return s.repo.GetByID(id)
}

// Renew extends the listing expiry by the listing TTL from now and makes an
// expired listing available again.
func (s *Service) Renew(caller *auth.User, id int64) (*Property, error) {
	if _, err := s.owned(caller, id); err != nil {
		return nil, err
	}
	if err := s.repo.Renew(id, s.now().Add(s.listingTTL)); err != nil {
		return nil, err
	}
	return s.repo.GetByID(id)
}

// Delete removes a listing and its stored images.
func (s *Service) Delete(ctx context.Context, caller *auth.User, id int64) error {
	p, err := s.owned(caller, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(id); err != nil {
		return err
	}

	for _, img := range p.Images {
		if err := s.bucket.Delete(ctx, img.ObjectKey); err != nil {
			slog.Warn("deleting listing image", "property_id", id, "key", img.ObjectKey, "error", err)
		}
	}

	return nil
}

// AddImage stores an uploaded image and attaches it to the listing.
func (s *Service) AddImage(ctx context.Context, caller *auth.User, id int64, filename, contentType string, r io.Reader) (*Image, error) {
	if !allowedImageTypes[contentType] {
		return nil, apperr.Invalid("image type %q not allowed: use jpeg, png or webp", contentType)
	}
	if _, err := s.owned(caller, id); err != nil {
		return nil, err
	}

	n, err := s.repo.CountImages(id)
	if err != nil {
		return nil, err
	}
	if n >= MaxImages {
		return nil, apperr.Invalid("a listing can have at most %d images", MaxImages)
	}

	key := storage.ObjectKey(fmt.Sprintf("properties/%d", id), filename)
	url, err := s.bucket.Put(ctx, key, contentType, r)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, apperr.Invalid("image exceeds %d MB", storage.MaxObjectSize>>20)
		}
		return nil, fmt.Errorf("storing image: %w", err)
	}

	img, err := s.repo.AddImage(id, key, url)
	if err != nil {
		if delErr := s.bucket.Delete(ctx, key); delErr != nil {
			slog.Warn("removing orphaned image", "key", key, "error", delErr)
		}
		return nil, err
	}

	return img, nil
}

// RemoveImage detaches an image and deletes the stored object.
func (s *Service) RemoveImage(ctx context.Context, caller *auth.User, id, imageID int64) error {
	if _, err := s.owned(caller, id); err != nil {
		return err
	}

	img, err := s.repo.GetImage(id, imageID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteImage(id, imageID); err != nil {
		return err
	}
	if err := s.bucket.Delete(ctx, img.ObjectKey); err != nil {
		slog.Warn("deleting image object", "key", img.ObjectKey, "error", err)
	}

	return nil
}

// AddFavorite saves a listing for caller.
func (s *Service) AddFavorite(caller *auth.User, id int64) error {
	if _, err := s.repo.GetByID(id); err != nil {
		return err
	}
	return s.repo.AddFavorite(caller.ID, id)
}

// RemoveFavorite un-saves a listing for caller.
func (s *Service) RemoveFavorite(caller *auth.User, id int64) error {
	return s.repo.RemoveFavorite(caller.ID, id)
}

// Favorites returns caller's saved listings.
func (s *Service) Favorites(caller *auth.User) ([]*Property, error) {
	return s.repo.ListFavorites(caller.ID)
}

// Inquire sends a question about a listing to its owner: the inquiry is
// stored, the owner is notified, and emailed when mail is configured.
func (s *Service) Inquire(ctx context.Context, caller *auth.User, id int64, text string) (*inquiry.Inquiry, error) {
	p, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if p.OwnerID == caller.ID {
		return nil, apperr.Invalid("cannot send an inquiry about your own listing")
	}

	q, err := s.inquiries.Add(id, caller.ID, text)
	if err != nil {
		return nil, err
	}

	link := fmt.Sprintf("/properties/%d", id)
	if err := s.notifier.Notify(ctx, p.OwnerID, notification.TypeInquiry,
		"Nueva consulta: "+p.Title, q.Text, link); err != nil {
		slog.Error("notifying owner of inquiry", "property_id", id, "error", err)
	}

	if s.mailer != nil && s.mailer.Enabled() {
		s.emailOwner(p, caller, q)
	}

	return q, nil
}

func (s *Service) emailOwner(p *Property, sender *auth.User, q *inquiry.Inquiry) {
	owner, err := s.users.GetByID(p.OwnerID)
	if err != nil {
		slog.Error("loading listing owner", "property_id", p.ID, "error", err)
		return
	}

	subject, body := email.FormatInquiry(email.Inquiry{
		ListingTitle: p.Title,
		ListingURL:   fmt.Sprintf("%s/properties/%d", s.baseURL, p.ID),
		SenderName:   sender.Name,
		SenderEmail:  sender.Email,
		SenderPhone:  sender.Phone,
		Text:         q.Text,
	})
	if err := s.mailer.Send(owner.Email, subject, body); err != nil {
		slog.Error("emailing inquiry", "property_id", p.ID, "error", err)
	}
}

// Inquiries lists the inquiries on a listing. Only the owner or an admin
// may read them.
func (s *Service) Inquiries(caller *auth.User, id int64) ([]*inquiry.Inquiry, error) {
	if _, err := s.owned(caller, id); err != nil {
		return nil, err
	}
	return s.inquiries.ListByPropertyID(id)
}

// ExpireDue expires listings past their expiry date and notifies owners.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.repo.ExpireDue(now)
	if err != nil {
		return 0, err
	}

	for _, e := range expired {
		if err := s.notifier.Notify(ctx, e.OwnerID, notification.TypeListingExpired,
			"Tu publicación venció", fmt.Sprintf("\"%s\" ya no aparece en las búsquedas. Renovala para volver a publicarla.", e.Title),
			fmt.Sprintf("/properties/%d", e.ID)); err != nil {
			slog.Error("notifying listing expiry", "property_id", e.ID, "error", err)
		}
	}
	metrics.ListingsExpired(len(expired))

	return len(expired), nil
}
