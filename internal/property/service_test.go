package property

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
	"github.com/misiones-arrienda/arrienda/internal/auth"
	"github.com/misiones-arrienda/arrienda/internal/inquiry"
	"github.com/misiones-arrienda/arrienda/internal/notification"
	"github.com/misiones-arrienda/arrienda/internal/storage"
)

type memBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func (b *memBucket) Put(_ context.Context, key, _ string, r io.Reader) (string, error) {
	if b.failPut {
		return "", errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return "/uploads/" + key, nil
}

func (b *memBucket) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *memBucket) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

type sentNotification struct {
	userID int64
	kind   notification.Type
	title  string
}

type recordingNotifier struct {
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, userID int64, kind notification.Type, title, _, _ string) error {
	n.sent = append(n.sent, sentNotification{userID, kind, title})
	return nil
}

type sentMail struct {
	to, subject, body string
}

type recordingMailer struct {
	enabled bool
	sent    []sentMail
}

func (m *recordingMailer) Enabled() bool { return m.enabled }

func (m *recordingMailer) Send(to, subject, body string) error {
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

type serviceFixture struct {
	svc      *Service
	users    *auth.UserStore
	bucket   *memBucket
	notifier *recordingNotifier
	mailer   *recordingMailer
	owner    *auth.User
	guest    *auth.User
	admin    *auth.User
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	repo, d := testRepo(t)
	users := auth.NewUserStore(d, "admin@example.com")

	mustUser := func(email, name string) *auth.User {
		u, err := users.Register(email, "correct-horse", name, "3764000000")
		if err != nil {
			t.Fatalf("register %s: %v", email, err)
		}
		return u
	}

	f := &serviceFixture{
		users:    users,
		bucket:   &memBucket{objects: map[string][]byte{}},
		notifier: &recordingNotifier{},
		mailer:   &recordingMailer{enabled: true},
		owner:    mustUser("owner@example.com", "Olga"),
		guest:    mustUser("guest@example.com", "Gustavo"),
		admin:    mustUser("admin@example.com", "Admin"),
	}
	f.svc = NewService(ServiceConfig{
		Repo:       repo,
		Inquiries:  inquiry.NewRepository(d),
		Users:      users,
		Bucket:     f.bucket,
		Notifier:   f.notifier,
		Mailer:     f.mailer,
		ListingTTL: 30 * 24 * time.Hour,
		BaseURL:    "https://arrienda.test",
	})
	return f
}

func (f *serviceFixture) create(t *testing.T, title string) *Property {
	t.Helper()
	in, err := DecodeCreate([]byte(fmt.Sprintf(
		`{"title": %q, "price": 180000, "operation": "rent", "property_type": "apartment", "city": "Posadas"}`, title)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p, err := f.svc.Create(f.owner, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return p
}

func TestServiceCreate(t *testing.T) {
	f := newServiceFixture(t)
	before := time.Now()

	p := f.create(t, "Monoambiente")

	if p.OwnerID != f.owner.ID {
		t.Errorf("owner = %d, want %d", p.OwnerID, f.owner.ID)
	}
	if p.Currency != "ARS" || p.Province != DefaultProvince {
		t.Errorf("defaults = %q/%q, want ARS/%s", p.Currency, p.Province, DefaultProvince)
	}
	if p.ContactPhone != "3764000000" {
		t.Errorf("contact phone = %q, want the owner's phone", p.ContactPhone)
	}
	if p.ExpiresAt == nil {
		t.Fatal("expected expires_at to be set")
	}
	if want := before.Add(30 * 24 * time.Hour); p.ExpiresAt.Before(want.Add(-time.Minute)) {
		t.Errorf("expires_at = %v, want about %v", p.ExpiresAt, want)
	}
}

func TestDecodeCreateRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing title", `{"price": 1, "operation": "rent", "property_type": "house", "city": "Posadas"}`},
		{"blank title", `{"title": "   ", "price": 1, "operation": "rent", "property_type": "house", "city": "Posadas"}`},
		{"negative price", `{"title": "Casa", "price": -5, "operation": "rent", "property_type": "house", "city": "Posadas"}`},
		{"unknown operation", `{"title": "Casa", "price": 1, "operation": "swap", "property_type": "house", "city": "Posadas"}`},
		{"unknown field", `{"title": "Casa", "price": 1, "operation": "rent", "property_type": "house", "city": "Posadas", "owner_id": 7}`},
		{"not json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCreate([]byte(tt.body))
			if !errors.Is(err, apperr.ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestServiceUpdateOwnership(t *testing.T) {
	f := newServiceFixture(t)
	p := f.create(t, "Casa")

	in, err := DecodeUpdate([]byte(`{"price": 210000}`))
	if err != nil {
		t.Fatalf("decode update: %v", err)
	}

	tests := []struct {
		name    string
		caller  *auth.User
		wantErr error
	}{
		{"stranger is forbidden", f.guest, apperr.ErrForbidden},
		{"owner may update", f.owner, nil},
		{"admin may update", f.admin, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Update(tt.caller, p.ID, in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if got.Price != 210000 {
				t.Errorf("price = %d, want 210000", got.Price)
			}
			if got.Title != "Casa" {
				t.Errorf("title = %q, partial update must keep it", got.Title)
			}
		})
	}
}

func TestServiceChangeStatus(t *testing.T) {
	f := newServiceFixture(t)
	p := f.create(t, "Casa")

	if _, err := f.svc.ChangeStatus(f.owner, p.ID, "expired"); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("expired: err = %v, want ErrInvalid", err)
	}
	if _, err := f.svc.ChangeStatus(f.guest, p.ID, "rented"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("stranger: err = %v, want ErrForbidden", err)
	}

	got, err := f.svc.ChangeStatus(f.owner, p.ID, "rented")
	if err != nil {
		t.Fatalf("change status: %v", err)
	}
	if got.Status != StatusRented {
		t.Errorf("status = %q, want rented", got.Status)
	}
}

func TestServiceImages(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	p := f.create(t, "Casa")

	if _, err := f.svc.AddImage(ctx, f.owner, p.ID, "plano.pdf", "application/pdf", strings.NewReader("%PDF")); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("pdf: err = %v, want ErrInvalid", err)
	}
	if _, err := f.svc.AddImage(ctx, f.guest, p.ID, "a.jpg", "image/jpeg", strings.NewReader("x")); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("stranger: err = %v, want ErrForbidden", err)
	}

	img, err := f.svc.AddImage(ctx, f.owner, p.ID, "Frente.JPG", "image/jpeg", bytes.NewReader([]byte("jpeg-bytes")))
	if err != nil {
		t.Fatalf("add image: %v", err)
	}
	if !strings.HasPrefix(img.URL, "/uploads/properties/") || !strings.HasSuffix(img.URL, ".jpg") {
		t.Errorf("url = %q", img.URL)
	}
	if f.bucket.len() != 1 {
		t.Errorf("bucket holds %d objects, want 1", f.bucket.len())
	}

	if err := f.svc.RemoveImage(ctx, f.owner, p.ID, img.ID); err != nil {
		t.Fatalf("remove image: %v", err)
	}
	if f.bucket.len() != 0 {
		t.Errorf("bucket holds %d objects after remove, want 0", f.bucket.len())
	}
}

func TestServiceImageLimit(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	p := f.create(t, "Casa")

	for i := 0; i < MaxImages; i++ {
		if _, err := f.svc.AddImage(ctx, f.owner, p.ID, fmt.Sprintf("%d.png", i), "image/png", strings.NewReader("png")); err != nil {
			t.Fatalf("add image %d: %v", i, err)
		}
	}

	_, err := f.svc.AddImage(ctx, f.owner, p.ID, "extra.png", "image/png", strings.NewReader("png"))
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid past the limit", err)
	}
}

func TestServiceImageStoreFailure(t *testing.T) {
	f := newServiceFixture(t)
	p := f.create(t, "Casa")
	f.bucket.failPut = true

	if _, err := f.svc.AddImage(context.Background(), f.owner, p.ID, "a.webp", "image/webp", strings.NewReader("w")); err == nil {
		t.Fatal("expected error when the bucket fails")
	}

	got, err := f.svc.Get(p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Images) != 0 {
		t.Errorf("got %d images, want none", len(got.Images))
	}
}

func TestServiceDeleteRemovesObjects(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	p := f.create(t, "Casa")

	for i := 0; i < 2; i++ {
		if _, err := f.svc.AddImage(ctx, f.owner, p.ID, "x.jpg", "image/jpeg", strings.NewReader("j")); err != nil {
			t.Fatalf("add image: %v", err)
		}
	}

	if err := f.svc.Delete(ctx, f.guest, p.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("stranger delete: err = %v, want ErrForbidden", err)
	}
	if err := f.svc.Delete(ctx, f.owner, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if f.bucket.len() != 0 {
		t.Errorf("bucket holds %d objects, want 0", f.bucket.len())
	}
	if _, err := f.svc.Get(p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: err = %v, want ErrNotFound", err)
	}
}

func TestServiceInquire(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	p := f.create(t, "Depto en Posadas")

	if _, err := f.svc.Inquire(ctx, f.owner, p.ID, "¿Sigue disponible?"); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("own listing: err = %v, want ErrInvalid", err)
	}
	if _, err := f.svc.Inquire(ctx, f.guest, p.ID, "   "); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("blank text: err = %v, want ErrInvalid", err)
	}

	q, err := f.svc.Inquire(ctx, f.guest, p.ID, "¿Sigue disponible?")
	if err != nil {
		t.Fatalf("inquire: %v", err)
	}
	if q.SenderID != f.guest.ID {
		t.Errorf("sender = %d, want %d", q.SenderID, f.guest.ID)
	}

	if len(f.notifier.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(f.notifier.sent))
	}
	if n := f.notifier.sent[0]; n.userID != f.owner.ID || n.kind != notification.TypeInquiry {
		t.Errorf("notification = %+v", n)
	}

	if len(f.mailer.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(f.mailer.sent))
	}
	mail := f.mailer.sent[0]
	if mail.to != "owner@example.com" {
		t.Errorf("to = %q", mail.to)
	}
	if !strings.Contains(mail.subject, "Depto en Posadas") {
		t.Errorf("subject = %q", mail.subject)
	}
	if !strings.Contains(mail.body, fmt.Sprintf("https://arrienda.test/properties/%d", p.ID)) {
		t.Errorf("body does not link the listing:\n%s", mail.body)
	}

	if _, err := f.svc.Inquiries(f.guest, p.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("stranger read: err = %v, want ErrForbidden", err)
	}
	list, err := f.svc.Inquiries(f.owner, p.ID)
	if err != nil {
		t.Fatalf("inquiries: %v", err)
	}
	if len(list) != 1 || list[0].SenderEmail != "guest@example.com" {
		t.Errorf("inquiries = %+v", list)
	}
}

func TestServiceInquireMailDisabled(t *testing.T) {
	f := newServiceFixture(t)
	f.mailer.enabled = false
	p := f.create(t, "Casa")

	if _, err := f.svc.Inquire(context.Background(), f.guest, p.ID, "Hola"); err != nil {
		t.Fatalf("inquire: %v", err)
	}
	if len(f.mailer.sent) != 0 {
		t.Errorf("sent %d emails with mail disabled", len(f.mailer.sent))
	}
	if len(f.notifier.sent) != 1 {
		t.Errorf("sent %d notifications, want 1", len(f.notifier.sent))
	}
}

func TestServiceFavorites(t *testing.T) {
	f := newServiceFixture(t)
	p := f.create(t, "Casa")

	if err := f.svc.AddFavorite(f.guest, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing listing: err = %v, want ErrNotFound", err)
	}
	if err := f.svc.AddFavorite(f.guest, p.ID); err != nil {
		t.Fatalf("add favorite: %v", err)
	}

	favs, err := f.svc.Favorites(f.guest)
	if err != nil {
		t.Fatalf("favorites: %v", err)
	}
	if len(favs) != 1 || favs[0].ID != p.ID {
		t.Errorf("favorites = %v", favs)
	}
}

func TestServiceExpireAndRenew(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	p := f.create(t, "Casa")

	n, err := f.svc.ExpireDue(ctx, time.Now().Add(60*24*time.Hour))
	if err != nil {
		t.Fatalf("expire due: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d, want 1", n)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].kind != notification.TypeListingExpired {
		t.Errorf("notifications = %+v", f.notifier.sent)
	}

	// A status change cannot bring back a listing whose expiry has passed.
	if _, err := f.svc.ChangeStatus(f.owner, p.ID, "available"); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("change status of expired listing: err = %v, want ErrInvalid", err)
	}
	got, err := f.svc.Get(p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusExpired {
		t.Errorf("status = %q, want expired", got.Status)
	}

	page, err := f.svc.List(ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("expired listing still listed: total = %d", page.Total)
	}

	renewed, err := f.svc.Renew(f.owner, p.ID)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if renewed.Status != StatusAvailable {
		t.Errorf("status = %q, want available", renewed.Status)
	}
}

var _ storage.Bucket = (*memBucket)(nil)
