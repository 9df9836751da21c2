package property

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
	"unicode"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
	"github.com/misiones-arrienda/arrienda/internal/db"
)

func TestInsertAndGetByID(t *testing.T) {
	repo, d := testRepo(t)
	owner := insertUser(t, d, "owner@example.com")

	beds := int64(2)
	area := 64.5
	saved, err := repo.Insert(&Property{
		OwnerID:      owner,
		Title:        "Depto céntrico",
		Description:  "Luminoso, a dos cuadras de la costanera",
		Price:        250000,
		Currency:     "ARS",
		Operation:    OperationRent,
		PropertyType: TypeApartment,
		City:         "Posadas",
		Province:     DefaultProvince,
		Bedrooms:     &beds,
		AreaM2:       &area,
		Furnished:    true,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if saved.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if saved.Status != StatusAvailable {
		t.Errorf("status = %q, want %q", saved.Status, StatusAvailable)
	}

	got, err := repo.GetByID(saved.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Title != "Depto céntrico" {
		t.Errorf("title = %q, want %q", got.Title, "Depto céntrico")
	}
	if got.Bedrooms == nil || *got.Bedrooms != 2 {
		t.Errorf("bedrooms = %v, want 2", got.Bedrooms)
	}
	if got.AreaM2 == nil || *got.AreaM2 != 64.5 {
		t.Errorf("area = %v, want 64.5", got.AreaM2)
	}
	if got.Bathrooms != nil {
		t.Errorf("bathrooms = %v, want nil", *got.Bathrooms)
	}
	if !got.Furnished {
		t.Error("expected furnished")
	}
	if got.Images == nil {
		t.Error("images should be an empty slice, not nil")
	}
}

func TestGetByIDNotFound(t *testing.T) {
	repo, _ := testRepo(t)

	_, err := repo.GetByID(9999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if apperr.Status(err) != 404 {
		t.Errorf("status = %d, want 404", apperr.Status(err))
	}
}

func TestListFilters(t *testing.T) {
	repo, d := testRepo(t)
	owner := insertUser(t, d, "owner@example.com")
	other := insertUser(t, d, "other@example.com")

	two, three := int64(2), int64(3)
	seed := []*Property{
		{OwnerID: owner, Title: "Casa con pileta", Price: 400000, Operation: OperationRent, PropertyType: TypeHouse, City: "Oberá", Bedrooms: &three},
		{OwnerID: owner, Title: "Depto amueblado", Price: 250000, Operation: OperationRent, PropertyType: TypeApartment, City: "Posadas", Bedrooms: &two},
		{OwnerID: other, Title: "Terreno en Garupá", Price: 9000000, Operation: OperationSale, PropertyType: TypeLand, City: "Garupá"},
		{OwnerID: other, Title: "Habitación para estudiante", Price: 90000, Operation: OperationRent, PropertyType: TypeRoom, City: "Posadas"},
	}
	for _, p := range seed {
		if _, err := repo.Insert(p); err != nil {
			t.Fatalf("insert %q: %v", p.Title, err)
		}
	}

	reserved := insertProperty(t, repo, owner, "Depto reservado", 300000)
	if err := repo.UpdateStatus(reserved.ID, StatusReserved); err != nil {
		t.Fatalf("update status: %v", err)
	}

	minPrice, maxPrice := int64(100000), int64(500000)
	tests := []struct {
		name      string
		opts      ListOptions
		wantTotal int
		wantFirst string
	}{
		{"defaults to available", ListOptions{}, 4, ""},
		{"any status", ListOptions{Status: StatusAny}, 5, ""},
		{"city ignores accents and case", ListOptions{City: "OBERA"}, 1, "Casa con pileta"},
		{"free text folds accents", ListOptions{Query: "habitacion"}, 1, "Habitación para estudiante"},
		{"every term must match", ListOptions{Query: "depto pileta"}, 0, ""},
		{"operation", ListOptions{Operation: OperationSale}, 1, "Terreno en Garupá"},
		{"type", ListOptions{Type: TypeApartment}, 1, "Depto amueblado"},
		{"price range", ListOptions{MinPrice: &minPrice, MaxPrice: &maxPrice, Sort: SortPriceAsc}, 2, "Depto amueblado"},
		{"min bedrooms", ListOptions{MinBedrooms: &three}, 1, "Casa con pileta"},
		{"owner", ListOptions{OwnerID: other, Sort: SortPriceDesc}, 2, "Terreno en Garupá"},
		{"like wildcards are literal", ListOptions{Query: "%"}, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.List(tt.opts)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if page.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", page.Total, tt.wantTotal)
			}
			if len(page.Items) != tt.wantTotal {
				t.Errorf("got %d items, want %d", len(page.Items), tt.wantTotal)
			}
			if tt.wantFirst != "" && len(page.Items) > 0 && page.Items[0].Title != tt.wantFirst {
				t.Errorf("first = %q, want %q", page.Items[0].Title, tt.wantFirst)
			}
		})
	}
}

func TestListPaging(t *testing.T) {
	repo, d := testRepo(t)
	owner := insertUser(t, d, "owner@example.com")

	for i := 0; i < 5; i++ {
		insertProperty(t, repo, owner, fmt.Sprintf("Casa %d", i), int64(100000+i))
	}

	page, err := repo.List(ListOptions{Limit: 2, Offset: 3, Sort: SortPriceAsc})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 5 {
		t.Errorf("total = %d, want 5", page.Total)
	}
	if len(page.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(page.Items))
	}
	if page.Items[0].Price != 100003 {
		t.Errorf("first price = %d, want 100003", page.Items[0].Price)
	}
}

func TestListFeaturedFirst(t *testing.T) {
	repo, d := testRepo(t)
	owner := insertUser(t, d, "owner@example.com")

	insertProperty(t, repo, owner, "Barata", 1000)
	promoted := insertProperty(t, repo, owner, "Cara", 900000)
	if err := repo.SetFeatured(promoted.ID, time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("set featured: %v", err)
	}

	page, err := repo.List(ListOptions{Sort: SortPriceAsc})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Items[0].ID != promoted.ID {
		t.Errorf("first = %q, want featured listing first", page.Items[0].Title)
	}
	if !page.Items[0].Featured || page.Items[0].FeaturedUntil == nil {
		t.Error("expected featured flag and featured_until")
	}
}

func TestUpdate(t *testing.T) {
	repo, d := testRepo(t)
	owner := insertUser(t, d, "owner@example.com")
	p := insertProperty(t, repo, owner, "Casa vieja", 100000)

	p.Title = "Casa reciclada en Apóstoles"
	p.City = "Apóstoles"
	if err := repo.Update(p); err != nil {
		t.Fatalf("update: %v", err)
	}

	page, err := repo.List(ListOptions{Query: "reciclada apostoles"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("search after update found %d, want 1", page.Total)
	}

	missing := &Property{ID: 9999}
	if err := repo.Update(missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing: err = %v, want ErrNotFound", err)
	}
}

func TestExpireDueAndRenew(t *testing.T) {
	repo, d := testRepo(t)
	owner := insertUser(t, d, "owner@example.com")
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	due, err := repo.Insert(&Property{OwnerID: owner, Title: "Vencida", Price: 1, Operation: OperationRent, PropertyType: TypeHouse, City: "Posadas", ExpiresAt: &past})
	if err != nil {
		t.Fatalf("insert due: %v", err)
	}
	if _, err := repo.Insert(&Property{OwnerID: owner, Title: "Vigente", Price: 1, Operation: OperationRent, PropertyType: TypeHouse, City: "Posadas", ExpiresAt: &future}); err != nil {
		t.Fatalf("insert current: %v", err)
	}

	expired, err := repo.ExpireDue(now)
	if err != nil {
		t.Fatalf("expire due: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != due.ID || expired[0].OwnerID != owner {
		t.Fatalf("expired = %+v, want only %d", expired, due.ID)
	}

	got, err := repo.GetByID(due.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusExpired {
		t.Errorf("status = %q, want expired", got.Status)
	}

	// A second run finds nothing new.
	again, err := repo.ExpireDue(now)
	if err != nil {
		t.Fatalf("expire again: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second run expired %d, want 0", len(again))
	}

	if err := repo.Renew(due.ID, now.Add(90*24*time.Hour)); err != nil {
		t.Fatalf("renew: %v", err)
	}
	got, err = repo.GetByID(due.ID)
	if err != nil {
		t.Fatalf("get after renew: %v", err)
	}
	if got.Status != StatusAvailable {
		t.Errorf("status after renew = %q, want available", got.Status)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.After(now) {
		t.Errorf("expires_at = %v, want after %v", got.ExpiresAt, now)
	}
}

func TestUnfeatureDue(t *testing.T) {
	repo, d := testRepo(t)
	owner := insertUser(t, d, "owner@example.com")
	now := time.Now().UTC()

	ended := insertProperty(t, repo, owner, "Promo vencida", 1)
	running := insertProperty(t, repo, owner, "Promo vigente", 1)
	if err := repo.SetFeatured(ended.ID, now.Add(-time.Minute)); err != nil {
		t.Fatalf("feature ended: %v", err)
	}
	if err := repo.SetFeatured(running.ID, now.Add(time.Hour)); err != nil {
		t.Fatalf("feature running: %v", err)
	}

	n, err := repo.UnfeatureDue(now)
	if err != nil {
		t.Fatalf("unfeature: %v", err)
	}
	if n != 1 {
		t.Errorf("unfeatured %d, want 1", n)
	}

	got, err := repo.GetByID(ended.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Featured || got.FeaturedUntil != nil {
		t.Error("expected promotion to be cleared")
	}
}

func TestImages(t *testing.T) {
	repo, d := testRepo(t)
	owner := insertUser(t, d, "owner@example.com")
	p := insertProperty(t, repo, owner, "Casa", 1)

	for i := 0; i < 3; i++ {
		img, err := repo.AddImage(p.ID, fmt.Sprintf("properties/%d/k%d.jpg", p.ID, i), fmt.Sprintf("/uploads/k%d.jpg", i))
		if err != nil {
			t.Fatalf("add image %d: %v", i, err)
		}
		if img.Position != i {
			t.Errorf("position = %d, want %d", img.Position, i)
		}
	}

	n, err := repo.CountImages(p.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}

	got, err := repo.GetByID(p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Cover() != "/uploads/k0.jpg" {
		t.Errorf("cover = %q, want /uploads/k0.jpg", got.Cover())
	}

	if err := repo.DeleteImage(p.ID, got.Images[0].ID); err != nil {
		t.Fatalf("delete image: %v", err)
	}
	if err := repo.DeleteImage(p.ID, got.Images[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}

	// Positions keep growing after a delete.
	img, err := repo.AddImage(p.ID, "properties/x.jpg", "/uploads/x.jpg")
	if err != nil {
		t.Fatalf("add after delete: %v", err)
	}
	if img.Position != 3 {
		t.Errorf("position = %d, want 3", img.Position)
	}
}

func TestFavorites(t *testing.T) {
	repo, d := testRepo(t)
	owner := insertUser(t, d, "owner@example.com")
	fan := insertUser(t, d, "fan@example.com")
	a := insertProperty(t, repo, owner, "A", 1)
	b := insertProperty(t, repo, owner, "B", 2)

	for _, id := range []int64{a.ID, b.ID, a.ID} {
		if err := repo.AddFavorite(fan, id); err != nil {
			t.Fatalf("add favorite %d: %v", id, err)
		}
	}

	favs, err := repo.ListFavorites(fan)
	if err != nil {
		t.Fatalf("list favorites: %v", err)
	}
	if len(favs) != 2 {
		t.Fatalf("got %d favorites, want 2", len(favs))
	}

	ok, err := repo.IsFavorite(fan, b.ID)
	if err != nil {
		t.Fatalf("is favorite: %v", err)
	}
	if !ok {
		t.Error("expected b to be a favorite")
	}

	if err := repo.RemoveFavorite(fan, b.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := repo.RemoveFavorite(fan, b.ID); err != nil {
		t.Errorf("removing twice should be a no-op: %v", err)
	}
	ok, err = repo.IsFavorite(fan, b.ID)
	if err != nil {
		t.Fatalf("is favorite: %v", err)
	}
	if ok {
		t.Error("expected b to be removed")
	}
}

func TestDeleteCascades(t *testing.T) {
	repo, d := testRepo(t)
	owner := insertUser(t, d, "owner@example.com")
	fan := insertUser(t, d, "fan@example.com")
	p := insertProperty(t, repo, owner, "Casa", 1)

	if _, err := repo.AddImage(p.ID, "k", "/uploads/k"); err != nil {
		t.Fatalf("add image: %v", err)
	}
	if err := repo.AddFavorite(fan, p.ID); err != nil {
		t.Fatalf("add favorite: %v", err)
	}

	if err := repo.Delete(p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}

	favs, err := repo.ListFavorites(fan)
	if err != nil {
		t.Fatalf("list favorites: %v", err)
	}
	if len(favs) != 0 {
		t.Errorf("got %d favorites after delete, want 0", len(favs))
	}
}

func TestNormalizeBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("limit and offset stay in range", prop.ForAll(
		func(limit, offset int, sort string) bool {
			o := ListOptions{Limit: limit, Offset: offset, Sort: sort}.Normalize()
			if o.Limit < 1 || o.Limit > MaxLimit || o.Offset < 0 {
				return false
			}
			switch o.Sort {
			case SortNewest, SortPriceAsc, SortPriceDesc:
				return o.Status == StatusAvailable
			}
			return false
		},
		gen.IntRange(-1000, 1000),
		gen.IntRange(-1000, 1000),
		gen.OneConstOf("", SortNewest, SortPriceAsc, SortPriceDesc, "rating"),
	))

	properties.Property("fold is idempotent", prop.ForAll(
		func(s string) bool {
			return Fold(Fold(s)) == Fold(s)
		},
		gen.UnicodeString(unicode.Latin),
	))

	properties.TestingRun(t)
}

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Oberá", "obera"},
		{"  PUERTO   IGUAZÚ ", "puerto iguazu"},
		{"Garupá", "garupa"},
		{"Ñandú", "nandu"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Fold(tt.in); got != tt.want {
				t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func testRepo(t *testing.T) (*Repository, *sql.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := db.Open(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	return NewRepository(d), d
}

func insertUser(t *testing.T, d *sql.DB, email string) int64 {
	t.Helper()
	res, err := d.Exec(`INSERT INTO users (email, name) VALUES (?, ?)`, email, email)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}
	return id
}

func insertProperty(t *testing.T, repo *Repository, owner int64, title string, price int64) *Property {
	t.Helper()
	p, err := repo.Insert(&Property{
		OwnerID:      owner,
		Title:        title,
		Price:        price,
		Operation:    OperationRent,
		PropertyType: TypeHouse,
		City:         "Posadas",
		Province:     DefaultProvince,
	})
	if err != nil {
		t.Fatalf("insert property: %v", err)
	}
	return p
}
