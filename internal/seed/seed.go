// Package seed loads deterministic sample data for development.
package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/misiones-arrienda/arrienda/internal/auth"
	"github.com/misiones-arrienda/arrienda/internal/chat"
	"github.com/misiones-arrienda/arrienda/internal/community"
	"github.com/misiones-arrienda/arrienda/internal/property"
)

// DefaultPassword is the password of every seeded user.
const DefaultPassword = "arrienda123"

// Options tune a seed run.
type Options struct {
	Password   string
	AdminEmail string
	ListingTTL time.Duration
}

// Report counts what a run created.
type Report struct {
	Users    int `json:"users"`
	Listings int `json:"listings"`
	Profiles int `json:"profiles"`
	Matches  int `json:"matches"`
	Messages int `json:"messages"`
}

type sampleListing struct {
	title     string
	price     int64
	operation property.Operation
	kind      property.Type
	city      string
	bedrooms  int64
}

type sampleUser struct {
	email    string
	name     string
	phone    string
	listings []sampleListing
	profile  *community.ProfileInput
}

func ptrBool(b bool) *bool { return &b }

var sampleUsers = []sampleUser{
	{
		email: "lucia@example.com", name: "Lucía Benítez", phone: "3764 112233",
		listings: []sampleListing{
			{"Departamento 2 ambientes frente a la Costanera", 320000, property.OperationRent, property.TypeApartment, "Posadas", 1},
			{"Casa con patio en Villa Cabello", 450000, property.OperationRent, property.TypeHouse, "Posadas", 3},
		},
		profile: &community.ProfileInput{Role: community.RoleOffering, City: "Posadas", BudgetMin: 120000, BudgetMax: 160000,
			Bio: "Tengo una habitación libre en mi depto, busco compañera tranquila.", Age: 27, Tags: []string{"No fumadora", " Ordenada "}, Active: ptrBool(true)},
	},
	{
		email: "martin@example.com", name: "Martín Kowalczuk", phone: "3755 445566",
		listings: []sampleListing{
			{"Chalet en Oberá cerca del Parque de las Naciones", 85000000, property.OperationSale, property.TypeHouse, "Oberá", 4},
			{"Local comercial sobre Av. Sarmiento", 600000, property.OperationRent, property.TypeCommercial, "Oberá", 0},
		},
	},
	{
		email: "sofia@example.com", name: "Sofía Da Silva", phone: "3757 778899",
		listings: []sampleListing{
			{"Cabaña a 10 minutos de las Cataratas", 280000, property.OperationRent, property.TypeHouse, "Puerto Iguazú", 2},
			{"Terreno de 900 m² en Eldorado", 25000000, property.OperationSale, property.TypeLand, "Eldorado", 0},
		},
	},
	{
		email: "tomas@example.com", name: "Tomás Acosta", phone: "3764 990011",
		profile: &community.ProfileInput{Role: community.RoleSeeking, City: "Posadas", BudgetMin: 90000, BudgetMax: 150000,
			MoveIn: "2026-03-01", Bio: "Estudiante de la UNaM, busco habitación cerca del campus.", Age: 22,
			Tags: []string{"estudiante"}, Active: ptrBool(true)},
	},
	{
		email: "valentina@example.com", name: "Valentina Ríos", phone: "3758 223344",
		listings: []sampleListing{
			{"Habitación amoblada en Apóstoles", 95000, property.OperationRent, property.TypeRoom, "Apóstoles", 1},
		},
		profile: &community.ProfileInput{Role: community.RoleSeeking, City: "Apóstoles", BudgetMax: 100000,
			Bio: "Trabajo en la cooperativa yerbatera.", Age: 31, Pets: true, Active: ptrBool(true)},
	},
}

// Run inserts the sample data. Existing users keep their password and only
// get the listings, profile and conversation they are missing, so a run that
// failed halfway is completed by the next one and a run over a complete seed
// creates nothing.
func Run(ctx context.Context, conn *sql.DB, opts Options) (*Report, error) {
	if opts.Password == "" {
		opts.Password = DefaultPassword
	}
	if opts.ListingTTL <= 0 {
		opts.ListingTTL = 90 * 24 * time.Hour
	}

	users := auth.NewUserStore(conn, opts.AdminEmail)
	listings := property.NewRepository(conn)
	profileRepo := community.NewRepository(conn)
	profiles := community.NewService(profileRepo, nil, nil)
	chats := chat.NewRepository(conn)

	rep := &Report{}
	seeded := map[string]*auth.User{}

	for _, su := range sampleUsers {
		u, err := users.Register(su.email, opts.Password, su.name, su.phone)
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			slog.Debug("seed user exists", "email", su.email)
			if u, err = users.GetByEmail(su.email); err != nil {
				return rep, fmt.Errorf("loading seed user %s: %w", su.email, err)
			}
		case err != nil:
			return rep, fmt.Errorf("seeding user %s: %w", su.email, err)
		default:
			rep.Users++
		}
		seeded[su.email] = u

		n, err := seedListings(listings, u, su.listings, opts.ListingTTL)
		rep.Listings += n
		if err != nil {
			return rep, err
		}

		if su.profile != nil {
			_, err := profiles.Profile(ctx, u.ID)
			if errors.Is(err, community.ErrNotFound) {
				if _, err = profiles.SaveProfile(ctx, u, *su.profile); err == nil {
					rep.Profiles++
				}
			}
			if err != nil {
				return rep, fmt.Errorf("seeding profile for %s: %w", su.email, err)
			}
		}
	}

	// Lucía and Tomás like each other.
	lucia, tomas := seeded["lucia@example.com"], seeded["tomas@example.com"]
	if lucia == nil || tomas == nil {
		return rep, nil
	}
	for _, pair := range [][2]int64{{lucia.ID, tomas.ID}, {tomas.ID, lucia.ID}} {
		if _, err := profileRepo.AddLike(ctx, pair[0], pair[1]); err != nil {
			return rep, fmt.Errorf("seeding like: %w", err)
		}
	}
	_, created, err := profileRepo.CreateMatch(ctx, lucia.ID, tomas.ID)
	if err != nil {
		return rep, fmt.Errorf("seeding match: %w", err)
	}
	if created {
		rep.Matches++
	}

	conv, err := chats.GetOrCreate(ctx, lucia.ID, tomas.ID, nil)
	if err != nil {
		return rep, fmt.Errorf("seeding conversation: %w", err)
	}
	existing, err := chats.ListMessages(ctx, conv.ID, 0, 1)
	if err != nil {
		return rep, fmt.Errorf("seeding conversation: %w", err)
	}
	if len(existing) > 0 {
		return rep, nil
	}
	for _, m := range []struct {
		from int64
		body string
	}{
		{tomas.ID, "¡Hola Lucía! ¿La habitación sigue disponible?"},
		{lucia.ID, "Hola Tomás, sí. ¿Querés pasar a verla el sábado?"},
	} {
		if _, err := chats.AddMessage(ctx, conv.ID, m.from, m.body); err != nil {
			return rep, fmt.Errorf("seeding message: %w", err)
		}
		rep.Messages++
	}

	return rep, nil
}

// seedListings inserts the sample listings owner does not have yet, matched
// by title.
func seedListings(repo *property.Repository, owner *auth.User, samples []sampleListing, ttl time.Duration) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	page, err := repo.List(property.ListOptions{OwnerID: owner.ID, Status: property.StatusAny, Limit: property.MaxLimit})
	if err != nil {
		return 0, fmt.Errorf("listing seed listings of %s: %w", owner.Email, err)
	}
	have := map[string]bool{}
	for _, p := range page.Items {
		have[p.Title] = true
	}

	n := 0
	for _, sl := range samples {
		if have[sl.title] {
			continue
		}
		if err := insertListing(repo, owner, sl, ttl); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func insertListing(repo *property.Repository, owner *auth.User, sl sampleListing, ttl time.Duration) error {
	expires := time.Now().UTC().Add(ttl)
	p := &property.Property{
		OwnerID:      owner.ID,
		Title:        sl.title,
		Description:  "Publicación de ejemplo.",
		Price:        sl.price,
		Currency:     "ARS",
		Operation:    sl.operation,
		PropertyType: sl.kind,
		City:         sl.city,
		Province:     property.DefaultProvince,
		ContactPhone: owner.Phone,
		ExpiresAt:    &expires,
	}
	if sl.bedrooms > 0 {
		beds := sl.bedrooms
		p.Bedrooms = &beds
	}
	if _, err := repo.Insert(p); err != nil {
		return fmt.Errorf("seeding listing %q: %w", sl.title, err)
	}
	return nil
}
