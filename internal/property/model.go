// Package property provides listings: the domain model, data access and the
// business rules around ownership, images, favorites and inquiries.
package property

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
	"github.com/misiones-arrienda/arrienda/internal/validate"
)

// ErrNotFound is returned when a listing or image does not exist.
var ErrNotFound = fmt.Errorf("listing %w", apperr.ErrNotFound)

// Operation is what the owner offers: rent or sale.
type Operation string

const (
	OperationRent Operation = "rent"
	OperationSale Operation = "sale"
)

// Type is the kind of property.
type Type string

const (
	TypeHouse      Type = "house"
	TypeApartment  Type = "apartment"
	TypeRoom       Type = "room"
	TypeLand       Type = "land"
	TypeCommercial Type = "commercial"
	TypeOffice     Type = "office"
)

// Status is where a listing is in its lifecycle.
type Status string

const (
	StatusAvailable Status = "available"
	StatusReserved  Status = "reserved"
	StatusRented    Status = "rented"
	StatusSold      Status = "sold"
	StatusExpired   Status = "expired"

	// StatusAny disables the status filter in List.
	StatusAny Status = "any"
)

// ValidStatus returns true if s is a status an owner may set.
// Expired is reserved for the cleanup job.
func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusAvailable, StatusReserved, StatusRented, StatusSold:
		return true
	}
	return false
}

// DefaultProvince is used when a listing does not name one.
const DefaultProvince = "Misiones"

// Property is a real-estate listing owned by a user.
type Property struct {
	ID            int64      `json:"id"`
	OwnerID       int64      `json:"owner_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Price         int64      `json:"price"`
	Currency      string     `json:"currency"`
	Operation     Operation  `json:"operation"`
	PropertyType  Type       `json:"property_type"`
	City          string     `json:"city"`
	Province      string     `json:"province"`
	Address       string     `json:"address"`
	Bedrooms      *int64     `json:"bedrooms,omitempty"`
	Bathrooms     *int64     `json:"bathrooms,omitempty"`
	AreaM2        *float64   `json:"area_m2,omitempty"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
	ContactPhone  string     `json:"contact_phone,omitempty"`
	Furnished     bool       `json:"furnished"`
	PetsAllowed   bool       `json:"pets_allowed"`
	Status        Status     `json:"status"`
	Featured      bool       `json:"featured"`
	FeaturedUntil *time.Time `json:"featured_until,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Images        []Image    `json:"images"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Cover returns the URL of the first image, or "".
func (p *Property) Cover() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0].URL
}

// Image is a photo attached to a listing.
type Image struct {
	ID         int64     `json:"id"`
	PropertyID int64     `json:"property_id"`
	ObjectKey  string    `json:"-"`
	URL        string    `json:"url"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"created_at"`
}

// Input is a create or update payload. Nil fields are not set.
type Input struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	Price        *int64     `json:"price"`
	Currency     *string    `json:"currency"`
	Operation    *Operation `json:"operation"`
	PropertyType *Type      `json:"property_type"`
	City         *string    `json:"city"`
	Province     *string    `json:"province"`
	Address      *string    `json:"address"`
	Bedrooms     *int64     `json:"bedrooms"`
	Bathrooms    *int64     `json:"bathrooms"`
	AreaM2       *float64   `json:"area_m2"`
	Latitude     *float64   `json:"latitude"`
	Longitude    *float64   `json:"longitude"`
	ContactPhone *string    `json:"contact_phone"`
	Furnished    *bool      `json:"furnished"`
	PetsAllowed  *bool      `json:"pets_allowed"`
}

//go:embed schema/listing.json
var listingSchema string

var (
	createSchema = validate.MustCompile("listing.json", listingSchema, "#/$defs/create")
	updateSchema = validate.MustCompile("listing.json", listingSchema, "#/$defs/update")
)

// DecodeCreate validates a create payload.
func DecodeCreate(raw []byte) (Input, error) {
	var in Input
	if err := validate.Decode(createSchema, raw, &in); err != nil {
		return Input{}, err
	}
	if strings.TrimSpace(*in.Title) == "" {
		return Input{}, apperr.Invalid("title: must not be blank")
	}
	return in, nil
}

// DecodeUpdate validates a partial update payload.
func DecodeUpdate(raw []byte) (Input, error) {
	var in Input
	if err := validate.Decode(updateSchema, raw, &in); err != nil {
		return Input{}, err
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return Input{}, apperr.Invalid("title: must not be blank")
	}
	return in, nil
}

// Apply copies the non-nil fields of in onto p.
func (in Input) Apply(p *Property) {
	setString(&p.Title, in.Title)
	setString(&p.Description, in.Description)
	setString(&p.Currency, in.Currency)
	setString(&p.City, in.City)
	setString(&p.Province, in.Province)
	setString(&p.Address, in.Address)
	setString(&p.ContactPhone, in.ContactPhone)

	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Operation != nil {
		p.Operation = *in.Operation
	}
	if in.PropertyType != nil {
		p.PropertyType = *in.PropertyType
	}
	if in.Bedrooms != nil {
		p.Bedrooms = in.Bedrooms
	}
	if in.Bathrooms != nil {
		p.Bathrooms = in.Bathrooms
	}
	if in.AreaM2 != nil {
		p.AreaM2 = in.AreaM2
	}
	if in.Latitude != nil {
		p.Latitude = in.Latitude
	}
	if in.Longitude != nil {
		p.Longitude = in.Longitude
	}
	if in.Furnished != nil {
		p.Furnished = *in.Furnished
	}
	if in.PetsAllowed != nil {
		p.PetsAllowed = *in.PetsAllowed
	}

	if p.Currency == "" {
		p.Currency = "ARS"
	}
	if p.Province == "" {
		p.Province = DefaultProvince
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}
