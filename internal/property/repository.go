package property

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository provides data access for listings, their images and favorites.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a listing repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var propertyColumns = []string{
	"id", "owner_id", "title", "description", "price", "currency", "operation", "property_type",
	"city", "province", "address", "bedrooms", "bathrooms", "area_m2", "latitude", "longitude", "contact_phone",
	"furnished", "pets_allowed", "status", "featured", "featured_until", "expires_at", "created_at", "updated_at",
}

var selectColumns = strings.Join(propertyColumns, ", ")

// qualifiedColumns returns the listing columns prefixed with a table alias.
func qualifiedColumns(alias string) string {
	cols := make([]string, len(propertyColumns))
	for i, c := range propertyColumns {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// scanProperty scans a listing from a database row.
func scanProperty(row interface{ Scan(...any) error }) (*Property, error) {
	var p Property
	var bedrooms, bathrooms sql.NullInt64
	var area, lat, lng sql.NullFloat64
	var featuredUntil, expiresAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.Price, &p.Currency, &p.Operation, &p.PropertyType,
		&p.City, &p.Province, &p.Address, &bedrooms, &bathrooms, &area, &lat, &lng, &p.ContactPhone,
		&p.Furnished, &p.PetsAllowed, &p.Status, &p.Featured, &featuredUntil, &expiresAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if bedrooms.Valid {
		p.Bedrooms = &bedrooms.Int64
	}
	if bathrooms.Valid {
		p.Bathrooms = &bathrooms.Int64
	}
	if area.Valid {
		p.AreaM2 = &area.Float64
	}
	if lat.Valid {
		p.Latitude = &lat.Float64
	}
	if lng.Valid {
		p.Longitude = &lng.Float64
	}
	if featuredUntil.Valid {
		p.FeaturedUntil = &featuredUntil.Time
	}
	if expiresAt.Valid {
		p.ExpiresAt = &expiresAt.Time
	}
	p.Images = []Image{}

	return &p, nil
}

// Insert adds a new listing and returns it with its generated ID.
func (r *Repository) Insert(p *Property) (*Property, error) {
	now := time.Now().UTC()
	if p.Status == "" {
		p.Status = StatusAvailable
	}

	result, err := r.db.Exec(`INSERT INTO properties
		(owner_id, title, description, price, currency, operation, property_type, city, province, address,
		 bedrooms, bathrooms, area_m2, latitude, longitude, contact_phone, furnished, pets_allowed,
		 status, expires_at, search_text, city_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.OwnerID, p.Title, p.Description, p.Price, p.Currency, p.Operation, p.PropertyType,
		p.City, p.Province, p.Address, p.Bedrooms, p.Bathrooms, p.AreaM2, p.Latitude, p.Longitude,
		p.ContactPhone, p.Furnished, p.PetsAllowed, p.Status, utcPtr(p.ExpiresAt),
		searchText(p), Fold(p.City), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting property: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting insert id: %w", err)
	}

	return r.GetByID(id)
}

// GetByID returns a listing with its images.
func (r *Repository) GetByID(id int64) (*Property, error) {
	row := r.db.QueryRow("SELECT "+selectColumns+" FROM properties WHERE id = ?", id)

	p, err := scanProperty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("property %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying property %d: %w", id, err)
	}

	images, err := r.ListImages(id)
	if err != nil {
		return nil, err
	}
	p.Images = images

	return p, nil
}

// OwnerID returns the owner of a listing.
func (r *Repository) OwnerID(id int64) (int64, error) {
	var owner int64
	err := r.db.QueryRow("SELECT owner_id FROM properties WHERE id = ?", id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("property %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("querying owner: %w", err)
	}
	return owner, nil
}

// Sort orders.
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ListOptions controls filtering and paging for List.
type ListOptions struct {
	Query       string
	City        string
	Operation   Operation
	Type        Type
	MinPrice    *int64
	MaxPrice    *int64
	MinBedrooms *int64
	Featured    *bool
	Status      Status // empty = available
	OwnerID     int64
	Sort        string
	Limit       int
	Offset      int
}

// Normalize applies defaults and clamps paging to its bounds.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.Status == "" {
		o.Status = StatusAvailable
	}
	switch o.Sort {
	case SortNewest, SortPriceAsc, SortPriceDesc:
	default:
		o.Sort = SortNewest
	}
	return o
}

// Page is one page of List results.
type Page struct {
	Items  []*Property `json:"items"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

func (o ListOptions) where() (string, []any) {
	var conds []string
	var args []any

	if o.Status != StatusAny {
		conds = append(conds, "status = ?")
		args = append(args, o.Status)
	}
	for _, term := range queryTerms(o.Query) {
		conds = append(conds, `search_text LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(term)+"%")
	}
	if o.City != "" {
		conds = append(conds, "city_key = ?")
		args = append(args, Fold(o.City))
	}
	if o.Operation != "" {
		conds = append(conds, "operation = ?")
		args = append(args, o.Operation)
	}
	if o.Type != "" {
		conds = append(conds, "property_type = ?")
		args = append(args, o.Type)
	}
	if o.MinPrice != nil {
		conds = append(conds, "price >= ?")
		args = append(args, *o.MinPrice)
	}
	if o.MaxPrice != nil {
		conds = append(conds, "price <= ?")
		args = append(args, *o.MaxPrice)
	}
	if o.MinBedrooms != nil {
		conds = append(conds, "bedrooms >= ?")
		args = append(args, *o.MinBedrooms)
	}
	if o.Featured != nil {
		conds = append(conds, "featured = ?")
		args = append(args, *o.Featured)
	}
	if o.OwnerID != 0 {
		conds = append(conds, "owner_id = ?")
		args = append(args, o.OwnerID)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (o ListOptions) orderBy() string {
	switch o.Sort {
	case SortPriceAsc:
		return " ORDER BY featured DESC, price ASC, id DESC"
	case SortPriceDesc:
		return " ORDER BY featured DESC, price DESC, id DESC"
	default:
		return " ORDER BY featured DESC, created_at DESC, id DESC"
	}
}

// List returns one page of listings matching opts. Featured listings come
// first within every sort order.
func (r *Repository) List(opts ListOptions) (*Page, error) {
	opts = opts.Normalize()
	where, args := opts.where()

	page := &Page{Items: []*Property{}, Limit: opts.Limit, Offset: opts.Offset}
	if err := r.db.QueryRow("SELECT COUNT(*) FROM properties"+where, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("counting properties: %w", err)
	}

	query := "SELECT " + selectColumns + " FROM properties" + where + opts.orderBy() + " LIMIT ? OFFSET ?"
	items, err := r.query(query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, err
	}
	if err := r.attachImages(items); err != nil {
		return nil, err
	}
	page.Items = items

	return page, nil
}

func (r *Repository) query(query string, args ...any) (props []*Property, err error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing properties: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	props = []*Property{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning property: %w", err)
		}
		props = append(props, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating properties: %w", err)
	}

	return props, nil
}

// attachImages loads the images of all props with a single query.
func (r *Repository) attachImages(props []*Property) (err error) {
	if len(props) == 0 {
		return nil
	}

	byID := make(map[int64]*Property, len(props))
	placeholders := make([]string, len(props))
	args := make([]any, len(props))
	for i, p := range props {
		byID[p.ID] = p
		placeholders[i] = "?"
		args[i] = p.ID
	}

	rows, err := r.db.Query(
		"SELECT id, property_id, object_key, url, position, created_at FROM property_images WHERE property_id IN ("+
			strings.Join(placeholders, ",")+") ORDER BY position, id",
		args...,
	)
	if err != nil {
		return fmt.Errorf("listing images: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.ID, &img.PropertyID, &img.ObjectKey, &img.URL, &img.Position, &img.CreatedAt); err != nil {
			return fmt.Errorf("scanning image: %w", err)
		}
		if p, ok := byID[img.PropertyID]; ok {
			p.Images = append(p.Images, img)
		}
	}

	return rows.Err()
}

// Update writes every mutable field of p.
func (r *Repository) Update(p *Property) error {
	return r.execOne(p.ID, "updating property", `UPDATE properties SET
		title = ?, description = ?, price = ?, currency = ?, operation = ?, property_type = ?,
		city = ?, province = ?, address = ?, bedrooms = ?, bathrooms = ?, area_m2 = ?,
		latitude = ?, longitude = ?, contact_phone = ?, furnished = ?, pets_allowed = ?,
		search_text = ?, city_key = ?, updated_at = ?
		WHERE id = ?`,
		p.Title, p.Description, p.Price, p.Currency, p.Operation, p.PropertyType,
		p.City, p.Province, p.Address, p.Bedrooms, p.Bathrooms, p.AreaM2,
		p.Latitude, p.Longitude, p.ContactPhone, p.Furnished, p.PetsAllowed,
		searchText(p), Fold(p.City), time.Now().UTC(), p.ID,
	)
}

// UpdateStatus sets a listing's status.
func (r *Repository) UpdateStatus(id int64, status Status) error {
	return r.execOne(id, "updating status",
		"UPDATE properties SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC(), id,
	)
}

// Renew sets a new expiry and makes an expired listing available again.
func (r *Repository) Renew(id int64, expiresAt time.Time) error {
	return r.execOne(id, "renewing property", `UPDATE properties SET
		expires_at = ?,
		status = CASE WHEN status = 'expired' THEN 'available' ELSE status END,
		updated_at = ?
		WHERE id = ?`,
		expiresAt.UTC(), time.Now().UTC(), id,
	)
}

// SetFeatured marks a listing featured until the given time.
func (r *Repository) SetFeatured(id int64, until time.Time) error {
	return r.execOne(id, "featuring property",
		"UPDATE properties SET featured = 1, featured_until = ?, updated_at = ? WHERE id = ?",
		until.UTC(), time.Now().UTC(), id,
	)
}

// Delete removes a listing. Images, favorites and inquiries cascade.
func (r *Repository) Delete(id int64) error {
	return r.execOne(id, "deleting property", "DELETE FROM properties WHERE id = ?", id)
}

// Expired identifies a listing moved to the expired status.
type Expired struct {
	ID      int64
	OwnerID int64
	Title   string
}

// ExpireDue marks available listings whose expiry is before now as expired
// and returns them.
func (r *Repository) ExpireDue(now time.Time) (expired []Expired, err error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	rows, err := tx.Query(
		`SELECT id, owner_id, title FROM properties
		 WHERE status = 'available' AND expires_at IS NOT NULL AND expires_at < ?
		 ORDER BY id`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("finding due listings: %w", err)
	}
	for rows.Next() {
		var e Expired
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Title); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning due listing: %w", err)
		}
		expired = append(expired, e)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("closing rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating due listings: %w", err)
	}

	for _, e := range expired {
		if _, err := tx.Exec(
			"UPDATE properties SET status = 'expired', updated_at = ? WHERE id = ?",
			now.UTC(), e.ID,
		); err != nil {
			return nil, fmt.Errorf("expiring property %d: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing expiry: %w", err)
	}
	return expired, nil
}

// UnfeatureDue clears the featured flag on listings whose promotion ended
// before now.
func (r *Repository) UnfeatureDue(now time.Time) (int64, error) {
	result, err := r.db.Exec(
		`UPDATE properties SET featured = 0, featured_until = NULL, updated_at = ?
		 WHERE featured = 1 AND featured_until IS NOT NULL AND featured_until < ?`,
		now.UTC(), now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("unfeaturing properties: %w", err)
	}
	return result.RowsAffected()
}

// AddImage appends an image to a listing.
func (r *Repository) AddImage(propertyID int64, objectKey, url string) (*Image, error) {
	now := time.Now().UTC()
	result, err := r.db.Exec(
		`INSERT INTO property_images (property_id, object_key, url, position, created_at)
		 VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM property_images WHERE property_id = ?), ?)`,
		propertyID, objectKey, url, propertyID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting image: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting insert id: %w", err)
	}

	return r.GetImage(propertyID, id)
}

// GetImage returns one image of a listing.
func (r *Repository) GetImage(propertyID, imageID int64) (*Image, error) {
	var img Image
	err := r.db.QueryRow(
		"SELECT id, property_id, object_key, url, position, created_at FROM property_images WHERE id = ? AND property_id = ?",
		imageID, propertyID,
	).Scan(&img.ID, &img.PropertyID, &img.ObjectKey, &img.URL, &img.Position, &img.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("image %d: %w", imageID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying image: %w", err)
	}
	return &img, nil
}

// ListImages returns a listing's images in display order.
func (r *Repository) ListImages(propertyID int64) (images []Image, err error) {
	rows, err := r.db.Query(
		"SELECT id, property_id, object_key, url, position, created_at FROM property_images WHERE property_id = ? ORDER BY position, id",
		propertyID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	images = []Image{}
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.ID, &img.PropertyID, &img.ObjectKey, &img.URL, &img.Position, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning image: %w", err)
		}
		images = append(images, img)
	}

	return images, rows.Err()
}

// CountImages returns how many images a listing has.
func (r *Repository) CountImages(propertyID int64) (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM property_images WHERE property_id = ?", propertyID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting images: %w", err)
	}
	return n, nil
}

// DeleteImage removes one image row.
func (r *Repository) DeleteImage(propertyID, imageID int64) error {
	result, err := r.db.Exec("DELETE FROM property_images WHERE id = ? AND property_id = ?", imageID, propertyID)
	if err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("image %d: %w", imageID, ErrNotFound)
	}
	return nil
}

// AddFavorite saves a listing for a user. Saving twice is a no-op.
func (r *Repository) AddFavorite(userID, propertyID int64) error {
	if _, err := r.db.Exec(
		"INSERT OR IGNORE INTO favorites (user_id, property_id, created_at) VALUES (?, ?, ?)",
		userID, propertyID, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("adding favorite: %w", err)
	}
	return nil
}

// RemoveFavorite un-saves a listing. Removing a missing favorite is a no-op.
func (r *Repository) RemoveFavorite(userID, propertyID int64) error {
	if _, err := r.db.Exec("DELETE FROM favorites WHERE user_id = ? AND property_id = ?", userID, propertyID); err != nil {
		return fmt.Errorf("removing favorite: %w", err)
	}
	return nil
}

// IsFavorite reports whether the user saved the listing.
func (r *Repository) IsFavorite(userID, propertyID int64) (bool, error) {
	var n int
	if err := r.db.QueryRow(
		"SELECT COUNT(*) FROM favorites WHERE user_id = ? AND property_id = ?", userID, propertyID,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("checking favorite: %w", err)
	}
	return n > 0, nil
}

// ListFavorites returns a user's saved listings, most recently saved first.
func (r *Repository) ListFavorites(userID int64) ([]*Property, error) {
	props, err := r.query(
		"SELECT "+qualifiedColumns("p")+` FROM properties p
		 JOIN favorites f ON f.property_id = p.id
		 WHERE f.user_id = ?
		 ORDER BY f.created_at DESC, p.id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	if err := r.attachImages(props); err != nil {
		return nil, err
	}
	return props, nil
}

func (r *Repository) execOne(id int64, action, query string, args ...any) error {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("property %d: %w", id, ErrNotFound)
	}

	return nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
