package community

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/misiones-arrienda/arrienda/internal/db"
)

// Repository stores profiles, likes and matches.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a community repository over an open database.
func NewRepository(conn *sql.DB) *Repository {
	return &Repository{db: sqlx.NewDb(conn, db.DriverName)}
}

const selectProfile = `SELECT p.id, p.user_id, u.name, p.role, p.city, p.budget_min, p.budget_max, p.move_in,
	p.bio, p.age, p.pets, p.smoker, p.tags, p.active, p.created_at, p.updated_at
	FROM community_profiles p JOIN users u ON u.id = p.user_id`

// Upsert creates or replaces the profile of p.UserID. The profile id is kept
// across updates.
func (r *Repository) Upsert(ctx context.Context, p *Profile) (*Profile, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `INSERT INTO community_profiles
		(id, user_id, role, city, budget_min, budget_max, move_in, bio, age, pets, smoker, tags, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			role = excluded.role, city = excluded.city, budget_min = excluded.budget_min,
			budget_max = excluded.budget_max, move_in = excluded.move_in, bio = excluded.bio,
			age = excluded.age, pets = excluded.pets, smoker = excluded.smoker, tags = excluded.tags,
			active = excluded.active, updated_at = excluded.updated_at`,
		uuid.NewString(), p.UserID, p.Role, p.City, p.BudgetMin, p.BudgetMax, p.MoveIn, p.Bio, p.Age,
		p.Pets, p.Smoker, p.Tags, p.Active, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("saving profile: %w", err)
	}
	return r.GetByUserID(ctx, p.UserID)
}

func (r *Repository) getProfile(ctx context.Context, where string, arg any) (*Profile, error) {
	var p Profile
	err := r.db.GetContext(ctx, &p, selectProfile+" WHERE "+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	return &p, nil
}

// GetByUserID returns the profile of a user.
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*Profile, error) {
	return r.getProfile(ctx, "p.user_id = ?", userID)
}

// GetByID returns a profile by its id.
func (r *Repository) GetByID(ctx context.Context, id string) (*Profile, error) {
	return r.getProfile(ctx, "p.id = ?", id)
}

// ListOptions filters the profile browser.
type ListOptions struct {
	Viewer    int64 // excluded, along with profiles the viewer already liked
	Role      Role
	City      string
	MaxBudget int64
	Limit     int
	Offset    int
}

// List returns active profiles matching opts, newest first.
func (r *Repository) List(ctx context.Context, opts ListOptions) ([]Profile, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	query := selectProfile + " WHERE p.active = 1"
	var args []any
	if opts.Viewer != 0 {
		query += ` AND p.user_id <> ?
			AND p.user_id NOT IN (SELECT to_user FROM community_likes WHERE from_user = ?)`
		args = append(args, opts.Viewer, opts.Viewer)
	}
	if opts.Role != "" {
		query += " AND p.role = ?"
		args = append(args, opts.Role)
	}
	if opts.City != "" {
		query += " AND p.city = ? COLLATE NOCASE"
		args = append(args, opts.City)
	}
	if opts.MaxBudget > 0 {
		query += " AND p.budget_min <= ?"
		args = append(args, opts.MaxBudget)
	}
	query += " ORDER BY p.updated_at DESC, p.id LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	list := []Profile{}
	if err := r.db.SelectContext(ctx, &list, query, args...); err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	return list, nil
}

// DeleteByUserID removes a user's profile.
func (r *Repository) DeleteByUserID(ctx context.Context, userID int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM community_profiles WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("deleting profile: %w", err)
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

// AddLike records that from likes to. It reports whether a new like was
// written; liking twice is a no-op.
func (r *Repository) AddLike(ctx context.Context, from, to int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO community_likes (from_user, to_user, created_at) VALUES (?, ?, ?)",
		from, to, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("adding like: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// RemoveLike deletes a like and any match it was part of.
func (r *Repository) RemoveLike(ctx context.Context, from, to int64) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM community_likes WHERE from_user = ? AND to_user = ?", from, to); err != nil {
		return fmt.Errorf("removing like: %w", err)
	}
	a, b := orderPair(from, to)
	if _, err = tx.ExecContext(ctx, "DELETE FROM community_matches WHERE user_a = ? AND user_b = ?", a, b); err != nil {
		return fmt.Errorf("removing match: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// HasLike reports whether from likes to.
func (r *Repository) HasLike(ctx context.Context, from, to int64) (bool, error) {
	var n int
	if err := r.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM community_likes WHERE from_user = ? AND to_user = ?", from, to,
	); err != nil {
		return false, fmt.Errorf("checking like: %w", err)
	}
	return n > 0, nil
}

// CreateMatch records a match between a and b, in either order, and returns
// it. created is true only for the call that inserted the row.
func (r *Repository) CreateMatch(ctx context.Context, a, b int64) (m *Match, created bool, err error) {
	a, b = orderPair(a, b)
	res, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO community_matches (id, user_a, user_b, created_at) VALUES (?, ?, ?, ?)",
		uuid.NewString(), a, b, time.Now().UTC(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("creating match: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("creating match: %w", err)
	}

	m = &Match{}
	if err := r.db.GetContext(ctx, m,
		"SELECT id, user_a, user_b, created_at FROM community_matches WHERE user_a = ? AND user_b = ?", a, b,
	); err != nil {
		return nil, false, fmt.Errorf("loading match: %w", err)
	}
	return m, n > 0, nil
}

// ListMatches returns the user's matches, newest first.
func (r *Repository) ListMatches(ctx context.Context, userID int64) ([]Match, error) {
	list := []Match{}
	if err := r.db.SelectContext(ctx, &list,
		`SELECT id, user_a, user_b, created_at FROM community_matches
		 WHERE user_a = ? OR user_b = ? ORDER BY created_at DESC, id`,
		userID, userID,
	); err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	return list, nil
}

// IsMatched reports whether a and b matched.
func (r *Repository) IsMatched(ctx context.Context, a, b int64) (bool, error) {
	a, b = orderPair(a, b)
	var n int
	if err := r.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM community_matches WHERE user_a = ? AND user_b = ?", a, b,
	); err != nil {
		return false, fmt.Errorf("checking match: %w", err)
	}
	return n > 0, nil
}
