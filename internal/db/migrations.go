package db

import (
	"database/sql"
	"fmt"
)

// migrations is an ordered list of SQL statements to run.
// Every statement is idempotent so Open can run them on each start.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		email         TEXT    NOT NULL UNIQUE,
		name          TEXT    NOT NULL DEFAULT '',
		phone         TEXT    NOT NULL DEFAULT '',
		password_hash TEXT    NOT NULL DEFAULT '',
		role          TEXT    NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS auth_tokens (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		token      TEXT     NOT NULL UNIQUE,
		email      TEXT     NOT NULL,
		expires_at DATETIME NOT NULL,
		used       INTEGER  DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT     PRIMARY KEY,
		user_id    INTEGER  NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS passkey_credentials (
		id              TEXT    PRIMARY KEY,
		email           TEXT    NOT NULL,
		name            TEXT    NOT NULL DEFAULT '',
		credential_json TEXT    NOT NULL,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS properties (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id       INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title          TEXT    NOT NULL,
		description    TEXT    NOT NULL DEFAULT '',
		price          INTEGER NOT NULL CHECK (price >= 0),
		currency       TEXT    NOT NULL DEFAULT 'ARS' CHECK (currency IN ('ARS', 'USD')),
		operation      TEXT    NOT NULL CHECK (operation IN ('rent', 'sale')),
		property_type  TEXT    NOT NULL,
		city           TEXT    NOT NULL,
		province       TEXT    NOT NULL DEFAULT 'Misiones',
		address        TEXT    NOT NULL DEFAULT '',
		bedrooms       INTEGER CHECK (bedrooms IS NULL OR bedrooms >= 0),
		bathrooms      INTEGER CHECK (bathrooms IS NULL OR bathrooms >= 0),
		area_m2        REAL    CHECK (area_m2 IS NULL OR area_m2 >= 0),
		latitude       REAL,
		longitude      REAL,
		contact_phone  TEXT    NOT NULL DEFAULT '',
		status         TEXT    NOT NULL DEFAULT 'available'
		               CHECK (status IN ('available', 'reserved', 'rented', 'sold', 'expired')),
		featured       INTEGER NOT NULL DEFAULT 0,
		featured_until DATETIME,
		expires_at     DATETIME,
		search_text    TEXT    NOT NULL DEFAULT '',
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_properties_owner ON properties(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_properties_status_city ON properties(status, city)`,
	`CREATE TABLE IF NOT EXISTS property_images (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		property_id INTEGER NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
		object_key  TEXT    NOT NULL,
		url         TEXT    NOT NULL,
		position    INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS favorites (
		user_id     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		property_id INTEGER NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, property_id)
	)`,
	`CREATE TABLE IF NOT EXISTS inquiries (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		property_id INTEGER NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
		sender_id   INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		text        TEXT    NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS community_profiles (
		id         TEXT    PRIMARY KEY,
		user_id    INTEGER NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		role       TEXT    NOT NULL CHECK (role IN ('seeking', 'offering')),
		city       TEXT    NOT NULL,
		budget_min INTEGER NOT NULL DEFAULT 0,
		budget_max INTEGER NOT NULL DEFAULT 0,
		move_in    TEXT    NOT NULL DEFAULT '',
		bio        TEXT    NOT NULL DEFAULT '',
		age        INTEGER NOT NULL DEFAULT 0,
		pets       INTEGER NOT NULL DEFAULT 0,
		smoker     INTEGER NOT NULL DEFAULT 0,
		tags       TEXT    NOT NULL DEFAULT '',
		active     INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		CHECK (budget_min <= budget_max OR budget_max = 0)
	)`,
	`CREATE TABLE IF NOT EXISTS community_likes (
		from_user  INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		to_user    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (from_user, to_user),
		CHECK (from_user <> to_user)
	)`,
	`CREATE TABLE IF NOT EXISTS community_matches (
		id         TEXT    PRIMARY KEY,
		user_a     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		user_b     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (user_a, user_b),
		CHECK (user_a < user_b)
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id              TEXT    PRIMARY KEY,
		user_a          INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		user_b          INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		property_id     INTEGER REFERENCES properties(id) ON DELETE SET NULL,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_message_at DATETIME,
		UNIQUE (user_a, user_b),
		CHECK (user_a < user_b)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT    NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id       INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		body            TEXT    NOT NULL,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
		read_at         DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type       TEXT    NOT NULL,
		title      TEXT    NOT NULL,
		body       TEXT    NOT NULL DEFAULT '',
		link       TEXT    NOT NULL DEFAULT '',
		read_at    DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, read_at)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id                  TEXT    PRIMARY KEY,
		user_id             INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		property_id         INTEGER NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
		plan                TEXT    NOT NULL,
		amount              INTEGER NOT NULL CHECK (amount >= 0),
		currency            TEXT    NOT NULL DEFAULT 'ARS',
		status              TEXT    NOT NULL DEFAULT 'pending',
		preference_id       TEXT    NOT NULL DEFAULT '',
		provider_payment_id TEXT    NOT NULL DEFAULT '',
		created_at          DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at          DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
}

// migrate runs all migrations in order.
func migrate(db *sql.DB) error {
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	// Column additions, skipped when the column exists
	columnMigrations := []struct {
		table, column, definition string
	}{
		{"users", "avatar_url", "TEXT NOT NULL DEFAULT ''"},
		{"properties", "furnished", "INTEGER NOT NULL DEFAULT 0"},
		{"properties", "pets_allowed", "INTEGER NOT NULL DEFAULT 0"},
		{"properties", "city_key", "TEXT NOT NULL DEFAULT ''"},
	}

	for _, cm := range columnMigrations {
		if err := addColumnIfNotExists(db, cm.table, cm.column, cm.definition); err != nil {
			return fmt.Errorf("adding %s.%s: %w", cm.table, cm.column, err)
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

// columnExists reports whether table has the named column.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	cols, err := TableColumns(db, table)
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if c == column {
			return true, nil
		}
	}
	return false, nil
}

// TableColumns returns the column names of table in declaration order.
// An unknown table yields an empty slice.
func TableColumns(db *sql.DB, table string) ([]string, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("checking table info: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			fmt.Printf("warning: closing rows: %v\n", cerr)
		}
	}()

	var cols []string
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scanning column info: %w", err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating columns: %w", err)
	}

	return cols, nil
}
