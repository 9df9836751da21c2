// Package diagnose checks the health and integrity of the database.
package diagnose

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/misiones-arrienda/arrienda/internal/db"
)

// Check is the outcome of one diagnostic.
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Report is the outcome of a diagnostic run.
type Report struct {
	Checks []Check `json:"checks"`
	OK     bool    `json:"ok"`
}

// Failed returns the checks that did not pass.
func (r *Report) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.OK {
			out = append(out, c)
		}
	}
	return out
}

// Options tune a run.
type Options struct {
	AdminEmail string
	Now        time.Time
}

type countCheck struct {
	name  string
	query string
	what  string
}

var integrityChecks = []countCheck{
	{
		name:  "orphaned images",
		query: `SELECT COUNT(*) FROM property_images i LEFT JOIN properties p ON p.id = i.property_id WHERE p.id IS NULL`,
		what:  "images without a listing",
	},
	{
		name:  "orphaned messages",
		query: `SELECT COUNT(*) FROM messages m LEFT JOIN conversations c ON c.id = m.conversation_id WHERE c.id IS NULL`,
		what:  "messages without a conversation",
	},
	{
		name: "orphaned likes",
		query: `SELECT COUNT(*) FROM community_likes l
			LEFT JOIN users a ON a.id = l.from_user LEFT JOIN users b ON b.id = l.to_user
			WHERE a.id IS NULL OR b.id IS NULL`,
		what: "likes referencing missing users",
	},
	{
		name:  "conversation participants",
		query: `SELECT COUNT(*) FROM conversations WHERE user_a >= user_b`,
		what:  "conversations without two ordered distinct participants",
	},
}

// Run executes every check against conn. It returns an error only when the
// run itself could not proceed; failed checks are reported in the Report.
func Run(ctx context.Context, conn *sql.DB, opts Options) (*Report, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	rep := &Report{OK: true}
	add := func(c Check) {
		rep.Checks = append(rep.Checks, c)
		if !c.OK {
			rep.OK = false
		}
	}

	if err := conn.PingContext(ctx); err != nil {
		add(Check{Name: "database reachable", Detail: err.Error()})
		return rep, nil
	}
	add(Check{Name: "database reachable", OK: true})

	add(checkTables(ctx, conn))
	add(checkForeignKeys(ctx, conn))

	for _, c := range integrityChecks {
		add(count(ctx, conn, c.name, c.what, c.query))
	}

	add(count(ctx, conn, "listing expiry", "available listings past their expiry",
		`SELECT COUNT(*) FROM properties WHERE status = 'available' AND expires_at IS NOT NULL AND expires_at < ?`,
		opts.Now.UTC()))

	add(checkAdmin(ctx, conn, opts.AdminEmail))

	return rep, nil
}

func checkTables(ctx context.Context, conn *sql.DB) Check {
	c := Check{Name: "tables"}

	var missing []string
	for _, table := range db.Tables() {
		var n int
		err := conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&n)
		if err != nil {
			c.Detail = fmt.Sprintf("checking %s: %v", table, err)
			return c
		}
		if n == 0 {
			missing = append(missing, table)
		}
	}

	if len(missing) > 0 {
		c.Detail = "missing: " + strings.Join(missing, ", ")
		return c
	}
	c.OK = true
	c.Detail = fmt.Sprintf("%d tables", len(db.Tables()))
	return c
}

func checkForeignKeys(ctx context.Context, conn *sql.DB) Check {
	c := Check{Name: "foreign keys"}
	var on int
	if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on); err != nil {
		c.Detail = err.Error()
		return c
	}
	c.OK = on == 1
	if !c.OK {
		c.Detail = "foreign key enforcement is off"
	}
	return c
}

func count(ctx context.Context, conn *sql.DB, name, what, query string, args ...any) Check {
	c := Check{Name: name}
	var n int
	if err := conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		c.Detail = err.Error()
		return c
	}
	c.OK = n == 0
	if n > 0 {
		c.Detail = fmt.Sprintf("%d %s", n, what)
	}
	return c
}

func checkAdmin(ctx context.Context, conn *sql.DB, adminEmail string) Check {
	c := Check{Name: "admin user"}
	var n int
	err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role = 'admin' OR (? <> '' AND email = ?)`,
		adminEmail, strings.ToLower(adminEmail),
	).Scan(&n)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	c.OK = n > 0
	if !c.OK {
		c.Detail = "no admin: set ARRIENDA_ADMIN_EMAIL or run 'arrienda user promote'"
	}
	return c
}
