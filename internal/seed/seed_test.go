package seed

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/misiones-arrienda/arrienda/internal/auth"
	"github.com/misiones-arrienda/arrienda/internal/community"
	"github.com/misiones-arrienda/arrienda/internal/db"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func count(t *testing.T, d *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := d.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestRun(t *testing.T) {
	d := openDB(t)
	ctx := context.Background()

	rep, err := Run(ctx, d, Options{AdminEmail: "lucia@example.com"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if rep.Users != len(sampleUsers) {
		t.Errorf("users = %d, want %d", rep.Users, len(sampleUsers))
	}
	if rep.Matches != 1 || rep.Messages != 2 {
		t.Errorf("matches/messages = %d/%d, want 1/2", rep.Matches, rep.Messages)
	}

	tests := []struct {
		table string
		want  int
	}{
		{"users", rep.Users},
		{"properties", rep.Listings},
		{"community_profiles", rep.Profiles},
		{"community_likes", 2},
		{"community_matches", 1},
		{"conversations", 1},
		{"messages", 2},
	}
	for _, tt := range tests {
		if got := count(t, d, tt.table); got != tt.want {
			t.Errorf("%s rows = %d, want %d", tt.table, got, tt.want)
		}
	}

	users := auth.NewUserStore(d, "lucia@example.com")
	u, err := users.Authenticate("tomas@example.com", DefaultPassword)
	if err != nil {
		t.Fatalf("seeded password does not authenticate: %v", err)
	}
	if u.Name != "Tomás Acosta" {
		t.Errorf("name = %q", u.Name)
	}
	admin, err := users.Authenticate("lucia@example.com", DefaultPassword)
	if err != nil {
		t.Fatalf("authenticate admin: %v", err)
	}
	if !admin.IsAdmin() {
		t.Error("configured admin email was not promoted")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	d := openDB(t)
	ctx := context.Background()

	if _, err := Run(ctx, d, Options{Password: "secreto123"}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before := count(t, d, "properties")

	rep, err := Run(ctx, d, Options{Password: "secreto123"})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if rep.Users != 0 || rep.Listings != 0 || rep.Matches != 0 {
		t.Errorf("second run created %+v, want nothing", rep)
	}
	if after := count(t, d, "properties"); after != before {
		t.Errorf("properties = %d after second run, want %d", after, before)
	}
}

func TestRunNormalizesProfileTags(t *testing.T) {
	d := openDB(t)
	ctx := context.Background()

	if _, err := Run(ctx, d, Options{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	lucia, err := auth.NewUserStore(d, "").GetByEmail("lucia@example.com")
	if err != nil {
		t.Fatalf("get lucia: %v", err)
	}
	p, err := community.NewRepository(d).GetByUserID(ctx, lucia.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	want := community.Tags{"no fumadora", "ordenada"}
	if !reflect.DeepEqual(p.Tags, want) {
		t.Errorf("tags = %q, want %q", p.Tags, want)
	}
}

func TestRunCompletesPartialSeed(t *testing.T) {
	d := openDB(t)
	ctx := context.Background()

	first, err := Run(ctx, d, Options{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Leave Lucía registered but without the rest of her data, as an
	// interrupted run would.
	for _, q := range []string{
		`DELETE FROM properties WHERE owner_id = (SELECT id FROM users WHERE email = 'lucia@example.com')`,
		`DELETE FROM community_profiles WHERE user_id = (SELECT id FROM users WHERE email = 'lucia@example.com')`,
		`DELETE FROM community_matches`,
		`DELETE FROM messages`,
	} {
		if _, err := d.Exec(q); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
	}

	rep, err := Run(ctx, d, Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if rep.Users != 0 {
		t.Errorf("users = %d, want 0", rep.Users)
	}
	if rep.Listings != 2 || rep.Profiles != 1 || rep.Matches != 1 || rep.Messages != 2 {
		t.Errorf("second run created %+v, want 2 listings, 1 profile, 1 match, 2 messages", rep)
	}

	tests := []struct {
		table string
		want  int
	}{
		{"properties", first.Listings},
		{"community_profiles", first.Profiles},
		{"community_matches", 1},
		{"conversations", 1},
		{"messages", 2},
	}
	for _, tt := range tests {
		if got := count(t, d, tt.table); got != tt.want {
			t.Errorf("%s rows = %d, want %d", tt.table, got, tt.want)
		}
	}
}
