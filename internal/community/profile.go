// Package community implements roommate profiles, likes and matches.
package community

import (
	"database/sql/driver"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
	"github.com/misiones-arrienda/arrienda/internal/validate"
)

var (
	ErrNotFound = fmt.Errorf("community profile %w", apperr.ErrNotFound)
	ErrSelfLike = fmt.Errorf("%w: cannot like your own profile", apperr.ErrInvalid)
)

// Role says whether a profile looks for a room or offers one.
type Role string

const (
	RoleSeeking  Role = "seeking"
	RoleOffering Role = "offering"
)

// Tags is a list of short labels stored comma separated.
type Tags []string

// Value implements driver.Valuer.
func (t Tags) Value() (driver.Value, error) {
	return strings.Join(t, ","), nil
}

// Scan implements sql.Scanner.
func (t *Tags) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("scanning tags from %T", src)
	}

	*t = Tags{}
	for _, tag := range strings.Split(s, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			*t = append(*t, tag)
		}
	}
	return nil
}

// Profile is a user's roommate profile.
type Profile struct {
	ID        string    `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	Role      Role      `db:"role" json:"role"`
	City      string    `db:"city" json:"city"`
	BudgetMin int64     `db:"budget_min" json:"budget_min"`
	BudgetMax int64     `db:"budget_max" json:"budget_max"`
	MoveIn    string    `db:"move_in" json:"move_in,omitempty"`
	Bio       string    `db:"bio" json:"bio"`
	Age       int       `db:"age" json:"age,omitempty"`
	Pets      bool      `db:"pets" json:"pets"`
	Smoker    bool      `db:"smoker" json:"smoker"`
	Tags      Tags      `db:"tags" json:"tags"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ProfileInput is the body of a profile upsert.
type ProfileInput struct {
	Role      Role     `json:"role"`
	City      string   `json:"city"`
	BudgetMin int64    `json:"budget_min"`
	BudgetMax int64    `json:"budget_max"`
	MoveIn    string   `json:"move_in"`
	Bio       string   `json:"bio"`
	Age       int      `json:"age"`
	Pets      bool     `json:"pets"`
	Smoker    bool     `json:"smoker"`
	Tags      []string `json:"tags"`
	Active    *bool    `json:"active"`
}

//go:embed schema/profile.json
var profileSchemaDoc string

var profileSchema = validate.MustCompile("profile.json", profileSchemaDoc, "")

// DecodeProfile validates a profile payload.
func DecodeProfile(raw []byte) (ProfileInput, error) {
	var in ProfileInput
	if err := validate.Decode(profileSchema, raw, &in); err != nil {
		return ProfileInput{}, err
	}
	if err := in.check(); err != nil {
		return ProfileInput{}, err
	}
	return in, nil
}

func (in ProfileInput) check() error {
	if in.BudgetMax > 0 && in.BudgetMin > in.BudgetMax {
		return apperr.Invalid("budget_min must not exceed budget_max")
	}
	if in.MoveIn != "" {
		if _, err := time.Parse(time.DateOnly, in.MoveIn); err != nil {
			return apperr.Invalid("move_in: not a valid date")
		}
	}
	if strings.TrimSpace(in.City) == "" {
		return apperr.Invalid("city: must not be blank")
	}
	return nil
}

// profile builds the stored profile for userID.
func (in ProfileInput) profile(userID int64) *Profile {
	p := &Profile{
		UserID:    userID,
		Role:      in.Role,
		City:      strings.TrimSpace(in.City),
		BudgetMin: in.BudgetMin,
		BudgetMax: in.BudgetMax,
		MoveIn:    in.MoveIn,
		Bio:       strings.TrimSpace(in.Bio),
		Age:       in.Age,
		Pets:      in.Pets,
		Smoker:    in.Smoker,
		Tags:      Tags{},
		Active:    true,
	}
	for _, tag := range in.Tags {
		// Commas are the storage separator.
		tag = strings.TrimSpace(strings.ReplaceAll(tag, ",", " "))
		if tag != "" {
			p.Tags = append(p.Tags, strings.ToLower(tag))
		}
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	return p
}

// Match is a mutual like. UserA is always the smaller user id.
type Match struct {
	ID        string    `db:"id" json:"id"`
	UserA     int64     `db:"user_a" json:"user_a"`
	UserB     int64     `db:"user_b" json:"user_b"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Other returns the participant that is not userID.
func (m *Match) Other(userID int64) int64 {
	if m.UserA == userID {
		return m.UserB
	}
	return m.UserA
}

// orderPair returns a and b with the smaller first.
func orderPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}
