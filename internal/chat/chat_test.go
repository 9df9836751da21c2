package chat

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
	"github.com/misiones-arrienda/arrienda/internal/auth"
	"github.com/misiones-arrienda/arrienda/internal/db"
	"github.com/misiones-arrienda/arrienda/internal/notification"
)

type matchSet map[[2]int64]bool

func (m matchSet) IsMatched(_ context.Context, a, b int64) (bool, error) {
	a, b = orderPair(a, b)
	return m[[2]int64{a, b}], nil
}

type ownerMap map[int64]int64

func (o ownerMap) OwnerID(id int64) (int64, error) {
	owner, ok := o[id]
	if !ok {
		return 0, apperr.ErrNotFound
	}
	return owner, nil
}

type inbox struct {
	got []int64
}

func (n *inbox) Notify(_ context.Context, userID int64, _ notification.Type, _, _, _ string) error {
	n.got = append(n.got, userID)
	return nil
}

type fixture struct {
	svc                  *Service
	repo                 *Repository
	hub                  *Hub
	matches              matchSet
	inbox                *inbox
	ana, bruno, outsider *auth.User
	d                    *sql.DB
}

func setup(t *testing.T) *fixture {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	user := func(name string) *auth.User {
		res, err := d.Exec(`INSERT INTO users (email, name) VALUES (?, ?)`, name+"@example.com", name)
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		return &auth.User{ID: id, Email: name + "@example.com", Name: name}
	}

	f := &fixture{
		repo:     NewRepository(d),
		hub:      NewHub(),
		matches:  matchSet{},
		inbox:    &inbox{},
		ana:      user("ana"),
		bruno:    user("bruno"),
		outsider: user("oscar"),
		d:        d,
	}
	res, err := d.Exec(`INSERT INTO properties (owner_id, title, price, operation, property_type, city) VALUES (?, 'Depto', 1, 'rent', 'apartment', 'Posadas')`, f.bruno.ID)
	require.NoError(t, err)
	listing, err := res.LastInsertId()
	require.NoError(t, err)

	f.svc = NewService(f.repo, f.hub, f.matches, ownerMap{listing: f.bruno.ID}, f.inbox)
	return f
}

func (f *fixture) match(a, b int64) {
	a, b = orderPair(a, b)
	f.matches[[2]int64{a, b}] = true
}

func TestOpenRequiresMatchOrListing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Open(ctx, f.ana, f.ana.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = f.svc.Open(ctx, f.ana, f.bruno.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	var listing int64
	require.NoError(t, f.d.QueryRow(`SELECT id FROM properties`).Scan(&listing))

	c, err := f.svc.Open(ctx, f.ana, f.bruno.ID, &listing)
	require.NoError(t, err)
	require.NotNil(t, c.PropertyID)
	assert.Equal(t, listing, *c.PropertyID)
	assert.Equal(t, f.bruno.ID, c.OtherUserID)
	assert.Equal(t, "bruno", c.OtherName)

	// The listing owner is not the outsider.
	_, err = f.svc.Open(ctx, f.ana, f.outsider.ID, &listing)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestOpenIsOrderIndependent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.match(f.ana.ID, f.bruno.ID)

	c1, err := f.svc.Open(ctx, f.ana, f.bruno.ID, nil)
	require.NoError(t, err)
	c2, err := f.svc.Open(ctx, f.bruno, f.ana.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
	assert.Less(t, c1.UserA, c1.UserB)

	id, err := f.svc.OpenForMatch(ctx, f.bruno.ID, f.ana.ID)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, id)

	var n int
	require.NoError(t, f.d.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSendAndRead(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.match(f.ana.ID, f.bruno.ID)
	c, err := f.svc.Open(ctx, f.ana, f.bruno.ID, nil)
	require.NoError(t, err)

	live, cancel, err := f.svc.Subscribe(ctx, f.bruno, c.ID)
	require.NoError(t, err)
	defer cancel()

	first, err := f.svc.Send(ctx, f.ana, c.ID, "  Hola Bruno  ")
	require.NoError(t, err)
	assert.Equal(t, "Hola Bruno", first.Body)
	_, err = f.svc.Send(ctx, f.ana, c.ID, "¿Cuándo puedo ver el depto?")
	require.NoError(t, err)

	select {
	case m := <-live:
		assert.Equal(t, first.ID, m.ID)
	case <-time.After(time.Second):
		t.Fatal("no realtime message")
	}
	assert.Equal(t, []int64{f.bruno.ID, f.bruno.ID}, f.inbox.got)

	unread, err := f.svc.Unread(ctx, f.bruno)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	list, err := f.svc.List(ctx, f.bruno)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Unread)
	assert.Equal(t, "¿Cuándo puedo ver el depto?", list[0].LastMessage)
	assert.NotNil(t, list[0].LastMessageAt)

	after, err := f.svc.Messages(ctx, f.bruno, c.ID, first.ID, 0)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Greater(t, after[0].ID, first.ID)

	// Ana reading marks nothing: both messages are hers.
	n, err := f.svc.MarkRead(ctx, f.ana, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = f.svc.MarkRead(ctx, f.bruno, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	unread, err = f.svc.Unread(ctx, f.bruno)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}

func TestListMessagesLimitIsCapped(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c, err := f.repo.GetOrCreate(ctx, f.ana.ID, f.bruno.ID, nil)
	require.NoError(t, err)

	for i := 0; i < MaxMessageLimit+5; i++ {
		_, err := f.d.Exec(`INSERT INTO messages (conversation_id, sender_id, body) VALUES (?, ?, 'hola')`, c.ID, f.ana.ID)
		require.NoError(t, err)
	}

	list, err := f.repo.ListMessages(ctx, c.ID, 0, 1000)
	require.NoError(t, err)
	assert.Len(t, list, MaxMessageLimit)

	list, err = f.repo.ListMessages(ctx, c.ID, 0, -1)
	require.NoError(t, err)
	assert.Len(t, list, DefaultMessageLimit)
}

func TestNonParticipantIsForbidden(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.match(f.ana.ID, f.bruno.ID)
	c, err := f.svc.Open(ctx, f.ana, f.bruno.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.Messages(ctx, f.outsider, c.ID, 0, 0)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.svc.Send(ctx, f.outsider, c.ID, "hola")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, _, err = f.svc.Subscribe(ctx, f.outsider, c.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.svc.Get(ctx, f.ana, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"plain", "hola", false},
		{"blank", " \n\t ", true},
		{"at limit", strings.Repeat("ñ", MaxBodyLength), false},
		{"over limit", strings.Repeat("a", MaxBodyLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CheckBody(tt.body)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "corto", preview("corto"))
	long := preview(strings.Repeat("á", 100))
	assert.Equal(t, 80, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "…"))
}
