package profile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/achat/internal/bus"
	"github.com/matheus3301/achat/internal/session"
	"github.com/matheus3301/achat/internal/store"
)

func testService(t *testing.T) (*Service, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewService(db, session.Context{UserID: "me"}, bus.New(), nil), db
}

func ptr(s string) *string { return &s }

func TestCurrentCreatesRow(t *testing.T) {
	s, _ := testService(t)
	u, err := s.Current(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "me" || u.Presence != store.PresenceOffline {
		t.Errorf("current = %+v", u)
	}
}

func TestSignedOutSessionHasNoProfile(t *testing.T) {
	_, db := testService(t)
	s := NewService(db, session.Context{Name: "main"}, bus.New(), nil)
	ctx := context.Background()

	if _, err := s.Current(ctx); !errors.Is(err, session.ErrNoUser) {
		t.Errorf("Current() err = %v, want ErrNoUser", err)
	}
	if _, err := s.UpdateCurrent(ctx, Update{FirstName: ptr("Ann")}); !errors.Is(err, session.ErrNoUser) {
		t.Errorf("UpdateCurrent() err = %v, want ErrNoUser", err)
	}
	if err := s.SetPresence(ctx, store.PresenceOnline); !errors.Is(err, session.ErrNoUser) {
		t.Errorf("SetPresence() err = %v, want ErrNoUser", err)
	}
	if err := s.SetCustomStatus(ctx, "", "busy"); !errors.Is(err, session.ErrNoUser) {
		t.Errorf("SetCustomStatus() err = %v, want ErrNoUser", err)
	}
	if u, err := db.GetUser(ctx, ""); err != nil || u != nil {
		t.Errorf("user row with empty id = %+v, %v", u, err)
	}
}

func TestUpdateCurrentKeepsUnsetFields(t *testing.T) {
	s, _ := testService(t)
	ctx := context.Background()

	if _, err := s.UpdateCurrent(ctx, Update{FirstName: ptr(" Ann "), About: ptr("hello")}); err != nil {
		t.Fatal(err)
	}
	u, err := s.UpdateCurrent(ctx, Update{LastName: ptr("Lee")})
	if err != nil {
		t.Fatal(err)
	}
	if u.FirstName != "Ann" || u.LastName != "Lee" || u.About != "hello" {
		t.Errorf("after updates = %+v", u)
	}

	again, _ := s.Current(ctx)
	if again.Name() != "Ann Lee" {
		t.Errorf("persisted name = %q", again.Name())
	}
}

func TestPresenceAndCustomStatus(t *testing.T) {
	s, db := testService(t)
	ctx := context.Background()
	b := s.bus
	events, unsub := b.Subscribe("contact.", 4)
	defer unsub()

	if err := s.SetPresence(ctx, store.PresenceDoNotDisturb); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCustomStatus(ctx, "🌴", " on holiday "); err != nil {
		t.Fatal(err)
	}
	u, _ := db.GetUser(ctx, "me")
	if u.Presence != store.PresenceDoNotDisturb || u.CustomStatus != "on holiday" || u.StatusEmoji != "🌴" {
		t.Errorf("user = %+v", u)
	}

	for i := 0; i < 2; i++ {
		select {
		case evt := <-events:
			if evt.Payload != "me" {
				t.Errorf("event payload = %v", evt.Payload)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event %d", i)
		}
	}
}

func TestPeer(t *testing.T) {
	s, db := testService(t)
	ctx := context.Background()

	if _, err := s.Peer(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown peer: err = %v, want ErrNotFound", err)
	}

	if err := db.UpsertUser(ctx, &store.User{ID: "p1", DisplayName: "zed", Presence: store.PresenceIdle}); err != nil {
		t.Fatal(err)
	}
	p, err := s.Peer(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.FullName != "zed" || p.Initials != "Z" || p.PresenceLabel != "Away" {
		t.Errorf("peer = %+v", p)
	}
}

func TestInitials(t *testing.T) {
	tests := []struct {
		user store.User
		want string
	}{
		{store.User{FirstName: "ann", LastName: "lee"}, "A"},
		{store.User{LastName: "lee"}, "L"},
		{store.User{DisplayName: "élan"}, "É"},
		{store.User{ID: "x"}, "?"},
	}
	for _, tt := range tests {
		if got := Initials(&tt.user); got != tt.want {
			t.Errorf("Initials(%+v) = %q, want %q", tt.user, got, tt.want)
		}
	}
}

func TestPresenceLabel(t *testing.T) {
	tests := map[store.Presence]string{
		store.PresenceOnline:       "Online",
		store.PresenceIdle:         "Away",
		store.PresenceDoNotDisturb: "Busy",
		store.PresenceInvisible:    "Offline",
		store.PresenceOffline:      "Offline",
	}
	for p, want := range tests {
		if got := p.Label(); got != want {
			t.Errorf("%s.Label() = %q, want %q", p, got, want)
		}
	}
}

func TestContacts(t *testing.T) {
	s, db := testService(t)
	ctx := context.Background()
	for _, u := range []store.User{
		{ID: "u1", FirstName: "Zoe", IsContact: true, LastSeenAt: 100},
		{ID: "u2", FirstName: "Adam", IsContact: true, LastSeenAt: 300},
		{ID: "u3", FirstName: "Mia", IsContact: false},
	} {
		u := u
		if err := db.UpsertUser(ctx, &u); err != nil {
			t.Fatal(err)
		}
	}

	byName, err := s.Contacts(ctx, "", store.SortByName)
	if err != nil {
		t.Fatal(err)
	}
	if len(byName) != 2 || byName[0].ID != "u2" || byName[1].ID != "u1" {
		t.Errorf("by name = %+v", byName)
	}
	bySeen, _ := s.Contacts(ctx, "", store.SortByLastSeen)
	if len(bySeen) != 2 || bySeen[0].ID != "u2" {
		t.Errorf("by last seen = %+v", bySeen)
	}
	found, _ := s.Contacts(ctx, "zo", store.SortByName)
	if len(found) != 1 || found[0].ID != "u1" {
		t.Errorf("search = %+v", found)
	}
}
