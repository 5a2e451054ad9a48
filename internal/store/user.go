package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// ContactSort selects the ordering of ListContacts.
type ContactSort string

const (
	SortByName     ContactSort = "name"
	SortByLastSeen ContactSort = "lastseen"
)

const userColumns = `user_id, first_name, last_name, display_name, about, birthdate, avatar_url,
	is_contact, presence, custom_status, status_emoji, last_seen_at`

func ensureUser(ctx context.Context, q execer, userID string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (user_id, updated_at) VALUES (?, ?)
		ON CONFLICT(user_id) DO NOTHING`, userID, time.Now().UnixMilli())
	return err
}

// EnsureUser inserts an empty user row if none exists.
func (db *DB) EnsureUser(ctx context.Context, userID string) error {
	return storageErr("ensure user", ensureUser(ctx, db, userID))
}

// UpsertUser inserts or updates a user's profile fields. The contact flag is
// only set on insert; use SetContact to change it afterwards.
func (db *DB) UpsertUser(ctx context.Context, u *User) error {
	presence := u.Presence
	if presence == "" {
		presence = PresenceOffline
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (user_id, first_name, last_name, display_name, about, birthdate, avatar_url,
			is_contact, presence, custom_status, status_emoji, last_seen_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			display_name = excluded.display_name,
			about = excluded.about,
			birthdate = excluded.birthdate,
			avatar_url = excluded.avatar_url,
			presence = excluded.presence,
			custom_status = excluded.custom_status,
			status_emoji = excluded.status_emoji,
			last_seen_at = MAX(users.last_seen_at, excluded.last_seen_at),
			updated_at = excluded.updated_at`,
		u.ID, u.FirstName, u.LastName, u.DisplayName, u.About, u.Birthdate, u.AvatarURL,
		u.IsContact, presence, u.CustomStatus, u.StatusEmoji, u.LastSeenAt, time.Now().UnixMilli())
	return storageErr("upsert user", err)
}

// GetUser returns a user by id, or nil if absent.
func (db *DB) GetUser(ctx context.Context, userID string) (*User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get user", err)
	}
	return u, nil
}

// SetContact toggles the contact flag. When create is true a missing user row
// is created first; otherwise a missing user yields ErrNotFound.
func (db *DB) SetContact(ctx context.Context, userID string, isContact, create bool) error {
	if create {
		if err := ensureUser(ctx, db, userID); err != nil {
			return storageErr("set contact", err)
		}
	}
	return db.updateUser(ctx, "set contact", `UPDATE users SET is_contact = ?, updated_at = ? WHERE user_id = ?`,
		isContact, time.Now().UnixMilli(), userID)
}

// SetPresence updates a user's presence.
func (db *DB) SetPresence(ctx context.Context, userID string, p Presence) error {
	return db.updateUser(ctx, "set presence", `UPDATE users SET presence = ?, updated_at = ? WHERE user_id = ?`,
		p, time.Now().UnixMilli(), userID)
}

// SetCustomStatus updates a user's free-text status and its emoji.
func (db *DB) SetCustomStatus(ctx context.Context, userID, emoji, text string) error {
	return db.updateUser(ctx, "set custom status",
		`UPDATE users SET status_emoji = ?, custom_status = ?, updated_at = ? WHERE user_id = ?`,
		emoji, text, time.Now().UnixMilli(), userID)
}

// TouchLastSeen records activity from a user, creating the row if needed.
func (db *DB) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (user_id, last_seen_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			last_seen_at = MAX(users.last_seen_at, excluded.last_seen_at)`,
		userID, at.UnixMilli(), time.Now().UnixMilli())
	return storageErr("touch last seen", err)
}

func (db *DB) updateUser(ctx context.Context, op, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return storageErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr(op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// likeEscaper makes search text match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListContacts returns users flagged as contacts, optionally filtered by a
// case-insensitive search over names and id.
func (db *DB) ListContacts(ctx context.Context, search string, sort ContactSort) ([]User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE is_contact = 1`
	var args []any
	if s := strings.TrimSpace(search); s != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
		q += ` AND (lower(first_name) LIKE ? ESCAPE '\' OR lower(last_name) LIKE ? ESCAPE '\'
			OR lower(display_name) LIKE ? ESCAPE '\' OR lower(first_name || ' ' || last_name) LIKE ? ESCAPE '\'
			OR lower(user_id) LIKE ? ESCAPE '\')`
		args = append(args, like, like, like, like, like)
	}
	nameOrder := `lower(COALESCE(NULLIF(trim(first_name || ' ' || last_name), ''), NULLIF(display_name, ''), user_id))`
	switch sort {
	case SortByLastSeen:
		q += ` ORDER BY last_seen_at DESC, ` + nameOrder
	default:
		q += ` ORDER BY ` + nameOrder + `, user_id`
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("list contacts", err)
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, storageErr("list contacts", err)
		}
		users = append(users, *u)
	}
	return users, storageErr("list contacts", rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (*User, error) {
	var u User
	var presence string
	if err := r.Scan(&u.ID, &u.FirstName, &u.LastName, &u.DisplayName, &u.About, &u.Birthdate,
		&u.AvatarURL, &u.IsContact, &presence, &u.CustomStatus, &u.StatusEmoji, &u.LastSeenAt); err != nil {
		return nil, err
	}
	u.Presence = Presence(presence)
	return &u, nil
}
