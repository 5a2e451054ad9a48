package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PeerPair returns the normalized (lo, hi) ordering of two user ids.
func PeerPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// CreateDirectChat inserts a one-to-one chat, both participant rows, user rows
// for both members, and marks peer as a contact, all in one transaction.
// Returns ErrDuplicateChat when a chat for the pair already exists.
func (db *DB) CreateDirectChat(ctx context.Context, chatID, self, peer string) error {
	lo, hi := PeerPair(self, peer)
	now := time.Now()
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chats (chat_id, peer_lo, peer_hi, created_at) VALUES (?, ?, ?, ?)`,
			chatID, lo, hi, FormatTime(now)); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateChat
			}
			return err
		}
		for _, uid := range []string{self, peer} {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO chat_participants (chat_id, user_id) VALUES (?, ?)`, chatID, uid); err != nil {
				return err
			}
			if err := ensureUser(ctx, tx, uid); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `UPDATE users SET is_contact = 1, updated_at = ? WHERE user_id = ?`,
			now.UnixMilli(), peer)
		return err
	})
	return storageErr("create direct chat", err)
}

// FindDirectChat returns the id of the chat whose participant set is exactly
// {a, b}, or "" if there is none.
func (db *DB) FindDirectChat(ctx context.Context, a, b string) (string, error) {
	var chatID string
	err := db.QueryRowContext(ctx, `
		SELECT p.chat_id
		FROM chat_participants p
		WHERE p.chat_id IN (SELECT chat_id FROM chat_participants WHERE user_id = ?)
		GROUP BY p.chat_id
		HAVING COUNT(*) = 2 AND SUM(p.user_id = ?) = 1 AND SUM(p.user_id = ?) = 1
		ORDER BY p.chat_id
		LIMIT 1`, a, a, b).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storageErr("find direct chat", err)
	}
	return chatID, nil
}

// ChatExists reports whether a chat row exists.
func (db *DB) ChatExists(ctx context.Context, chatID string) (bool, error) {
	return chatExists(ctx, db, chatID)
}

func chatExists(ctx context.Context, q execer, chatID string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM chats WHERE chat_id = ?`, chatID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("chat exists", err)
	}
	return true, nil
}

// ListChatIDs returns every chat id in creation order.
func (db *DB) ListChatIDs(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT chat_id FROM chats ORDER BY created_at, chat_id`)
	if err != nil {
		return nil, storageErr("list chats", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("list chats", err)
		}
		ids = append(ids, id)
	}
	return ids, storageErr("list chats", rows.Err())
}

// Participants returns the user ids of a chat's members.
func (db *DB) Participants(ctx context.Context, chatID string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT user_id FROM chat_participants WHERE chat_id = ? ORDER BY user_id`, chatID)
	if err != nil {
		return nil, storageErr("participants", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("participants", err)
		}
		ids = append(ids, id)
	}
	return ids, storageErr("participants", rows.Err())
}

// DeleteChat removes a chat together with its messages, outbox entries and
// participant rows. Returns ErrNotFound if the chat does not exist.
func (db *DB) DeleteChat(ctx context.Context, chatID string) error {
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM outbox WHERE chat_id = ?`, chatID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chat_participants WHERE chat_id = ?`, chatID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE chat_id = ?`, chatID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	return storageErr("delete chat", err)
}

// ChatCount returns the total number of chats.
func (db *DB) ChatCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, storageErr("count chats", err)
}
