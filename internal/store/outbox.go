package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func queueOutbox(ctx context.Context, q execer, clientMsgID string, messageID int64, chatID, body string) error {
	now := time.Now().UnixMilli()
	_, err := q.ExecContext(ctx, `
		INSERT INTO outbox (client_msg_id, message_id, chat_id, body, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', ?, ?)`,
		clientMsgID, messageID, chatID, body, now, now)
	return err
}

// MarkOutboxSending updates an outbox entry to 'sending' status.
func (db *DB) MarkOutboxSending(ctx context.Context, clientMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `UPDATE outbox SET status = 'sending', updated_at = ? WHERE client_msg_id = ?`, now, clientMsgID)
	return storageErr("mark outbox sending", err)
}

// MarkOutboxSent updates an outbox entry to 'sent' and its message to StatusSent,
// recording the hub's id so an echo of the message is not ingested twice.
// When the echo was ingested before the ack, that duplicate row is removed and
// its id returned as echoID.
func (db *DB) MarkOutboxSent(ctx context.Context, clientMsgID, remoteID string) (echoID int64, err error) {
	return db.finishOutbox(ctx, clientMsgID, "sent", "", remoteID, StatusSent)
}

// MarkOutboxFailed updates an outbox entry to 'failed' and its message to StatusFailed.
func (db *DB) MarkOutboxFailed(ctx context.Context, clientMsgID, errMsg string) error {
	_, err := db.finishOutbox(ctx, clientMsgID, "failed", errMsg, "", StatusFailed)
	return err
}

func (db *DB) finishOutbox(ctx context.Context, clientMsgID, status, errMsg, remoteID string, msgStatus DeliveryStatus) (int64, error) {
	var echoID int64
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var messageID int64
		var chatID string
		err := tx.QueryRowContext(ctx, `SELECT message_id, chat_id FROM outbox WHERE client_msg_id = ?`,
			clientMsgID).Scan(&messageID, &chatID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("outbox entry %q: %w", clientMsgID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		now := time.Now().UnixMilli()
		if _, err := tx.ExecContext(ctx, `
			UPDATE outbox SET status = ?, error_message = ?, remote_id = ?, updated_at = ?
			WHERE client_msg_id = ?`, status, errMsg, remoteID, now, clientMsgID); err != nil {
			return err
		}

		if remoteID != "" {
			err := tx.QueryRowContext(ctx, `
				SELECT message_id FROM messages
				WHERE chat_id = ? AND remote_id = ? AND message_id != ?`,
				chatID, remoteID, messageID).Scan(&echoID)
			switch {
			case errors.Is(err, sql.ErrNoRows):
			case err != nil:
				return err
			default:
				if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE message_id = ?`, echoID); err != nil {
					return err
				}
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE messages SET delivery_status = ?, remote_id = COALESCE(NULLIF(?, ''), remote_id)
			WHERE message_id = ?`, msgStatus, remoteID, messageID)
		return err
	})
	if err != nil {
		return 0, storageErr("finish outbox", err)
	}
	return echoID, nil
}

// RequeueFailedOutbox moves failed entries back to the queue and returns how many moved.
func (db *DB) RequeueFailedOutbox(ctx context.Context) (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.ExecContext(ctx, `UPDATE outbox SET status = 'queued', updated_at = ? WHERE status = 'failed'`, now)
	if err != nil {
		return 0, storageErr("requeue outbox", err)
	}
	n, err := res.RowsAffected()
	return n, storageErr("requeue outbox", err)
}

// PendingOutbox returns outbox entries that are still queued, oldest first.
func (db *DB) PendingOutbox(ctx context.Context) ([]OutboxEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, client_msg_id, message_id, chat_id, body, status, error_message, remote_id
		FROM outbox WHERE status = 'queued' ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, storageErr("pending outbox", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.ClientMsgID, &e.MessageID, &e.ChatID, &e.Body, &e.Status, &e.ErrorMessage, &e.RemoteID); err != nil {
			return nil, storageErr("pending outbox", err)
		}
		entries = append(entries, e)
	}
	return entries, storageErr("pending outbox", rows.Err())
}
