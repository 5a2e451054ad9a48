package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const messageColumns = `message_id, chat_id, sender_id, kind, text, created_at, file_name, file_size,
	mime_type, remote_url, local_path, is_downloaded, delivery_status, remote_id`

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// messageArgs flattens the Message variant into column values.
func messageArgs(m *Message) ([]any, error) {
	if m.CreatedAt == "" {
		return nil, fmt.Errorf("message has no created_at")
	}
	status := m.Status
	if status == "" {
		status = StatusPending
	}
	var (
		fileName, mimeType, remoteURL, localPath any
		fileSize                                 int64
		downloaded                               bool
	)
	switch m.Kind {
	case KindText:
	case KindDocument:
		if m.Document == nil {
			return nil, fmt.Errorf("document message without document metadata")
		}
		fileName = m.Document.FileName
		fileSize = m.Document.FileSize
		mimeType = nullIfEmpty(m.Document.MimeType)
		remoteURL = nullIfEmpty(m.Document.RemoteURL)
		localPath = nullIfEmpty(m.Document.LocalPath)
		downloaded = m.Document.IsDownloaded
	default:
		return nil, fmt.Errorf("unknown message kind %q", m.Kind)
	}
	return []any{m.ChatID, m.SenderID, m.Kind, m.Text, m.CreatedAt, fileName, fileSize,
		mimeType, remoteURL, localPath, downloaded, status, nullIfEmpty(m.RemoteID)}, nil
}

const insertMessageSQL = `
	INSERT INTO messages (chat_id, sender_id, kind, text, created_at, file_name, file_size,
		mime_type, remote_url, local_path, is_downloaded, delivery_status, remote_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertMessage(ctx context.Context, q execer, m *Message) (int64, error) {
	args, err := messageArgs(m)
	if err != nil {
		return 0, err
	}
	ok, err := chatExists(ctx, q, m.ChatID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("chat %q: %w", m.ChatID, ErrNotFound)
	}
	res, err := q.ExecContext(ctx, insertMessageSQL, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertMessage appends a message and sets m.ID. Existing rows are never touched.
func (db *DB) InsertMessage(ctx context.Context, m *Message) (int64, error) {
	id, err := insertMessage(ctx, db, m)
	if err != nil {
		return 0, storageErr("insert message", err)
	}
	m.ID = id
	return id, nil
}

// InsertMessageWithOutbox appends a locally-authored message and queues it for
// delivery in the same transaction.
func (db *DB) InsertMessageWithOutbox(ctx context.Context, m *Message, clientMsgID string) (int64, error) {
	var id int64
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = insertMessage(ctx, tx, m)
		if err != nil {
			return err
		}
		return queueOutbox(ctx, tx, clientMsgID, id, m.ChatID, m.Text)
	})
	if err != nil {
		return 0, storageErr("insert message with outbox", err)
	}
	m.ID = id
	return id, nil
}

// InsertRemoteMessage appends a message received from the transport,
// idempotent on (chat_id, remote_id). Returns the row id and whether a new row
// was written.
func (db *DB) InsertRemoteMessage(ctx context.Context, m *Message) (int64, bool, error) {
	if m.RemoteID == "" {
		id, err := db.InsertMessage(ctx, m)
		return id, err == nil, err
	}
	args, err := messageArgs(m)
	if err != nil {
		return 0, false, storageErr("insert remote message", err)
	}
	res, err := db.ExecContext(ctx, insertMessageSQL+`
		ON CONFLICT(chat_id, remote_id) WHERE remote_id IS NOT NULL DO NOTHING`, args...)
	if err != nil {
		return 0, false, storageErr("insert remote message", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		id, err := res.LastInsertId()
		m.ID = id
		return id, true, storageErr("insert remote message", err)
	}
	var id int64
	err = db.QueryRowContext(ctx, `SELECT message_id FROM messages WHERE chat_id = ? AND remote_id = ?`,
		m.ChatID, m.RemoteID).Scan(&id)
	if err != nil {
		return 0, false, storageErr("insert remote message", err)
	}
	m.ID = id
	return id, false, nil
}

// ListMessagesBefore returns up to limit messages of a chat older than before,
// newest first. A zero cursor starts at the newest message.
func (db *DB) ListMessagesBefore(ctx context.Context, chatID string, before Cursor, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id = ?`
	args := []any{chatID}
	switch {
	case before.IsZero():
	case before.MessageID > 0:
		q += ` AND (created_at < ? OR (created_at = ? AND message_id < ?))`
		args = append(args, before.CreatedAt, before.CreatedAt, before.MessageID)
	default:
		q += ` AND created_at < ?`
		args = append(args, before.CreatedAt)
	}
	q += ` ORDER BY created_at DESC, message_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, storageErr("list messages", err)
		}
		msgs = append(msgs, *m)
	}
	return msgs, storageErr("list messages", rows.Err())
}

// LatestMessage returns the newest message of a chat, or nil if it has none.
func (db *DB) LatestMessage(ctx context.Context, chatID string) (*Message, error) {
	msgs, err := db.ListMessagesBefore(ctx, chatID, Cursor{}, 1)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

// GetMessage returns a message by id, or nil if absent.
func (db *DB) GetMessage(ctx context.Context, id int64) (*Message, error) {
	m, err := scanMessage(db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE message_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get message", err)
	}
	return m, nil
}

// SetDeliveryStatus updates the delivery status of a message.
func (db *DB) SetDeliveryStatus(ctx context.Context, id int64, status DeliveryStatus) error {
	return db.updateMessage(ctx, "set delivery status",
		`UPDATE messages SET delivery_status = ? WHERE message_id = ?`, status, id)
}

// MarkDocumentUploaded records the uploaded location and metadata of a
// document message and marks it sent, in one statement.
func (db *DB) MarkDocumentUploaded(ctx context.Context, id int64, remoteURL string, size int64, mimeType string) error {
	return db.updateMessage(ctx, "mark document uploaded", `
		UPDATE messages SET remote_url = ?, file_size = ?, mime_type = COALESCE(?, mime_type),
			delivery_status = ?
		WHERE message_id = ? AND kind = 'document'`,
		remoteURL, size, nullIfEmpty(mimeType), StatusSent, id)
}

// SetDocumentLocal records where a document message was downloaded to.
func (db *DB) SetDocumentLocal(ctx context.Context, id int64, localPath string) error {
	return db.updateMessage(ctx, "set document local", `
		UPDATE messages SET local_path = ?, is_downloaded = 1
		WHERE message_id = ? AND kind = 'document'`, localPath, id)
}

func (db *DB) updateMessage(ctx context.Context, op, query string, args ...any) error {
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

// MessageCount returns the total number of messages.
func (db *DB) MessageCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, storageErr("count messages", err)
}

func scanMessage(r rowScanner) (*Message, error) {
	var (
		m                                        Message
		kind, status                             string
		fileName, mimeType, remoteURL, localPath sql.NullString
		remoteID                                 sql.NullString
		fileSize                                 int64
		downloaded                               bool
	)
	if err := r.Scan(&m.ID, &m.ChatID, &m.SenderID, &kind, &m.Text, &m.CreatedAt, &fileName, &fileSize,
		&mimeType, &remoteURL, &localPath, &downloaded, &status, &remoteID); err != nil {
		return nil, err
	}
	m.Kind = MessageKind(kind)
	m.Status = DeliveryStatus(status)
	m.RemoteID = remoteID.String
	switch m.Kind {
	case KindText:
	case KindDocument:
		m.Document = &Document{
			FileName:     fileName.String,
			FileSize:     fileSize,
			MimeType:     mimeType.String,
			RemoteURL:    remoteURL.String,
			LocalPath:    localPath.String,
			IsDownloaded: downloaded,
		}
	default:
		return nil, fmt.Errorf("message %d: unknown kind %q", m.ID, kind)
	}
	return &m, nil
}

// Now returns the current time in TimeLayout.
func Now() string {
	return FormatTime(time.Now())
}
