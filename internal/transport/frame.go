package transport

import (
	"fmt"
	"time"

	"github.com/matheus3301/achat/internal/store"
)

// Frame types exchanged with the hub.
const (
	FrameMessage  = "message"
	FrameSend     = "send"
	FrameAck      = "ack"
	FrameError    = "error"
	FramePresence = "presence"
)

// Frame is one JSON object on the websocket.
type Frame struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"`
	ChatID    string    `json:"chat_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	SenderID  string    `json:"sender_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	File      *FileInfo `json:"file,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Presence  string    `json:"presence,omitempty"`
	Timestamp int64     `json:"ts,omitempty"` // unix seconds
	Error     string    `json:"error,omitempty"`
}

// FileInfo describes a document attached to a message frame.
type FileInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
	URL      string `json:"url,omitempty"`
}

// InboundMessage is a message pushed by the hub, normalized for ingestion.
type InboundMessage struct {
	ChatID   string
	RemoteID string
	SenderID string
	Text     string
	File     *FileInfo
	SentAt   time.Time
}

// PresenceUpdate is a presence change pushed by the hub.
type PresenceUpdate struct {
	UserID   string
	Presence store.Presence
	At       time.Time
}

// ParseMessage validates a message frame and normalizes it.
func ParseMessage(f Frame) (*InboundMessage, error) {
	if f.ChatID == "" || f.SenderID == "" {
		return nil, fmt.Errorf("message frame missing chat or sender")
	}
	m := &InboundMessage{
		ChatID:   f.ChatID,
		RemoteID: f.MessageID,
		SenderID: f.SenderID,
		Text:     f.Text,
		File:     f.File,
		SentAt:   time.Now(),
	}
	if f.Timestamp > 0 {
		m.SentAt = time.Unix(f.Timestamp, 0)
	}
	return m, nil
}

// ParsePresence validates a presence frame.
func ParsePresence(f Frame) (*PresenceUpdate, error) {
	if f.UserID == "" {
		return nil, fmt.Errorf("presence frame missing user")
	}
	p, err := store.ParsePresence(f.Presence)
	if err != nil {
		return nil, err
	}
	u := &PresenceUpdate{UserID: f.UserID, Presence: p, At: time.Now()}
	if f.Timestamp > 0 {
		u.At = time.Unix(f.Timestamp, 0)
	}
	return u, nil
}

// ToStoreMessage converts an inbound message to a store.Message.
func (m *InboundMessage) ToStoreMessage() *store.Message {
	msg := &store.Message{
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Kind:      store.KindText,
		Text:      m.Text,
		CreatedAt: store.FormatTime(m.SentAt),
		Status:    store.StatusReceived,
		RemoteID:  m.RemoteID,
	}
	if m.File != nil {
		msg.Kind = store.KindDocument
		msg.Document = &store.Document{
			FileName:  m.File.Name,
			FileSize:  m.File.Size,
			MimeType:  m.File.MimeType,
			RemoteURL: m.File.URL,
		}
	}
	return msg
}
