package store

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the fixed-width layout of Message.CreatedAt. Every field is
// zero-padded and times are UTC, so string order equals chronological order.
const TimeLayout = "2006-01-02 15:04:05"

// FormatTime renders t in TimeLayout after converting it to UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a TimeLayout string as UTC.
func ParseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.UTC)
}

// Presence is a user's availability state.
type Presence string

const (
	PresenceOffline      Presence = "offline"
	PresenceOnline       Presence = "online"
	PresenceIdle         Presence = "idle"
	PresenceInvisible    Presence = "invisible"
	PresenceDoNotDisturb Presence = "dnd"
)

// ParsePresence accepts the stored names plus a few common aliases.
func ParsePresence(s string) (Presence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "offline", "":
		return PresenceOffline, nil
	case "online":
		return PresenceOnline, nil
	case "idle", "away":
		return PresenceIdle, nil
	case "invisible":
		return PresenceInvisible, nil
	case "dnd", "donotdisturb", "do-not-disturb", "busy":
		return PresenceDoNotDisturb, nil
	}
	return "", fmt.Errorf("unknown presence %q", s)
}

// Label is the presence as shown to other users. Invisible users appear offline.
func (p Presence) Label() string {
	switch p {
	case PresenceOnline:
		return "Online"
	case PresenceIdle:
		return "Away"
	case PresenceDoNotDisturb:
		return "Busy"
	default:
		return "Offline"
	}
}

// User is a known person: the current user, a contact, or a chat peer.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	DisplayName  string
	About        string
	Birthdate    string
	AvatarURL    string
	IsContact    bool
	Presence     Presence
	CustomStatus string
	StatusEmoji  string
	LastSeenAt   int64 // unix ms, 0 = never seen
}

// Name returns "First Last", falling back to the display name and then the id.
func (u *User) Name() string {
	if full := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName)); full != "" {
		return full
	}
	if dn := strings.TrimSpace(u.DisplayName); dn != "" {
		return dn
	}
	return u.ID
}

// MessageKind tags the variant carried by a Message.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindDocument MessageKind = "document"
)

// DeliveryStatus tracks a message relative to the remote peer.
type DeliveryStatus string

const (
	StatusPending  DeliveryStatus = "pending"
	StatusSent     DeliveryStatus = "sent"
	StatusFailed   DeliveryStatus = "failed"
	StatusReceived DeliveryStatus = "received"
)

// Document is the payload of a KindDocument message. RemoteURL and LocalPath
// are empty until the file transfer completes; LocalPath and IsDownloaded are
// client-local state.
type Document struct {
	FileName     string
	FileSize     int64
	MimeType     string
	RemoteURL    string
	LocalPath    string
	IsDownloaded bool
}

// Message is a single chat message. Document is set iff Kind is KindDocument.
type Message struct {
	ID        int64
	ChatID    string
	SenderID  string
	Kind      MessageKind
	Text      string
	Document  *Document
	CreatedAt string
	Status    DeliveryStatus
	RemoteID  string
}

// Preview is the one-line text shown for the message in a chat list.
func (m *Message) Preview() string {
	switch m.Kind {
	case KindDocument:
		if m.Document != nil {
			return m.Document.FileName
		}
		return ""
	default:
		return m.Text
	}
}

// Cursor marks a position in a chat's history. Pages fetched with a cursor
// contain only messages strictly older than it. MessageID breaks ties between
// equal timestamps; zero means "compare timestamps only".
type Cursor struct {
	CreatedAt string
	MessageID int64
}

// IsZero reports whether the cursor is unset.
func (c Cursor) IsZero() bool {
	return c.CreatedAt == "" && c.MessageID == 0
}

// OutboxEntry represents a pending outgoing message.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	MessageID    int64
	ChatID       string
	Body         string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	RemoteID     string
}
