package api

import (
	"encoding/json"

	"github.com/matheus3301/achat/internal/profile"
	"github.com/matheus3301/achat/internal/store"
	"github.com/matheus3301/achat/internal/summary"
)

// Empty is the request or response of calls that carry no data.
type Empty struct{}

// Cursor marks a position in a chat's history.
type Cursor struct {
	CreatedAt string `json:"created_at"`
	MessageID int64  `json:"message_id,omitempty"`
}

// Document is the payload metadata of a document message.
type Document struct {
	FileName     string `json:"file_name"`
	FileSize     int64  `json:"file_size"`
	MimeType     string `json:"mime_type,omitempty"`
	RemoteURL    string `json:"remote_url,omitempty"`
	LocalPath    string `json:"local_path,omitempty"`
	IsDownloaded bool   `json:"is_downloaded"`
}

// Message is a chat message as seen by clients.
type Message struct {
	ID        int64     `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	FromMe    bool      `json:"from_me"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text,omitempty"`
	Document  *Document `json:"document,omitempty"`
	CreatedAt string    `json:"created_at"`
	Status    string    `json:"status"`
}

// Chat is one row of the chat list.
type Chat struct {
	ChatID        string `json:"chat_id"`
	PeerUserID    string `json:"peer_user_id"`
	Title         string `json:"title"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	Presence      string `json:"presence"`
	PresenceLabel string `json:"presence_label"`
	LastMessage   string `json:"last_message"`
	LastKind      string `json:"last_kind"`
	LastSenderID  string `json:"last_sender_id"`
	LastTimestamp string `json:"last_timestamp"`
}

// User is a profile as seen by clients.
type User struct {
	ID               string `json:"id"`
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	DisplayName      string `json:"display_name,omitempty"`
	FullName         string `json:"full_name"`
	Initials         string `json:"initials"`
	About            string `json:"about,omitempty"`
	Birthdate        string `json:"birthdate,omitempty"`
	AvatarURL        string `json:"avatar_url,omitempty"`
	IsContact        bool   `json:"is_contact"`
	Presence         string `json:"presence"`
	PresenceLabel    string `json:"presence_label"`
	CustomStatus     string `json:"custom_status,omitempty"`
	StatusEmoji      string `json:"status_emoji,omitempty"`
	LastSeenAtUnixMs int64  `json:"last_seen_at_unix_ms,omitempty"`
}

// EventEnvelope carries one bus event to a watching client.
type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	Session          string          `json:"session"`
	Kind             string          `json:"kind"`
	OccurredAtUnixMs int64           `json:"occurred_at_unix_ms"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

type StatusResponse struct {
	Session       string `json:"session"`
	UserID        string `json:"user_id"`
	Status        string `json:"status"`
	StatusSinceMs int64  `json:"status_since_unix_ms"`
	UptimeMs      int64  `json:"uptime_ms"`
	ChatCount     int64  `json:"chat_count"`
	MessageCount  int64  `json:"message_count"`
	LastIngested  string `json:"last_ingested,omitempty"`
}

type WatchEventsRequest struct {
	// Prefix filters events by kind namespace; empty means all events.
	Prefix string `json:"prefix,omitempty"`
}

type Settings struct {
	PageSize      int    `json:"page_size"`
	ShowPresence  bool   `json:"show_presence"`
	ContactSort   string `json:"contact_sort"`
	Notifications bool   `json:"notifications"`
}

// UpdateSettingsRequest changes the non-nil settings.
type UpdateSettingsRequest struct {
	PageSize      *int    `json:"page_size,omitempty" validate:"omitnil,gt=0"`
	ShowPresence  *bool   `json:"show_presence,omitempty"`
	ContactSort   *string `json:"contact_sort,omitempty" validate:"omitnil,oneof=name lastseen"`
	Notifications *bool   `json:"notifications,omitempty"`
}

type ListChatsRequest struct {
	Query string `json:"query,omitempty"`
}

type ListChatsResponse struct {
	Chats []Chat `json:"chats"`
}

type ChatRequest struct {
	ChatID string `json:"chat_id" validate:"required"`
}

type ChatResponse struct {
	Chat Chat `json:"chat"`
}

type OpenChatRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type OpenChatResponse struct {
	ChatID string `json:"chat_id"`
}

type ListMessagesRequest struct {
	ChatID   string  `json:"chat_id" validate:"required"`
	PageSize int     `json:"page_size,omitempty" validate:"gte=0"`
	Before   *Cursor `json:"before,omitempty"`
}

type ListMessagesResponse struct {
	Messages    []Message `json:"messages"`
	Cursor      *Cursor   `json:"cursor,omitempty"`
	CanLoadMore bool      `json:"can_load_more"`
}

type SendTextRequest struct {
	ChatID string `json:"chat_id" validate:"required"`
	Text   string `json:"text"`
}

type SendFileRequest struct {
	ChatID string `json:"chat_id" validate:"required"`
	Path   string `json:"path" validate:"required"`
}

type SendResponse struct {
	Message Message `json:"message"`
}

type MessageRequest struct {
	MessageID int64 `json:"message_id" validate:"gt=0"`
}

type DownloadResponse struct {
	Path string `json:"path"`
}

type RetryResponse struct {
	Requeued int64 `json:"requeued"`
}

type WatchMessagesRequest struct {
	ChatID   string `json:"chat_id" validate:"required"`
	PageSize int    `json:"page_size,omitempty" validate:"gte=0"`
}

// ConversationSnapshot is the full visible state of an open chat.
type ConversationSnapshot struct {
	Messages    []Message `json:"messages"`
	CanLoadMore bool      `json:"can_load_more"`
	Notice      string    `json:"notice,omitempty"`
}

type ListContactsRequest struct {
	Search string `json:"search,omitempty"`
	// Sort is "name" or "lastseen"; empty uses the configured default.
	Sort string `json:"sort,omitempty" validate:"omitempty,oneof=name lastseen"`
}

type ListContactsResponse struct {
	Contacts []User `json:"contacts"`
}

type ProfileRequest struct {
	// UserID selects a peer; empty means the current user.
	UserID string `json:"user_id,omitempty"`
}

type ProfileResponse struct {
	User User `json:"user"`
}

// UpdateProfileRequest changes the non-nil fields of the current user.
type UpdateProfileRequest struct {
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
	About       *string `json:"about,omitempty"`
	Birthdate   *string `json:"birthdate,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

type SetContactRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	Contact bool   `json:"contact"`
}

type SetPresenceRequest struct {
	Presence string `json:"presence" validate:"required"`
}

type SetCustomStatusRequest struct {
	Emoji string `json:"emoji,omitempty"`
	Text  string `json:"text,omitempty"`
}

func cursorFromStore(c store.Cursor) *Cursor {
	if c.IsZero() {
		return nil
	}
	return &Cursor{CreatedAt: c.CreatedAt, MessageID: c.MessageID}
}

func messageFromStore(m *store.Message, self string) Message {
	out := Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		FromMe:    m.SenderID == self,
		Kind:      string(m.Kind),
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
		Status:    string(m.Status),
	}
	if d := m.Document; d != nil {
		out.Document = &Document{
			FileName:     d.FileName,
			FileSize:     d.FileSize,
			MimeType:     d.MimeType,
			RemoteURL:    d.RemoteURL,
			LocalPath:    d.LocalPath,
			IsDownloaded: d.IsDownloaded,
		}
	}
	return out
}

func messagesFromStore(msgs []store.Message, self string) []Message {
	out := make([]Message, 0, len(msgs))
	for i := range msgs {
		out = append(out, messageFromStore(&msgs[i], self))
	}
	return out
}

func chatFromSummary(s summary.ChatSummary, showPresence bool) Chat {
	c := Chat{
		ChatID:        s.ChatID,
		PeerUserID:    s.PeerUserID,
		Title:         s.Title,
		AvatarURL:     s.AvatarURL,
		LastMessage:   s.LastMessage,
		LastKind:      string(s.LastKind),
		LastSenderID:  s.LastSenderID,
		LastTimestamp: s.LastTimestamp,
	}
	if showPresence {
		c.Presence = string(s.Presence)
		c.PresenceLabel = s.Presence.Label()
	}
	return c
}

func userFromStore(u *store.User) User {
	p := profile.PeerProfile{User: *u}
	return userFromProfile(&p)
}

func userFromProfile(p *profile.PeerProfile) User {
	u := p.User
	full := p.FullName
	if full == "" {
		full = u.Name()
	}
	initials := p.Initials
	if initials == "" {
		initials = profile.Initials(&u)
	}
	return User{
		ID:               u.ID,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		DisplayName:      u.DisplayName,
		FullName:         full,
		Initials:         initials,
		About:            u.About,
		Birthdate:        u.Birthdate,
		AvatarURL:        u.AvatarURL,
		IsContact:        u.IsContact,
		Presence:         string(u.Presence),
		PresenceLabel:    u.Presence.Label(),
		CustomStatus:     u.CustomStatus,
		StatusEmoji:      u.StatusEmoji,
		LastSeenAtUnixMs: u.LastSeenAt,
	}
}
