package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/achat/internal/api"
	"github.com/matheus3301/achat/internal/client"
	"github.com/matheus3301/achat/internal/lock"
	"github.com/matheus3301/achat/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fail(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Listing sessions reads the filesystem and needs no daemon.
	if args[0] == "sessions" {
		cmdSessions(*jsonFlag)
		return
	}

	c, err := client.New(session.SocketPath(sessionName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	// Watch commands run until interrupted; the rest get a deadline.
	ctx := context.Background()
	if !strings.HasPrefix(args[0], "watch") {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	out := printer{json: *jsonFlag}
	rest := args[1:]
	switch args[0] {
	case "status":
		cmdStatus(ctx, c, out)
	case "chats":
		cmdChats(ctx, c, out, strings.Join(rest, " "))
	case "open":
		need(rest, 1, "open <user-id>")
		resp, err := c.Chat.OpenChat(ctx, &api.OpenChatRequest{UserID: rest[0]})
		check(err)
		out.value(resp, func() { fmt.Println(resp.ChatID) })
	case "rm":
		need(rest, 1, "rm <chat-id>")
		check(c.Chat.DeleteChat(ctx, &api.ChatRequest{ChatID: rest[0]}))
	case "history":
		need(rest, 1, "history <chat-id> [page-size] [before-created-at [before-message-id]]")
		cmdHistory(ctx, c, out, rest)
	case "send":
		need(rest, 2, "send <chat-id> <text>")
		resp, err := c.Message.SendText(ctx, &api.SendTextRequest{ChatID: rest[0], Text: strings.Join(rest[1:], " ")})
		check(err)
		out.value(resp, func() { fmt.Printf("queued message %d\n", resp.Message.ID) })
	case "sendfile":
		need(rest, 2, "sendfile <chat-id> <path>")
		path, err := filepath.Abs(rest[1])
		check(err)
		resp, err := c.Message.SendFile(ctx, &api.SendFileRequest{ChatID: rest[0], Path: path})
		check(err)
		out.value(resp, func() { fmt.Printf("uploaded %s as message %d\n", resp.Message.Document.FileName, resp.Message.ID) })
	case "download":
		need(rest, 1, "download <message-id>")
		id, err := strconv.ParseInt(rest[0], 10, 64)
		check(err)
		resp, err := c.Message.DownloadFile(ctx, &api.MessageRequest{MessageID: id})
		check(err)
		out.value(resp, func() { fmt.Println(resp.Path) })
	case "retry":
		resp, err := c.Message.RetryFailed(ctx)
		check(err)
		out.value(resp, func() { fmt.Printf("requeued %d message(s)\n", resp.Requeued) })
	case "contacts":
		cmdContacts(ctx, c, out, rest)
	case "contact":
		need(rest, 2, "contact <add|rm> <user-id>")
		check(c.Contact.SetContact(ctx, &api.SetContactRequest{UserID: rest[1], Contact: rest[0] == "add"}))
	case "profile":
		cmdProfile(ctx, c, out, rest)
	case "presence":
		need(rest, 1, "presence <online|away|busy|invisible|offline>")
		check(c.Contact.SetPresence(ctx, &api.SetPresenceRequest{Presence: rest[0]}))
	case "mood":
		emoji, text := "", ""
		if len(rest) > 0 {
			emoji = rest[0]
			text = strings.Join(rest[1:], " ")
		}
		check(c.Contact.SetCustomStatus(ctx, &api.SetCustomStatusRequest{Emoji: emoji, Text: text}))
	case "settings":
		cmdSettings(ctx, c, out, rest)
	case "watch":
		prefix := ""
		if len(rest) > 0 {
			prefix = rest[0]
		}
		cmdWatch(ctx, c, prefix)
	case "watch-chats":
		cmdWatchChats(ctx, c, out, strings.Join(rest, " "))
	case "watch-chat":
		need(rest, 1, "watch-chat <chat-id>")
		cmdWatchChat(ctx, c, out, rest[0])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: achatctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                      Show session status")
	fmt.Fprintln(os.Stderr, "  sessions                    List known sessions")
	fmt.Fprintln(os.Stderr, "  chats [query]               List chats, newest first")
	fmt.Fprintln(os.Stderr, "  open <user-id>              Get or create the direct chat with a user")
	fmt.Fprintln(os.Stderr, "  rm <chat-id>                Delete a chat and its messages")
	fmt.Fprintln(os.Stderr, "  history <chat-id> [n] [..]  Show a page of messages")
	fmt.Fprintln(os.Stderr, "  send <chat-id> <text>       Send a text message")
	fmt.Fprintln(os.Stderr, "  sendfile <chat-id> <path>   Send a file")
	fmt.Fprintln(os.Stderr, "  download <message-id>       Download a received file")
	fmt.Fprintln(os.Stderr, "  retry                       Requeue failed messages")
	fmt.Fprintln(os.Stderr, "  contacts [search] [--last]  List contacts")
	fmt.Fprintln(os.Stderr, "  contact <add|rm> <user-id>  Mark or unmark a contact")
	fmt.Fprintln(os.Stderr, "  profile [user-id]           Show a profile")
	fmt.Fprintln(os.Stderr, "  profile set <field> <value> Edit your profile")
	fmt.Fprintln(os.Stderr, "  presence <state>            Set your presence")
	fmt.Fprintln(os.Stderr, "  mood [emoji] [text]         Set or clear your custom status")
	fmt.Fprintln(os.Stderr, "  settings [key=value ...]    Show or change settings")
	fmt.Fprintln(os.Stderr, "  watch [prefix]              Stream daemon events")
	fmt.Fprintln(os.Stderr, "  watch-chats [query]         Stream the chat list")
	fmt.Fprintln(os.Stderr, "  watch-chat <chat-id>        Stream a conversation")
}

type printer struct {
	json bool
}

// value prints v as JSON in --json mode and calls text otherwise.
func (p printer) value(v any, text func()) {
	if p.json {
		outputJSON(v)
		return
	}
	text()
}

func cmdStatus(ctx context.Context, c *client.Client, out printer) {
	resp, err := c.Session.GetStatus(ctx)
	check(err)
	out.value(resp, func() {
		fmt.Printf("Session:  %s\n", resp.Session)
		fmt.Printf("User:     %s\n", resp.UserID)
		fmt.Printf("Status:   %s (since %s)\n", resp.Status, time.UnixMilli(resp.StatusSinceMs).Format(time.TimeOnly))
		fmt.Printf("Uptime:   %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
		fmt.Printf("Chats:    %d\n", resp.ChatCount)
		fmt.Printf("Messages: %d\n", resp.MessageCount)
		if resp.LastIngested != "" {
			fmt.Printf("Last in:  %s\n", resp.LastIngested)
		}
	})
}

func cmdChats(ctx context.Context, c *client.Client, out printer, query string) {
	resp, err := c.Chat.ListChats(ctx, &api.ListChatsRequest{Query: query})
	check(err)
	out.value(resp, func() { printChats(resp.Chats) })
}

func printChats(chats []api.Chat) {
	if len(chats) == 0 {
		fmt.Println("No chats.")
		return
	}
	for _, ch := range chats {
		presence := ""
		if ch.PresenceLabel != "" {
			presence = " [" + ch.PresenceLabel + "]"
		}
		fmt.Printf("%-36s %s%s  %s  %s\n", ch.ChatID, ch.Title, presence, ch.LastTimestamp, ch.LastMessage)
	}
}

func cmdHistory(ctx context.Context, c *client.Client, out printer, args []string) {
	req := &api.ListMessagesRequest{ChatID: args[0]}
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		check(err)
		req.PageSize = n
	}
	if len(args) > 2 {
		req.Before = &api.Cursor{CreatedAt: args[2]}
		if len(args) > 3 {
			id, err := strconv.ParseInt(args[3], 10, 64)
			check(err)
			req.Before.MessageID = id
		}
	}
	resp, err := c.Message.ListMessages(ctx, req)
	check(err)
	out.value(resp, func() {
		printMessages(resp.Messages)
		if resp.CanLoadMore && resp.Cursor != nil {
			fmt.Printf("-- older: history %s %d %q %d\n", args[0], len(resp.Messages), resp.Cursor.CreatedAt, resp.Cursor.MessageID)
		}
	})
}

func printMessages(msgs []api.Message) {
	for _, m := range msgs {
		who := m.SenderID
		if m.FromMe {
			who = "me"
		}
		body := m.Text
		if m.Document != nil {
			body = fmt.Sprintf("[file] %s (%d bytes)", m.Document.FileName, m.Document.FileSize)
			if m.Document.IsDownloaded {
				body += " -> " + m.Document.LocalPath
			}
		}
		fmt.Printf("%6d %s %-12s %-8s %s\n", m.ID, m.CreatedAt, who, m.Status, body)
	}
}

func cmdContacts(ctx context.Context, c *client.Client, out printer, args []string) {
	req := &api.ListContactsRequest{}
	var search []string
	for _, a := range args {
		if a == "--last" {
			req.Sort = "lastseen"
			continue
		}
		search = append(search, a)
	}
	req.Search = strings.Join(search, " ")
	resp, err := c.Contact.ListContacts(ctx, req)
	check(err)
	out.value(resp, func() {
		if len(resp.Contacts) == 0 {
			fmt.Println("No contacts.")
			return
		}
		for _, u := range resp.Contacts {
			fmt.Printf("%-24s %-3s %-24s %s\n", u.ID, u.Initials, u.FullName, u.PresenceLabel)
		}
	})
}

func cmdProfile(ctx context.Context, c *client.Client, out printer, args []string) {
	if len(args) > 0 && args[0] == "set" {
		need(args, 3, "profile set <first|last|display|about|birthdate|avatar> <value>")
		value := strings.Join(args[2:], " ")
		req := &api.UpdateProfileRequest{}
		switch args[1] {
		case "first":
			req.FirstName = &value
		case "last":
			req.LastName = &value
		case "display":
			req.DisplayName = &value
		case "about":
			req.About = &value
		case "birthdate":
			req.Birthdate = &value
		case "avatar":
			req.AvatarURL = &value
		default:
			fail(fmt.Errorf("unknown profile field %q", args[1]))
		}
		resp, err := c.Contact.UpdateProfile(ctx, req)
		check(err)
		out.value(resp, func() { printUser(resp.User) })
		return
	}

	req := &api.ProfileRequest{}
	if len(args) > 0 {
		req.UserID = args[0]
	}
	resp, err := c.Contact.GetProfile(ctx, req)
	check(err)
	out.value(resp, func() { printUser(resp.User) })
}

func printUser(u api.User) {
	fmt.Printf("[%s] %s (%s)\n", u.Initials, u.FullName, u.ID)
	fmt.Printf("Presence: %s", u.PresenceLabel)
	if u.CustomStatus != "" || u.StatusEmoji != "" {
		fmt.Printf("  %s %s", u.StatusEmoji, u.CustomStatus)
	}
	fmt.Println()
	if u.About != "" {
		fmt.Printf("About:    %s\n", u.About)
	}
	if u.Birthdate != "" {
		fmt.Printf("Born:     %s\n", u.Birthdate)
	}
	if u.LastSeenAtUnixMs > 0 {
		fmt.Printf("Seen:     %s\n", time.UnixMilli(u.LastSeenAtUnixMs).Format(time.DateTime))
	}
}

func cmdSettings(ctx context.Context, c *client.Client, out printer, args []string) {
	var (
		resp *api.Settings
		err  error
	)
	if len(args) == 0 {
		resp, err = c.Session.GetSettings(ctx)
	} else {
		req := &api.UpdateSettingsRequest{}
		for _, kv := range args {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				fail(fmt.Errorf("expected key=value, got %q", kv))
			}
			switch key {
			case "page_size":
				n, err := strconv.Atoi(value)
				check(err)
				req.PageSize = &n
			case "show_presence":
				b, err := strconv.ParseBool(value)
				check(err)
				req.ShowPresence = &b
			case "contact_sort":
				req.ContactSort = &value
			case "notifications":
				b, err := strconv.ParseBool(value)
				check(err)
				req.Notifications = &b
			default:
				fail(fmt.Errorf("unknown setting %q", key))
			}
		}
		resp, err = c.Session.UpdateSettings(ctx, req)
	}
	check(err)
	out.value(resp, func() {
		fmt.Printf("page_size=%d\n", resp.PageSize)
		fmt.Printf("show_presence=%t\n", resp.ShowPresence)
		fmt.Printf("contact_sort=%s\n", resp.ContactSort)
		fmt.Printf("notifications=%t\n", resp.Notifications)
	})
}

func cmdWatch(ctx context.Context, c *client.Client, prefix string) {
	stream, err := c.Session.WatchEvents(ctx, &api.WatchEventsRequest{Prefix: prefix})
	check(err)
	for {
		evt, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		check(err)
		outputJSON(evt)
	}
}

func cmdWatchChats(ctx context.Context, c *client.Client, out printer, query string) {
	stream, err := c.Chat.WatchChats(ctx, &api.ListChatsRequest{Query: query})
	check(err)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		check(err)
		out.value(resp, func() {
			fmt.Println("--")
			printChats(resp.Chats)
		})
	}
}

func cmdWatchChat(ctx context.Context, c *client.Client, out printer, chatID string) {
	stream, err := c.Message.WatchMessages(ctx, &api.WatchMessagesRequest{ChatID: chatID})
	check(err)
	for {
		snap, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		check(err)
		out.value(snap, func() {
			fmt.Println("--")
			printMessages(snap.Messages)
			if snap.Notice != "" {
				fmt.Printf("! %s\n", snap.Notice)
			}
		})
	}
}

type sessionInfo struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	DaemonRunning bool   `json:"daemon_running"`
	PID           int    `json:"pid,omitempty"`
	Since         string `json:"since,omitempty"`
}

func cmdSessions(jsonOut bool) {
	root := filepath.Join(session.BaseDir(), "sessions")
	entries, err := os.ReadDir(root)
	if err != nil && !os.IsNotExist(err) {
		fail(err)
	}
	var sessions []sessionInfo
	for _, e := range entries {
		if !e.IsDir() || session.ValidateName(e.Name()) != nil {
			continue
		}
		info := sessionInfo{Name: e.Name(), Path: session.Dir(e.Name())}
		if owner, ok := lock.Holder(info.Path); ok {
			info.DaemonRunning = true
			info.PID = owner.PID
			if !owner.Since.IsZero() {
				info.Since = owner.Since.Format(time.RFC3339)
			}
		}
		sessions = append(sessions, info)
	}
	if jsonOut {
		outputJSON(sessions)
		return
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	for _, s := range sessions {
		running := "stopped"
		if s.DaemonRunning {
			running = fmt.Sprintf("running, pid %d", s.PID)
			if s.Since != "" {
				running += ", since " + s.Since
			}
		}
		fmt.Printf("%-20s %s (%s)\n", s.Name, s.Path, running)
	}
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "usage: achatctl %s\n", usage)
		os.Exit(1)
	}
}

func check(err error) {
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
