package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/matheus3301/chatfetch/internal/api"
	"github.com/matheus3301/chatfetch/internal/domain"
	"github.com/matheus3301/chatfetch/internal/lock"
	"github.com/matheus3301/chatfetch/internal/session"
	"github.com/matheus3301/chatfetch/internal/sync"
	grpcstatus "google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

type output int

const (
	outText output = iota
	outJSON
	outYAML
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	yamlFlag := flag.Bool("yaml", false, "output in YAML format")
	timeoutFlag := flag.Duration("timeout", 0, "overall deadline for the command (0 = none for ingest, 10s otherwise)")
	flag.Parse()

	out := outText
	switch {
	case *jsonFlag:
		out = outJSON
	case *yamlFlag:
		out = outYAML
	}

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fail(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "sessions" {
		cmdSessions(out)
		return
	}

	socketPath := session.SocketPath(sessionName)
	c, err := api.Dial(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	timeout := *timeoutFlag
	if timeout == 0 && !isLongRunning(args[0]) {
		timeout = 10 * time.Second
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "ingest":
		cmdIngest(ctx, c, rest, out)
	case "ingest-all":
		cmdIngestAll(ctx, c, rest, out)
	case "attach":
		cmdAttach(ctx, c, rest)
	case "watch":
		cmdWatch(ctx, c, rest, out)
	case "conversations":
		cmdConversations(ctx, c, rest, out)
	case "show":
		cmdShow(ctx, c, rest, out)
	case "messages":
		cmdMessages(ctx, c, rest, out)
	case "recent":
		cmdRecent(ctx, c, rest, out)
	case "stats":
		cmdStats(ctx, c, rest, out)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func isLongRunning(cmd string) bool {
	return cmd == "ingest" || cmd == "ingest-all" || cmd == "watch"
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatfetchctl [--session <name>] [--json|--yaml] [--timeout <d>] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  ingest <conversation> [flags]        Sync one conversation into the cache")
	fmt.Fprintln(os.Stderr, "  ingest-all [flags]                   Sync every conversation")
	fmt.Fprintln(os.Stderr, "  attach <conversation> <msg> <ref>    Record where a message's media was saved")
	fmt.Fprintln(os.Stderr, "  watch [conversation]                 Stream sync progress events")
	fmt.Fprintln(os.Stderr, "  conversations [query] [flags]        Search cached conversations")
	fmt.Fprintln(os.Stderr, "  show <conversation>                  Show one cached conversation")
	fmt.Fprintln(os.Stderr, "  messages <conversation> [flags]      Search cached messages")
	fmt.Fprintln(os.Stderr, "  recent <conversation> [n]            Show the newest cached messages")
	fmt.Fprintln(os.Stderr, "  stats [conversation]                 Show cache statistics")
	fmt.Fprintln(os.Stderr, "  sessions                             List known sessions")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "A conversation is a numeric id, an @username or a cached name.")
}

func syncFlags(fs *flag.FlagSet) *sync.Options {
	opts := &sync.Options{}
	fs.IntVar(&opts.MaxMessages, "max-messages", 0, "stop after this many messages (0 = daemon default)")
	fs.IntVar(&opts.MaxAgeDays, "max-age-days", 0, "first sync only: skip messages older than this (0 = daemon default)")
	fs.BoolVar(&opts.ForceFull, "full", false, "re-walk the whole history to backfill gaps")
	fs.IntVar(&opts.PageSize, "page-size", 0, "messages per remote page (0 = daemon default)")
	fs.BoolVar(&opts.FailIfBusy, "no-wait", false, "fail instead of waiting when the conversation is already syncing")
	return opts
}

func cmdIngest(ctx context.Context, c *api.Client, args []string, out output) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	opts := syncFlags(fs)
	ref, rest := firstArg(args, "usage: chatfetchctl ingest <conversation> [flags]")
	_ = fs.Parse(rest)

	id := conversationID(ctx, c, ref)
	resp, err := c.IngestOne(ctx, &api.IngestOneRequest{ConversationID: id, Options: *opts})
	if err != nil {
		fail(err)
	}
	if out != outText {
		emit(out, resp)
		return
	}
	r := resp.Result
	fmt.Printf("Conversation: %d\n", r.ConversationID)
	fmt.Printf("Outcome:      %s\n", resp.Reason)
	fmt.Printf("New messages: %d (%d fetched, %d pages)\n", r.NewMessages, r.Fetched, r.Pages)
	fmt.Printf("Cursor:       %d\n", r.Cursor)
	fmt.Printf("Complete:     %v\n", r.FullyDownloaded)
	if r.Retries > 0 {
		fmt.Printf("Retries:      %d\n", r.Retries)
	}
	if resp.Error != "" {
		fmt.Printf("Stopped:      %s\n", resp.Error)
	}
}

func cmdIngestAll(ctx context.Context, c *api.Client, args []string, out output) {
	fs := flag.NewFlagSet("ingest-all", flag.ExitOnError)
	opts := syncFlags(fs)
	_ = fs.Parse(args)

	resp, err := c.IngestAll(ctx, &api.IngestAllRequest{Options: *opts})
	if err != nil {
		fail(err)
	}
	if out != outText {
		emit(out, resp)
		return
	}
	r := resp.Report
	for _, o := range r.Outcomes {
		stored := 0
		if o.Result != nil {
			stored = o.Result.NewMessages
		}
		line := fmt.Sprintf("%-12d %-24s %-20s %6d new", o.ConversationID, truncate(o.Name, 24), o.Reason, stored)
		if o.Error != "" {
			line += "  " + o.Error
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%d conversations: %d ok, %d partial, %d failed, %d skipped in %s\n",
		r.Total, r.Succeeded, r.Partial, r.Failed, r.Skipped, r.Duration.Round(time.Millisecond))
}

func cmdAttach(ctx context.Context, c *api.Client, args []string) {
	if len(args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: chatfetchctl attach <conversation> <message-id> <ref>")
		os.Exit(1)
	}
	id := conversationID(ctx, c, args[0])
	msgID := parseInt(args[1], "message id")
	if err := c.AttachMedia(ctx, &api.AttachMediaRequest{ConversationID: id, MessageID: msgID, Ref: args[2]}); err != nil {
		fail(err)
	}
	fmt.Printf("Attached %s to message %d of %d\n", args[2], msgID, id)
}

func cmdWatch(ctx context.Context, c *api.Client, args []string, out output) {
	var id int64
	if len(args) > 0 {
		id = conversationID(ctx, c, args[0])
	}
	for evt, err := range c.WatchEvents(ctx, &api.WatchEventsRequest{ConversationID: id}) {
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fail(err)
		}
		switch out {
		case outJSON:
			_ = json.NewEncoder(os.Stdout).Encode(evt)
		case outYAML:
			emit(out, []*api.EventEnvelope{evt})
		default:
			p := evt.Progress
			at := time.UnixMilli(evt.OccurredAtUnixMs).Format(time.TimeOnly)
			line := fmt.Sprintf("%s %-20s conversation=%d stored=%d cursor=%d", at, evt.Kind, p.ConversationID, p.Stored, p.Cursor)
			if p.Error != "" {
				line += " error=" + strconv.Quote(p.Error)
			}
			fmt.Println(line)
		}
	}
}

func cmdConversations(ctx context.Context, c *api.Client, args []string, out output) {
	fs := flag.NewFlagSet("conversations", flag.ExitOnError)
	kind := fs.String("kind", "", "direct, group or broadcast")
	limit := fs.Int("limit", 0, "maximum results (0 = all)")
	var query string
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		query, args = args[0], args[1:]
	}
	_ = fs.Parse(args)

	resp, err := c.FindConversations(ctx, &api.FindConversationsRequest{Query: query, Kind: domain.Kind(*kind), Limit: *limit})
	if err != nil {
		fail(err)
	}
	if out != outText {
		emit(out, resp)
		return
	}
	if len(resp.Conversations) == 0 {
		fmt.Println("No conversations found.")
		return
	}
	for _, conv := range resp.Conversations {
		state := "partial"
		switch {
		case conv.Inaccessible:
			state = "inaccessible"
		case conv.FullyDownloaded:
			state = "complete"
		case conv.LastSyncedCursor == 0:
			state = "never synced"
		}
		username := ""
		if conv.Username != "" {
			username = "@" + conv.Username
		}
		fmt.Printf("%-12d %-28s %-20s %-10s %s\n", conv.ID, truncate(conv.Name, 28), username, conv.Kind, state)
	}
}

func cmdShow(ctx context.Context, c *api.Client, args []string, out output) {
	ref, _ := firstArg(args, "usage: chatfetchctl show <conversation>")
	resp, err := c.GetConversation(ctx, conversationRequest(ref))
	if err != nil {
		fail(err)
	}
	if out != outText {
		emit(out, resp)
		return
	}
	conv := resp.Conversation
	fmt.Printf("ID:           %d\n", conv.ID)
	fmt.Printf("Name:         %s\n", conv.Name)
	if conv.Username != "" {
		fmt.Printf("Username:     @%s\n", conv.Username)
	}
	fmt.Printf("Kind:         %s\n", conv.Kind)
	fmt.Printf("Participants: %d\n", conv.ParticipantCount)
	fmt.Printf("Cursor:       %d\n", conv.LastSyncedCursor)
	if conv.LastSyncedAt > 0 {
		fmt.Printf("Last synced:  %s\n", time.UnixMilli(conv.LastSyncedAt).Format(time.RFC3339))
	}
	fmt.Printf("Complete:     %v\n", conv.FullyDownloaded)
	if conv.Inaccessible {
		fmt.Printf("Inaccessible: %s\n", conv.AccessError)
	}
}

func cmdMessages(ctx context.Context, c *api.Client, args []string, out output) {
	fs := flag.NewFlagSet("messages", flag.ExitOnError)
	since := fs.String("since", "", "RFC 3339 time or date, inclusive")
	until := fs.String("until", "", "RFC 3339 time or date, exclusive")
	text := fs.String("text", "", "case-insensitive text substring")
	sender := fs.Int64("sender", 0, "sender id")
	reverse := fs.Bool("reverse", false, "newest first")
	limit := fs.Int("limit", 0, "maximum results (0 = all)")
	ref, rest := firstArg(args, "usage: chatfetchctl messages <conversation> [flags]")
	_ = fs.Parse(rest)

	req := &api.FindMessagesRequest{
		ConversationID: conversationID(ctx, c, ref),
		Since:          parseTime(*since),
		Until:          parseTime(*until),
		Text:           *text,
		SenderID:       *sender,
		Reverse:        *reverse,
		Limit:          *limit,
	}
	printMessages(ctx, c, req, out)
}

func cmdRecent(ctx context.Context, c *api.Client, args []string, out output) {
	ref, rest := firstArg(args, "usage: chatfetchctl recent <conversation> [n]")
	n := 20
	if len(rest) > 0 {
		n = int(parseInt(rest[0], "count"))
	}
	printMessages(ctx, c, &api.FindMessagesRequest{ConversationID: conversationID(ctx, c, ref), Reverse: true, Limit: n}, out)
}

func printMessages(ctx context.Context, c *api.Client, req *api.FindMessagesRequest, out output) {
	resp, err := c.FindMessages(ctx, req)
	if err != nil {
		fail(err)
	}
	if out != outText {
		emit(out, resp)
		return
	}
	for _, m := range resp.Messages {
		body := m.TextOrEmpty()
		if m.MediaKind != "" && m.MediaKind != domain.MediaNone {
			body = fmt.Sprintf("[%s] %s", m.MediaKind, body)
		}
		fmt.Printf("%-10d %s  %-12d %s\n", m.ID, time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04"), m.SenderID, body)
	}
}

func cmdStats(ctx context.Context, c *api.Client, args []string, out output) {
	var id int64
	if len(args) > 0 {
		id = conversationID(ctx, c, args[0])
	}
	resp, err := c.Stats(ctx, &api.StatsRequest{ConversationID: id})
	if err != nil {
		fail(err)
	}
	if out != outText {
		emit(out, resp)
		return
	}
	st := resp.Stats
	fmt.Printf("Conversations: %d\n", st.Conversations)
	fmt.Printf("Messages:      %d\n", st.Messages)
	fmt.Printf("Senders:       %d\n", st.Senders)
	if st.LastMessage != nil {
		fmt.Printf("Last message:  %d at %s\n", st.LastMessage.ID, time.UnixMilli(st.LastMessage.Timestamp).Format(time.RFC3339))
	}
	if len(st.Activity) > 0 {
		fmt.Println()
		for _, a := range st.Activity {
			fmt.Printf("%-12d %-28s %8d\n", a.ConversationID, truncate(a.Name, 28), a.Messages)
		}
	}
}

type sessionInfo struct {
	Name          string    `json:"name" yaml:"name"`
	Path          string    `json:"path" yaml:"path"`
	DaemonRunning bool      `json:"daemon_running" yaml:"daemon_running"`
	PID           int       `json:"pid,omitempty" yaml:"pid,omitempty"`
	Since         time.Time `json:"since,omitzero" yaml:"since,omitempty"`
}

func cmdSessions(out output) {
	entries, err := os.ReadDir(filepath.Join(session.BaseDir(), "sessions"))
	if err != nil && !os.IsNotExist(err) {
		fail(err)
	}
	var sessions []sessionInfo
	for _, e := range entries {
		if !e.IsDir() || session.ValidateName(e.Name()) != nil {
			continue
		}
		dir := session.Dir(e.Name())
		holder, running := lock.Inspect(dir)
		sessions = append(sessions, sessionInfo{Name: e.Name(), Path: dir, DaemonRunning: running, PID: holder.PID, Since: holder.Started})
	}
	if out != outText {
		emit(out, sessions)
		return
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	for _, s := range sessions {
		state := "stopped"
		if s.DaemonRunning {
			state = fmt.Sprintf("running, pid %d", s.PID)
			if !s.Since.IsZero() {
				state += ", since " + s.Since.Local().Format(time.DateTime)
			}
		}
		fmt.Printf("%-20s %s (%s)\n", s.Name, s.Path, state)
	}
}

// conversationID turns a typed reference into an id, asking the daemon's
// cache for names and usernames.
func conversationID(ctx context.Context, c *api.Client, ref string) int64 {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return id
	}
	resp, err := c.GetConversation(ctx, conversationRequest(ref))
	if err != nil {
		fail(err)
	}
	return resp.Conversation.ID
}

func conversationRequest(ref string) *api.GetConversationRequest {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return &api.GetConversationRequest{ID: id}
	}
	return &api.GetConversationRequest{Ref: ref}
}

func firstArg(args []string, usage string) (string, []string) {
	if len(args) == 0 || args[0] == "" || args[0][0] == '-' {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
	return args[0], args[1:]
}

func parseInt(s, what string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fail(fmt.Errorf("invalid %s %q", what, s))
	}
	return v
}

// parseTime accepts RFC 3339 or a bare date and returns unix milliseconds.
func parseTime(s string) int64 {
	if s == "" {
		return 0
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.UnixMilli()
		}
	}
	fail(fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD", s))
	return 0
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func emit(out output, v any) {
	switch out {
	case outYAML:
		outputYAML(v)
	default:
		outputJSON(v)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

// outputYAML goes through JSON so that field names match --json output.
func outputYAML(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode error: %v\n", err)
		return
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		fmt.Fprintf(os.Stderr, "encode error: %v\n", err)
		return
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		fmt.Fprintf(os.Stderr, "yaml encode error: %v\n", err)
	}
	_ = enc.Close()
}

func fail(err error) {
	if st, ok := grpcstatus.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "error: %s (%s)\n", st.Message(), st.Code())
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}
