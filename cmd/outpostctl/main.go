package main

import (
	"bufio"
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

	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/outpost/internal/api"
	"github.com/matheus3301/outpost/internal/lock"
	"github.com/matheus3301/outpost/internal/session"
	"github.com/matheus3301/outpost/internal/store"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	timeoutFlag := flag.Duration("timeout", 10*time.Second, "call timeout")
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

	// Works without a daemon.
	if args[0] == "sessions" {
		cmdSessions(*jsonFlag)
		return
	}

	c, err := api.Dial(session.SocketPath(sessionName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	if args[0] != "watch" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeoutFlag)
		defer cancel()
	}

	cli := &ctl{c: c, json: *jsonFlag}
	if err := cli.run(ctx, args); err != nil {
		fail(err)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: outpostctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                       Show session status")
	fmt.Fprintln(os.Stderr, "  login <token|->              Store the session cookie (- reads stdin)")
	fmt.Fprintln(os.Stderr, "  logout                       Forget the session cookie")
	fmt.Fprintln(os.Stderr, "  offline <on|off>             Toggle airplane mode")
	fmt.Fprintln(os.Stderr, "  send <conversation> <text>   Queue a message")
	fmt.Fprintln(os.Stderr, "  outbox [conversation]        List pending and failed entries")
	fmt.Fprintln(os.Stderr, "  sync                         Drain the outbox now")
	fmt.Fprintln(os.Stderr, "  retry [conversation]         Retry failed entries")
	fmt.Fprintln(os.Stderr, "  discard <entry-id>           Delete an outbox entry")
	fmt.Fprintln(os.Stderr, "  draft <save|show|discard> <conversation> [text]")
	fmt.Fprintln(os.Stderr, "  messages [-refresh] [-limit n] <conversation>")
	fmt.Fprintln(os.Stderr, "  notifications [refresh]      Show notifications")
	fmt.Fprintln(os.Stderr, "  read <id|all>                Mark notifications read")
	fmt.Fprintln(os.Stderr, "  clear <conversation|--all>   Clear cached data")
	fmt.Fprintln(os.Stderr, "  watch [namespace]            Stream daemon events")
	fmt.Fprintln(os.Stderr, "  sessions                     List known sessions")
}

func fail(err error) {
	if st, ok := grpcstatus.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "error: %s (%s)\n", st.Message(), st.Code())
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}

var errUsage = errors.New("invalid arguments, see outpostctl with no command for usage")

type ctl struct {
	c    *api.Client
	json bool
}

func (x *ctl) run(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "status":
		return x.status(ctx)
	case "login":
		return x.login(ctx, rest)
	case "logout":
		resp, err := x.c.Logout(ctx)
		return x.print(resp, err, func() { fmt.Println(resp.Message) })
	case "offline":
		if len(rest) != 1 || (rest[0] != "on" && rest[0] != "off") {
			return errUsage
		}
		resp, err := x.c.SetOffline(ctx, rest[0] == "on")
		return x.print(resp, err, func() { fmt.Printf("Online: %v (forced offline: %v)\n", resp.Online, resp.ForcedOffline) })
	case "send":
		if len(rest) < 2 {
			return errUsage
		}
		resp, err := x.c.Send(ctx, rest[0], strings.Join(rest[1:], " "))
		return x.print(resp, err, func() { fmt.Printf("Queued entry %d (%s)\n", resp.Entry.ID, resp.Entry.ClientMsgID) })
	case "outbox":
		return x.outbox(ctx, optional(rest))
	case "sync":
		resp, err := x.c.Sync(ctx)
		return x.print(resp, err, func() { printSync(resp) })
	case "retry":
		resp, err := x.c.Retry(ctx, optional(rest))
		return x.print(resp, err, func() { printSync(resp) })
	case "discard":
		if len(rest) != 1 {
			return errUsage
		}
		id, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil {
			return fmt.Errorf("entry id: %w", err)
		}
		resp, err := x.c.Discard(ctx, id)
		return x.print(resp, err, func() { fmt.Println(resp.Message) })
	case "draft":
		return x.draft(ctx, rest)
	case "messages":
		return x.messages(ctx, rest)
	case "notifications":
		return x.notifications(ctx, rest)
	case "read":
		if len(rest) != 1 {
			return errUsage
		}
		var resp *api.MarkReadResponse
		var err error
		if rest[0] == "all" {
			resp, err = x.c.MarkAllRead(ctx)
		} else {
			resp, err = x.c.MarkRead(ctx, rest[0])
		}
		return x.print(resp, err, func() { fmt.Printf("Unread: %d\n", resp.Unread) })
	case "clear":
		if len(rest) != 1 {
			return errUsage
		}
		req := &api.ClearCacheRequest{ConversationID: rest[0]}
		if rest[0] == "--all" {
			req = &api.ClearCacheRequest{All: true}
		}
		resp, err := x.c.ClearCache(ctx, req)
		return x.print(resp, err, func() { fmt.Println(resp.Message) })
	case "watch":
		return x.watch(ctx, optional(rest))
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func optional(rest []string) string {
	if len(rest) > 0 {
		return rest[0]
	}
	return ""
}

// print emits v as JSON in --json mode, otherwise calls human.
func (x *ctl) print(v any, err error, human func()) error {
	if err != nil {
		return err
	}
	if x.json {
		outputJSON(v)
		return nil
	}
	human()
	return nil
}

func (x *ctl) status(ctx context.Context) error {
	resp, err := x.c.GetStatus(ctx)
	return x.print(resp, err, func() {
		fmt.Printf("Session:  %s\n", resp.Session)
		fmt.Printf("Status:   %s\n", resp.Status)
		fmt.Printf("Auth:     %v %s\n", resp.Authenticated, resp.Subject)
		fmt.Printf("Online:   %v (forced offline: %v)\n", resp.Online, resp.ForcedOffline)
		fmt.Printf("Realtime: %v\n", resp.RealtimeConnected)
		fmt.Printf("Store:    %s\n", resp.StoreMode)
		fmt.Printf("Pending:  %d (syncing: %v)\n", resp.Pending, resp.Syncing)
		fmt.Printf("Unread:   %d\n", resp.Unread)
		fmt.Printf("Uptime:   %s\n", time.Duration(resp.UptimeMs)*time.Millisecond)
		for _, e := range resp.Errors {
			fmt.Printf("Error:    %s\n", e)
		}
	})
}

func (x *ctl) login(ctx context.Context, rest []string) error {
	if len(rest) != 1 {
		return errUsage
	}
	token := rest[0]
	if token == "-" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read token: %w", err)
		}
		token = line
	}
	resp, err := x.c.Login(ctx, token)
	return x.print(resp, err, func() {
		fmt.Printf("Logged in as %q\n", resp.Subject)
		if resp.ExpiresAtUnixMs > 0 {
			fmt.Printf("Expires: %s\n", time.UnixMilli(resp.ExpiresAtUnixMs).Format(time.RFC3339))
		}
	})
}

func (x *ctl) outbox(ctx context.Context, conv string) error {
	resp, err := x.c.ListPending(ctx, conv)
	return x.print(resp, err, func() {
		if len(resp.Pending)+len(resp.Failed) == 0 {
			fmt.Println("Outbox is empty.")
			return
		}
		for _, e := range resp.Pending {
			printEntry(e)
		}
		for _, e := range resp.Failed {
			printEntry(e)
		}
	})
}

func printEntry(e store.PendingEntry) {
	line := fmt.Sprintf("%-20d %-8s %-16s %q", e.ID, e.Status, e.ConversationID, e.Content)
	if e.LastError != "" {
		line += fmt.Sprintf(" (attempts %d: %s)", e.Attempts, e.LastError)
	}
	fmt.Println(line)
}

func printSync(r *api.SyncResponse) {
	fmt.Printf("Sent: %d  Failed: %d  Skipped: %d  Pending: %d", r.Sent, r.Failed, r.Skipped, r.Pending)
	if r.Collapsed {
		fmt.Print("  (joined running pass)")
	}
	fmt.Println()
}

func (x *ctl) draft(ctx context.Context, rest []string) error {
	if len(rest) < 2 {
		return errUsage
	}
	sub, conv := rest[0], rest[1]
	switch sub {
	case "save":
		resp, err := x.c.SaveDraft(ctx, conv, strings.Join(rest[2:], " "))
		return x.print(resp, err, func() { fmt.Println(resp.Message) })
	case "show":
		resp, err := x.c.GetDraft(ctx, conv)
		return x.print(resp, err, func() {
			if resp.Draft == nil {
				fmt.Println("No draft.")
				return
			}
			fmt.Println(resp.Draft.Content)
		})
	case "discard":
		resp, err := x.c.DiscardDraft(ctx, conv)
		return x.print(resp, err, func() { fmt.Println(resp.Message) })
	default:
		return errUsage
	}
}

func (x *ctl) messages(ctx context.Context, rest []string) error {
	fs := flag.NewFlagSet("messages", flag.ContinueOnError)
	refresh := fs.Bool("refresh", false, "pull newer messages from the server first")
	limit := fs.Int("limit", store.DefaultMessageLimit, "maximum messages to show")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}
	resp, err := x.c.ListMessages(ctx, &api.ListMessagesRequest{ConversationID: fs.Arg(0), Limit: *limit, Refresh: *refresh})
	return x.print(resp, err, func() {
		if resp.Warning != "" {
			fmt.Fprintf(os.Stderr, "warning: %s\n", resp.Warning)
		}
		// Newest first from the store; print oldest first like a thread.
		for i := len(resp.Messages) - 1; i >= 0; i-- {
			m := resp.Messages[i]
			fmt.Printf("%s  %-12s %s\n", time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04"), m.SenderID, m.Content)
		}
	})
}

func (x *ctl) notifications(ctx context.Context, rest []string) error {
	get := x.c.Notifications
	if optional(rest) == "refresh" {
		get = x.c.RefreshNotifications
	}
	snap, err := get(ctx)
	return x.print(snap, err, func() {
		fmt.Printf("Unread: %d (%s)\n", snap.Unread, snap.State)
		if snap.LastError != "" {
			fmt.Fprintf(os.Stderr, "warning: %s\n", snap.LastError)
		}
		for _, n := range snap.Notifications {
			mark := " "
			if !n.Read {
				mark = "*"
			}
			fmt.Printf("%s %-12s %-10s @%s %s\n", mark, n.ID, n.Type, n.Actor.Username, n.Content)
		}
	})
}

func (x *ctl) watch(ctx context.Context, namespace string) error {
	stream, err := x.c.WatchEvents(ctx, namespace)
	if err != nil {
		return err
	}
	for {
		env, err := stream.Recv()
		if err != nil {
			return err
		}
		if x.json {
			outputJSON(env)
			continue
		}
		fmt.Printf("%s %-24s %s\n", time.UnixMilli(env.OccurredAtUnixMs).Format(time.TimeOnly), env.Kind, env.Payload)
	}
}

type sessionInfo struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
}

func cmdSessions(jsonOut bool) {
	entries, err := os.ReadDir(filepath.Join(session.BaseDir(), "sessions"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		fail(err)
	}
	var out []sessionInfo
	for _, e := range entries {
		if !e.IsDir() || session.ValidateName(e.Name()) != nil {
			continue
		}
		info := sessionInfo{Name: e.Name(), Path: session.Dir(e.Name())}
		if pid, err := lock.Holder(info.Path); err == nil && pid > 0 {
			info.Running, info.PID = true, pid
		}
		out = append(out, info)
	}
	if jsonOut {
		outputJSON(out)
		return
	}
	if len(out) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	for _, s := range out {
		running := "stopped"
		if s.Running {
			running = fmt.Sprintf("running, pid %d", s.PID)
		}
		fmt.Printf("%-20s %s (%s)\n", s.Name, s.Path, running)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
