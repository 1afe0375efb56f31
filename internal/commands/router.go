package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"genboard/internal/dashboard"
	rtsup "genboard/internal/runtime/supervisor"
	"genboard/internal/storage"
	"genboard/internal/transport"
	logx "genboard/pkg/logx"
	"genboard/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

// errUsage makes the router answer with the command's usage line.
var errUsage = errors.New("usage")

// ErrForbidden is returned for owner-only commands sent by anyone else.
var ErrForbidden = errors.New("owner only")

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string
	Usage       string
	Description string
	Access      Access
	// Mutates marks commands that append an audit entry.
	Mutates bool
	Handle  HandlerFunc
}

type Request struct {
	Message transport.Message
	Chat    transport.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string
	Logger  logx.Logger

	// Audit fields filled in by handlers.
	List   string
	Target string

	reply func(ctx context.Context, text string) error
}

// Reply sends an HTML message to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	if r.reply == nil {
		return nil
	}
	return r.reply(ctx, text)
}

// Auditor records operator actions.
type Auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

type Options struct {
	Owners  []int64
	Timeout time.Duration
	Workers int
	// Activity feeds /gen status. Nil disables it.
	Activity ActivitySource
}

// ActivitySource reports recent refresh and alert activity.
type ActivitySource interface {
	Snapshot() dashboard.ActivitySnapshot
}

// Router parses "/gen" messages and runs the matching command.
type Router struct {
	log   logx.Logger
	msg   transport.Messenger
	audit Auditor
	core  Core
	now   func() time.Time

	activity ActivitySource

	owners  []int64
	timeout time.Duration
	workers int

	cmds map[string]*Command
	// order keeps help output stable.
	order []string
}

func New(core Core, msg transport.Messenger, audit Auditor, log logx.Logger, opt Options) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 30 * time.Second
	}
	if opt.Workers <= 0 {
		opt.Workers = 2
	}
	r := &Router{
		log:      log.With(logx.String("comp", "commands")),
		msg:      msg,
		audit:    audit,
		core:     core,
		now:      time.Now,
		activity: opt.Activity,
		owners:   append([]int64(nil), opt.Owners...),
		timeout:  opt.Timeout,
		workers:  opt.Workers,
		cmds:     map[string]*Command{},
	}
	r.registerGen()
	return r
}

// Register adds or replaces a subcommand.
func (r *Router) Register(c Command) {
	name := strings.ToLower(strings.TrimSpace(c.Name))
	if name == "" || c.Handle == nil {
		return
	}
	c.Name = name
	if _, ok := r.cmds[name]; !ok {
		r.order = append(r.order, name)
	}
	r.cmds[name] = &c
}

// MenuCommands is the platform menu entry for the command root.
func (r *Router) MenuCommands() []transport.BotCommand {
	return []transport.BotCommand{{Command: rootCommand, Description: "Generator fuel dashboards"}}
}

func (r *Router) isOwner(id int64) bool {
	return len(r.owners) == 0 || slices.Contains(r.owners, id)
}

// Run handles updates from in until ctx is done or in is closed.
func (r *Router) Run(ctx context.Context, in <-chan transport.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(r.log))
	for i := 0; i < r.workers; i++ {
		sup.Go0(fmt.Sprintf("commands.worker.%d", i), func(c context.Context) {
			for {
				select {
				case <-c.Done():
					return
				case up, ok := <-in:
					if !ok {
						return
					}
					if up.Kind == transport.UpdateMessage && up.Message != nil {
						r.Handle(c, *up.Message)
					}
				}
			}
		})
	}
	<-ctx.Done()
	return sup.Stop(context.Background())
}

// Handle runs a single message. Messages that are not "/gen" commands are
// ignored.
func (r *Router) Handle(ctx context.Context, m transport.Message) {
	args, ok := parseCommand(m.Text)
	if !ok {
		return
	}
	sub := "help"
	if len(args) > 0 {
		sub, args = strings.ToLower(args[0]), args[1:]
	}

	req := &Request{
		Message: m,
		Chat:    transport.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID},
		FromID:  m.FromID,
		Command: sub,
		Args:    args,
		ReqID:   uuid.NewString(),
	}
	req.Logger = r.log.With(logx.String("req_id", req.ReqID), logx.String("cmd", sub))
	req.reply = func(ctx context.Context, text string) error {
		_, err := r.msg.SendText(ctx, req.Chat, text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
		return err
	}

	cmd, ok := r.cmds[sub]
	if !ok {
		r.replyErr(ctx, req, fmt.Errorf("unknown command %q, try /%s help", sub, rootCommand))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	h := chain(cmd.Handle, r.recoverPanic(), r.requestLog(), r.ownerOnly(cmd), r.auditLog(cmd))
	if err := h(ctx, req); err != nil {
		if errors.Is(err, errUsage) {
			err = fmt.Errorf("usage: /%s %s", rootCommand, cmd.Usage)
		}
		r.replyErr(ctx, req, err)
	}
}

func (r *Router) replyErr(ctx context.Context, req *Request, err error) {
	if rerr := req.Reply(ctx, "⚠️ "+tgui.Esc(userMessage(err)).String()); rerr != nil {
		req.Logger.Warn("reply failed", logx.Err(rerr))
	}
}

func (r *Router) helpText() string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(tgui.B("/" + rootCommand + " commands").String() + "\n")
	for _, n := range names {
		c := r.cmds[n]
		b.WriteString(tgui.Code("/" + rootCommand + " " + c.Usage).String())
		if c.Access == AccessOwnerOnly && len(r.owners) > 0 {
			b.WriteString(" 🔒")
		}
		if c.Description != "" {
			b.WriteString("\n    " + tgui.Esc(c.Description).String())
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
