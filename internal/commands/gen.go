package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"genboard/internal/dashboard"
	"genboard/internal/generator"
	"genboard/internal/transport"
	"genboard/pkg/tgui"

	"github.com/dustin/go-humanize"
)

// Core is the dashboard service surface the commands drive.
type Core interface {
	AddGenerator(ctx context.Context, list, name string, kind generator.Kind, fuel generator.Fuel) (generator.Item, error)
	ListGenerators(ctx context.Context, list string) ([]generator.Item, error)
	ListNames(ctx context.Context) ([]string, error)
	SetRole(ctx context.Context, list, roleID string) error
	SetNotes(ctx context.Context, list, name, notes string) (generator.Item, error)
	SetMuted(ctx context.Context, list, name string, muted bool) (generator.Item, error)
	Refuel(ctx context.Context, list, name string, fuel generator.Fuel) (generator.Item, error)
	RemoveGenerator(ctx context.Context, list, name string) error
	DeleteList(ctx context.Context, list string) error
	Bind(ctx context.Context, list string, to transport.ChatTarget) (dashboard.Binding, error)
	Push(ctx context.Context, list string) (dashboard.PushResult, error)
	RenderNow(ctx context.Context, list string) (generator.Payload, error)
	RunCycleNow(ctx context.Context) (dashboard.CycleReport, error)
}

var _ Core = (*dashboard.Service)(nil)

func (r *Router) registerGen() {
	for _, c := range []Command{
		{Name: "add", Usage: "add <list> <name> <tek|electrical> [shards|gas] [element|imbued]", Description: "Add a generator, fuelled now", Access: AccessOwnerOnly, Mutates: true, Handle: r.cmdAdd},
		{Name: "list", Usage: "list <list>", Description: "Show generators with time left", Handle: r.cmdList},
		{Name: "lists", Usage: "lists", Description: "Show all list names", Handle: r.cmdLists},
		{Name: "role", Usage: "role <list> <role id|none>", Description: "Set who gets pinged on expiry", Access: AccessOwnerOnly, Mutates: true, Handle: r.cmdRole},
		{Name: "note", Usage: "note <list> <name> [text]", Description: "Set or clear a note", Access: AccessOwnerOnly, Mutates: true, Handle: r.cmdNote},
		{Name: "mute", Usage: "mute <list> <name> <on|off>", Description: "Silence expiry alerts for one generator", Access: AccessOwnerOnly, Mutates: true, Handle: r.cmdMute},
		{Name: "refuel", Usage: "refuel <list> <name> <shards|gas> <element|imbued>", Description: "Reset fuel and restart the clock", Access: AccessOwnerOnly, Mutates: true, Handle: r.cmdRefuel},
		{Name: "remove", Usage: "remove <list> <name>", Description: "Remove a generator", Access: AccessOwnerOnly, Mutates: true, Handle: r.cmdRemove},
		{Name: "delete", Usage: "delete <list>", Description: "Delete a list and its dashboard binding", Access: AccessOwnerOnly, Mutates: true, Handle: r.cmdDelete},
		{Name: "dashboard", Usage: "dashboard <list>", Description: "Post the list's dashboard in this chat", Access: AccessOwnerOnly, Mutates: true, Handle: r.cmdDashboard},
		{Name: "show", Usage: "show <list>", Description: "Render the dashboard once, without binding", Handle: r.cmdShow},
		{Name: "status", Usage: "status", Description: "Show the last refresh and alert counts", Handle: r.cmdStatus},
		{Name: "refresh", Usage: "refresh", Description: "Refresh every dashboard now", Access: AccessOwnerOnly, Handle: r.cmdRefresh},
		{Name: "help", Usage: "help", Description: "This message", Handle: r.cmdHelp},
	} {
		r.Register(c)
	}
}

func (r *Router) cmdHelp(ctx context.Context, req *Request) error {
	return req.Reply(ctx, r.helpText())
}

func (r *Router) cmdAdd(ctx context.Context, req *Request) error {
	if len(req.Args) < 3 || len(req.Args) > 5 {
		return errUsage
	}
	req.List, req.Target = req.Args[0], req.Args[1]
	kind, err := generator.ParseKind(req.Args[2])
	if err != nil {
		return err
	}
	fuel, err := parseFuel(req.Args[3:])
	if err != nil {
		return err
	}
	it, err := r.core.AddGenerator(ctx, req.List, req.Target, kind, fuel)
	if err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("Added <b>%s</b> (%s) to <b>%s</b>. %s",
		esc(it.Name), it.Kind, esc(req.List), stateLine(it, r.now())))
}

func (r *Router) cmdList(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return errUsage
	}
	items, err := r.core.ListGenerators(ctx, req.Args[0])
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return req.Reply(ctx, fmt.Sprintf("<b>%s</b> has no generators.", esc(req.Args[0])))
	}
	now := r.now()
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", esc(req.Args[0]))
	for _, it := range items {
		fmt.Fprintf(&b, "%s <b>%s</b> · %s\n", generator.ComputeState(it, now).Status.Glyph(), esc(it.Name), stateLine(it, now))
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func (r *Router) cmdLists(ctx context.Context, req *Request) error {
	names, err := r.core.ListNames(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return req.Reply(ctx, "No lists yet.")
	}
	for i, n := range names {
		names[i] = "• " + esc(n)
	}
	return req.Reply(ctx, strings.Join(names, "\n"))
}

func (r *Router) cmdRole(ctx context.Context, req *Request) error {
	if len(req.Args) != 2 {
		return errUsage
	}
	req.List = req.Args[0]
	role := req.Args[1]
	if strings.EqualFold(role, "none") || role == "-" {
		role = ""
	}
	req.Target = role
	if err := r.core.SetRole(ctx, req.List, role); err != nil {
		return err
	}
	if role == "" {
		return req.Reply(ctx, fmt.Sprintf("Cleared the alert role for <b>%s</b>.", esc(req.List)))
	}
	return req.Reply(ctx, fmt.Sprintf("Expiry alerts for <b>%s</b> will mention %s.", esc(req.List), esc(role)))
}

func (r *Router) cmdNote(ctx context.Context, req *Request) error {
	if len(req.Args) < 2 {
		return errUsage
	}
	req.List, req.Target = req.Args[0], req.Args[1]
	it, err := r.core.SetNotes(ctx, req.List, req.Target, strings.Join(req.Args[2:], " "))
	if err != nil {
		return err
	}
	if it.Notes == "" {
		return req.Reply(ctx, fmt.Sprintf("Cleared the note on <b>%s</b>.", esc(it.Name)))
	}
	return req.Reply(ctx, fmt.Sprintf("Noted on <b>%s</b>: %s", esc(it.Name), esc(it.Notes)))
}

func (r *Router) cmdMute(ctx context.Context, req *Request) error {
	if len(req.Args) != 3 {
		return errUsage
	}
	req.List, req.Target = req.Args[0], req.Args[1]
	muted, err := parseOnOff(req.Args[2])
	if err != nil {
		return err
	}
	it, err := r.core.SetMuted(ctx, req.List, req.Target, muted)
	if err != nil {
		return err
	}
	if it.AlertsMuted {
		return req.Reply(ctx, fmt.Sprintf("🔕 Alerts muted for <b>%s</b>.", esc(it.Name)))
	}
	return req.Reply(ctx, fmt.Sprintf("🔔 Alerts on for <b>%s</b>.", esc(it.Name)))
}

func (r *Router) cmdRefuel(ctx context.Context, req *Request) error {
	if len(req.Args) != 4 {
		return errUsage
	}
	req.List, req.Target = req.Args[0], req.Args[1]
	fuel, err := parseFuel(req.Args[2:])
	if err != nil {
		return err
	}
	it, err := r.core.Refuel(ctx, req.List, req.Target, fuel)
	if err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("Refuelled <b>%s</b>. %s", esc(it.Name), stateLine(it, r.now())))
}

func (r *Router) cmdRemove(ctx context.Context, req *Request) error {
	if len(req.Args) != 2 {
		return errUsage
	}
	req.List, req.Target = req.Args[0], req.Args[1]
	if err := r.core.RemoveGenerator(ctx, req.List, req.Target); err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("Removed <b>%s</b> from <b>%s</b>.", esc(req.Target), esc(req.List)))
}

func (r *Router) cmdDelete(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return errUsage
	}
	req.List = req.Args[0]
	if err := r.core.DeleteList(ctx, req.List); err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("Deleted list <b>%s</b>.", esc(req.List)))
}

func (r *Router) cmdDashboard(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return errUsage
	}
	req.List = req.Args[0]
	req.Target = strconv.FormatInt(req.Chat.ChatID, 10)
	if _, err := r.core.Bind(ctx, req.List, req.Chat); err != nil {
		return err
	}
	res, err := r.core.Push(ctx, req.List)
	switch {
	case errors.Is(err, dashboard.ErrBackingOff):
		return req.Reply(ctx, fmt.Sprintf("Bound <b>%s</b> here. The dashboard appears on the next refresh.", esc(req.List)))
	case err != nil:
		return err
	}
	if res == dashboard.PushEdited {
		return req.Reply(ctx, "Dashboard updated.")
	}
	return nil
}

func (r *Router) cmdShow(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return errUsage
	}
	p, err := r.core.RenderNow(ctx, req.Args[0])
	if err != nil {
		return err
	}
	return req.Reply(ctx, p.HTML())
}

func (r *Router) cmdRefresh(ctx context.Context, req *Request) error {
	rep, err := r.core.RunCycleNow(ctx)
	if err != nil {
		return err
	}
	return req.Reply(ctx, reportText(rep))
}

func (r *Router) cmdStatus(ctx context.Context, req *Request) error {
	if len(req.Args) != 0 {
		return errUsage
	}
	if r.activity == nil {
		return req.Reply(ctx, "Status is not available.")
	}
	return req.Reply(ctx, statusText(r.activity.Snapshot(), r.now()))
}

func statusText(snap dashboard.ActivitySnapshot, now time.Time) string {
	var b strings.Builder
	b.WriteString(tgui.B("Status").String() + "\n")
	if c := snap.LastCycle; c != nil {
		fmt.Fprintf(&b, "Last refresh %s (%s): %s\n", humanize.RelTime(c.StartedAt, now, "ago", "from now"), c.Trigger, reportText(*c))
	} else {
		b.WriteString("No refresh yet.\n")
	}
	if bo := snap.LastBackoff; bo != nil && now.Before(bo.Until) {
		fmt.Fprintf(&b, "Paused by a rate limit until %s.\n", bo.Until.Format(time.Kitchen))
	}
	fmt.Fprintf(&b, "Since start: %d refreshes, %d generators ran out, %d alerts sent, %d alerts failed.",
		snap.Cycles, snap.Expired, snap.AlertsSent, snap.AlertsFailed)
	return b.String()
}

func reportText(rep dashboard.CycleReport) string {
	if rep.Skipped {
		return fmt.Sprintf("Refresh paused after a rate limit until %s.", rep.BackoffUntil.Format(time.Kitchen))
	}
	s := fmt.Sprintf("Refreshed %d lists: %d edited, %d created, %d failed.", rep.Lists, rep.Edited, rep.Created, rep.Failed)
	if rep.RateLimited {
		s += fmt.Sprintf(" Rate limited, %d lists left for later.", rep.Unreached)
	}
	if rep.Expired > 0 {
		s += fmt.Sprintf(" %d generators ran out.", rep.Expired)
	}
	return s
}

func stateLine(it generator.Item, now time.Time) string {
	st := generator.ComputeState(it, now)
	if st.MinutesLeft <= 0 {
		return "Out of fuel."
	}
	return fmt.Sprintf("%s left.", formatMinutes(st.MinutesLeft))
}

func formatMinutes(m int64) string {
	d, h, mm := m/(24*60), (m/60)%24, m%60
	switch {
	case d > 0:
		return fmt.Sprintf("%dd %dh %dm", d, h, mm)
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, mm)
	default:
		return fmt.Sprintf("%dm", mm)
	}
}

func parseFuel(args []string) (generator.Fuel, error) {
	var vals [2]int
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil || n < 0 {
			return generator.Fuel{}, fmt.Errorf("fuel amount %q must be a whole number", a)
		}
		if n > generator.MaxFuel {
			return generator.Fuel{}, fmt.Errorf("fuel amount %q is more than %d", a, generator.MaxFuel)
		}
		vals[i] = n
	}
	return generator.Fuel{Primary: vals[0], Secondary: vals[1]}, nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "yes", "true", "1":
		return true, nil
	case "off", "no", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

// userMessage trims wrapped sentinel errors to something a chat user can act on.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrForbidden):
		return "Only bot owners can do that."
	case errors.Is(err, dashboard.ErrBackingOff):
		return "Dashboards are paused after a rate limit. Try again shortly."
	case errors.Is(err, transport.ErrRateLimited):
		return "The chat platform is rate limiting us. Try again shortly."
	case errors.Is(err, context.DeadlineExceeded):
		return "That took too long."
	}
	return err.Error()
}

func esc(s string) string { return tgui.Esc(s).String() }
