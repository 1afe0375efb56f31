package generator

import (
	"fmt"
	"strings"
	"time"

	"genboard/pkg/tgui"

	"github.com/dustin/go-humanize"
)

const DefaultTitle = "Generators"

// Notes longer than this are cut in the dashboard.
const maxNoteRunes = 200

type RenderOptions struct {
	// Location for absolute end times. Nil means UTC.
	Location *time.Location
	// Title overrides DefaultTitle.
	Title string
}

// Payload is the display form of one list at one instant.
type Payload struct {
	Title       string
	ListName    string
	RoleID      string
	Groups      []Group
	Empty       bool
	GeneratedAt time.Time

	loc *time.Location
}

type Group struct {
	Kind  Kind
	Lines []Line
}

type Line struct {
	Item  Item
	State State
}

var kindOrder = []Kind{KindTek, KindElectrical}

// Render builds the payload for a list. It only reads its arguments.
func Render(listName string, list List, now time.Time, opt RenderOptions) Payload {
	loc := opt.Location
	if loc == nil {
		loc = time.UTC
	}
	title := strings.TrimSpace(opt.Title)
	if title == "" {
		title = DefaultTitle
	}
	p := Payload{
		Title:       title,
		ListName:    listName,
		RoleID:      list.RoleID,
		GeneratedAt: now,
		loc:         loc,
	}
	for _, k := range kindOrder {
		var g Group
		for _, it := range list.Items {
			if it.Kind != k {
				continue
			}
			g.Lines = append(g.Lines, Line{Item: it, State: ComputeState(it, now)})
		}
		if len(g.Lines) > 0 {
			g.Kind = k
			p.Groups = append(p.Groups, g)
		}
	}
	p.Empty = len(p.Groups) == 0
	return p
}

// Counts returns how many items are in each status.
func (p Payload) Counts() map[Status]int {
	out := make(map[Status]int, 3)
	for _, g := range p.Groups {
		for _, ln := range g.Lines {
			out[ln.State.Status]++
		}
	}
	return out
}

// HTML renders the payload for a chat message in HTML parse mode.
func (p Payload) HTML() string { return p.format(true) }

// Text renders the payload without markup.
func (p Payload) Text() string { return p.format(false) }

func (p Payload) format(markup bool) string {
	esc := func(s string) string { return s }
	bold := func(s string) string { return s }
	if markup {
		esc = func(s string) string { return tgui.Esc(s).String() }
		bold = func(s string) string { return "<b>" + s + "</b>" }
	}
	loc := p.loc
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	b.WriteString(bold(esc(p.Title + " · " + p.ListName)))
	b.WriteString("\n")

	if p.Empty {
		b.WriteString("\nNo generators\n")
	}
	for _, g := range p.Groups {
		b.WriteString("\n")
		b.WriteString(bold(esc(string(g.Kind))))
		b.WriteString("\n")
		for _, ln := range g.Lines {
			writeLine(&b, ln, p.GeneratedAt, loc, esc, bold)
		}
	}

	b.WriteString("\nUpdated ")
	b.WriteString(p.GeneratedAt.In(loc).Format("Jan 2 15:04 MST"))
	return b.String()
}

func writeLine(b *strings.Builder, ln Line, now time.Time, loc *time.Location, esc, bold func(string) string) {
	it, st := ln.Item, ln.State
	pl, sl := fuelLabels(it.Kind)

	fmt.Fprintf(b, "%s %s · %s\n", st.Status.Glyph(), bold(esc(it.Name)), st.Status)
	fmt.Fprintf(b, "    %s %d · %s %d\n", pl, st.RemainingPrimary, sl, st.RemainingSecondary)
	if st.Status == StatusOffline {
		out := st.RanOutAt(now)
		fmt.Fprintf(b, "    Ran out %s (%s)\n", out.In(loc).Format("Jan 2 15:04 MST"), humanize.RelTime(out, now, "ago", "from now"))
	} else {
		fmt.Fprintf(b, "    Ends %s (%s)\n", st.End.In(loc).Format("Jan 2 15:04 MST"), humanize.RelTime(st.End, now, "ago", "from now"))
	}
	if it.Notes != "" {
		fmt.Fprintf(b, "    📝 %s\n", esc(tgui.TruncRunes(it.Notes, maxNoteRunes)))
	}
	if it.AlertsMuted {
		b.WriteString("    🔕 alerts muted\n")
	}
}

func fuelLabels(k Kind) (string, string) {
	if k == KindElectrical {
		return "Gas", "Imbued"
	}
	return "Shards", "Element"
}
