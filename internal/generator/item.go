package generator

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Kind selects the fuel pair and the decay formula.
type Kind string

const (
	KindTek        Kind = "Tek"
	KindElectrical Kind = "Electrical"
)

// ParseKind accepts the canonical names plus a few short forms used in chat.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tek", "t":
		return KindTek, nil
	case "electrical", "electric", "elec", "e":
		return KindElectrical, nil
	default:
		return "", fmt.Errorf("unknown generator kind %q (use tek or electrical)", s)
	}
}

// Item is one generator in a list.
//
// Exactly one fuel pair is meaningful for a given Kind; the other pair is kept at zero.
// StartedAt is only changed by an explicit refuel.
type Item struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	// Tek fuel.
	Element int `json:"element"`
	Shards  int `json:"shards"`

	// Electrical fuel.
	Gas    int `json:"gas"`
	Imbued int `json:"imbued"`

	StartedAt int64 `json:"started_at"` // unix seconds

	Expired      bool `json:"expired"`
	AlertedLow   bool `json:"alerted_low"`
	AlertedEmpty bool `json:"alerted_empty"`
	AlertsMuted  bool `json:"alerts_muted"`

	Notes string `json:"notes"`
}

// MaxFuel caps any single fuel quantity.
const MaxFuel = math.MaxInt32

// Fuel is the kind-specific pair of quantities.
// For Tek, Primary is shards and Secondary is element.
// For Electrical, Primary is gas and Secondary is imbued gas.
type Fuel struct {
	Primary   int
	Secondary int
}

// NewItem builds a freshly fuelled generator started at now.
func NewItem(name string, kind Kind, fuel Fuel, now time.Time) Item {
	it := Item{Name: strings.TrimSpace(name), Kind: kind}
	it.setFuel(fuel)
	it.StartedAt = now.Unix()
	return it
}

func (it *Item) setFuel(f Fuel) {
	it.Element, it.Shards, it.Gas, it.Imbued = 0, 0, 0, 0
	p, s := min(max(0, f.Primary), MaxFuel), min(max(0, f.Secondary), MaxFuel)
	switch it.Kind {
	case KindTek:
		it.Shards, it.Element = p, s
	case KindElectrical:
		it.Gas, it.Imbued = p, s
	}
}

// Fuel returns the loaded quantities for the item's kind.
func (it Item) Fuel() Fuel {
	if it.Kind == KindElectrical {
		return Fuel{Primary: it.Gas, Secondary: it.Imbued}
	}
	return Fuel{Primary: it.Shards, Secondary: it.Element}
}

// List is the persisted document for one named generator list.
type List struct {
	Schema int    `json:"schema"`
	RoleID string `json:"role_id,omitempty"`
	Items  []Item `json:"items"`
}

// Find returns the index of the item whose name matches case-insensitively.
func (l List) Find(name string) (int, bool) {
	name = strings.TrimSpace(name)
	for i := range l.Items {
		if strings.EqualFold(l.Items[i].Name, name) {
			return i, true
		}
	}
	return -1, false
}
