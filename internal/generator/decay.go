package generator

import "time"

// Burn rates in seconds per unit.
const (
	ShardSeconds   int64 = 648
	ElementSeconds int64 = 64800
	GasSeconds     int64 = 3600
	ImbuedSeconds  int64 = 14400
)

// Low fuel thresholds.
const (
	tekLowElement        = 5
	tekLowMinutes        = 30
	electricalLowGas     = 1
	electricalLowMinutes = 60
)

type Status int

const (
	StatusOnline Status = iota
	StatusLowFuel
	StatusOffline
)

func (s Status) Glyph() string {
	switch s {
	case StatusOnline:
		return "🔋"
	case StatusLowFuel:
		return "⚠️"
	default:
		return "❌"
	}
}

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "Online"
	case StatusLowFuel:
		return "Low Fuel"
	default:
		return "Offline"
	}
}

// State is the derived view of an Item at a point in time.
type State struct {
	// RemainingPrimary is shards (Tek) or gas (Electrical).
	RemainingPrimary int
	// RemainingSecondary is element (Tek) or imbued gas (Electrical).
	RemainingSecondary int

	End time.Time
	// OfflineAt is when the status turns Offline: the earlier of End and
	// the instant every fuel reached zero. For Tek both are the same.
	OfflineAt   time.Time
	MinutesLeft int64
	Status      Status
}

// RanOutAt is OfflineAt capped at now.
func (st State) RanOutAt(now time.Time) time.Time {
	if st.OfflineAt.After(now) {
		return now
	}
	return st.OfflineAt
}

// ComputeState derives remaining fuel and status purely from (item, now).
//
// Tek burns shards first and only then element. Electrical burns gas and
// imbued gas independently of each other.
func ComputeState(it Item, now time.Time) State {
	elapsed := now.Unix() - it.StartedAt
	if elapsed < 0 {
		elapsed = 0
	}

	var st State
	var endUnix, dryUnix int64
	switch it.Kind {
	case KindElectrical:
		gas, imbued := fuelUnits(it.Gas), fuelUnits(it.Imbued)
		st.RemainingPrimary = remaining(gas, elapsed, GasSeconds)
		st.RemainingSecondary = remaining(imbued, elapsed, ImbuedSeconds)
		endUnix = it.StartedAt + gas*GasSeconds + imbued*ImbuedSeconds
		dryUnix = it.StartedAt + max(gas*GasSeconds, imbued*ImbuedSeconds)
	default:
		shards, element := fuelUnits(it.Shards), fuelUnits(it.Element)
		shardBudget := shards * ShardSeconds
		st.RemainingPrimary = remaining(shards, elapsed, ShardSeconds)
		// Element only starts burning once the shard budget is spent.
		st.RemainingSecondary = remaining(element, max(0, elapsed-shardBudget), ElementSeconds)
		endUnix = it.StartedAt + shardBudget + element*ElementSeconds
		dryUnix = endUnix
	}

	st.End = time.Unix(endUnix, 0)
	st.OfflineAt = time.Unix(min(endUnix, dryUnix), 0)
	st.MinutesLeft = floorDiv(endUnix-now.Unix(), 60)
	st.Status = status(it.Kind, st)
	return st
}

// fuelUnits clamps a stored quantity to [0, MaxFuel] so budgets fit in int64.
func fuelUnits(n int) int64 {
	return int64(min(max(0, n), MaxFuel))
}

func remaining(units, elapsed, perUnit int64) int {
	if units <= 0 {
		return int(units)
	}
	left := units - elapsed/perUnit
	if left < 0 {
		return 0
	}
	return int(left)
}

func status(kind Kind, st State) Status {
	if (st.RemainingPrimary == 0 && st.RemainingSecondary == 0) || st.MinutesLeft <= 0 {
		return StatusOffline
	}
	switch kind {
	case KindElectrical:
		if st.RemainingPrimary <= electricalLowGas || st.MinutesLeft < electricalLowMinutes {
			return StatusLowFuel
		}
	default:
		if st.RemainingSecondary <= tekLowElement || st.MinutesLeft < tekLowMinutes {
			return StatusLowFuel
		}
	}
	return StatusOnline
}

// floorDiv rounds toward negative infinity, unlike Go's truncating division.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
