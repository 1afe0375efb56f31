package generator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1_700_000_000, 0)

func tek(shards, element int) Item {
	return NewItem("tek", KindTek, Fuel{Primary: shards, Secondary: element}, t0)
}

func electrical(gas, imbued int) Item {
	return NewItem("elec", KindElectrical, Fuel{Primary: gas, Secondary: imbued}, t0)
}

func TestComputeStateTekStillInShardPhase(t *testing.T) {
	st := ComputeState(tek(10, 2), t0.Add(3000*time.Second))

	assert.Equal(t, 6, st.RemainingPrimary)
	assert.Equal(t, 2, st.RemainingSecondary, "element must not burn before shards run out")
	assert.Equal(t, t0.Unix()+136080, st.End.Unix())
	assert.Equal(t, int64(2218), st.MinutesLeft)
	// Element <= 5 marks low fuel even though it has not started burning.
	assert.Equal(t, StatusLowFuel, st.Status)
}

func TestComputeStateElectricalRunsDry(t *testing.T) {
	st := ComputeState(electrical(1, 0), t0.Add(3700*time.Second))

	assert.Equal(t, 0, st.RemainingPrimary)
	assert.Equal(t, 0, st.RemainingSecondary)
	assert.LessOrEqual(t, st.MinutesLeft, int64(0))
	assert.Equal(t, StatusOffline, st.Status)
}

func TestComputeStateTable(t *testing.T) {
	cases := []struct {
		name    string
		item    Item
		elapsed time.Duration
		primary int
		second  int
		minutes int64
		status  Status
	}{
		{"tek plenty", tek(100, 20), 0, 100, 20, (100*648 + 20*64800) / 60, StatusOnline},
		{"tek element phase", tek(1, 10), 648*time.Second + 64800*time.Second, 0, 9, (9 * 64800) / 60, StatusOnline},
		{"tek element only", tek(0, 10), 64800 * time.Second, 0, 9, (9 * 64800) / 60, StatusOnline},
		{"tek last half hour", tek(2, 0), 0, 2, 0, 21, StatusLowFuel},
		{"tek empty", tek(0, 0), 0, 0, 0, 0, StatusOffline},
		{"electrical plenty", electrical(10, 2), 0, 10, 2, (10*3600 + 2*14400) / 60, StatusOnline},
		{"electrical one gas", electrical(1, 5), 0, 1, 5, (3600 + 5*14400) / 60, StatusLowFuel},
		{"electrical parallel", electrical(10, 2), 4 * time.Hour, 6, 1, (10*3600 + 2*14400 - 4*3600) / 60, StatusOnline},
		{"electrical imbued under an hour left", electrical(0, 1), 14400*time.Second - 30*time.Minute, 0, 1, 30, StatusLowFuel},
		{"electrical exact end", electrical(2, 0), 2 * time.Hour, 0, 0, 0, StatusOffline},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			st := ComputeState(tc.item, t0.Add(tc.elapsed))
			assert.Equal(t, tc.primary, st.RemainingPrimary, "primary")
			assert.Equal(t, tc.second, st.RemainingSecondary, "secondary")
			assert.Equal(t, tc.minutes, st.MinutesLeft, "minutes left")
			assert.Equal(t, tc.status, st.Status, "status")
		})
	}
}

func TestComputeStateBeforeStart(t *testing.T) {
	it := tek(10, 10)
	early := ComputeState(it, t0.Add(-time.Hour))
	atStart := ComputeState(it, t0)

	assert.Equal(t, atStart.RemainingPrimary, early.RemainingPrimary)
	assert.Equal(t, atStart.RemainingSecondary, early.RemainingSecondary)
	assert.Greater(t, early.MinutesLeft, atStart.MinutesLeft)
}

func TestComputeStateMinutesLeftFloorsNegative(t *testing.T) {
	// 30 seconds past the end is minute -1, not 0.
	st := ComputeState(electrical(1, 0), t0.Add(3630*time.Second))
	assert.Equal(t, int64(-1), st.MinutesLeft)
}

func TestComputeStateIsIdempotent(t *testing.T) {
	it := tek(7, 3)
	now := t0.Add(90 * time.Minute)
	assert.Equal(t, ComputeState(it, now), ComputeState(it, now))
}

func TestTekDepletionIsSequential(t *testing.T) {
	for _, fuel := range []Fuel{{10, 2}, {1, 1}, {50, 8}, {0, 3}} {
		it := NewItem("x", KindTek, fuel, t0)
		end := ComputeState(it, t0).End
		for now := t0; now.Before(end); now = now.Add(17 * time.Minute) {
			st := ComputeState(it, now)
			require.GreaterOrEqual(t, st.RemainingPrimary, 0)
			require.GreaterOrEqual(t, st.RemainingSecondary, 0)
			if st.RemainingSecondary < fuel.Secondary {
				require.Zero(t, st.RemainingPrimary, "element burned while shards remain at %v", now.Sub(t0))
			}
		}
	}
}

func TestElectricalDepletionIsParallel(t *testing.T) {
	a, b := electrical(1, 4), electrical(30, 4)
	for h := 0; h <= 20; h++ {
		now := t0.Add(time.Duration(h) * time.Hour)
		require.Equal(t,
			ComputeState(a, now).RemainingSecondary,
			ComputeState(b, now).RemainingSecondary,
			"imbued curve depends on gas at hour %d", h)
	}
}

func TestStatusNeverImproves(t *testing.T) {
	items := []Item{tek(10, 2), tek(200, 9), tek(3, 0), electrical(5, 1), electrical(1, 0), electrical(0, 3)}
	for _, it := range items {
		prev := StatusOnline
		end := ComputeState(it, t0).End.Add(time.Hour)
		for now := t0; !now.After(end); now = now.Add(5 * time.Minute) {
			st := ComputeState(it, now)
			require.GreaterOrEqual(t, st.Status, prev, "%s %+v improved at %v", it.Kind, it.Fuel(), now.Sub(t0))
			prev = st.Status
		}
		require.Equal(t, StatusOffline, prev)
	}
}

func TestStatusLabels(t *testing.T) {
	assert.Equal(t, "🔋", StatusOnline.Glyph())
	assert.Equal(t, "⚠️", StatusLowFuel.Glyph())
	assert.Equal(t, "❌", StatusOffline.Glyph())
	assert.Equal(t, "Low Fuel", StatusLowFuel.String())
}

func TestElectricalOfflineAtIsWhenBothFuelsAreGone(t *testing.T) {
	it := electrical(1, 1)
	now := t0.Add(4 * time.Hour)
	st := ComputeState(it, now)

	require.Equal(t, StatusOffline, st.Status)
	assert.Equal(t, t0.Unix()+5*3600, st.End.Unix(), "End keeps both budgets added")
	assert.Equal(t, now.Unix(), st.OfflineAt.Unix())
	assert.Equal(t, now.Unix(), st.RanOutAt(now).Unix())

	later := now.Add(time.Hour)
	assert.Equal(t, now.Unix(), ComputeState(it, later).RanOutAt(later).Unix())
}

func TestTekOfflineAtMatchesEnd(t *testing.T) {
	st := ComputeState(tek(1, 0), t0.Add(time.Hour))
	assert.Equal(t, st.End, st.OfflineAt)
}

func TestFuelIsCappedAtMaxFuel(t *testing.T) {
	huge := int(math.MaxInt64/ElementSeconds) + 1
	it := NewItem("big", KindTek, Fuel{Primary: 0, Secondary: huge}, t0)
	assert.Equal(t, MaxFuel, it.Element)

	st := ComputeState(it, t0)
	assert.Equal(t, StatusOnline, st.Status)
	assert.Equal(t, t0.Unix()+int64(MaxFuel)*ElementSeconds, st.End.Unix())
	assert.Positive(t, st.MinutesLeft)

	// Items built without NewItem are bounded the same way.
	raw := Item{Name: "raw", Kind: KindElectrical, Imbued: huge, StartedAt: t0.Unix()}
	assert.NotEqual(t, StatusOffline, ComputeState(raw, t0).Status)
}
