package dashboard

import (
	"context"
	"sync"

	"genboard/internal/eventbus"
)

// Activity keeps the latest refresh and alert events for status output.
// It is fed from the event bus.
type Activity struct {
	mu   sync.Mutex
	snap ActivitySnapshot
}

type ActivitySnapshot struct {
	LastCycle   *CycleReport  `json:"last_cycle,omitempty"`
	LastBackoff *BackoffEvent `json:"last_backoff,omitempty"`

	Cycles       int `json:"cycles"`
	Expired      int `json:"expired"`
	AlertsSent   int `json:"alerts_sent"`
	AlertsFailed int `json:"alerts_failed"`
}

// Types lists the event types Activity records.
func (a *Activity) Types() []string {
	return []string{
		eventbus.TypeDashboardCycle,
		eventbus.TypeDashboardBackoff,
		eventbus.TypeGeneratorExpired,
		eventbus.TypeNotifierSent,
		eventbus.TypeNotifierFailed,
		eventbus.TypeNotifierDropped,
	}
}

func (a *Activity) Observe(e eventbus.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch e.Type {
	case eventbus.TypeDashboardCycle:
		if rep, ok := e.Data.(CycleReport); ok {
			a.snap.LastCycle = &rep
			a.snap.Cycles++
		}
	case eventbus.TypeDashboardBackoff:
		if b, ok := e.Data.(BackoffEvent); ok {
			a.snap.LastBackoff = &b
		}
	case eventbus.TypeGeneratorExpired:
		a.snap.Expired++
	case eventbus.TypeNotifierSent:
		a.snap.AlertsSent++
	case eventbus.TypeNotifierFailed, eventbus.TypeNotifierDropped:
		a.snap.AlertsFailed++
	}
}

// Run records events until ctx is done or events is closed.
func (a *Activity) Run(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.Observe(e)
		}
	}
}

func (a *Activity) Snapshot() ActivitySnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.snap
	if out.LastCycle != nil {
		c := *out.LastCycle
		out.LastCycle = &c
	}
	if out.LastBackoff != nil {
		b := *out.LastBackoff
		out.LastBackoff = &b
	}
	return out
}
