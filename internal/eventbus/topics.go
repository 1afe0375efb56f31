package eventbus

// Event types published by the dashboard and notifier pipelines.
const (
	TypeDashboardCycle   = "dashboard.cycle"
	TypeDashboardBackoff = "dashboard.backoff"
	TypeGeneratorExpired = "generator.expired"

	TypeNotifierQueued  = "notifier.queued"
	TypeNotifierSent    = "notifier.sent"
	TypeNotifierDropped = "notifier.dropped"
	TypeNotifierFailed  = "notifier.failed"
)

// Filter forwards events of the given types from in to a new buffered channel.
// The returned channel is closed when in is closed.
func Filter(in <-chan Event, buffer int, types ...string) <-chan Event {
	if buffer <= 0 {
		buffer = 8
	}
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	out := make(chan Event, buffer)
	go func() {
		defer close(out)
		for e := range in {
			if len(want) > 0 && !want[e.Type] {
				continue
			}
			select {
			case out <- e:
			default:
			}
		}
	}()
	return out
}
