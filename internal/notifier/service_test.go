package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"genboard/internal/eventbus"
	"genboard/internal/transport"
	logx "genboard/pkg/logx"
)

type flakyMessenger struct {
	mu    sync.Mutex
	fails int
	calls int
	texts []string
	err   error
}

func (m *flakyMessenger) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.fails {
		if m.err != nil {
			return transport.MessageRef{}, m.err
		}
		return transport.MessageRef{}, errors.New("temporary")
	}
	m.texts = append(m.texts, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: m.calls}, nil
}

func (m *flakyMessenger) EditText(context.Context, transport.MessageRef, string, *transport.SendOptions) error {
	return nil
}

func (m *flakyMessenger) snapshot() (int, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, append([]string(nil), m.texts...)
}

func waitFor(t *testing.T, ch <-chan eventbus.Event, typ string) eventbus.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func testConfig() Config {
	return Config{Enabled: true, Workers: 1, QueueSize: 4, RatePerSec: 100, RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}
}

func TestNotifyRetriesThenDelivers(t *testing.T) {
	msg := &flakyMessenger{fails: 2}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(32)
	defer unsub()

	s := New(testConfig(), msg, logx.Nop(), bus)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	n := transport.Notification{Channel: "expiry", Priority: 9, Target: transport.ChatTarget{ChatID: 1}, Text: "Barn ran out"}
	if err := s.Notify(context.Background(), n); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	ev := waitFor(t, events, eventbus.TypeNotifierSent)
	if got := ev.Data.(NotificationEvent).Attempts; got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}

	calls, texts := msg.snapshot()
	if calls != 3 || len(texts) != 1 || texts[0] != "🚨 Barn ran out" {
		t.Fatalf("calls=%d texts=%q", calls, texts)
	}
	if h := s.History(); len(h) != 1 || h[0].Channel != "expiry" {
		t.Fatalf("history = %+v", h)
	}
}

func TestNotifyGivesUpOnNotFound(t *testing.T) {
	msg := &flakyMessenger{fails: 10, err: transport.ErrNotFound}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(32)
	defer unsub()

	s := New(testConfig(), msg, logx.Nop(), bus)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	_ = s.Notify(context.Background(), transport.Notification{Target: transport.ChatTarget{ChatID: 1}, Text: "x"})
	waitFor(t, events, eventbus.TypeNotifierFailed)
	if calls, _ := msg.snapshot(); calls != 1 {
		t.Fatalf("calls = %d, want a single attempt", calls)
	}
}

func TestNotifyDisabledAndStopped(t *testing.T) {
	s := New(Config{Enabled: false}, &flakyMessenger{}, logx.Nop(), nil)
	if err := s.Notify(context.Background(), transport.Notification{Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}

	s = New(testConfig(), &flakyMessenger{}, logx.Nop(), nil)
	if err := s.Notify(context.Background(), transport.Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("before Start: err = %v, want ErrStopped", err)
	}
	s.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	if err := s.Notify(context.Background(), transport.Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("after Stop: err = %v, want ErrStopped", err)
	}
}

func TestRetryDelayIsCapped(t *testing.T) {
	s := New(Config{}, nil, logx.Nop(), nil)
	cfg := Config{RetryBase: time.Second, RetryMaxDelay: 4 * time.Second}
	for attempt := 1; attempt <= 10; attempt++ {
		d := s.retryDelay(cfg, attempt)
		if d <= 0 || d > cfg.RetryMaxDelay {
			t.Fatalf("attempt %d: delay %v out of range", attempt, d)
		}
	}
}
