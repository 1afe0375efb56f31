package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"genboard/internal/eventbus"
	logx "genboard/pkg/logx"
)

func TestAddScheduleRejectsBadInput(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	job := func(context.Context) error { return nil }
	if err := s.AddSchedule("", "5m", 0, job); err == nil {
		t.Fatal("empty name accepted")
	}
	if err := s.AddSchedule("x", "61 * * * *", 0, job); err == nil {
		t.Fatal("invalid cron accepted")
	}
	if err := s.AddSchedule("x", "5m", 0, nil); err == nil {
		t.Fatal("nil job accepted")
	}
}

func TestAddScheduleReplacesByName(t *testing.T) {
	s := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop(), nil)
	job := func(context.Context) error { return nil }
	if err := s.AddSchedule("dashboard", "5m", time.Minute, job); err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())
	if err := s.AddSchedule("dashboard", "*/2 * * * *", time.Minute, job); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if len(snap.Schedules) != 1 {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}
	info := snap.Schedules[0]
	if info.Spec != "*/2 * * * *" || info.Next.IsZero() {
		t.Fatalf("info = %+v", info)
	}
	if !s.Remove("dashboard") || s.Remove("dashboard") {
		t.Fatal("Remove should report existence once")
	}
}

func TestRunSkipsWhileInFlight(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	s := New(Config{Enabled: true}, logx.Nop(), bus)
	release := make(chan struct{})
	entered := make(chan struct{})
	d := &scheduleDef{name: "cycle", timeout: time.Second, job: func(ctx context.Context) error {
		close(entered)
		<-release
		return errors.New("boom")
	}}

	go s.run(d)
	<-entered
	s.run(d)
	if got := d.skipped.Load(); got != 1 {
		t.Fatalf("skipped = %d, want 1", got)
	}
	close(release)

	select {
	case e := <-events:
		ev := e.Data.(RunEvent)
		if e.Type != TypeScheduleRun || ev.Name != "cycle" || ev.Error != "boom" {
			t.Fatalf("event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no run event")
	}
}

func TestRunRecoversPanic(t *testing.T) {
	s := New(Config{}, logx.Nop(), nil)
	d := &scheduleDef{name: "p", job: func(context.Context) error { panic("kaput") }}
	s.run(d)
	if got, _ := d.lastErr.Load().(string); got != "panic: kaput" {
		t.Fatalf("lastErr = %q", got)
	}
	if d.running.Load() {
		t.Fatal("running flag left set")
	}
}

func TestStartupSpreadDelaysFirstRun(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sched, jitter := makeIntervalScheduleWithSpread(time.Minute, now, "dashboard")
	if jitter < 0 || jitter >= time.Minute {
		t.Fatalf("jitter = %v", jitter)
	}
	if got := sched.Next(now); !got.Equal(now.Add(time.Minute + jitter)) {
		t.Fatalf("first = %v", got)
	}
}
