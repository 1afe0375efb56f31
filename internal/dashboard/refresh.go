package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"genboard/internal/eventbus"
	"genboard/internal/generator"
	"genboard/internal/transport"
	logx "genboard/pkg/logx"

	"github.com/google/uuid"
)

type PushResult int

const (
	PushSkipped PushResult = iota // no binding and no default chat
	PushEdited
	PushCreated
)

func (r PushResult) String() string {
	switch r {
	case PushEdited:
		return "edited"
	case PushCreated:
		return "created"
	default:
		return "skipped"
	}
}

// CycleReport summarizes one refresh cycle.
type CycleReport struct {
	ID        string    `json:"id"`
	Trigger   string    `json:"trigger"`
	StartedAt time.Time `json:"started_at"`

	// Skipped is set when the cycle started inside a backoff window.
	Skipped bool `json:"skipped"`

	Lists   int `json:"lists"`
	Edited  int `json:"edited"`
	Created int `json:"created"`
	Failed  int `json:"failed"`
	// Unreached counts lists not attempted because the cycle was cut short.
	Unreached int `json:"unreached"`

	RateLimited  bool      `json:"rate_limited"`
	BackoffUntil time.Time `json:"backoff_until,omitempty"`

	Expired  int           `json:"expired"`
	Duration time.Duration `json:"duration"`
}

// BackoffEvent is published once per rate-limited cycle.
type BackoffEvent struct {
	List       string        `json:"list"`
	Until      time.Time     `json:"until"`
	RetryAfter time.Duration `json:"retry_after"`
}

const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// RunCycle runs one scheduled refresh cycle.
func (s *Service) RunCycle(ctx context.Context) (CycleReport, error) {
	return s.run(ctx, TriggerSchedule)
}

// RunCycleNow runs a cycle on demand. If a cycle is already running, the
// caller waits for it and gets its report instead of starting another.
func (s *Service) RunCycleNow(ctx context.Context) (CycleReport, error) {
	return s.run(ctx, TriggerManual)
}

func (s *Service) run(ctx context.Context, trigger string) (CycleReport, error) {
	v, err, _ := s.cycles.Do("cycle", func() (any, error) {
		return s.runCycle(ctx, trigger)
	})
	rep, _ := v.(CycleReport)
	return rep, err
}

func (s *Service) runCycle(ctx context.Context, trigger string) (CycleReport, error) {
	cfg, st, start := s.snapshot()
	rep := CycleReport{ID: uuid.NewString(), Trigger: trigger, StartedAt: start}
	log := s.log.With(logx.String("cycle_id", rep.ID), logx.String("trigger", trigger))

	if st.BackingOff(start) {
		rep.Skipped = true
		rep.BackoffUntil = st.BackoffUntil
		log.Debug("refresh skipped, backing off", logx.Time("until", st.BackoffUntil))
		return rep, nil
	}

	s.mu.Lock()
	s.state.LastCycleStart = start
	s.mu.Unlock()

	names, err := s.gens.ListNames(ctx)
	if err != nil {
		return rep, fmt.Errorf("refresh: %w", err)
	}
	sort.Strings(names)
	rep.Lists = len(names)

	for i, name := range names {
		if i > 0 {
			if err := sleepCtx(ctx, cfg.Stagger); err != nil {
				rep.Unreached = len(names) - i
				return rep, err
			}
		}
		llog := log.With(logx.String("list", name))
		res, err := s.pushList(ctx, cfg, name, llog)
		if errors.Is(err, transport.ErrRateLimited) {
			rep.RateLimited = true
			rep.Unreached = len(names) - i - 1
			rep.BackoffUntil = s.enterBackoff(cfg, name, err, log)
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				rep.Unreached = len(names) - i - 1
				return rep, ctx.Err()
			}
			rep.Failed++
			llog.Warn("dashboard refresh failed", logx.Err(err))
			continue
		}
		switch res {
		case PushEdited:
			rep.Edited++
		case PushCreated:
			rep.Created++
		}
	}

	expired, err := s.checkExpiry(ctx, cfg, names, log)
	rep.Expired = expired
	rep.Duration = s.clock().Sub(start)
	if err != nil {
		return rep, err
	}

	log.Debug("refresh cycle done",
		logx.Int("lists", rep.Lists),
		logx.Int("edited", rep.Edited),
		logx.Int("created", rep.Created),
		logx.Int("failed", rep.Failed),
		logx.Int("expired", rep.Expired),
		logx.Duration("took", rep.Duration),
	)
	s.publish(eventbus.TypeDashboardCycle, rep)
	return rep, nil
}

// enterBackoff records the cooldown and emits the single operator warning for
// this cycle. The window is the larger of the configured one and the
// platform's retry hint.
func (s *Service) enterBackoff(cfg Config, list string, cause error, log logx.Logger) time.Time {
	retry := transport.RetryAfter(cause)
	until := s.clock().Add(max(cfg.BackoffWindow, retry))

	s.mu.Lock()
	if until.After(s.state.BackoffUntil) {
		s.state.BackoffUntil = until
	}
	until = s.state.BackoffUntil
	s.mu.Unlock()

	log.Warn("rate limited, pausing dashboard refresh",
		logx.String("list", list),
		logx.Duration("retry_after", retry),
		logx.Time("until", until),
		logx.Err(cause),
	)
	s.publish(eventbus.TypeDashboardBackoff, BackoffEvent{List: list, Until: until, RetryAfter: retry})
	return until
}

// pushList renders one list and edits its dashboard message, or sends a new
// one when there is none yet or the old one was deleted.
func (s *Service) pushList(ctx context.Context, cfg Config, name string, log logx.Logger) (PushResult, error) {
	list, err := s.gens.Load(ctx, name)
	if err != nil {
		return PushSkipped, err
	}
	text := generator.Render(name, list, s.clock(), cfg.renderOptions()).HTML()
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}

	b, ok, err := s.binding(ctx, name)
	if err != nil {
		return PushSkipped, err
	}

	if ok && b.HasMessage() {
		err := s.call(ctx, cfg, func(c context.Context) error {
			return s.msg.EditText(c, b.Ref(), text, opt)
		})
		if err == nil {
			return PushEdited, nil
		}
		if !errors.Is(err, transport.ErrNotFound) {
			return PushSkipped, err
		}
		log.Info("dashboard message is gone, sending a new one", logx.Int("message_id", b.MessageID))
	}

	target := cfg.DefaultTarget
	if ok && !b.Target().IsZero() {
		target = b.Target()
	}
	if target.IsZero() {
		return PushSkipped, nil
	}

	var ref transport.MessageRef
	err = s.call(ctx, cfg, func(c context.Context) error {
		var err error
		ref, err = s.msg.SendText(c, target, text, opt)
		return err
	})
	if err != nil {
		return PushSkipped, err
	}

	now := s.clock()
	if !ok {
		b = Binding{List: name, CreatedAt: now}
	}
	b.ChatID, b.ThreadID, b.MessageID = ref.ChatID, ref.ThreadID, ref.MessageID
	b.UpdatedAt = now
	if err := s.binds.put(ctx, b); err != nil {
		s.keepUnsaved(b)
		log.Error("dashboard sent but its binding was not saved; keeping it in memory",
			logx.Int64("chat_id", b.ChatID),
			logx.Int("message_id", b.MessageID),
			logx.Err(err),
		)
		return PushCreated, nil
	}
	s.dropUnsaved(name)
	return PushCreated, nil
}

// call runs fn under the per-call timeout.
func (s *Service) call(ctx context.Context, cfg Config, fn func(context.Context) error) error {
	c, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()
	return fn(c)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
