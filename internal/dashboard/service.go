package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"genboard/internal/eventbus"
	"genboard/internal/generator"
	"genboard/internal/storage"
	"genboard/internal/transport"
	logx "genboard/pkg/logx"

	"golang.org/x/sync/singleflight"
)

var ErrBackingOff = errors.New("dashboard refresh is backing off after a rate limit")

// Config controls refresh pacing and presentation.
type Config struct {
	// Stagger is the pause between two lists within one cycle.
	Stagger time.Duration
	// BackoffWindow is the minimum cooldown after a rate-limit signal.
	BackoffWindow time.Duration
	// CallTimeout bounds every outbound platform call.
	CallTimeout time.Duration

	// DefaultTarget receives dashboards and alerts for lists without a binding.
	DefaultTarget transport.ChatTarget

	Location *time.Location
	Title    string
}

func (c Config) withDefaults() Config {
	if c.Stagger < 0 {
		c.Stagger = 0
	}
	if c.BackoffWindow <= 0 {
		c.BackoffWindow = 10 * time.Minute
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

func (c Config) renderOptions() generator.RenderOptions {
	return generator.RenderOptions{Location: c.Location, Title: c.Title}
}

// Alerter accepts expiry notifications. notifier.Service implements it.
type Alerter interface {
	Notify(ctx context.Context, n transport.Notification) error
}

// CycleState is the only state carried from one refresh cycle to the next.
type CycleState struct {
	BackoffUntil   time.Time `json:"backoff_until"`
	LastCycleStart time.Time `json:"last_cycle_start"`
}

// BackingOff reports whether a cycle starting at now would be skipped.
func (s CycleState) BackingOff(now time.Time) bool { return now.Before(s.BackoffUntil) }

// Service owns dashboard refresh, expiry alerts and the operations the
// command layer calls.
type Service struct {
	gens   *generator.Store
	binds  bindingStore
	msg    transport.Messenger
	alerts Alerter
	bus    eventbus.Bus
	log    logx.Logger

	mu    sync.Mutex
	cfg   Config
	state CycleState
	now   func() time.Time
	// unsaved holds bindings whose write failed after a send, so the next
	// push edits that message instead of sending another one.
	unsaved map[string]Binding

	cycles singleflight.Group
}

func New(gens *generator.Store, docs storage.Documents, msg transport.Messenger, alerts Alerter, bus eventbus.Bus, log logx.Logger, cfg Config) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		gens:    gens,
		binds:   bindingStore{docs: docs},
		msg:     msg,
		alerts:  alerts,
		bus:     bus,
		log:     log.With(logx.String("comp", "dashboard")),
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		unsaved: map[string]Binding{},
	}
}

// Apply swaps the config. A cycle in progress keeps the config it started with.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

// SetClock overrides the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	if now != nil {
		s.now = now
	}
	s.mu.Unlock()
}

func (s *Service) State() CycleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) snapshot() (Config, CycleState, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.state, s.now()
}

func (s *Service) clock() time.Time {
	s.mu.Lock()
	now := s.now
	s.mu.Unlock()
	return now()
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.clock(), Data: data})
}

// AddGenerator adds a freshly fuelled generator to a list.
func (s *Service) AddGenerator(ctx context.Context, list, name string, kind generator.Kind, fuel generator.Fuel) (generator.Item, error) {
	it := generator.NewItem(name, kind, fuel, s.clock())
	if err := s.gens.AddItem(ctx, list, it); err != nil {
		return generator.Item{}, err
	}
	return it, nil
}

// ListGenerators returns the items of a list in stored order.
func (s *Service) ListGenerators(ctx context.Context, list string) ([]generator.Item, error) {
	l, err := s.gens.Load(ctx, list)
	if err != nil {
		return nil, err
	}
	return l.Items, nil
}

func (s *Service) ListNames(ctx context.Context) ([]string, error) {
	return s.gens.ListNames(ctx)
}

func (s *Service) SetRole(ctx context.Context, list, roleID string) error {
	return s.gens.SetRole(ctx, list, roleID)
}

func (s *Service) SetNotes(ctx context.Context, list, name, notes string) (generator.Item, error) {
	return s.gens.SetNotes(ctx, list, name, notes)
}

func (s *Service) SetMuted(ctx context.Context, list, name string, muted bool) (generator.Item, error) {
	return s.gens.SetMuted(ctx, list, name, muted)
}

func (s *Service) Refuel(ctx context.Context, list, name string, fuel generator.Fuel) (generator.Item, error) {
	return s.gens.Refuel(ctx, list, name, fuel)
}

func (s *Service) RemoveGenerator(ctx context.Context, list, name string) error {
	return s.gens.RemoveItem(ctx, list, name)
}

// DeleteList removes a list and its binding. The dashboard message itself is
// left in the chat.
func (s *Service) DeleteList(ctx context.Context, list string) error {
	if err := s.gens.DeleteList(ctx, list); err != nil {
		return err
	}
	s.dropUnsaved(strings.TrimSpace(list))
	if err := s.binds.delete(ctx, strings.TrimSpace(list)); err != nil {
		return fmt.Errorf("delete binding %q: %w", list, err)
	}
	return nil
}

// Binding returns the stored binding for a list, if any.
func (s *Service) Binding(ctx context.Context, list string) (Binding, bool, error) {
	return s.binding(ctx, strings.TrimSpace(list))
}

// Bind points a list's dashboard at a chat. Rebinding to a different chat
// forgets the old message so the next push sends a new one.
func (s *Service) Bind(ctx context.Context, list string, to transport.ChatTarget) (Binding, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return Binding{}, generator.ErrInvalidName
	}
	if to.IsZero() {
		return Binding{}, errors.New("bind: chat is required")
	}
	now := s.clock()
	b, ok, err := s.binding(ctx, list)
	if err != nil {
		return Binding{}, err
	}
	if !ok || b.Target() != to {
		b = Binding{List: list, ChatID: to.ChatID, ThreadID: to.ThreadID, CreatedAt: now}
	}
	b.UpdatedAt = now
	if err := s.binds.put(ctx, b); err != nil {
		return Binding{}, err
	}
	s.dropUnsaved(list)
	return b, nil
}

// RenderNow renders a list without sending anything.
func (s *Service) RenderNow(ctx context.Context, list string) (generator.Payload, error) {
	cfg, _, now := s.snapshot()
	l, err := s.gens.Load(ctx, list)
	if err != nil {
		return generator.Payload{}, err
	}
	return generator.Render(strings.TrimSpace(list), l, now, cfg.renderOptions()), nil
}

// Push refreshes a single list's dashboard right away. It honours an active
// backoff and starts one when the platform rate-limits the call.
func (s *Service) Push(ctx context.Context, list string) (PushResult, error) {
	cfg, st, now := s.snapshot()
	if st.BackingOff(now) {
		return PushSkipped, ErrBackingOff
	}
	list = strings.TrimSpace(list)
	res, err := s.pushList(ctx, cfg, list, s.log.With(logx.String("list", list)))
	if errors.Is(err, transport.ErrRateLimited) {
		s.enterBackoff(cfg, list, err, s.log)
	}
	return res, err
}
