package dashboard

import (
	"context"
	"fmt"
	"time"

	"genboard/internal/eventbus"
	"genboard/internal/generator"
	"genboard/internal/transport"
	logx "genboard/pkg/logx"
	"genboard/pkg/tgui"
)

// ExpiredEvent is published once per generator that runs dry.
type ExpiredEvent struct {
	List   string         `json:"list"`
	Item   string         `json:"item"`
	Kind   generator.Kind `json:"kind"`
	End    time.Time      `json:"end"`
	RanOut time.Time      `json:"ran_out"`
	Muted  bool           `json:"muted"`
}

// checkExpiry flags generators that went offline since the last pass and
// queues one alert for each unmuted one. The flag is persisted before the
// alert is queued, so a failed save means no alert and a retry next cycle.
func (s *Service) checkExpiry(ctx context.Context, cfg Config, names []string, log logx.Logger) (int, error) {
	total := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		llog := log.With(logx.String("list", name))

		list, err := s.gens.Load(ctx, name)
		if err != nil {
			llog.Warn("expiry check: load failed", logx.Err(err))
			continue
		}
		now := s.clock()
		var due []string
		for _, it := range list.Items {
			if it.Expired {
				continue
			}
			if generator.ComputeState(it, now).Status == generator.StatusOffline {
				due = append(due, it.Name)
			}
		}
		if len(due) == 0 {
			continue
		}

		flipped, err := s.gens.MarkExpired(ctx, name, due)
		if err != nil {
			llog.Warn("expiry check: could not persist expired flags", logx.Err(err))
			continue
		}
		total += len(flipped)

		target := s.alertTarget(ctx, cfg, name)
		for _, it := range flipped {
			st := generator.ComputeState(it, now)
			s.publish(eventbus.TypeGeneratorExpired, ExpiredEvent{
				List: name, Item: it.Name, Kind: it.Kind, End: st.End, RanOut: st.RanOutAt(now), Muted: it.AlertsMuted,
			})
			if it.AlertsMuted {
				llog.Debug("generator expired, alerts muted", logx.String("item", it.Name))
				continue
			}
			llog.Info("generator expired", logx.String("item", it.Name), logx.Time("ran_out", st.RanOutAt(now)))
			s.sendAlert(ctx, target, ExpiryText(name, list.RoleID, it, now, cfg.Location), llog)
		}
	}
	return total, nil
}

func (s *Service) alertTarget(ctx context.Context, cfg Config, list string) transport.ChatTarget {
	if b, ok, err := s.binding(ctx, list); err == nil && ok && !b.Target().IsZero() {
		return b.Target()
	}
	return cfg.DefaultTarget
}

func (s *Service) sendAlert(ctx context.Context, to transport.ChatTarget, text string, log logx.Logger) {
	if s.alerts == nil {
		log.Warn("expiry alert dropped: notifier not configured")
		return
	}
	if to.IsZero() {
		log.Warn("expiry alert dropped: list has no dashboard chat and no default chat is set")
		return
	}
	err := s.alerts.Notify(ctx, transport.Notification{
		Channel:  "expiry",
		Priority: 9,
		Target:   to,
		Text:     text,
		Options:  &transport.SendOptions{ParseMode: "HTML", DisablePreview: true},
	})
	if err != nil {
		log.Warn("expiry alert not queued", logx.Err(err))
	}
}

// ExpiryText is the alert body. roleID is embedded as given. The reported
// time is when the generator went offline, never later than now.
func ExpiryText(list, roleID string, it generator.Item, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	end := generator.ComputeState(it, now).RanOutAt(now)
	mention := ""
	if roleID != "" {
		mention = tgui.Esc(roleID).String() + " "
	}
	return fmt.Sprintf("%s%s %s (%s) in %s ran out of fuel at %s.",
		mention,
		generator.StatusOffline.Glyph(),
		tgui.B(it.Name),
		it.Kind,
		tgui.B(list),
		end.In(loc).Format("Jan 2 15:04 MST"),
	)
}
