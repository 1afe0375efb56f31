package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"genboard/internal/eventbus"
	logx "genboard/pkg/logx"
)

type Config struct {
	Enabled  bool
	Timezone string // IANA name, empty means local time
}

// Job is the unit of scheduled work.
type Job func(ctx context.Context) error

type scheduleDef struct {
	name          string
	spec          string // cron spec or "@every <d>"
	every         time.Duration
	timeout       time.Duration
	job           Job
	entryID       cron.EntryID
	startupSpread time.Duration

	running atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64
	lastErr atomic.Value // string
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	parser cron.Parser
	c      *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	defs   map[string]*scheduleDef
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
	Running bool
	Runs    uint64
	Skipped uint64
	LastErr string
}

type Snapshot struct {
	Enabled   bool
	Timezone  string
	Schedules []ScheduleInfo
}

// RunEvent is published on the bus after every finished run.
type RunEvent struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// TypeScheduleRun is the bus event type for RunEvent.
const TypeScheduleRun = "schedule.run"
