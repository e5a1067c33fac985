package scheduler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"insight-stream/src/aggregation"
	"insight-stream/src/dedup"
	"insight-stream/src/interfaces"
	"insight-stream/src/logger"
	"insight-stream/src/models"
	"insight-stream/src/utils"
)

// -----------------------------------------------------------------------------
// Tick Types
// -----------------------------------------------------------------------------

type TickReason string

const (
	ReasonPeriodic TickReason = "periodic"
	ReasonOnDemand TickReason = "on_demand"
)

// ScheduleTick is a logical event; nothing about it is persisted.
type ScheduleTick struct {
	Kind   models.MSnapshotKind
	At     time.Time
	Reason TickReason
}

// -----------------------------------------------------------------------------
// Scheduler
//
// Fires aggregation on a fixed cadence and on explicit subscriber request.
// Periodic ticks for a kind whose computation is still in flight are dropped,
// not queued; freshness is bounded by the cadence, never by queue depth. The
// scheduler never blocks waiting for a computation: each dispatch runs in its
// own goroutine and hands successful snapshots to the hub.
// -----------------------------------------------------------------------------

type Scheduler struct {
	Config   *models.MConfig
	Engine   *aggregation.Engine
	Cache    *dedup.Cache[*models.MSnapshot]
	Hub      interfaces.IBroadcaster
	Logger   *logger.Logger
	Calendar *utils.BusinessCalendar // nil unless business-day gating is on

	kinds    []models.MSnapshotKind
	inFlight map[models.MSnapshotKind]*atomic.Bool

	mu         sync.Mutex
	isRunning  atomic.Bool
	cancelFunc context.CancelFunc

	lastComputeSecs atomic.Uint64 // float64 bits
}

// -----------------------------------------------------------------------------

func NewScheduler(
	cfg *models.MConfig,
	engine *aggregation.Engine,
	cache *dedup.Cache[*models.MSnapshot],
	hub interfaces.IBroadcaster,
	kinds []models.MSnapshotKind,
	log *logger.Logger,
) *Scheduler {
	s := &Scheduler{
		Config:   cfg,
		Engine:   engine,
		Cache:    cache,
		Hub:      hub,
		Logger:   log,
		kinds:    kinds,
		inFlight: make(map[models.MSnapshotKind]*atomic.Bool, len(kinds)),
	}

	for _, k := range kinds {
		s.inFlight[k] = &atomic.Bool{}
	}

	if cfg.Broadcast.BusinessDaysOnly {
		s.Calendar = utils.NewBusinessCalendar(cfg.Broadcast.CalendarMIC)
	}

	return s
}

// -----------------------------------------------------------------------------

// Start begins the periodic tick loop
func (s *Scheduler) Start(parentCtx context.Context, wg *sync.WaitGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning.Load() {
		return fmt.Errorf("scheduler is already running")
	}

	// Derive a context so we can stop just the scheduler via Stop()
	ctx, cancel := context.WithCancel(parentCtx)
	s.cancelFunc = cancel
	s.isRunning.Store(true)

	wg.Add(1)
	go s.runLoop(ctx, wg)
	s.Logger.Info("Scheduler started (cadence %ds, %d kinds)", s.Config.Broadcast.CadenceSeconds, len(s.kinds))
	return nil
}

// -----------------------------------------------------------------------------

// Stop signals the run loop to exit
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning.Load() {
		return fmt.Errorf("scheduler is not running")
	}

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.isRunning.Store(false)
	s.Logger.Info("Scheduler stopped")
	return nil
}

// -----------------------------------------------------------------------------

// runLoop is the periodic timer loop
func (s *Scheduler) runLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(time.Duration(s.Config.Broadcast.CadenceSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()

			if s.Calendar != nil && !s.Calendar.IsBusinessDay(now) {
				s.Logger.Debug("Skipping periodic recompute: not a business day")
				continue
			}

			// Deliberate, documented choice: by default we recompute even
			// with zero subscribers so the welcome push always has fresh
			// data. skip_when_no_subscribers trades that for idle CPU.
			if s.Config.Broadcast.SkipWhenIdle && s.Hub.SubscriberCount() == 0 {
				s.Logger.Debug("Skipping periodic recompute: no subscribers")
				continue
			}

			for _, kind := range s.kinds {
				s.dispatch(ctx, ScheduleTick{Kind: kind, At: now, Reason: ReasonPeriodic})
			}
		}
	}
}

// -----------------------------------------------------------------------------

// dispatch fires one computation unless the kind is already in flight, in
// which case the tick is coalesced (dropped).
func (s *Scheduler) dispatch(ctx context.Context, tick ScheduleTick) {
	flag, ok := s.inFlight[tick.Kind]
	if !ok {
		s.Logger.Warning("Dropping tick for untracked kind %q", tick.Kind)
		return
	}

	if !flag.CompareAndSwap(false, true) {
		s.Logger.Debug("Coalesced %s tick for %s: computation in flight", tick.Reason, tick.Kind)
		return
	}

	go func() {
		defer flag.Store(false)

		snap, err := s.computeViaCache(ctx, tick.Kind)
		if err != nil {
			// Retryable by the next tick; subscribers keep the last good snapshot.
			s.Logger.Warning("Periodic compute for %s failed: %v", tick.Kind, err)
			return
		}
		s.Hub.Publish(snap)
	}()
}

// -----------------------------------------------------------------------------

// TriggerOnDemand computes the kind now (sharing any in-flight computation
// through the dedup cache), publishes the result to all subscribers and
// returns it to the single requester. Errors go only to that requester.
func (s *Scheduler) TriggerOnDemand(ctx context.Context, kind models.MSnapshotKind) (*models.MSnapshot, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown snapshot kind %q", kind)
	}

	snap, err := s.computeViaCache(ctx, kind)
	if err != nil {
		return nil, err
	}

	s.Hub.Publish(snap)
	return snap, nil
}

// -----------------------------------------------------------------------------

// computeViaCache routes every computation through the dedup cache so that
// concurrent identical requests collapse into one engine call.
func (s *Scheduler) computeViaCache(ctx context.Context, kind models.MSnapshotKind) (*models.MSnapshot, error) {
	key := ComputeKey(kind)
	start := time.Now()
	snap, err := s.Cache.Resolve(ctx, key, func(ctx context.Context) (*models.MSnapshot, error) {
		return s.Engine.Compute(ctx, kind)
	})
	s.lastComputeSecs.Store(math.Float64bits(time.Since(start).Seconds()))
	return snap, err
}

// -----------------------------------------------------------------------------

// LastComputeSeconds reports the wall time of the most recent computation,
// cache hits included. Feeds the metrics endpoint.
func (s *Scheduler) LastComputeSeconds() float64 {
	return math.Float64frombits(s.lastComputeSecs.Load())
}

// -----------------------------------------------------------------------------

// ComputeKey is the dedup fingerprint for a snapshot computation.
func ComputeKey(kind models.MSnapshotKind) string {
	return "compute:" + string(kind)
}
