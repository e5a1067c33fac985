package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"insight-stream/src/aggregation"
	"insight-stream/src/dedup"
	"insight-stream/src/logger"
	"insight-stream/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Stubs
// -----------------------------------------------------------------------------

type stubStore struct {
	queries atomic.Int32
	delay   time.Duration
	err     error
}

func (s *stubStore) Initialize() error { return nil }

func (s *stubStore) RevenueByDay(ctx context.Context, w models.MWindow) ([]models.MRevenueByDayRow, error) {
	s.queries.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return []models.MRevenueByDayRow{{Day: "2026-08-01", RevenueCents: 1000, Orders: 2}}, nil
}

func (s *stubStore) ProductSales(ctx context.Context, w models.MWindow, limit int) ([]models.MProductSalesRow, error) {
	s.queries.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return nil, nil
}

func (s *stubStore) CustomerActivity(ctx context.Context, w models.MWindow) ([]models.MCustomerActivityRow, error) {
	s.queries.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return nil, nil
}

func (s *stubStore) Ping(ctx context.Context) error { return nil }
func (s *stubStore) Close() error                   { return nil }

// -----------------------------------------------------------------------------

type stubHub struct {
	mu        sync.Mutex
	published []*models.MSnapshot
	subCount  int
}

func (h *stubHub) Publish(snap *models.MSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published = append(h.published, snap)
}

func (h *stubHub) SubscriberCount() int { return h.subCount }
func (h *stubHub) Start() error         { return nil }
func (h *stubHub) Stop() error          { return nil }

func (h *stubHub) publishedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.published)
}

// -----------------------------------------------------------------------------

func newTestScheduler(t *testing.T, store *stubStore, hub *stubHub) *Scheduler {
	t.Helper()

	cfg := &models.MConfig{
		Name:     "test",
		LogLevel: "ERROR",
		Broadcast: models.MBroadcastConfig{
			CadenceSeconds:    1,
			SendTimeoutMillis: 100,
			ClientQueueDepth:  16,
			HistoryDepth:      8,
		},
		Dedup: models.MDedupConfig{
			SuccessTTLSeconds:    1,
			FailureTTLSeconds:    1,
			SweepIntervalSeconds: 60,
		},
		Storage: models.MStorageConfig{
			QueryTimeoutSeconds: 5,
			WindowDays:          7,
		},
	}

	log := logger.NewLogger("ERROR", "test")
	engine := aggregation.NewEngine(cfg, store, log)

	cache := dedup.NewCache[*models.MSnapshot](
		200*time.Millisecond, 50*time.Millisecond, time.Minute, log)
	t.Cleanup(cache.Stop)

	return NewScheduler(cfg, engine, cache, hub, models.AllKinds(), log)
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestScheduler_TriggerOnDemand(t *testing.T) {
	store := &stubStore{}
	hub := &stubHub{}
	s := newTestScheduler(t, store, hub)

	snap, err := s.TriggerOnDemand(context.Background(), models.KindSalesOverview)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, models.KindSalesOverview, snap.Kind)
	assert.NotZero(t, snap.ComputedAt)

	// Result is also broadcast to everyone.
	assert.Equal(t, 1, hub.publishedCount())
}

// -----------------------------------------------------------------------------

func TestScheduler_TriggerOnDemand_UnknownKind(t *testing.T) {
	s := newTestScheduler(t, &stubStore{}, &stubHub{})

	_, err := s.TriggerOnDemand(context.Background(), models.MSnapshotKind("nope"))
	require.Error(t, err)
}

// -----------------------------------------------------------------------------

// TestScheduler_ConcurrentOnDemandShareOneCompute verifies two simultaneous
// refresh requests for the same kind run a single store query.
func TestScheduler_ConcurrentOnDemandShareOneCompute(t *testing.T) {
	store := &stubStore{delay: 100 * time.Millisecond}
	hub := &stubHub{}
	s := newTestScheduler(t, store, hub)

	var wg sync.WaitGroup
	snaps := make([]*models.MSnapshot, 2)
	errs := make([]error, 2)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			snaps[i], errs[i] = s.TriggerOnDemand(context.Background(), models.KindSalesOverview)
		}(i)
	}
	close(start)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), store.queries.Load(), "concurrent refreshes must share one query")
	assert.Equal(t, snaps[0].ComputedAt, snaps[1].ComputedAt)
}

// -----------------------------------------------------------------------------

// TestScheduler_CoalescesTicks verifies a tick arriving while the kind is
// still computing is dropped, not queued.
func TestScheduler_CoalescesTicks(t *testing.T) {
	store := &stubStore{delay: 150 * time.Millisecond}
	hub := &stubHub{}
	s := newTestScheduler(t, store, hub)

	now := time.Now()
	tick := ScheduleTick{Kind: models.KindSalesOverview, At: now, Reason: ReasonPeriodic}

	s.dispatch(context.Background(), tick)
	s.dispatch(context.Background(), tick) // coalesced
	s.dispatch(context.Background(), tick) // coalesced

	require.Eventually(t, func() bool {
		return hub.publishedCount() == 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), store.queries.Load(), "coalesced ticks must not query the store")
	assert.Equal(t, 1, hub.publishedCount())
}

// -----------------------------------------------------------------------------

// TestScheduler_FailedComputeNotPublished verifies a failing computation
// reaches the requester only, never the hub.
func TestScheduler_FailedComputeNotPublished(t *testing.T) {
	store := &stubStore{err: errors.New("db down")}
	hub := &stubHub{}
	s := newTestScheduler(t, store, hub)

	_, err := s.TriggerOnDemand(context.Background(), models.KindSalesOverview)
	require.Error(t, err)
	assert.Equal(t, 0, hub.publishedCount())
}

// -----------------------------------------------------------------------------

func TestScheduler_StartStop(t *testing.T) {
	s := newTestScheduler(t, &stubStore{}, &stubHub{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg := &sync.WaitGroup{}

	require.NoError(t, s.Start(ctx, wg))
	require.Error(t, s.Start(ctx, wg), "second start must fail")

	require.NoError(t, s.Stop())
	require.Error(t, s.Stop(), "second stop must fail")
	wg.Wait()
}

// -----------------------------------------------------------------------------

// TestScheduler_CacheAbsorbsBurst verifies a refresh right after a completed
// one is served from the cache within its TTL.
func TestScheduler_CacheAbsorbsBurst(t *testing.T) {
	store := &stubStore{}
	hub := &stubHub{}
	s := newTestScheduler(t, store, hub)

	first, err := s.TriggerOnDemand(context.Background(), models.KindSalesOverview)
	require.NoError(t, err)
	second, err := s.TriggerOnDemand(context.Background(), models.KindSalesOverview)
	require.NoError(t, err)

	assert.Equal(t, int32(1), store.queries.Load())
	assert.Equal(t, first.ComputedAt, second.ComputedAt)
}
