package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"insight-stream/src/logger"
	"insight-stream/src/models"
	"insight-stream/src/utils"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// DashboardServer
// -----------------------------------------------------------------------------

type DashboardServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	engine *gin.Engine

	// WebSocket subscribers (owned by the hub loop)
	subscribers map[*Subscriber]struct{}
	register    chan *Subscriber
	unregister  chan *Subscriber
	broadcast   chan *models.MSnapshot
	direct      chan directPush

	subscriberCount atomic.Int64

	// Latest snapshot per kind + short history, read by REST handlers
	stateMutex sync.RWMutex
	latest     map[models.MSnapshotKind]*models.MSnapshot
	history    map[models.MSnapshotKind]*utils.SnapshotRing

	// Wired by main after construction to avoid an import cycle with the
	// scheduler package.
	OnDemand     func(ctx context.Context, kind models.MSnapshotKind) (*models.MSnapshot, error)
	ForecastFunc func(ctx context.Context, kind models.MSnapshotKind, horizonDays int) (*models.MForecast, error)
	MetricsFunc  func() models.MProcessingMetrics

	shutdown chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewDashboardServer(cfg *models.MConfig, log *logger.Logger) *DashboardServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &DashboardServer{
		Config:      cfg,
		Logger:      log,
		engine:      gin.Default(),
		subscribers: make(map[*Subscriber]struct{}),
		// Buffered channel so Publish rarely waits on the hub loop
		broadcast:  make(chan *models.MSnapshot, 256),
		register:   make(chan *Subscriber),
		unregister: make(chan *Subscriber),
		direct:     make(chan directPush, 64),
		latest:     make(map[models.MSnapshotKind]*models.MSnapshot),
		history:    make(map[models.MSnapshotKind]*utils.SnapshotRing),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}

	for _, k := range models.AllKinds() {
		s.history[k] = utils.NewSnapshotRing(cfg.Broadcast.HistoryDepth)
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *DashboardServer) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/metrics", s.getMetrics)
	s.engine.GET("/api/config", s.getConfig)
	s.engine.GET("/api/snapshots/:kind", s.getSnapshot)
	s.engine.GET("/api/history/:kind", s.getHistory)
	s.engine.POST("/api/refresh/:kind", s.postRefresh)
	s.engine.GET("/api/forecast/:kind", s.getForecast)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *DashboardServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	go s.handleSubscribers()

	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------

// Stop shuts the hub loop down; every subscriber channel is closed by the
// loop itself so channel ownership never leaves it.
func (s *DashboardServer) Stop() error {
	s.stopOnce.Do(func() {
		close(s.shutdown)
		<-s.done
	})
	return nil
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *DashboardServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	var latestUpdate int64
	for _, snap := range s.latest {
		if snap.ComputedAt > latestUpdate {
			latestUpdate = snap.ComputedAt
		}
	}
	s.stateMutex.RUnlock()

	c.JSON(200, gin.H{
		"status":        "ok",
		"connections":   s.SubscriberCount(),
		"latest_update": latestUpdate,
	})
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) getMetrics(c *gin.Context) {
	if s.MetricsFunc != nil {
		c.JSON(200, s.MetricsFunc())
		return
	}

	c.JSON(200, models.MProcessingMetrics{
		Subscribers: s.SubscriberCount(),
	})
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) getConfig(c *gin.Context) {
	c.JSON(200, gin.H{
		"kinds":           s.Config.Kinds,
		"cadence_seconds": s.Config.Broadcast.CadenceSeconds,
	})
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) getSnapshot(c *gin.Context) {
	kind := models.MSnapshotKind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown kind %q", kind)})
		return
	}

	s.stateMutex.RLock()
	snap := s.latest[kind]
	s.stateMutex.RUnlock()

	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot computed yet"})
		return
	}
	c.JSON(200, snap)
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) getHistory(c *gin.Context) {
	kind := models.MSnapshotKind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown kind %q", kind)})
		return
	}

	s.stateMutex.RLock()
	ring := s.history[kind]
	var snaps []*models.MSnapshot
	if ring != nil {
		snaps = ring.GetAll()
	}
	s.stateMutex.RUnlock()

	c.JSON(200, gin.H{"kind": kind, "snapshots": snaps})
}

// -----------------------------------------------------------------------------

// postRefresh triggers an on-demand recompute. Failures are returned to this
// one requester only; a periodic failure never reaches clients this way.
func (s *DashboardServer) postRefresh(c *gin.Context) {
	kind := models.MSnapshotKind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown kind %q", kind)})
		return
	}

	if s.OnDemand == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not wired"})
		return
	}

	snap, err := s.OnDemand(c.Request.Context(), kind)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, snap)
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) getForecast(c *gin.Context) {
	kind := models.MSnapshotKind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown kind %q", kind)})
		return
	}

	if s.ForecastFunc == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analytics not configured"})
		return
	}

	horizon := 7
	if h := c.Query("horizon_days"); h != "" {
		if parsed, err := strconv.Atoi(h); err == nil && parsed > 0 {
			horizon = parsed
		}
	}

	forecast, err := s.ForecastFunc(c.Request.Context(), kind, horizon)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, forecast)
}
