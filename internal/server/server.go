package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tradefleet/fleetd/internal/fleet"
	"github.com/tradefleet/fleetd/internal/oplog"
)

// Server is the control-plane HTTP surface over the fleet engine: the
// canonical fleet view, the selection model, bulk lifecycle operations and
// the plan gate. Dashboard visibility (explicit reports or attached stream
// clients) drives the poll cadence.
type Server struct {
	store       *fleet.Store
	coordinator *fleet.Coordinator
	refresher   *fleet.Refresher
	ops         *oplog.Log
	plan        string
	log         *logrus.Entry

	visMu     sync.Mutex
	visible   bool
	streamers int
}

type Options struct {
	Store       *fleet.Store
	Coordinator *fleet.Coordinator
	Refresher   *fleet.Refresher
	Oplog       *oplog.Log // optional; ops endpoints 404 without it
	Plan        string
	Log         *logrus.Entry
}

func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logrus.WithField("component", "server")
	}
	return &Server{
		store:       opts.Store,
		coordinator: opts.Coordinator,
		refresher:   opts.Refresher,
		ops:         opts.Oplog,
		plan:        opts.Plan,
		log:         log,
	}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")

	flt := api.Group("/fleet")
	flt.GET("/", s.handleFleetGet)
	flt.POST("/refresh", s.handleFleetRefresh)
	flt.GET("/stream", s.handleFleetStream)
	flt.POST("/start", s.handleBulk(fleet.ActionStart))
	flt.POST("/stop", s.handleBulk(fleet.ActionStop))
	flt.POST("/delete", s.handleBulk(fleet.ActionDelete))

	sel := api.Group("/selection")
	sel.GET("/", s.handleSelectionGet)
	sel.POST("/select", s.handleSelect)
	sel.POST("/deselect", s.handleDeselect)
	sel.POST("/toggle", s.handleToggle)
	sel.POST("/select_all", s.handleSelectAll)
	sel.POST("/clear", s.handleClearSelection)

	gate := api.Group("/gate")
	gate.GET("/create", s.handleGateCreate)
	gate.GET("/quick_create", s.handleGateQuickCreate)

	api.POST("/visibility", s.handleVisibility)

	ops := api.Group("/ops")
	ops.GET("/", s.handleOpsList)
	ops.GET("/:opID/items", s.handleOpItems)

	return r
}

// setVisible records the dashboard's reported page visibility.
func (s *Server) setVisible(visible bool) {
	s.visMu.Lock()
	s.visible = visible
	active := s.visible || s.streamers > 0
	s.visMu.Unlock()
	s.refresher.SetActive(active)
}

// addStreamer tracks attached stream clients; any attached client keeps the
// poll loop at the active cadence.
func (s *Server) addStreamer(delta int) {
	s.visMu.Lock()
	s.streamers += delta
	if s.streamers < 0 {
		s.streamers = 0
	}
	active := s.visible || s.streamers > 0
	s.visMu.Unlock()
	s.refresher.SetActive(active)
}
