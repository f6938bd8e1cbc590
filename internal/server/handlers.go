package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tradefleet/fleetd/internal/fleet"
)

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func (s *Server) handleFleetGet(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Snapshot())
}

func (s *Server) handleFleetRefresh(c *gin.Context) {
	snap := s.refresher.RefreshNow(c.Request.Context())
	c.JSON(http.StatusOK, snap)
}

type bulkRequest struct {
	// IDs overrides the current selection when non-empty.
	IDs []string `json:"ids"`
}

// handleBulk dispatches a bulk lifecycle operation and resynchronizes the
// fleet before answering; the refresh-after-mutation contract is enforced
// here, not left to the dashboard.
func (s *Server) handleBulk(action fleet.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bulkRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				writeError(c, http.StatusBadRequest, "invalid json body")
				return
			}
		}
		ids := req.IDs
		if len(ids) == 0 {
			ids = s.store.SelectedIDs()
		}
		if len(ids) == 0 {
			writeError(c, http.StatusBadRequest, "nothing selected")
			return
		}

		ctx := c.Request.Context()
		var res *fleet.BulkResult
		switch action {
		case fleet.ActionStart:
			res = s.coordinator.BulkStart(ctx, ids)
		case fleet.ActionStop:
			res = s.coordinator.BulkStop(ctx, ids)
		case fleet.ActionDelete:
			res = s.coordinator.BulkDelete(ctx, ids)
		default:
			writeError(c, http.StatusBadRequest, "unknown action")
			return
		}

		snap := s.refresher.RefreshNow(ctx)
		c.JSON(http.StatusOK, gin.H{"result": res, "fleet": snap})
	}
}

type idRequest struct {
	ID string `json:"id"`
}

func (s *Server) bindID(c *gin.Context) (string, bool) {
	var req idRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ID) == "" {
		writeError(c, http.StatusBadRequest, "id is required")
		return "", false
	}
	return req.ID, true
}

func (s *Server) handleSelect(c *gin.Context) {
	id, ok := s.bindID(c)
	if !ok {
		return
	}
	if _, exists := s.store.Get(id); !exists {
		writeError(c, http.StatusNotFound, "unknown canonical id")
		return
	}
	s.store.Select(id)
	s.handleSelectionGet(c)
}

func (s *Server) handleDeselect(c *gin.Context) {
	id, ok := s.bindID(c)
	if !ok {
		return
	}
	s.store.Deselect(id)
	s.handleSelectionGet(c)
}

func (s *Server) handleToggle(c *gin.Context) {
	id, ok := s.bindID(c)
	if !ok {
		return
	}
	if _, exists := s.store.Get(id); !exists {
		writeError(c, http.StatusNotFound, "unknown canonical id")
		return
	}
	s.store.Toggle(id)
	s.handleSelectionGet(c)
}

func (s *Server) handleSelectAll(c *gin.Context) {
	s.store.SelectAll()
	s.handleSelectionGet(c)
}

func (s *Server) handleClearSelection(c *gin.Context) {
	s.store.ClearSelection()
	s.handleSelectionGet(c)
}

func (s *Server) handleSelectionGet(c *gin.Context) {
	ids := s.store.SelectedIDs()
	c.JSON(http.StatusOK, gin.H{
		"ids":         ids,
		"count":       len(ids),
		"allSelected": s.store.AllSelected(),
	})
}

// handleGateCreate answers whether creating another bot is allowed for the
// plan. Plan defaults to the configured one; count defaults to the live
// configuration count.
func (s *Server) handleGateCreate(c *gin.Context) {
	s.gateResponse(c, fleet.CanCreateBot)
}

func (s *Server) handleGateQuickCreate(c *gin.Context) {
	s.gateResponse(c, fleet.CanQuickCreate)
}

func (s *Server) gateResponse(c *gin.Context, gate func(string, int) fleet.Decision) {
	plan := c.Query("plan")
	if plan == "" {
		plan = s.plan
	}
	count := s.store.ConfigCount()
	if v := c.Query("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "count must be a non-negative integer")
			return
		}
		count = n
	}
	c.JSON(http.StatusOK, gin.H{
		"plan":        plan,
		"configCount": count,
		"decision":    gate(plan, count),
	})
}

type visibilityRequest struct {
	Visible bool `json:"visible"`
}

func (s *Server) handleVisibility(c *gin.Context) {
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json body")
		return
	}
	s.setVisible(req.Visible)
	c.JSON(http.StatusOK, gin.H{"active": s.refresher.Active()})
}

func (s *Server) handleOpsList(c *gin.Context) {
	if s.ops == nil {
		writeError(c, http.StatusNotFound, "operation log disabled")
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	out, err := s.ops.Recent(c.Request.Context(), limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleOpItems(c *gin.Context) {
	if s.ops == nil {
		writeError(c, http.StatusNotFound, "operation log disabled")
		return
	}
	items, err := s.ops.Items(c.Request.Context(), c.Param("opID"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, items)
}
