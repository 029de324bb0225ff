package http

import (
	"net/http"
	"strconv"

	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
	"github.com/gin-gonic/gin"
)

type launchRequest struct {
	ProfileID int  `json:"profileId" binding:"required"`
	ProxyID   *int `json:"proxyId"`
}

// LaunchSession starts a browser for a profile
func (h *Handlers) LaunchSession(c *gin.Context) {
	var req launchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.svc.LaunchSession(c.Request.Context(), req.ProfileID, req.ProxyID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "session": view})
}

type scratchRequest struct {
	ProxyID *int `json:"proxyId"`
}

// LaunchScratchSession starts a browser that belongs to no profile
func (h *Handlers) LaunchScratchSession(c *gin.Context) {
	var req scratchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	view, err := h.svc.LaunchScratchSession(c.Request.Context(), req.ProxyID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "session": view})
}

// ListSessions lists session records, optionally filtered
func (h *Handlers) ListSessions(c *gin.Context) {
	filter := types.SessionFilter{Status: types.SessionStatus(c.Query("status"))}
	if raw := c.Query("profileId"); raw != "" {
		pid, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		filter.ProfileID = pid
	}

	sessions, err := h.svc.ListSessions(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	if sessions == nil {
		sessions = []types.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// CloseSession stops a session
func (h *Handlers) CloseSession(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.CloseSession(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// OpenPages lists the URLs open in a running session
func (h *Handlers) OpenPages(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	urls, err := h.svc.GetOpenPageURLs(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"urls": urls})
}
