package http

import (
	"net/http"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/fingerprint"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/profile"
	"github.com/gin-gonic/gin"
)

// CreateProfile creates a profile with a synthesised fingerprint
func (h *Handlers) CreateProfile(c *gin.Context) {
	var in profile.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.svc.CreateProfile(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "profile": p})
}

// GetProfile returns one profile
func (h *Handlers) GetProfile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := h.svc.GetProfile(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdateFingerprint regenerates a profile's fingerprint from new inputs
func (h *Handlers) UpdateFingerprint(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var cfg fingerprint.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.svc.UpdateFingerprint(c.Request.Context(), id, cfg)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "profile": p})
}

// DeleteProfile removes a profile and its dependent records
func (h *Handlers) DeleteProfile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteProfile(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListPresets lists fingerprint presets
func (h *Handlers) ListPresets(c *gin.Context) {
	presets, err := h.svc.ListPresets(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if presets == nil {
		presets = []fingerprint.Preset{}
	}
	c.JSON(http.StatusOK, gin.H{"presets": presets})
}
