package http

import (
	"net/http"

	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
	"github.com/gin-gonic/gin"
)

type proxyRequest struct {
	Host     string          `json:"host" binding:"required"`
	Port     int             `json:"port" binding:"required"`
	Username string          `json:"username"`
	Password string          `json:"password"`
	Type     types.ProxyType `json:"type"`
	Active   *bool           `json:"active"`
}

// CreateProxy adds a proxy to the library
func (h *Handlers) CreateProxy(c *gin.Context) {
	var req proxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	p, err := h.svc.CreateProxy(c.Request.Context(), types.Proxy{
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		Type:     req.Type,
		Active:   active,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "proxy": p})
}

// CheckProxy probes one proxy
func (h *Handlers) CheckProxy(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.CheckProxy(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CheckAllProxies probes every active proxy
func (h *Handlers) CheckAllProxies(c *gin.Context) {
	results, err := h.svc.CheckAllProxies(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
