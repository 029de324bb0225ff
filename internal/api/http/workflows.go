package http

import (
	"net/http"
	"strings"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/workflow"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
	"github.com/gin-gonic/gin"
)

type workflowRequest struct {
	Name  string              `json:"name" binding:"required"`
	Graph types.GraphDocument `json:"graph"`
}

type executeRequest struct {
	ProfileIDs []int             `json:"profileIds" binding:"required"`
	Vars       map[string]string `json:"vars"`
}

type connectRequest struct {
	Graph  types.GraphDocument `json:"graph"`
	Source string              `json:"source" binding:"required"`
	Target string              `json:"target" binding:"required"`
}

type assignRequest struct {
	ProfileID int `json:"profileId" binding:"required"`
}

// CreateWorkflow stores a workflow and reports its validation issues
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var req workflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	wf, v, err := h.svc.CreateWorkflow(c.Request.Context(), types.Workflow{Name: req.Name, Graph: req.Graph})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "workflow": wf, "validation": v})
}

// ValidateWorkflow checks a graph without storing it. The body is the graph
// document as JSON, or YAML when the content type says so.
func (h *Handlers) ValidateWorkflow(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		badRequest(c, err)
		return
	}

	parse := workflow.ParseJSON
	if strings.Contains(c.ContentType(), "yaml") {
		parse = workflow.ParseYAML
	}
	doc, err := parse(data)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.ValidateWorkflow(doc))
}

// CanConnect answers whether the editor may draw an edge
func (h *Handlers) CanConnect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.CanConnect(req.Graph, req.Source, req.Target); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AssignWorkflow links a workflow to a profile
func (h *Handlers) AssignWorkflow(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.AssignWorkflow(c.Request.Context(), id, req.ProfileID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ExecuteWorkflow queues a run of the workflow for each profile
func (h *Handlers) ExecuteWorkflow(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	acc, err := h.svc.ExecuteWorkflow(c.Request.Context(), id, req.ProfileIDs, req.Vars)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, acc)
}

// GetExecution returns one execution
func (h *Handlers) GetExecution(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	exec, err := h.svc.GetExecution(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

// GetJob returns a job with its executions
func (h *Handlers) GetJob(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	j, execs, err := h.svc.GetJob(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": j, "executions": execs})
}
