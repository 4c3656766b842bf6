package job

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/queuectl/common"
	"github.com/joshu-sajeev/queuectl/internal/dto"
	"github.com/joshu-sajeev/queuectl/middleware"
)

type JobHandler struct {
	service JobServiceInterface
}

func NewJobHandler(s JobServiceInterface) *JobHandler {
	return &JobHandler{service: s}
}

var _ JobHandlerInterface = (*JobHandler)(nil)

// RegisterRoutes mounts the queue API on r.
func (h *JobHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/jobs", h.Enqueue)
	r.GET("/jobs", h.List)
	r.GET("/jobs/:id", h.Get)
	r.GET("/status", h.Status)
	r.GET("/dlq", h.ListDLQ)
	r.POST("/dlq/:id/retry", h.RetryDLQ)
	r.GET("/config", h.ShowConfig)
	r.PUT("/config/:key", h.SetConfig)
}

// Enqueue handles HTTP requests for adding a job to the queue.
// It binds and validates the body and returns HTTP 201 with the stored job.
func (h *JobHandler) Enqueue(c *gin.Context) {
	var req dto.EnqueueDTO

	if !middleware.Bind(c, &req) {
		c.Abort()
		return
	}

	resp, err := h.service.Enqueue(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Get handles HTTP requests to fetch a job by its ID.
func (h *JobHandler) Get(c *gin.Context) {
	resp, err := h.service.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// List handles HTTP requests to retrieve all jobs in the state given by
// the state query parameter.
func (h *JobHandler) List(c *gin.Context) {
	state := c.Query("state")
	if state == "" {
		c.Error(common.BadRequest("state parameter is required"))
		return
	}

	jobs, err := h.service.ListByState(c.Request.Context(), state)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, jobs)
}

func (h *JobHandler) Status(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *JobHandler) ListDLQ(c *gin.Context) {
	entries, err := h.service.ListDLQ(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

// RetryDLQ handles HTTP requests to move a dead-lettered job back into the
// queue. It returns HTTP 200 with the re-created job.
func (h *JobHandler) RetryDLQ(c *gin.Context) {
	resp, err := h.service.RetryDLQ(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *JobHandler) ShowConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.ShowConfig(c.Request.Context()))
}

// SetConfig handles HTTP requests to change one configuration value.
// It returns HTTP 204 on success.
func (h *JobHandler) SetConfig(c *gin.Context) {
	var body dto.ConfigSetDTO
	if !middleware.Bind(c, &body) {
		return
	}

	if err := h.service.SetConfig(c.Request.Context(), c.Param("key"), body.Value); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
