package handler

import (
	"net/http"
	"strconv"

	"carelink/internal/middleware"
	"carelink/internal/service"

	"github.com/gin-gonic/gin"
)

type RequestHandler struct {
	lifecycle *service.LifecycleService
}

func NewRequestHandler(lifecycle *service.LifecycleService) *RequestHandler {
	return &RequestHandler{lifecycle: lifecycle}
}

// Create opens a pending request from the authenticated client.
func (h *RequestHandler) Create(c *gin.Context) {
	var req service.CreateRequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, err := h.lifecycle.Create(c.Request.Context(), middleware.GetActor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// Get is the poll read: the full row plus its derived gate state.
func (h *RequestHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	view, err := h.lifecycle.Get(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *RequestHandler) ListMine(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	list, err := h.lifecycle.ListMine(c.Request.Context(), middleware.GetActor(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": list})
}

func (h *RequestHandler) Accept(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req versioned
	if !bindOptional(c, &req) {
		return
	}
	res, err := h.lifecycle.Accept(c.Request.Context(), middleware.GetActor(c), id, req.Version)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *RequestHandler) Reject(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		versioned
		Confirm bool `json:"confirm"`
	}
	if !bindOptional(c, &req) {
		return
	}
	view, err := h.lifecycle.Reject(c.Request.Context(), middleware.GetActor(c), id, req.Confirm, req.Version)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *RequestHandler) Cancel(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		versioned
		Reason string `json:"reason"`
	}
	if !bindOptional(c, &req) {
		return
	}
	view, err := h.lifecycle.Cancel(c.Request.Context(), middleware.GetActor(c), id, req.Reason, req.Version)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *RequestHandler) Complete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req versioned
	if !bindOptional(c, &req) {
		return
	}
	view, err := h.lifecycle.Complete(c.Request.Context(), middleware.GetActor(c), id, req.Version)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *RequestHandler) Rate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Rating  int    `json:"rating" binding:"required"`
		Comment string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, err := h.lifecycle.Rate(c.Request.Context(), middleware.GetActor(c), id, req.Rating, req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
