package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/langchou/fleetcare/internal/models"
)

type createOccurrenceRequest struct {
	Chassis     string `json:"chassis"`
	Description string `json:"description"`
}

// CreateOccurrence 创建救援事件
// POST /api/occurrence
func (h *Handler) CreateOccurrence(c *gin.Context) {
	var req createOccurrenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: %v", err)
		return
	}

	o, err := h.occurrences.Create(c.Request.Context(), req.Chassis, req.Description)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": o})
}

// GetOccurrence 获取事件及步骤
func (h *Handler) GetOccurrence(c *gin.Context) {
	o, err := h.occurrences.Get(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": o})
}

// ChangeOccurrenceStep 切换事件步骤
// PUT /api/occurrence/:uuid/step/:stepType
func (h *Handler) ChangeOccurrenceStep(c *gin.Context) {
	o, err := h.occurrences.ChangeStep(c.Request.Context(), c.Param("uuid"), c.Param("stepType"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": o})
}

// FinalizeOccurrence 结束事件
func (h *Handler) FinalizeOccurrence(c *gin.Context) {
	o, err := h.occurrences.Finalize(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": o})
}

// CreateOccurrenceStepType 新增事件步骤类型
func (h *Handler) CreateOccurrenceStepType(c *gin.Context) {
	var st models.OccurrenceStepType
	if err := c.ShouldBindJSON(&st); err != nil {
		badRequest(c, "Invalid request: %v", err)
		return
	}

	if err := h.occurrences.CreateStepType(c.Request.Context(), &st); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": st})
}
