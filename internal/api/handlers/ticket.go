package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/langchou/fleetcare/internal/apperr"
	"github.com/langchou/fleetcare/internal/models"
)

type createTicketRequest struct {
	ScheduleID int64 `json:"scheduleId"`
	models.TicketStep
}

// CreateTicket 为预约开单
// POST /api/maintenance/ticket
func (h *Handler) CreateTicket(c *gin.Context) {
	var req createTicketRequest
	if err := bindStep(c, &req); err != nil {
		badRequest(c, "Invalid request: %v", err)
		return
	}
	if req.ScheduleID == 0 {
		h.respondError(c, apperr.MissingFields([]string{"scheduleId"}))
		return
	}

	ticket, err := h.tickets.CreateTicket(c.Request.Context(), req.ScheduleID, &req.TicketStep)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": ticket})
}

// GetTicket 获取工单
func (h *Handler) GetTicket(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ticket, err := h.tickets.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ticket})
}

// stepPayload 解析路径中的步骤与请求体
func (h *Handler) stepPayload(c *gin.Context) (int64, models.TicketStatus, models.Step, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return 0, "", nil, false
	}
	step, ok := models.ParseTicketStep(strings.ToUpper(c.Param("step")))
	if !ok {
		badRequest(c, "Unknown ticket step %s", c.Param("step"))
		return 0, "", nil, false
	}

	data := models.NewStep(step)
	if err := bindStep(c, data); err != nil {
		badRequest(c, "Invalid request: %v", err)
		return 0, "", nil, false
	}
	return id, step, data, true
}

// SaveTicketStep 进入或更新步骤
// PUT /api/maintenance/ticket/:id/:step
func (h *Handler) SaveTicketStep(c *gin.Context) {
	id, step, data, ok := h.stepPayload(c)
	if !ok {
		return
	}

	ticket, err := h.tickets.SaveStep(c.Request.Context(), id, step, data)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ticket})
}

// CheckoutTicketStep 步骤 checkout，RELEASE checkout 后工单完成
// POST /api/maintenance/ticket/:id/:step/checkout
func (h *Handler) CheckoutTicketStep(c *gin.Context) {
	id, step, data, ok := h.stepPayload(c)
	if !ok {
		return
	}

	ticket, err := h.tickets.Checkout(c.Request.Context(), id, step, data)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ticket})
}
