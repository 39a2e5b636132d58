package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/langchou/fleetcare/internal/service"
)

type bookRequest struct {
	ServiceBayID int64  `json:"serviceBayId"`
	OccurrenceID *int64 `json:"occurrenceId"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	DN           string `json:"dn"`
}

// BookServiceBay 预留工位
// POST /api/service-bay-schedule
func (h *Handler) BookServiceBay(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: %v", err)
		return
	}
	start, err := parseTime(req.StartDate)
	if err != nil {
		badRequest(c, "startDate: %v", err)
		return
	}
	end, err := parseTime(req.EndDate)
	if err != nil {
		badRequest(c, "endDate: %v", err)
		return
	}

	schedule, err := h.bays.Book(c.Request.Context(), service.BookInput{
		ServiceBayID: req.ServiceBayID,
		OccurrenceID: req.OccurrenceID,
		StartDate:    start,
		EndDate:      end,
		DN:           req.DN,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": schedule})
}

// CancelServiceBay 取消预留
func (h *Handler) CancelServiceBay(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	schedule, err := h.bays.Cancel(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": schedule})
}

// CheckServiceBayConflict 检查区间冲突
// GET /api/service-bay-schedule/conflict?serviceBayId&start&end
func (h *Handler) CheckServiceBayConflict(c *gin.Context) {
	var bayID int64
	if s := c.Query("serviceBayId"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			badRequest(c, "Invalid serviceBayId")
			return
		}
		bayID = id
	}
	start, err := parseTime(c.Query("start"))
	if err != nil {
		badRequest(c, "start: %v", err)
		return
	}
	end, err := parseTime(c.Query("end"))
	if err != nil {
		badRequest(c, "end: %v", err)
		return
	}

	conflict, err := h.bays.HasConflict(c.Request.Context(), bayID, start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"conflict": conflict}})
}

// ListServiceBaySchedules 工位的预留列表，默认只返回有效预留
// GET /api/service-bays/:id/schedules?all=true
func (h *Handler) ListServiceBaySchedules(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	all, _ := strconv.ParseBool(c.DefaultQuery("all", "false"))

	schedules, err := h.bays.ListByBay(c.Request.Context(), id, !all)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": schedules})
}
