package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/langchou/fleetcare/internal/apperr"
	"github.com/langchou/fleetcare/internal/models"
	"github.com/langchou/fleetcare/internal/service"
)

type createScheduleRequest struct {
	VehicleID       string   `json:"vehicleId"`
	Chassis         string   `json:"chassis"`
	DealershipCode  string   `json:"dealershipCode"`
	ConsultantID    int64    `json:"consultantId"`
	CheckupID       *int64   `json:"checkupId"`
	CampaignNumbers []string `json:"campaignNumbers"`
	ScheduledAt     string   `json:"scheduledAt"`
}

type rescheduleRequest struct {
	ScheduledAt  string `json:"scheduledAt"`
	ConsultantID int64  `json:"consultantId"`
}

// CreateSchedule 创建保养预约
// POST /api/checkups/schedule
func (h *Handler) CreateSchedule(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: %v", err)
		return
	}
	scheduledAt, err := parseTime(req.ScheduledAt)
	if err != nil {
		badRequest(c, "scheduledAt: %v", err)
		return
	}

	schedule, err := h.checkups.CreateSchedule(c.Request.Context(), service.CreateScheduleInput{
		VehicleID:       req.VehicleID,
		Chassis:         req.Chassis,
		DealershipCode:  req.DealershipCode,
		ConsultantID:    req.ConsultantID,
		CheckupID:       req.CheckupID,
		CampaignNumbers: req.CampaignNumbers,
		ScheduledAt:     scheduledAt,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": schedule})
}

// GetSchedule 获取预约
func (h *Handler) GetSchedule(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	schedule, err := h.checkups.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": schedule})
}

// ListSchedules 按车架号列出预约
// GET /api/checkups/schedules?chassis=
func (h *Handler) ListSchedules(c *gin.Context) {
	chassisNumber := c.Query("chassis")
	if chassisNumber == "" {
		h.respondError(c, apperr.MissingFields([]string{"chassis"}))
		return
	}

	schedules, err := h.checkups.ListByChassis(c.Request.Context(), chassisNumber)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": schedules})
}

// AcceptSchedule 确认预约
func (h *Handler) AcceptSchedule(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	schedule, err := h.checkups.Accept(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": schedule})
}

// RejectSchedule 拒绝/取消预约
func (h *Handler) RejectSchedule(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	schedule, err := h.checkups.Reject(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": schedule})
}

// RescheduleSchedule 修改预约时间
func (h *Handler) RescheduleSchedule(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: %v", err)
		return
	}
	scheduledAt, err := parseTime(req.ScheduledAt)
	if err != nil {
		badRequest(c, "scheduledAt: %v", err)
		return
	}

	schedule, err := h.checkups.Reschedule(c.Request.Context(), id, scheduledAt, req.ConsultantID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": schedule})
}

func queryFloat(c *gin.Context, key string) (*float64, bool) {
	s := c.Query(key)
	if s == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		badRequest(c, "Invalid %s", key)
		return nil, false
	}
	return &v, true
}

// GetCheckup 计算车辆的保养视图
// GET /api/checkup?chassis&maintenanceGroup&odometer&hourMeter&model
func (h *Handler) GetCheckup(c *gin.Context) {
	params := models.VehicleParams{
		Chassis:          c.Query("chassis"),
		MaintenanceGroup: models.MaintenanceGroup(strings.ToUpper(c.Query("maintenanceGroup"))),
		Model:            c.Query("model"),
	}

	// 分组为空或未知时只按预约历史计算
	if params.Chassis == "" {
		h.respondError(c, apperr.MissingFields([]string{"chassis"}))
		return
	}

	var ok bool
	if params.Metrics.OdometerKm, ok = queryFloat(c, "odometer"); !ok {
		return
	}
	if params.Metrics.HourMeter, ok = queryFloat(c, "hourMeter"); !ok {
		return
	}

	view, err := h.checkups.GetCheckupView(c.Request.Context(), params)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}
