package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/fleetcare/internal/checkup"
	"github.com/langchou/fleetcare/internal/models"
	"github.com/langchou/fleetcare/internal/service"
	"github.com/langchou/fleetcare/pkg/ws"
)

// CheckupService 预约与保养视图
type CheckupService interface {
	CreateSchedule(ctx context.Context, in service.CreateScheduleInput) (*models.CheckupSchedule, error)
	Get(ctx context.Context, id int64) (*models.CheckupSchedule, error)
	ListByChassis(ctx context.Context, chassisNumber string) ([]models.CheckupSchedule, error)
	Accept(ctx context.Context, id int64) (*models.CheckupSchedule, error)
	Reject(ctx context.Context, id int64) (*models.CheckupSchedule, error)
	Reschedule(ctx context.Context, id int64, scheduledAt time.Time, consultantID int64) (*models.CheckupSchedule, error)
	GetCheckupView(ctx context.Context, params models.VehicleParams) (*checkup.View, error)
}

// TicketService 维修工单
type TicketService interface {
	CreateTicket(ctx context.Context, scheduleID int64, step *models.TicketStep) (*models.MaintenanceTicket, error)
	Get(ctx context.Context, id int64) (*models.MaintenanceTicket, error)
	SaveStep(ctx context.Context, ticketID int64, step models.TicketStatus, data models.Step) (*models.MaintenanceTicket, error)
	Checkout(ctx context.Context, ticketID int64, step models.TicketStatus, data models.Step) (*models.MaintenanceTicket, error)
}

// ServiceBayService 工位预留
type ServiceBayService interface {
	Book(ctx context.Context, in service.BookInput) (*models.ServiceBaySchedule, error)
	Cancel(ctx context.Context, id int64) (*models.ServiceBaySchedule, error)
	HasConflict(ctx context.Context, bayID int64, start, end time.Time) (bool, error)
	ListByBay(ctx context.Context, bayID int64, activeOnly bool) ([]models.ServiceBaySchedule, error)
}

// OccurrenceService 救援事件
type OccurrenceService interface {
	Create(ctx context.Context, chassisNumber, description string) (*models.Occurrence, error)
	Get(ctx context.Context, id string) (*models.Occurrence, error)
	ChangeStep(ctx context.Context, id, stepCode string) (*models.Occurrence, error)
	Finalize(ctx context.Context, id string) (*models.Occurrence, error)
	CreateStepType(ctx context.Context, st *models.OccurrenceStepType) error
}

// Handler HTTP 处理器
type Handler struct {
	logger      *zap.Logger
	checkups    CheckupService
	tickets     TicketService
	bays        ServiceBayService
	occurrences OccurrenceService
	wsHub       *ws.Hub
	upgrader    websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	checkups CheckupService,
	tickets TicketService,
	bays ServiceBayService,
	occurrences OccurrenceService,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:      logger,
		checkups:    checkups,
		tickets:     tickets,
		bays:        bays,
		occurrences: occurrences,
		wsHub:       wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由
	api := r.Group("/api")
	{
		// 保养预约
		api.POST("/checkups/schedule", h.CreateSchedule)
		api.GET("/checkups/schedule/:id", h.GetSchedule)
		api.GET("/checkups/schedules", h.ListSchedules)
		api.PUT("/checkups/schedule/:id/accept", h.AcceptSchedule)
		api.PUT("/checkups/schedule/:id/reject", h.RejectSchedule)
		api.PUT("/checkups/schedule/:id/reschedule", h.RescheduleSchedule)
		api.GET("/checkup", h.GetCheckup)

		// 维修工单
		api.POST("/maintenance/ticket", h.CreateTicket)
		api.GET("/maintenance/ticket/:id", h.GetTicket)
		api.PUT("/maintenance/ticket/:id/:step", h.SaveTicketStep)
		api.POST("/maintenance/ticket/:id/:step/checkout", h.CheckoutTicketStep)

		// 工位
		api.POST("/service-bay-schedule", h.BookServiceBay)
		api.DELETE("/service-bay-schedule/:id", h.CancelServiceBay)
		api.GET("/service-bay-schedule/conflict", h.CheckServiceBayConflict)
		api.GET("/service-bays/:id/schedules", h.ListServiceBaySchedules)

		// 救援事件
		api.POST("/occurrence", h.CreateOccurrence)
		api.POST("/occurrence/step-types", h.CreateOccurrenceStepType)
		api.GET("/occurrence/:uuid", h.GetOccurrence)
		api.PUT("/occurrence/:uuid/step/:stepType", h.ChangeOccurrenceStep)
		api.PUT("/occurrence/:uuid/finalized", h.FinalizeOccurrence)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": h.wsHub.ClientCount(),
	})
}
