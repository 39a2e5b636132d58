package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ScheduleMaintainer 预约表批处理
type ScheduleMaintainer interface {
	BackfillNumbers(ctx context.Context) (int64, error)
	SyncMaintenanceMirror(ctx context.Context) (int64, error)
}

// AlertSweeper 事件超时告警
type AlertSweeper interface {
	SweepAlerts(ctx context.Context) (int, error)
}

// Specs 各任务的 cron 表达式，空串表示不注册
type Specs struct {
	ScheduleNumbers string
	MaintenanceSync string
	OccurrenceAlert string
}

// Scheduler 后台批处理任务
type Scheduler struct {
	logger    *zap.Logger
	cron      *cron.Cron
	schedules ScheduleMaintainer
	alerts    AlertSweeper
	timeout   time.Duration

	// 所有任务串行执行
	mu sync.Mutex
}

// NewScheduler 创建调度器
func NewScheduler(logger *zap.Logger, schedules ScheduleMaintainer, alerts AlertSweeper) *Scheduler {
	return &Scheduler{
		logger:    logger,
		cron:      cron.New(cron.WithLocation(time.UTC)),
		schedules: schedules,
		alerts:    alerts,
		timeout:   5 * time.Minute,
	}
}

// Start 注册任务并启动
func (s *Scheduler) Start(specs Specs) error {
	jobs := []struct {
		name string
		spec string
		fn   func(ctx context.Context) error
	}{
		{"schedule_numbers", specs.ScheduleNumbers, s.BackfillScheduleNumbers},
		{"maintenance_sync", specs.MaintenanceSync, s.SyncMaintenanceMirror},
		{"occurrence_alert", specs.OccurrenceAlert, s.SweepOccurrenceAlerts},
	}

	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		name, fn := job.name, job.fn
		if _, err := s.cron.AddFunc(job.spec, func() { s.run(name, fn) }); err != nil {
			return err
		}
		s.logger.Info("Job registered", zap.String("job", name), zap.String("spec", job.spec))
	}

	s.cron.Start()
	s.logger.Info("Job scheduler started")
	return nil
}

// Stop 停止调度并等待运行中的任务结束
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Job scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("Job scheduler stop timed out")
	}
}

func (s *Scheduler) run(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	if err := fn(ctx); err != nil {
		s.logger.Error("Job failed", zap.String("job", name), zap.Error(err))
		return
	}
	s.logger.Debug("Job finished", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
}

// BackfillScheduleNumbers 补齐预约编号
func (s *Scheduler) BackfillScheduleNumbers(ctx context.Context) error {
	n, err := s.schedules.BackfillNumbers(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("Schedule numbers backfilled", zap.Int64("count", n))
	}
	return nil
}

// SyncMaintenanceMirror 修复预约上的工单状态镜像
func (s *Scheduler) SyncMaintenanceMirror(ctx context.Context) error {
	n, err := s.schedules.SyncMaintenanceMirror(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Warn("Maintenance mirror drift repaired", zap.Int64("count", n))
	}
	return nil
}

// SweepOccurrenceAlerts 发送事件超时告警
func (s *Scheduler) SweepOccurrenceAlerts(ctx context.Context) error {
	n, err := s.alerts.SweepAlerts(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("Occurrence alerts sent", zap.Int("count", n))
	}
	return nil
}
