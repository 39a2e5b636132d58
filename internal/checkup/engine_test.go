package checkup

import (
	"context"
	"testing"
	"time"

	"github.com/langchou/fleetcare/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedInterval int64

func (f fixedInterval) Resolve(ctx context.Context, chassisNumber string, group models.MaintenanceGroup) (int64, bool) {
	if f <= 0 {
		return 0, false
	}
	return int64(f), true
}

func newTestEngine(interval int64) *Engine {
	return NewEngine(fixedInterval(interval), DefaultConfig(), zap.NewNop())
}

func km(v float64) models.VehicleParams {
	return models.VehicleParams{
		Chassis:          "9BWZZZ377VT004251",
		MaintenanceGroup: models.GroupRodoviario,
		Metrics:          models.VehicleMetrics{OdometerKm: &v},
	}
}

func schedule(id, rangeStart int64, state models.ScheduleState, status *models.TicketStatus, at time.Time) models.CheckupSchedule {
	return models.CheckupSchedule{
		ID:          id,
		Chassis:     "9BWZZZ377VT004251",
		State:       state,
		ScheduledAt: at,
		Checkup:     &models.Checkup{ID: id, RangeStart: rangeStart, MaintenanceGroup: models.GroupRodoviario},
		Maintenance: models.Maintenance{Status: status},
	}
}

func ticketStatus(s models.TicketStatus) *models.TicketStatus {
	return &s
}

func TestNextCheckup(t *testing.T) {
	tests := []struct {
		value, interval, want int64
	}{
		{24999, 10000, 30000},
		{30000, 10000, 30000},
		{30001, 10000, 40000},
		{1, 10000, 10000},
		{0, 10000, 0},
		{499, 500, 500},
		{10, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextCheckup(tt.value, tt.interval), "value=%d interval=%d", tt.value, tt.interval)
	}
}

func TestNextCheckupProperties(t *testing.T) {
	for _, interval := range []int64{1, 7, 250, 5000, 10000, 15000} {
		for value := int64(1); value < 50000; value += 997 {
			n := NextCheckup(value, interval)
			assert.Zero(t, n%interval)
			assert.GreaterOrEqual(t, n, value)
			assert.Less(t, n-interval, value)
		}
	}
}

func TestRangeCurrentOrNext(t *testing.T) {
	assert.Equal(t, int64(30000), RangeCurrentOrNext(20000, 20500, 10000))
	assert.Equal(t, int64(30000), RangeCurrentOrNext(20000, 20000, 10000))
	assert.Equal(t, int64(30000), RangeCurrentOrNext(20000, 19000, 10000))
	assert.Equal(t, int64(40000), RangeCurrentOrNext(20000, 31000, 10000))
}

func TestCheckWithoutSchedules(t *testing.T) {
	e := newTestEngine(10000)

	res := e.Check(context.Background(), km(24999), nil, 0)
	require.NotNil(t, res.Next)
	assert.Equal(t, int64(30000), res.Next.RangeStart)
	assert.True(t, res.Next.Synthesized())
	assert.Nil(t, res.Previous)
	assert.Equal(t, int64(40000), res.AfterNext.RangeStart)
	assert.Equal(t, models.MetricKm, res.MetricType)

	res = e.Check(context.Background(), km(30000), nil, 0)
	assert.Equal(t, int64(30000), res.Next.RangeStart)

	// 读数为 0 时下一次为第一个间隔
	res = e.Check(context.Background(), km(0), nil, 0)
	assert.Equal(t, int64(10000), res.Next.RangeStart)
}

func TestCheckAfterFinishedCheckup(t *testing.T) {
	e := newTestEngine(10000)
	now := time.Now()
	schedules := []models.CheckupSchedule{
		schedule(1, 20000, models.ScheduleAccepted, ticketStatus(models.TicketFinished), now.AddDate(0, -1, 0)),
	}

	res := e.Check(context.Background(), km(20500), schedules, 0)
	require.NotNil(t, res.Previous)
	assert.Equal(t, int64(20000), res.Previous.RangeStart)
	assert.True(t, res.Previous.Finished)
	require.NotNil(t, res.Next)
	assert.Equal(t, int64(30000), res.Next.RangeStart)
	assert.True(t, res.Next.Synthesized())
	assert.Equal(t, int64(40000), res.AfterNext.RangeStart)
}

func TestCheckPendingScheduleIsNext(t *testing.T) {
	e := newTestEngine(10000)
	now := time.Now()
	schedules := []models.CheckupSchedule{
		schedule(1, 20000, models.ScheduleAccepted, ticketStatus(models.TicketFinished), now.AddDate(0, -3, 0)),
		schedule(2, 30000, models.SchedulePending, nil, now.AddDate(0, 0, 7)),
		schedule(3, 40000, models.ScheduleRejected, nil, now.AddDate(0, 0, 8)),
	}

	res := e.Check(context.Background(), km(27000), schedules, 0)
	require.NotNil(t, res.Next)
	assert.Equal(t, int64(2), res.Next.Schedule.ID)
	assert.Equal(t, int64(30000), res.Next.RangeStart)
	require.NotNil(t, res.Previous)
	assert.Equal(t, int64(1), res.Previous.Schedule.ID)
}

func TestCheckUsesLatestRevision(t *testing.T) {
	e := newTestEngine(10000)

	res := e.Check(context.Background(), km(12000), nil, 21000)
	assert.Equal(t, int64(21000), res.Value)
	assert.Equal(t, int64(30000), res.Next.RangeStart)

	// 无实时读数时使用历史保养读数
	params := km(0)
	params.Metrics.OdometerKm = nil
	res = e.Check(context.Background(), params, nil, 15000)
	assert.False(t, res.HistoryOnly)
	assert.Equal(t, int64(20000), res.Next.RangeStart)
}

func TestCheckHistoryOnlyFallback(t *testing.T) {
	now := time.Now()
	schedules := []models.CheckupSchedule{
		schedule(1, 10000, models.ScheduleAccepted, ticketStatus(models.TicketFinished), now.AddDate(-1, 0, 0)),
		schedule(2, 20000, models.SchedulePending, nil, now.AddDate(0, 0, 3)),
	}

	t.Run("no group", func(t *testing.T) {
		params := km(15000)
		params.MaintenanceGroup = ""
		res := newTestEngine(10000).Check(context.Background(), params, schedules, 0)
		assert.True(t, res.HistoryOnly)
		assert.Equal(t, int64(2), res.Next.Schedule.ID)
		assert.Equal(t, int64(1), res.Previous.Schedule.ID)
		assert.Nil(t, res.AfterNext)
	})

	t.Run("no interval", func(t *testing.T) {
		res := newTestEngine(0).Check(context.Background(), km(15000), schedules, 0)
		assert.True(t, res.HistoryOnly)
		assert.Equal(t, int64(20000), res.Next.RangeStart)
	})

	t.Run("no metric", func(t *testing.T) {
		params := km(0)
		params.Metrics.OdometerKm = nil
		res := newTestEngine(10000).Check(context.Background(), params, schedules, 0)
		assert.True(t, res.HistoryOnly)
		assert.Equal(t, int64(20000), res.Next.RangeStart)
		assert.Equal(t, int64(30000), res.AfterNext.RangeStart)
	})

	t.Run("newest finished becomes previous", func(t *testing.T) {
		params := km(0)
		params.MaintenanceGroup = ""
		res := newTestEngine(10000).Check(context.Background(), params, schedules[:1], 0)
		assert.Nil(t, res.Next)
		assert.Equal(t, int64(1), res.Previous.Schedule.ID)
	})
}

func TestCheckHourMeterGroup(t *testing.T) {
	hours := 480.7
	odometer := 99999.0
	params := models.VehicleParams{
		Chassis:          "9BWZZZ377VT004251",
		MaintenanceGroup: models.GroupEspecial,
		Metrics:          models.VehicleMetrics{HourMeter: &hours, OdometerKm: &odometer},
	}

	e := newTestEngine(500)
	res := e.Check(context.Background(), params, nil, 0)
	assert.Equal(t, models.MetricHours, res.MetricType)
	assert.Equal(t, int64(480), res.Value)
	assert.Equal(t, int64(500), res.Next.RangeStart)
	assert.True(t, e.IsNearDue(res.Value, res.Next.RangeStart, res.MetricType))
}

func TestIsLateBoundaries(t *testing.T) {
	e := newTestEngine(10000)
	ctx := context.Background()

	tests := []struct {
		value float64
		want  bool
	}{
		{20000, false},
		{20001, true},
		{24900, true},
		{24999, true},
		{25000, false},
		{25500, false},
		{29999, false},
		{30000, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.IsLate(ctx, km(tt.value), nil, 0), "value=%v", tt.value)
	}
}

func TestIsLateSuppressedByFinishedWindow(t *testing.T) {
	e := newTestEngine(10000)
	now := time.Now()
	finished := []models.CheckupSchedule{
		schedule(1, 20000, models.ScheduleAccepted, ticketStatus(models.TicketFinished), now.AddDate(0, -2, 0)),
	}
	pending := []models.CheckupSchedule{
		schedule(1, 20000, models.ScheduleAccepted, ticketStatus(models.TicketRepair), now.AddDate(0, -2, 0)),
	}

	assert.False(t, e.IsLate(context.Background(), km(24900), finished, 0))
	assert.True(t, e.IsLate(context.Background(), km(24900), pending, 0))
}

func TestIsLateSmallInterval(t *testing.T) {
	// 间隔不大于阈值时窗口为空
	e := newTestEngine(5000)
	for v := float64(1); v < 20000; v += 333 {
		assert.False(t, e.IsLate(context.Background(), km(v), nil, 0))
	}
}

func TestNextCheckupWithRange(t *testing.T) {
	e := newTestEngine(10000)
	ctx := context.Background()

	tests := []struct {
		value  float64
		want   int64
		wantOK bool
	}{
		{30000, 30000, true},
		{30500, 30000, true},
		{33000, 30000, true},
		{33001, 40000, true},
		{39999, 40000, true},
		{1500, 0, false},
		{3001, 10000, true},
		{-1, 0, false},
		{-5000, 0, false},
	}
	for _, tt := range tests {
		got, ok := e.NextCheckupWithRange(ctx, km(tt.value), 0)
		assert.Equal(t, tt.wantOK, ok, "value=%v", tt.value)
		assert.Equal(t, tt.want, got, "value=%v", tt.value)
	}

	params := km(0)
	params.MaintenanceGroup = ""
	_, ok := e.NextCheckupWithRange(ctx, params, 0)
	assert.False(t, ok)

	// 非负读数在节点非 0 时总能得到窗口
	for v := int64(3001); v < 100000; v += 997 {
		start, ok := e.withRange(v, 10000)
		require.True(t, ok, "value=%d", v)
		assert.True(t, start-v <= 10000 && v-start <= DefaultConfig().RangeWindow, "value=%d start=%d", v, start)
	}
}

func TestIsNearDue(t *testing.T) {
	e := newTestEngine(10000)

	assert.True(t, e.IsNearDue(27000, 30000, models.MetricKm))
	assert.True(t, e.IsNearDue(30000, 30000, models.MetricKm))
	assert.False(t, e.IsNearDue(26999, 30000, models.MetricKm))
	assert.False(t, e.IsNearDue(30001, 30000, models.MetricKm))
	assert.True(t, e.IsNearDue(450, 500, models.MetricHours))
	assert.False(t, e.IsNearDue(449, 500, models.MetricHours))
}
